package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/queue"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReservationUseCase struct {
	mock.Mock
}

func (m *MockReservationUseCase) CreateBooking(ctx context.Context, input reservation.CreateBookingInput) (*domain.BookingResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingResult), args.Error(1)
}

func (m *MockReservationUseCase) CancelBooking(ctx context.Context, bookingID int64) (bool, error) {
	args := m.Called(ctx, bookingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockReservationUseCase) ListBookingsForUser(ctx context.Context, userID int64) ([]domain.BookingDetails, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BookingDetails), args.Error(1)
}

func (m *MockReservationUseCase) GetRACQueue(ctx context.Context, trainID, routeID int64) ([]domain.QueueEntry, error) {
	args := m.Called(ctx, trainID, routeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.QueueEntry), args.Error(1)
}

func (m *MockReservationUseCase) GetWaitlist(ctx context.Context, trainID, routeID int64) ([]domain.QueueEntry, error) {
	args := m.Called(ctx, trainID, routeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.QueueEntry), args.Error(1)
}

func (m *MockReservationUseCase) AuditQueues(ctx context.Context) ([]queue.Violation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]queue.Violation), args.Error(1)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestReservationHandler_create(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)
	c, w := newTestContext()

	body := `{"user_id":1,"train_id":1,"route_id":10,"passenger_name":"Asha Rao","passenger_age":41}`
	c.Request = httptest.NewRequest("POST", "/bookings", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")

	input := reservation.CreateBookingInput{UserID: 1, TrainID: 1, RouteID: 10, PassengerName: "Asha Rao", PassengerAge: 41}
	seatID := int64(5)
	result := &domain.BookingResult{
		Success:       true,
		Status:        domain.BookingStatusConfirmed,
		BookingID:     3,
		PNR:           "PNR123",
		SeatID:        &seatID,
		PaymentStatus: domain.PaymentStatusSuccess,
		Message:       "Booking confirmed successfully; payment successful",
	}
	mockService.On("CreateBooking", c.Request.Context(), input).Return(result, nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp domain.BookingResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, *result, resp)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_createErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &domain.ValidationError{Field: "passenger_age", Reason: "must be at least 1"}, http.StatusBadRequest},
		{"unknown route", fmt.Errorf("route 10: %w", domain.ErrNotFound), http.StatusNotFound},
		{"conflict", domain.ErrConcurrencyConflict, http.StatusConflict},
		{"seat taken", domain.ErrSeatUnavailable, http.StatusConflict},
		{"storage", domain.ErrPersistence, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockReservationUseCase{}
			handler := NewReservationHandler(mockService)
			c, w := newTestContext()

			c.Request = httptest.NewRequest("POST", "/bookings", bytes.NewBufferString(`{"user_id":1,"train_id":1,"route_id":10}`))
			c.Request.Header.Set("Content-Type", "application/json")
			mockService.On("CreateBooking", c.Request.Context(), mock.Anything).Return(nil, tt.err)

			handler.create(c)

			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestReservationHandler_createMalformedBody(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)
	c, w := newTestContext()

	c.Request = httptest.NewRequest("POST", "/bookings", bytes.NewBufferString(`{"user_id":`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestReservationHandler_cancel(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)
	c, w := newTestContext()

	c.Request = httptest.NewRequest("DELETE", "/bookings/3", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	mockService.On("CancelBooking", c.Request.Context(), int64(3)).Return(true, nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Booking cancelled"}`, w.Body.String())
}

func TestReservationHandler_cancelAlreadyCancelled(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)
	c, w := newTestContext()

	c.Request = httptest.NewRequest("DELETE", "/bookings/3", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	mockService.On("CancelBooking", c.Request.Context(), int64(3)).Return(false, nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Booking not found or already cancelled"}`, w.Body.String())
}

func TestReservationHandler_cancelInvalidID(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)
	c, w := newTestContext()

	c.Request = httptest.NewRequest("DELETE", "/bookings/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	handler.cancel(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid id"}`, w.Body.String())
}

func TestReservationHandler_listForUser(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)
	c, w := newTestContext()

	c.Request = httptest.NewRequest("GET", "/users/1/bookings", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	details := []domain.BookingDetails{{
		Booking:   domain.Booking{ID: 3, PNR: "PNR123", UserID: 1, Status: domain.BookingStatusRAC},
		TrainName: "Rajdhani Express",
	}}
	mockService.On("ListBookingsForUser", c.Request.Context(), int64(1)).Return(details, nil)

	handler.listForUser(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []domain.BookingDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "PNR123", resp[0].PNR)
	assert.Equal(t, "Rajdhani Express", resp[0].TrainName)
}

func TestReservationHandler_Register(t *testing.T) {
	mockService := &MockReservationUseCase{}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewReservationHandler(mockService).Register(router.Group("/api/v1"))

	mockService.On("CancelBooking", mock.Anything, int64(8)).Return(true, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/bookings/8", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}
