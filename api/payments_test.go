package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/payment"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const webhookSecret = "whsec_test"

type MockPaymentUseCase struct {
	mock.Mock
}

func (m *MockPaymentUseCase) SettlePayment(ctx context.Context, s payment.Settlement) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}

func stripeDelivery(t *testing.T, c *gin.Context, eventType, bookingID string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data": map[string]any{"object": map[string]any{
			"id":       "pi_123",
			"object":   "payment_intent",
			"metadata": map[string]string{"booking_id": bookingID},
		}},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret})
	c.Request = httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(signed.Payload))
	c.Request.Header.Set("Stripe-Signature", signed.Header)
}

func TestStripeWebhookHandler_settles(t *testing.T) {
	mockService := &MockPaymentUseCase{}
	handler := NewStripeWebhookHandler(mockService, webhookSecret)
	c, w := newTestContext()
	stripeDelivery(t, c, "payment_intent.succeeded", "9")

	mockService.On("SettlePayment", mock.Anything, payment.Settlement{
		EventType:   "payment_intent.succeeded",
		BookingID:   9,
		ProviderRef: "pi_123",
		Status:      domain.PaymentStatusSuccess,
	}).Return(true, nil)

	handler.receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"applied":true}`, w.Body.String())
	mockService.AssertExpectations(t)
}

func TestStripeWebhookHandler_paymentFailed(t *testing.T) {
	mockService := &MockPaymentUseCase{}
	handler := NewStripeWebhookHandler(mockService, webhookSecret)
	c, w := newTestContext()
	stripeDelivery(t, c, "payment_intent.payment_failed", "9")

	mockService.On("SettlePayment", mock.Anything, mock.MatchedBy(func(s payment.Settlement) bool {
		return s.Status == domain.PaymentStatusFailed && s.BookingID == 9
	})).Return(false, nil)

	handler.receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"applied":false}`, w.Body.String())
	mockService.AssertExpectations(t)
}

func TestStripeWebhookHandler_badSignature(t *testing.T) {
	mockService := &MockPaymentUseCase{}
	handler := NewStripeWebhookHandler(mockService, "whsec_other")
	c, w := newTestContext()
	stripeDelivery(t, c, "payment_intent.succeeded", "9")

	handler.receive(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "SettlePayment", mock.Anything, mock.Anything)
}

func TestStripeWebhookHandler_ignoresOtherEvents(t *testing.T) {
	mockService := &MockPaymentUseCase{}
	handler := NewStripeWebhookHandler(mockService, webhookSecret)
	c, w := newTestContext()
	stripeDelivery(t, c, "customer.created", "9")

	handler.receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertNotCalled(t, "SettlePayment", mock.Anything, mock.Anything)
}

func TestStripeWebhookHandler_errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "unknown booking is acknowledged", err: domain.ErrNotFound, wantCode: http.StatusOK},
		{name: "store failure asks for a retry", err: domain.ErrPersistence, wantCode: http.StatusInternalServerError},
		{name: "conflict asks for a retry", err: domain.ErrConcurrencyConflict, wantCode: http.StatusConflict},
		{name: "opaque failure", err: errors.New("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockPaymentUseCase{}
			handler := NewStripeWebhookHandler(mockService, webhookSecret)
			c, w := newTestContext()
			stripeDelivery(t, c, "payment_intent.succeeded", "9")
			mockService.On("SettlePayment", mock.Anything, mock.Anything).Return(false, tt.err)

			handler.receive(c)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestStripeWebhookHandler_Register(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewStripeWebhookHandler(&MockPaymentUseCase{}, webhookSecret).Register(router.Group("/api/v1"))

	routes := router.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, http.MethodPost, routes[0].Method)
	assert.Equal(t, "/api/v1/webhook/stripe", routes[0].Path)
}
