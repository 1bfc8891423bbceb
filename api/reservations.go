package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	service reservation.ReservationUseCase
}

type createBookingRequest struct {
	UserID        int64  `json:"user_id"`
	TrainID       int64  `json:"train_id"`
	RouteID       int64  `json:"route_id"`
	SeatID        *int64 `json:"seat_id"`
	PassengerName string `json:"passenger_name"`
	PassengerAge  int    `json:"passenger_age"`
}

type cancelBookingResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewReservationHandler(service reservation.ReservationUseCase) *ReservationHandler {
	return &ReservationHandler{service: service}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("/bookings", h.create)
	router.DELETE("/bookings/:id", h.cancel)
	router.GET("/users/:id/bookings", h.listForUser)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.CreateBooking(c.Request.Context(), reservation.CreateBookingInput{
		UserID:        req.UserID,
		TrainID:       req.TrainID,
		RouteID:       req.RouteID,
		SeatID:        req.SeatID,
		PassengerName: req.PassengerName,
		PassengerAge:  req.PassengerAge,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *ReservationHandler) cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	ok, err := h.service.CancelBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := cancelBookingResponse{Success: ok, Message: "Booking cancelled"}
	if !ok {
		resp.Message = "Booking not found or already cancelled"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReservationHandler) listForUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	bookings, err := h.service.ListBookingsForUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}
