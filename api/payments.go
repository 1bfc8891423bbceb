package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/payment"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps what a webhook delivery may send.
const maxWebhookBody = 64 << 10

// StripeWebhookHandler receives Stripe's PaymentIntent events and settles the
// Pending payments they refer to.
type StripeWebhookHandler struct {
	service reservation.PaymentUseCase
	secret  string
}

func NewStripeWebhookHandler(service reservation.PaymentUseCase, secret string) *StripeWebhookHandler {
	return &StripeWebhookHandler{service: service, secret: secret}
}

func (h *StripeWebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/webhook/stripe", h.receive)
}

func (h *StripeWebhookHandler) receive(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Printf("read stripe webhook body: %v", err)
		c.Status(http.StatusServiceUnavailable)
		return
	}

	settlement, err := payment.ParseStripeEvent(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		log.Printf("reject stripe webhook: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if settlement == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	log.Printf("[StripeEvent] %s for booking %d (%s)", settlement.EventType, settlement.BookingID, settlement.ProviderRef)
	applied, err := h.service.SettlePayment(c.Request.Context(), *settlement)
	if errors.Is(err, domain.ErrNotFound) {
		// not ours, or deleted since; retrying will not help
		log.Printf("stripe event for unknown booking %d ignored", settlement.BookingID)
		c.JSON(http.StatusOK, gin.H{"received": true, "applied": false})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "applied": applied})
}
