package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrBadSignature = errors.New("invalid webhook signature")

// Settlement is the provider's final word on one charge.
type Settlement struct {
	EventType   string
	BookingID   int64
	ProviderRef string
	Status      domain.PaymentStatus
}

// ParseStripeEvent verifies a webhook delivery against the endpoint secret
// and returns the settlement it carries. Events that do not settle a
// PaymentIntent return nil with no error.
func ParseStripeEvent(payload []byte, signature, secret string) (*Settlement, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	var status domain.PaymentStatus
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		status = domain.PaymentStatusSuccess
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		status = domain.PaymentStatusFailed
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if event.Data == nil {
		return nil, fmt.Errorf("%s event has no data", event.Type)
	}
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("parse payment intent: %w", err)
	}
	bookingID, err := strconv.ParseInt(pi.Metadata["booking_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("payment intent %s has no booking_id: %w", pi.ID, err)
	}
	return &Settlement{
		EventType:   string(event.Type),
		BookingID:   bookingID,
		ProviderRef: pi.ID,
		Status:      status,
	}, nil
}
