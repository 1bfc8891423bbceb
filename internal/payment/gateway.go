package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

// Charge is one payment request for a Confirmed booking.
type Charge struct {
	BookingID   int64
	PNR         string
	AmountCents int64
	Currency    string
}

// Receipt is what the gateway reports back. Status is Success, Failed or,
// for providers that confirm asynchronously, Pending.
type Receipt struct {
	Status      domain.PaymentStatus
	ProviderRef string
}

type Gateway interface {
	Charge(ctx context.Context, charge Charge) (*Receipt, error)
	Refund(ctx context.Context, providerRef string, amountCents int64) error
	// Void abandons a charge the provider has not settled yet.
	Void(ctx context.Context, providerRef string) error
}

// SimulatedGateway approves every charge up to an optional limit.
type SimulatedGateway struct {
	limitCents int64
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

// WithLimit makes the gateway decline charges above limitCents.
func (g *SimulatedGateway) WithLimit(limitCents int64) *SimulatedGateway {
	g.limitCents = limitCents
	return g
}

func (g *SimulatedGateway) Charge(ctx context.Context, charge Charge) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref := "sim_" + uuid.NewString()
	if g.limitCents > 0 && charge.AmountCents > g.limitCents {
		return &Receipt{Status: domain.PaymentStatusFailed, ProviderRef: ref}, nil
	}
	return &Receipt{Status: domain.PaymentStatusSuccess, ProviderRef: ref}, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, _ string, _ int64) error {
	return ctx.Err()
}

func (g *SimulatedGateway) Void(ctx context.Context, _ string) error {
	return ctx.Err()
}

// StripeGateway creates a PaymentIntent per booking. Intents the customer
// still has to confirm come back Pending and are settled later by the
// webhook, see ParseStripeEvent.
type StripeGateway struct {
	client *stripe.Client
}

func NewStripeGateway(secretKey string, opts ...stripe.ClientOption) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	return &StripeGateway{client: stripe.NewClient(secretKey, opts...)}, nil
}

func (g *StripeGateway) Charge(ctx context.Context, charge Charge) (*Receipt, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:      stripe.Int64(charge.AmountCents),
		Currency:    stripe.String(charge.Currency),
		Description: stripe.String(fmt.Sprintf("Rail booking %s", charge.PNR)),
		Metadata: map[string]string{
			"booking_id": fmt.Sprint(charge.BookingID),
			"pnr":        charge.PNR,
		},
	}
	pi, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &Receipt{Status: domain.PaymentStatusSuccess, ProviderRef: pi.ID}, nil
	case stripe.PaymentIntentStatusCanceled:
		return &Receipt{Status: domain.PaymentStatusFailed, ProviderRef: pi.ID}, nil
	default:
		return &Receipt{Status: domain.PaymentStatusPending, ProviderRef: pi.ID}, nil
	}
}

func (g *StripeGateway) Refund(ctx context.Context, providerRef string, amountCents int64) error {
	if providerRef == "" {
		return nil
	}
	_, err := g.client.V1Refunds.Create(ctx, &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(providerRef),
		Amount:        stripe.Int64(amountCents),
	})
	if err != nil {
		return fmt.Errorf("stripe refund: %w", err)
	}
	return nil
}

func (g *StripeGateway) Void(ctx context.Context, providerRef string) error {
	if providerRef == "" {
		return nil
	}
	_, err := g.client.V1PaymentIntents.Cancel(ctx, providerRef, &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	})
	if err != nil {
		return fmt.Errorf("stripe cancel payment intent: %w", err)
	}
	return nil
}

var (
	_ Gateway = (*SimulatedGateway)(nil)
	_ Gateway = (*StripeGateway)(nil)
)
