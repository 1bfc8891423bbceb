package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func TestSimulatedGateway(t *testing.T) {
	g := NewSimulatedGateway()
	receipt, err := g.Charge(context.Background(), Charge{BookingID: 1, PNR: "p", AmountCents: 1000, Currency: "inr"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, receipt.Status)
	assert.True(t, strings.HasPrefix(receipt.ProviderRef, "sim_"))
	assert.NoError(t, g.Refund(context.Background(), receipt.ProviderRef, 1000))
	assert.NoError(t, g.Void(context.Background(), receipt.ProviderRef))
}

func TestSimulatedGatewayLimit(t *testing.T) {
	g := NewSimulatedGateway().WithLimit(500)
	receipt, err := g.Charge(context.Background(), Charge{AmountCents: 1000})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, receipt.Status)
}

func TestSimulatedGatewayCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulatedGateway().Charge(ctx, Charge{AmountCents: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStripeGateway(t *testing.T) {
	_, err := NewStripeGateway("")
	assert.Error(t, err)

	g, err := NewStripeGateway("sk_test_123")
	require.NoError(t, err)
	assert.NotNil(t, g)
	assert.NoError(t, g.Refund(context.Background(), "", 100))
}

// stripeStub serves the two PaymentIntent endpoints the gateway calls and
// records the form each request carried.
func stripeStub(t *testing.T, status string) (*StripeGateway, func() []url.Values) {
	t.Helper()
	var (
		mu    sync.Mutex
		forms []url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		forms = append(forms, r.PostForm)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/payment_intents":
			fmt.Fprintf(w, `{"id":"pi_123","object":"payment_intent","status":%q}`, status)
		case "/v1/payment_intents/pi_123/cancel":
			fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","status":"canceled"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"no such route"}}`)
		}
	}))
	t.Cleanup(srv.Close)

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	g, err := NewStripeGateway("sk_test_123", stripe.WithBackends(backends))
	require.NoError(t, err)
	return g, func() []url.Values {
		mu.Lock()
		defer mu.Unlock()
		return append([]url.Values(nil), forms...)
	}
}

func TestStripeGatewayCharge(t *testing.T) {
	tests := []struct {
		status string
		want   domain.PaymentStatus
	}{
		{"requires_payment_method", domain.PaymentStatusPending},
		{"succeeded", domain.PaymentStatusSuccess},
		{"canceled", domain.PaymentStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			g, forms := stripeStub(t, tt.status)
			receipt, err := g.Charge(context.Background(), Charge{BookingID: 7, PNR: "pnr-7", AmountCents: 120000, Currency: "inr"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, receipt.Status)
			assert.Equal(t, "pi_123", receipt.ProviderRef)

			require.Len(t, forms(), 1)
			form := forms()[0]
			assert.Equal(t, "120000", form.Get("amount"))
			assert.Equal(t, "7", form.Get("metadata[booking_id]"))
		})
	}
}

func TestStripeGatewayVoidCancelsIntent(t *testing.T) {
	g, forms := stripeStub(t, "requires_payment_method")

	require.NoError(t, g.Void(context.Background(), "pi_123"))
	require.Len(t, forms(), 1)
	assert.Equal(t, "requested_by_customer", forms()[0].Get("cancellation_reason"))

	assert.NoError(t, g.Void(context.Background(), ""))
	assert.Len(t, forms(), 1)

	assert.Error(t, g.Void(context.Background(), "pi_missing"))
}
