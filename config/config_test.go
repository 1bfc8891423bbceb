package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
http:
  address: ":8080"
database:
  host: localhost
  port: 5432
  user: rail
  password: secret
  name: railbooking
`))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 10, cfg.Reservation.RACCapacity)
	assert.Equal(t, 3, cfg.Reservation.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.Reservation.RetryBackoff())
	assert.False(t, cfg.Reservation.AssignSeatOnPromotion)
	assert.Equal(t, time.Minute, cfg.Catalog.CacheTTL())
	assert.Equal(t, PaymentProviderSimulated, cfg.Payment.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Worker.AuditInterval())
	assert.Equal(t, "noreply@railbooking.local", cfg.Worker.EmailFrom)
	assert.Equal(t, "host=localhost port=5432 user=rail password=secret dbname=railbooking sslmode=disable", cfg.Database.DSN())
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  driver: memory
reservation:
  rac_capacity: 4
  max_retries: 5
  retry_backoff_ms: 100
  assign_seat_on_promotion: true
kafka:
  brokers: ["kafka:9092"]
  reservation_events_topic: reservations
`))
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Reservation.RACCapacity)
	assert.Equal(t, 5, cfg.Reservation.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Reservation.RetryBackoff())
	assert.True(t, cfg.Reservation.AssignSeatOnPromotion)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "reservations", cfg.Kafka.ReservationEventsTopic)
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "unknown driver", yaml: "database:\n  driver: oracle\n", wantErr: "unknown database driver"},
		{name: "unknown provider", yaml: "payment:\n  provider: cash\n", wantErr: "unknown payment provider"},
		{name: "stripe without key", yaml: "payment:\n  provider: stripe\n", wantErr: "stripe_secret_key"},
		{name: "negative rac", yaml: "reservation:\n  rac_capacity: -1\n", wantErr: "rac_capacity"},
		{name: "broken yaml", yaml: "http: [", wantErr: "failed to parse config"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("STRIPE_SECRET_KEY", "")
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParse_StripeKeyFromEnv(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	cfg, err := Parse([]byte("payment:\n  provider: stripe\n  stripe_webhook_secret: whsec_file\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk_test_123", cfg.Payment.StripeSecretKey)
	assert.Equal(t, "whsec_file", cfg.Payment.StripeWebhookSecret)

	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")
	cfg, err = Parse([]byte("payment:\n  provider: stripe\n  stripe_webhook_secret: whsec_file\n"))
	require.NoError(t, err)
	assert.Equal(t, "whsec_env", cfg.Payment.StripeWebhookSecret)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grpc:\n  address: \":9090\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.GRPC.Address)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}
