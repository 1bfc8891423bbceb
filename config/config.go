package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	PaymentProviderSimulated = "simulated"
	PaymentProviderStripe    = "stripe"
)

type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Reservation ReservationConfig `yaml:"reservation"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Payment     PaymentConfig     `yaml:"payment"`
	Worker      WorkerConfig      `yaml:"worker"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers                []string `yaml:"brokers"`
	ReservationEventsTopic string   `yaml:"reservation_events_topic"`
	NotificationsTopic     string   `yaml:"notifications_topic"`
	GroupID                string   `yaml:"group_id"`
}

// ReservationConfig tunes the allocation engine.
type ReservationConfig struct {
	RACCapacity           int  `yaml:"rac_capacity"`
	MaxRetries            int  `yaml:"max_retries"`
	RetryBackoffMillis    int  `yaml:"retry_backoff_ms"`
	AssignSeatOnPromotion bool `yaml:"assign_seat_on_promotion"`
}

func (r ReservationConfig) RetryBackoff() time.Duration {
	return time.Duration(r.RetryBackoffMillis) * time.Millisecond
}

type CatalogConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

func (c CatalogConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type PaymentConfig struct {
	Provider        string `yaml:"provider"`
	Currency        string `yaml:"currency"`
	StripeSecretKey string `yaml:"stripe_secret_key"`
	// StripeWebhookSecret verifies payment_intent events; without it Pending
	// Stripe payments are never settled.
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"`
}

type WorkerConfig struct {
	AuditIntervalMinutes int    `yaml:"audit_interval_minutes"`
	EmailFrom            string `yaml:"email_from"`
}

func (w WorkerConfig) AuditInterval() time.Duration {
	return time.Duration(w.AuditIntervalMinutes) * time.Minute
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, fills defaults and applies environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		cfg.Payment.StripeSecretKey = key
	}
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Payment.StripeWebhookSecret = secret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Reservation.RACCapacity == 0 {
		c.Reservation.RACCapacity = 10
	}
	if c.Reservation.MaxRetries == 0 {
		c.Reservation.MaxRetries = 3
	}
	if c.Reservation.RetryBackoffMillis == 0 {
		c.Reservation.RetryBackoffMillis = 20
	}
	if c.Catalog.CacheTTLSeconds == 0 {
		c.Catalog.CacheTTLSeconds = 60
	}
	if c.Payment.Provider == "" {
		c.Payment.Provider = PaymentProviderSimulated
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "inr"
	}
	if c.Worker.AuditIntervalMinutes == 0 {
		c.Worker.AuditIntervalMinutes = 5
	}
	if c.Worker.EmailFrom == "" {
		c.Worker.EmailFrom = "noreply@railbooking.local"
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Payment.Provider {
	case PaymentProviderSimulated:
	case PaymentProviderStripe:
		if c.Payment.StripeSecretKey == "" {
			return fmt.Errorf("payment provider stripe requires stripe_secret_key")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Payment.Provider)
	}
	if c.Reservation.RACCapacity < 0 {
		return fmt.Errorf("rac_capacity must not be negative")
	}
	return nil
}
