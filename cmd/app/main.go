package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/bootstrap"
	"github.com/Domenick1991/railbooking/internal/cache"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/payment"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/Domenick1991/railbooking/internal/seed"
	"github.com/Domenick1991/railbooking/internal/service/catalog"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/jackc/pgx/v5/pgxpool"
)

type storage struct {
	store   repository.Store
	catalog repository.CatalogRepository
	users   repository.UserDirectory
	close   func()
}

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer st.close()

	var catalogCache catalog.Cache
	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Catalog.CacheTTL())
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		log.Printf("WARNING: redis unavailable, catalog cache disabled: %v", err)
	} else {
		catalogCache = redisCache
	}

	gateway, err := newGateway(cfg.Payment)
	if err != nil {
		log.Fatalf("payment gateway: %v", err)
	}

	catalogService := catalog.NewCatalogService(st.catalog, st.users, inventory.New(st.store), catalogCache)

	opts := []reservation.CoordinatorOption{reservation.WithCurrency(cfg.Payment.Currency)}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		if err := producer.CheckConnection(ctx); err != nil {
			log.Printf("WARNING: %v; reservation events may be dropped", err)
		}
		opts = append(opts, reservation.WithEvents(producer, cfg.Kafka.ReservationEventsTopic, cfg.Kafka.NotificationsTopic))
	}

	coordinator := reservation.NewCoordinator(st.store, catalogService, gateway, cfg.Reservation, opts...)

	if err := bootstrap.Run(ctx, cfg, coordinator, coordinator, catalogService); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.Database.Driver == config.DriverMemory {
		store := repository.NewMemoryStore()
		seats, err := seed.Apply(ctx, store, seed.Demo())
		if err != nil {
			return nil, err
		}
		log.Printf("memory store seeded with demo topology, %d seats", seats)
		return &storage{store: store, catalog: store, users: store, close: func() {}}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &storage{
		store:   repository.NewPGStore(pool),
		catalog: repository.NewCatalogRepository(pool),
		users:   repository.NewUserDirectory(pool),
		close:   pool.Close,
	}, nil
}

func newGateway(cfg config.PaymentConfig) (payment.Gateway, error) {
	if cfg.Provider == config.PaymentProviderStripe {
		if cfg.StripeWebhookSecret == "" {
			log.Printf("WARNING: stripe_webhook_secret is not set; pending Stripe payments will not settle")
		}
		return payment.NewStripeGateway(cfg.StripeSecretKey)
	}
	return payment.NewSimulatedGateway(), nil
}
