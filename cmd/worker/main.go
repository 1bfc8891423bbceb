package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/cache"
	"github.com/Domenick1991/railbooking/internal/email"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/payment"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/Domenick1991/railbooking/internal/service/catalog"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/Domenick1991/railbooking/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatalf("worker needs the postgres driver, got %q", cfg.Database.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Catalog.CacheTTL())
	defer redisCache.Close()

	store := repository.NewPGStore(pool)
	catalogService := catalog.NewCatalogService(
		repository.NewCatalogRepository(pool),
		repository.NewUserDirectory(pool),
		inventory.New(store),
		redisCache,
	)
	// Audit only; this coordinator never books.
	coordinator := reservation.NewCoordinator(store, catalogService, payment.NewSimulatedGateway(), cfg.Reservation)

	scheduler, err := worker.NewAuditScheduler(ctx, coordinator, cfg.Worker.AuditInterval())
	if err != nil {
		log.Fatalf("audit scheduler: %v", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			log.Printf("scheduler shutdown: %v", err)
		}
	}()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	notifier := worker.NewNotifier(catalogService, email.NewSender(cfg.Worker.EmailFrom))

	go func() {
		if err := consumer.Consume(ctx, notifier.Handle); err != nil && ctx.Err() == nil {
			log.Printf("consumer stopped: %v", err)
			stop()
		}
	}()

	log.Printf("worker started topic=%s audit_interval=%s", cfg.Kafka.NotificationsTopic, cfg.Worker.AuditInterval())
	<-ctx.Done()
	log.Printf("worker shutting down")
}
