package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/config"
	reservationsapi "github.com/Domenick1991/railbooking/internal/api/reservations_service_api"
	"github.com/Domenick1991/railbooking/internal/service/catalog"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type Servers struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled or
// a server fails.
func Run(ctx context.Context, cfg *config.Config, reservations reservation.ReservationUseCase, payments reservation.PaymentUseCase, catalogSvc catalog.CatalogUseCase) error {
	s, err := newServers(cfg, reservations, payments, catalogSvc)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()
	go func() { errCh <- s.httpServer.ListenAndServe() }()
	log.Printf("serving grpc=%s http=%s", cfg.GRPC.Address, cfg.HTTP.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newServers(cfg *config.Config, reservations reservation.ReservationUseCase, payments reservation.PaymentUseCase, catalogSvc catalog.CatalogUseCase) (*Servers, error) {
	grpcSrv := grpc.NewServer()
	reservationsapi.RegisterReservationServiceServer(grpcSrv, reservationsapi.NewServer(reservations))

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus(reservationsapi.ServiceName, healthpb.HealthCheckResponse_SERVING)

	var webhook *api.StripeWebhookHandler
	if cfg.Payment.Provider == config.PaymentProviderStripe && cfg.Payment.StripeWebhookSecret != "" && payments != nil {
		webhook = api.NewStripeWebhookHandler(payments, cfg.Payment.StripeWebhookSecret)
	}
	handler, err := NewHTTPHandler(reservations, catalogSvc, webhook)
	if err != nil {
		return nil, err
	}

	return &Servers{
		grpcServer: grpcSrv,
		health:     healthSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewHTTPHandler serves the REST API under /api/v1 and the admin endpoints
// under /admin/. The Stripe webhook is mounted only when webhook is set.
func NewHTTPHandler(reservations reservation.ReservationUseCase, catalogSvc catalog.CatalogUseCase, webhook *api.StripeWebhookHandler) (http.Handler, error) {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")
	api.NewReservationHandler(reservations).Register(v1)
	api.NewCatalogHandler(catalogSvc).Register(v1)
	if webhook != nil {
		webhook.Register(v1)
	}

	admin, err := newAdminMux(reservations)
	if err != nil {
		return nil, err
	}

	handler := http.NewServeMux()
	handler.Handle("/admin/", admin)
	handler.Handle("/", engine)
	return handler, nil
}

func newAdminMux(reservations reservation.ReservationUseCase) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	marshaler := &runtime.JSONPb{}

	queueHandler := func(list func(ctx context.Context, trainID, routeID int64) (any, error)) runtime.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			trainID, err := strconv.ParseInt(params["train_id"], 10, 64)
			if err != nil {
				runtime.HTTPError(r.Context(), mux, marshaler, w, r, status.Error(codes.InvalidArgument, "invalid train_id"))
				return
			}
			routeID, err := strconv.ParseInt(params["route_id"], 10, 64)
			if err != nil {
				runtime.HTTPError(r.Context(), mux, marshaler, w, r, status.Error(codes.InvalidArgument, "invalid route_id"))
				return
			}
			entries, err := list(r.Context(), trainID, routeID)
			if err != nil {
				runtime.HTTPError(r.Context(), mux, marshaler, w, r, reservationsapi.ToStatus(err))
				return
			}
			writeJSON(w, map[string]any{"entries": entries})
		}
	}

	routes := []struct {
		pattern string
		handler runtime.HandlerFunc
	}{
		{"/admin/v1/trains/{train_id}/routes/{route_id}/rac", queueHandler(func(ctx context.Context, trainID, routeID int64) (any, error) {
			return reservations.GetRACQueue(ctx, trainID, routeID)
		})},
		{"/admin/v1/trains/{train_id}/routes/{route_id}/waitlist", queueHandler(func(ctx context.Context, trainID, routeID int64) (any, error) {
			return reservations.GetWaitlist(ctx, trainID, routeID)
		})},
		{"/admin/v1/audit", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			violations, err := reservations.AuditQueues(r.Context())
			if err != nil {
				runtime.HTTPError(r.Context(), mux, marshaler, w, r, reservationsapi.ToStatus(err))
				return
			}
			writeJSON(w, map[string]any{"healthy": len(violations) == 0, "violations": violations})
		}},
	}
	for _, route := range routes {
		if err := mux.HandlePath(http.MethodGet, route.pattern, route.handler); err != nil {
			return nil, fmt.Errorf("register admin route %s: %w", route.pattern, err)
		}
	}
	return mux, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write admin response: %v", err)
	}
}
