package catalog

import (
	"context"
	"log"
	"strings"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/repository"
)

type CatalogUseCase interface {
	SearchRoutes(ctx context.Context, source, destination string) ([]domain.RouteSummary, error)
	GetRoute(ctx context.Context, id int64) (*domain.Route, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	AvailableSeats(ctx context.Context, routeID int64) ([]domain.Seat, error)
	RecommendSeats(ctx context.Context, routeID, userID int64) ([]domain.Seat, error)
}

// Cache stores catalog rows. Getters return nil, nil on a miss.
type Cache interface {
	GetRoute(ctx context.Context, id int64) (*domain.Route, error)
	SetRoute(ctx context.Context, route *domain.Route) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	SetUser(ctx context.Context, user *domain.User) error
}

type CatalogService struct {
	repo      repository.CatalogRepository
	users     repository.UserDirectory
	inventory *inventory.Inventory
	cache     Cache
}

func NewCatalogService(repo repository.CatalogRepository, users repository.UserDirectory, inv *inventory.Inventory, cache Cache) *CatalogService {
	return &CatalogService{repo: repo, users: users, inventory: inv, cache: cache}
}

// SearchRoutes is never cached: the result carries live seat counts.
func (s *CatalogService) SearchRoutes(ctx context.Context, source, destination string) ([]domain.RouteSummary, error) {
	source = strings.TrimSpace(source)
	destination = strings.TrimSpace(destination)
	if source == "" {
		return nil, &domain.ValidationError{Field: "source", Reason: "is required"}
	}
	if destination == "" {
		return nil, &domain.ValidationError{Field: "destination", Reason: "is required"}
	}
	return s.repo.SearchRoutes(ctx, source, destination)
}

func (s *CatalogService) GetRoute(ctx context.Context, id int64) (*domain.Route, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetRoute(ctx, id); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			log.Printf("route cache read failed for %d: %v", id, err)
		}
	}

	route, err := s.repo.GetRoute(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetRoute(ctx, route)
	}
	return route, nil
}

func (s *CatalogService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetUser(ctx, id); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			log.Printf("user cache read failed for %d: %v", id, err)
		}
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetUser(ctx, user)
	}
	return user, nil
}

func (s *CatalogService) AvailableSeats(ctx context.Context, routeID int64) ([]domain.Seat, error) {
	route, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return s.inventory.ListAvailable(ctx, route.TrainID, route.ID)
}

func (s *CatalogService) RecommendSeats(ctx context.Context, routeID, userID int64) ([]domain.Seat, error) {
	route, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.inventory.Recommend(ctx, route.Scope(), user.Role)
}

var _ CatalogUseCase = (*CatalogService)(nil)
