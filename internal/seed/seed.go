package seed

import (
	"context"
	"fmt"
	"log"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

// Target receives the catalog rows and the seat topology.
type Target interface {
	CreateTrain(ctx context.Context, train *domain.Train) error
	CreateRoute(ctx context.Context, route *domain.Route) error
	CreateUser(ctx context.Context, user *domain.User) error
	SeedSeats(ctx context.Context, scope domain.Scope, seats []domain.Seat) error
}

type pgTarget struct {
	*repository.PGCatalogRepository
	*repository.PGUserDirectory
	*repository.PGStore
}

func PostgresTarget(pool *pgxpool.Pool) Target {
	return pgTarget{
		PGCatalogRepository: repository.NewCatalogRepository(pool),
		PGUserDirectory:     repository.NewUserDirectory(pool),
		PGStore:             repository.NewPGStore(pool),
	}
}

type Topology struct {
	Trains []TrainSpec   `yaml:"trains"`
	Users  []domain.User `yaml:"users"`
}

// TrainSpec lists the routes a train serves. Every route gets its own copy
// of the compartments, since availability is tracked per route.
type TrainSpec struct {
	Name         string                     `yaml:"name"`
	Number       string                     `yaml:"number"`
	Routes       []RouteSpec                `yaml:"routes"`
	Compartments []domain.CompartmentLayout `yaml:"compartments"`
	SleeperBays  map[string]int             `yaml:"sleeper_bays"`
}

type RouteSpec struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Departure   string `yaml:"departure"`
	Arrival     string `yaml:"arrival"`
	PriceCents  int64  `yaml:"price_cents"`
}

func ParseTopology(data []byte) (*Topology, error) {
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("failed to parse topology: %w", err)
	}
	for _, t := range topo.Trains {
		if t.Number == "" {
			return nil, fmt.Errorf("train %q has no number", t.Name)
		}
	}
	return &topo, nil
}

func (t TrainSpec) layouts() []domain.CompartmentLayout {
	layouts := append([]domain.CompartmentLayout(nil), t.Compartments...)
	for name, bays := range t.SleeperBays {
		layouts = append(layouts, inventory.SleeperLayout(name, "SL", bays))
	}
	return layouts
}

// Apply writes the topology and returns the number of seats created.
func Apply(ctx context.Context, target Target, topo *Topology) (int, error) {
	seats := 0
	for _, spec := range topo.Trains {
		train := &domain.Train{Name: spec.Name, Number: spec.Number}
		if err := target.CreateTrain(ctx, train); err != nil {
			return seats, fmt.Errorf("create train %s: %w", spec.Number, err)
		}
		for _, rs := range spec.Routes {
			route := &domain.Route{
				TrainID:            train.ID,
				SourceStation:      rs.Source,
				DestinationStation: rs.Destination,
				DepartureTime:      rs.Departure,
				ArrivalTime:        rs.Arrival,
				PriceCents:         rs.PriceCents,
			}
			if err := target.CreateRoute(ctx, route); err != nil {
				return seats, fmt.Errorf("create route %s-%s: %w", rs.Source, rs.Destination, err)
			}
			built := inventory.BuildSeats(route.Scope(), spec.layouts())
			if err := target.SeedSeats(ctx, route.Scope(), built); err != nil {
				return seats, fmt.Errorf("seed seats for %s: %w", route.Scope(), err)
			}
			seats += len(built)
			log.Printf("seeded train=%s route_id=%d seats=%d", train.Number, route.ID, len(built))
		}
	}
	for i := range topo.Users {
		if err := target.CreateUser(ctx, &topo.Users[i]); err != nil {
			return seats, fmt.Errorf("create user %s: %w", topo.Users[i].Username, err)
		}
	}
	return seats, nil
}

// Demo is the topology used by the memory driver and by cmd/seed when no
// file is given.
func Demo() *Topology {
	return &Topology{
		Trains: []TrainSpec{
			{
				Name:   "Rajdhani Express",
				Number: "12301",
				Routes: []RouteSpec{
					{Source: "Howrah", Destination: "New Delhi", Departure: "16:50", Arrival: "10:00", PriceCents: 325000},
					{Source: "Howrah", Destination: "Kanpur Central", Departure: "16:50", Arrival: "04:10", PriceCents: 215000},
				},
				Compartments: []domain.CompartmentLayout{
					{Name: "A1", ClassType: "2A", Berths: []domain.BerthType{
						domain.BerthLower, domain.BerthUpper, domain.BerthLower, domain.BerthUpper,
						domain.BerthSideLower, domain.BerthSideUpper,
					}},
				},
				SleeperBays: map[string]int{"B1": 2},
			},
			{
				Name:   "Shatabdi Express",
				Number: "12002",
				Routes: []RouteSpec{
					{Source: "New Delhi", Destination: "Bhopal", Departure: "06:00", Arrival: "14:10", PriceCents: 145000},
				},
				SleeperBays: map[string]int{"S1": 1},
			},
		},
		Users: []domain.User{
			{Username: "asha", Email: "asha@example.com", Role: domain.RoleRegular},
			{Username: "ramesh", Email: "ramesh@example.com", Role: domain.RoleSenior},
			{Username: "farida", Email: "farida@example.com", Role: domain.RoleDisabled},
			{Username: "ops", Email: "ops@example.com", Role: domain.RoleAdmin},
		},
	}
}
