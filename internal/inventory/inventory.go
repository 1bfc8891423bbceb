package inventory

import (
	"context"
	"fmt"
	"log"

	"github.com/Domenick1991/railbooking/internal/domain"
)

// SeatReader lists the committed seat set of a scope.
type SeatReader interface {
	ListSeats(ctx context.Context, scope domain.Scope) ([]domain.Seat, error)
}

// SeatTx is the slice of a scope transaction the inventory mutates through.
type SeatTx interface {
	Scope() domain.Scope
	SetSeatAvailability(ctx context.Context, seatID int64, available bool) (bool, error)
}

type Inventory struct {
	seats SeatReader
}

func New(seats SeatReader) *Inventory {
	return &Inventory{seats: seats}
}

// ListAvailable returns the available seats of a scope ordered by seat id.
func (i *Inventory) ListAvailable(ctx context.Context, trainID, routeID int64) ([]domain.Seat, error) {
	seats, err := i.seats.ListSeats(ctx, domain.NewScope(trainID, routeID))
	if err != nil {
		return nil, err
	}
	return filter(seats, func(s domain.Seat) bool { return s.Available }), nil
}

// Recommend narrows the available seats to those suited to role. The
// result is always a subset of ListAvailable.
func (i *Inventory) Recommend(ctx context.Context, scope domain.Scope, role domain.UserRole) ([]domain.Seat, error) {
	available, err := i.ListAvailable(ctx, scope.TrainID, scope.RouteID)
	if err != nil {
		return nil, err
	}

	switch role {
	case domain.RoleSenior, domain.RoleDisabled:
		return filter(available, func(s domain.Seat) bool { return s.BerthType.IsLower() }), nil
	case domain.RoleRegular:
		upper := filter(available, func(s domain.Seat) bool { return !s.BerthType.IsLower() })
		if len(upper) == 0 {
			return available, nil
		}
		return upper, nil
	default:
		return available, nil
	}
}

// Allocate marks a seat taken. It returns domain.ErrSeatUnavailable when the
// seat is already taken and domain.ErrNotFound when it is not part of the
// transaction's scope.
func (i *Inventory) Allocate(ctx context.Context, tx SeatTx, seatID int64) error {
	changed, err := tx.SetSeatAvailability(ctx, seatID, false)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("seat %d: %w", seatID, domain.ErrSeatUnavailable)
	}
	return nil
}

// Release marks a seat available again. Releasing a seat that is already
// available is not an error.
func (i *Inventory) Release(ctx context.Context, tx SeatTx, seatID int64) error {
	changed, err := tx.SetSeatAvailability(ctx, seatID, true)
	if err != nil {
		return err
	}
	if !changed {
		log.Printf("WARNING: seat %d in %s was already available on release", seatID, tx.Scope())
	}
	return nil
}

// BuildSeats expands compartment layouts into the static seat set of a
// scope. Seat numbers are "<compartment>-<n>", 1-based within the compartment.
func BuildSeats(scope domain.Scope, layouts []domain.CompartmentLayout) []domain.Seat {
	seats := make([]domain.Seat, 0)
	for _, c := range layouts {
		for n, berth := range c.Berths {
			seats = append(seats, domain.Seat{
				TrainID:     scope.TrainID,
				RouteID:     scope.RouteID,
				Compartment: c.Name,
				ClassType:   c.ClassType,
				SeatNumber:  fmt.Sprintf("%s-%d", c.Name, n+1),
				BerthType:   berth,
				Available:   true,
			})
		}
	}
	return seats
}

// SleeperLayout is the eight-berth bay used by sleeper and 3-tier coaches.
func SleeperLayout(name, class string, bays int) domain.CompartmentLayout {
	bay := []domain.BerthType{
		domain.BerthLower, domain.BerthMiddle, domain.BerthUpper,
		domain.BerthLower, domain.BerthMiddle, domain.BerthUpper,
		domain.BerthSideLower, domain.BerthSideUpper,
	}
	berths := make([]domain.BerthType, 0, len(bay)*bays)
	for b := 0; b < bays; b++ {
		berths = append(berths, bay...)
	}
	return domain.CompartmentLayout{Name: name, ClassType: class, Berths: berths}
}

func filter(seats []domain.Seat, keep func(domain.Seat) bool) []domain.Seat {
	out := make([]domain.Seat, 0, len(seats))
	for _, s := range seats {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
