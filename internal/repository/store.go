package repository

import (
	"context"

	"github.com/Domenick1991/railbooking/internal/domain"
)

// Store is the persistence collaborator of the reservation engine.
//
// InScope is the only way to mutate seats, bookings, payments and queue
// entries. It holds the exclusive lock of one (train, route) scope for the
// duration of fn, commits when fn returns nil and rolls back otherwise.
// Everything else reads committed state.
type Store interface {
	InScope(ctx context.Context, scope domain.Scope, fn func(tx ScopeTx) error) error

	GetBooking(ctx context.Context, id int64) (*domain.Booking, error)
	ListBookingsForUser(ctx context.Context, userID int64) ([]domain.BookingDetails, error)
	ListQueue(ctx context.Context, scope domain.Scope, kind domain.QueueKind) ([]domain.QueueEntry, error)
	ListSeats(ctx context.Context, scope domain.Scope) ([]domain.Seat, error)
	ActiveScopes(ctx context.Context) ([]domain.Scope, error)
	SeedSeats(ctx context.Context, scope domain.Scope, seats []domain.Seat) error
}

// ScopeTx is a transaction bound to one scope. Lookups of rows that belong
// to another scope behave as if the row did not exist.
type ScopeTx interface {
	Scope() domain.Scope

	GetSeat(ctx context.Context, seatID int64) (*domain.Seat, error)
	ListSeats(ctx context.Context) ([]domain.Seat, error)
	// SetSeatAvailability flips the flag only if it currently equals !available.
	// It reports whether the row changed.
	SetSeatAvailability(ctx context.Context, seatID int64, available bool) (bool, error)

	CreateBooking(ctx context.Context, booking *domain.Booking) error
	GetBookingForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	UpdateBooking(ctx context.Context, id int64, status domain.BookingStatus, seatID *int64) error

	CreatePayment(ctx context.Context, payment *domain.Payment) error
	GetPayment(ctx context.Context, bookingID int64) (*domain.Payment, error)
	UpdatePaymentStatus(ctx context.Context, bookingID int64, status domain.PaymentStatus, providerRef string) error

	CountActive(ctx context.Context, kind domain.QueueKind) (int, error)
	CreateQueueEntry(ctx context.Context, entry *domain.QueueEntry) error
	FirstActive(ctx context.Context, kind domain.QueueKind) (*domain.QueueEntry, error)
	ActiveEntryByBooking(ctx context.Context, kind domain.QueueKind, bookingID int64) (*domain.QueueEntry, error)
	SetQueueEntryStatus(ctx context.Context, entryID int64, status domain.QueueEntryStatus) error
	// ClosePositionGap decrements every Active position greater than position.
	ClosePositionGap(ctx context.Context, kind domain.QueueKind, position int) error
}

// CatalogRepository is the read side of the train/route catalog.
type CatalogRepository interface {
	GetTrain(ctx context.Context, id int64) (*domain.Train, error)
	GetRoute(ctx context.Context, id int64) (*domain.Route, error)
	SearchRoutes(ctx context.Context, source, destination string) ([]domain.RouteSummary, error)
}

// UserDirectory resolves users for seat recommendation.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}
