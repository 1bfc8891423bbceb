package queue

import (
	"context"
	"fmt"

	"github.com/Domenick1991/railbooking/internal/domain"
)

// DefaultRACCapacity is the number of Active RAC entries a scope may hold.
const DefaultRACCapacity = 10

// Tx is the slice of a scope transaction the queues mutate through.
type Tx interface {
	Scope() domain.Scope
	CountActive(ctx context.Context, kind domain.QueueKind) (int, error)
	CreateQueueEntry(ctx context.Context, entry *domain.QueueEntry) error
	FirstActive(ctx context.Context, kind domain.QueueKind) (*domain.QueueEntry, error)
	ActiveEntryByBooking(ctx context.Context, kind domain.QueueKind, bookingID int64) (*domain.QueueEntry, error)
	SetQueueEntryStatus(ctx context.Context, entryID int64, status domain.QueueEntryStatus) error
	ClosePositionGap(ctx context.Context, kind domain.QueueKind, position int) error
}

// Queue is a FIFO of Active entries per scope with dense 1-based positions.
// A capacity of zero means unbounded.
type Queue struct {
	kind     domain.QueueKind
	capacity int
}

func NewRAC(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultRACCapacity
	}
	return &Queue{kind: domain.QueueRAC, capacity: capacity}
}

func NewWaitlist() *Queue {
	return &Queue{kind: domain.QueueWaitlist}
}

func (q *Queue) Kind() domain.QueueKind {
	return q.kind
}

func (q *Queue) Capacity() int {
	return q.capacity
}

func (q *Queue) Bounded() bool {
	return q.capacity > 0
}

func (q *Queue) Count(ctx context.Context, tx Tx) (int, error) {
	return tx.CountActive(ctx, q.kind)
}

// Admit appends an Active entry for booking at position count+1. It returns
// domain.ErrQueueFull when a bounded queue is at capacity.
func (q *Queue) Admit(ctx context.Context, tx Tx, bookingID, userID int64) (*domain.QueueEntry, error) {
	n, err := q.Count(ctx, tx)
	if err != nil {
		return nil, err
	}
	if q.Bounded() && n >= q.capacity {
		return nil, fmt.Errorf("%s queue in %s holds %d: %w", q.kind, tx.Scope(), n, domain.ErrQueueFull)
	}

	scope := tx.Scope()
	entry := &domain.QueueEntry{
		Kind:      q.kind,
		BookingID: bookingID,
		UserID:    userID,
		TrainID:   scope.TrainID,
		RouteID:   scope.RouteID,
		Position:  n + 1,
		Status:    domain.QueueEntryActive,
	}
	if err := tx.CreateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// PromoteHead marks the position-1 entry Promoted and shifts the rest up by
// one. It returns nil when the queue is empty.
func (q *Queue) PromoteHead(ctx context.Context, tx Tx) (*domain.QueueEntry, error) {
	head, err := tx.FirstActive(ctx, q.kind)
	if err != nil || head == nil {
		return nil, err
	}
	if err := q.remove(ctx, tx, head, domain.QueueEntryPromoted); err != nil {
		return nil, err
	}
	return head, nil
}

// Withdraw removes the Active entry mirroring bookingID, closing the gap it
// leaves. A booking with no Active entry yields domain.ErrNotFound.
func (q *Queue) Withdraw(ctx context.Context, tx Tx, bookingID int64) (*domain.QueueEntry, error) {
	entry, err := tx.ActiveEntryByBooking(ctx, q.kind, bookingID)
	if err != nil {
		return nil, err
	}
	if err := q.remove(ctx, tx, entry, domain.QueueEntryWithdrawn); err != nil {
		return nil, err
	}
	return entry, nil
}

func (q *Queue) remove(ctx context.Context, tx Tx, entry *domain.QueueEntry, status domain.QueueEntryStatus) error {
	if err := tx.SetQueueEntryStatus(ctx, entry.ID, status); err != nil {
		return err
	}
	if err := tx.ClosePositionGap(ctx, q.kind, entry.Position); err != nil {
		return err
	}
	entry.Status = status
	return nil
}

// Violation is a broken queue invariant found by Audit.
type Violation struct {
	Scope   domain.Scope     `json:"scope"`
	Kind    domain.QueueKind `json:"kind"`
	Message string           `json:"message"`
}

// Audit checks the Active entries of one scope against the capacity and
// dense-position invariants.
func (q *Queue) Audit(scope domain.Scope, entries []domain.QueueEntry) []Violation {
	var violations []Violation
	report := func(format string, args ...any) {
		violations = append(violations, Violation{Scope: scope, Kind: q.kind, Message: fmt.Sprintf(format, args...)})
	}

	seen := make(map[int]int64)
	active := 0
	for _, e := range entries {
		if e.Kind != q.kind || e.Status != domain.QueueEntryActive {
			continue
		}
		active++
		if other, dup := seen[e.Position]; dup {
			report("entries %d and %d share position %d", other, e.ID, e.Position)
			continue
		}
		seen[e.Position] = e.ID
	}

	if q.Bounded() && active > q.capacity {
		report("%d active entries exceed capacity %d", active, q.capacity)
	}
	for pos := 1; pos <= active; pos++ {
		if _, ok := seen[pos]; !ok {
			report("position %d missing among %d active entries", pos, active)
		}
	}
	return violations
}
