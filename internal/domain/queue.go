package domain

import "time"

type QueueKind string

const (
	QueueRAC      QueueKind = "RAC"
	QueueWaitlist QueueKind = "WAITLIST"
)

type QueueEntryStatus string

const (
	QueueEntryActive    QueueEntryStatus = "Active"
	QueueEntryPromoted  QueueEntryStatus = "Promoted"
	QueueEntryWithdrawn QueueEntryStatus = "Withdrawn"
)

// QueueEntry is the queue-side mirror of a RAC or Waitlisted booking.
// Active entries of one scope and kind hold positions 1..n with no gaps.
type QueueEntry struct {
	ID          int64            `json:"entry_id"`
	Kind        QueueKind        `json:"kind"`
	BookingID   int64            `json:"booking_id"`
	UserID      int64            `json:"user_id"`
	TrainID     int64            `json:"train_id"`
	RouteID     int64            `json:"route_id"`
	Position    int              `json:"position"`
	Status      QueueEntryStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (e QueueEntry) Scope() Scope {
	return Scope{TrainID: e.TrainID, RouteID: e.RouteID}
}
