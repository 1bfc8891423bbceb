package reservation

import (
	"context"
	"log"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/kafka"
)

const (
	eventConfirmed  = kafka.EventBookingConfirmed
	eventRAC        = kafka.EventBookingRAC
	eventWaitlisted = kafka.EventBookingWaitlisted
	eventCancelled  = kafka.EventBookingCancelled
	eventPromoted   = kafka.EventBookingPromoted
)

// pendingEvent is collected inside a transaction attempt and published only
// after that attempt commits.
type pendingEvent struct {
	kind          string
	booking       domain.Booking
	queue         domain.QueueKind
	position      int
	paymentStatus domain.PaymentStatus
	// amountCents is set when the transition left a Pending payment to charge.
	amountCents int64
	at          time.Time
}

func newEvent(kind string, booking domain.Booking, entry *domain.QueueEntry) pendingEvent {
	ev := pendingEvent{kind: kind, booking: booking, at: time.Now().UTC()}
	if entry != nil {
		ev.queue = entry.Kind
		ev.position = entry.Position
	}
	return ev
}

func (e pendingEvent) message() kafka.ReservationEvent {
	return kafka.ReservationEvent{
		Type:          e.kind,
		PNR:           e.booking.PNR,
		BookingID:     e.booking.ID,
		UserID:        e.booking.UserID,
		TrainID:       e.booking.TrainID,
		RouteID:       e.booking.RouteID,
		SeatID:        e.booking.SeatID,
		Status:        string(e.booking.Status),
		Queue:         string(e.queue),
		Position:      e.position,
		PaymentStatus: string(e.paymentStatus),
		OccurredAt:    e.at,
	}
}

// publish is best effort: the transition is already committed.
func (c *Coordinator) publish(ctx context.Context, events []pendingEvent) {
	if c.producer == nil {
		return
	}
	for _, e := range events {
		msg := e.message()
		for _, topic := range []string{c.eventsTopic, c.notificationsTopic} {
			if topic == "" {
				continue
			}
			if err := c.producer.Publish(ctx, topic, msg.PNR, msg); err != nil {
				log.Printf("WARNING: failed to publish %s for booking %d to %s: %v", msg.Type, msg.BookingID, topic, err)
			}
		}
	}
}
