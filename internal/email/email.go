package email

import (
	"context"
	"fmt"
	"log"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/kafka"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notification mail. It only logs; a mail relay is not
// part of this deployment.
type Sender struct {
	from string
}

func NewSender(from string) *Sender {
	return &Sender{from: from}
}

func (s *Sender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("message %q has no recipient", msg.Subject)
	}
	log.Printf("send email from=%s to=%s subject=%q", s.from, msg.To, msg.Subject)
	return nil
}

// Compose renders the notification for one reservation event.
func Compose(event kafka.ReservationEvent, user domain.User) Message {
	msg := Message{To: user.Email}
	ref := fmt.Sprintf("PNR %s (train %d, route %d)", event.PNR, event.TrainID, event.RouteID)

	switch event.Type {
	case kafka.EventBookingConfirmed:
		msg.Subject = "Booking confirmed"
		msg.Body = fmt.Sprintf("Hello %s, your booking %s is confirmed.", user.Username, ref)
		if event.PaymentStatus != "" {
			msg.Body += fmt.Sprintf(" Payment status: %s.", event.PaymentStatus)
		}
	case kafka.EventBookingRAC:
		msg.Subject = "Booking on RAC"
		msg.Body = fmt.Sprintf("Hello %s, your booking %s is on RAC at position %d.", user.Username, ref, event.Position)
	case kafka.EventBookingWaitlisted:
		msg.Subject = "Booking waitlisted"
		msg.Body = fmt.Sprintf("Hello %s, your booking %s is waitlisted at position %d.", user.Username, ref, event.Position)
	case kafka.EventBookingPromoted:
		msg.Subject = "Booking promoted"
		msg.Body = fmt.Sprintf("Hello %s, your booking %s moved up from the %s queue and is now %s.", user.Username, ref, event.Queue, event.Status)
	case kafka.EventBookingCancelled:
		msg.Subject = "Booking cancelled"
		msg.Body = fmt.Sprintf("Hello %s, your booking %s has been cancelled.", user.Username, ref)
	default:
		msg.Subject = "Booking update"
		msg.Body = fmt.Sprintf("Hello %s, your booking %s is now %s.", user.Username, ref, event.Status)
	}
	return msg
}
