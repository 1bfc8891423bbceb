package domain

import "time"

type BookingStatus string

const (
	BookingStatusConfirmed  BookingStatus = "Confirmed"
	BookingStatusRAC        BookingStatus = "RAC"
	BookingStatusWaitlisted BookingStatus = "Waitlisted"
	BookingStatusPromoted   BookingStatus = "Promoted"
	BookingStatusCancelled  BookingStatus = "Cancelled"
)

// QueueKind returns the queue mirroring a booking in this status.
func (s BookingStatus) QueueKind() (QueueKind, bool) {
	switch s {
	case BookingStatusRAC:
		return QueueRAC, true
	case BookingStatusWaitlisted:
		return QueueWaitlist, true
	default:
		return "", false
	}
}

type Booking struct {
	ID            int64         `json:"booking_id"`
	PNR           string        `json:"pnr"`
	UserID        int64         `json:"user_id"`
	SeatID        *int64        `json:"seat_id,omitempty"`
	TrainID       int64         `json:"train_id"`
	RouteID       int64         `json:"route_id"`
	PassengerName string        `json:"passenger_name"`
	PassengerAge  int           `json:"passenger_age"`
	Status        BookingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (b Booking) Scope() Scope {
	return Scope{TrainID: b.TrainID, RouteID: b.RouteID}
}

// HoldsSeat reports whether the booking currently owns a seat.
func (b Booking) HoldsSeat() bool {
	return b.SeatID != nil && b.Status == BookingStatusConfirmed
}

// BookingDetails is a booking joined with the train, route, seat and payment
// rows it references, as shown in a user's booking history.
type BookingDetails struct {
	Booking

	TrainName          string        `json:"train_name"`
	TrainNumber        string        `json:"train_number"`
	SourceStation      string        `json:"source_station"`
	DestinationStation string        `json:"destination_station"`
	DepartureTime      string        `json:"departure_time"`
	ArrivalTime        string        `json:"arrival_time"`
	PriceCents         int64         `json:"price_cents"`
	SeatNumber         string        `json:"seat_number,omitempty"`
	BerthType          BerthType     `json:"berth_type,omitempty"`
	Compartment        string        `json:"compartment,omitempty"`
	ClassType          string        `json:"class_type,omitempty"`
	PaymentAmountCents *int64        `json:"payment_amount_cents,omitempty"`
	PaymentStatus      PaymentStatus `json:"payment_status,omitempty"`
}

// BookingResult is returned by every booking creation.
type BookingResult struct {
	Success       bool          `json:"success"`
	Status        BookingStatus `json:"status"`
	BookingID     int64         `json:"booking_id"`
	PNR           string        `json:"pnr"`
	SeatID        *int64        `json:"seat_id,omitempty"`
	Position      int           `json:"position,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	Message       string        `json:"message"`
}
