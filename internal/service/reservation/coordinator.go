package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/payment"
	"github.com/Domenick1991/railbooking/internal/queue"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type ReservationUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.BookingResult, error)
	CancelBooking(ctx context.Context, bookingID int64) (bool, error)
	ListBookingsForUser(ctx context.Context, userID int64) ([]domain.BookingDetails, error)
	GetRACQueue(ctx context.Context, trainID, routeID int64) ([]domain.QueueEntry, error)
	GetWaitlist(ctx context.Context, trainID, routeID int64) ([]domain.QueueEntry, error)
	AuditQueues(ctx context.Context) ([]queue.Violation, error)
}

// PaymentUseCase settles charges that the provider confirms asynchronously.
type PaymentUseCase interface {
	SettlePayment(ctx context.Context, s payment.Settlement) (bool, error)
}

// RouteLookup supplies route prices and the train a route belongs to.
type RouteLookup interface {
	GetRoute(ctx context.Context, id int64) (*domain.Route, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Coordinator is the only writer of bookings. Every create and cancel runs
// as one scope transaction covering seat, booking, payment and queue rows.
type Coordinator struct {
	store     repository.Store
	routes    RouteLookup
	inventory *inventory.Inventory
	rac       *queue.Queue
	waitlist  *queue.Queue
	gateway   payment.Gateway
	validator *validator.Validate

	producer           Producer
	eventsTopic        string
	notificationsTopic string

	currency              string
	maxRetries            int
	retryBackoff          time.Duration
	assignSeatOnPromotion bool
	newPNR                func() string
}

type CoordinatorOption func(*Coordinator)

func WithEvents(producer Producer, eventsTopic, notificationsTopic string) CoordinatorOption {
	return func(c *Coordinator) {
		c.producer = producer
		c.eventsTopic = eventsTopic
		c.notificationsTopic = notificationsTopic
	}
}

func WithCurrency(currency string) CoordinatorOption {
	return func(c *Coordinator) {
		c.currency = currency
	}
}

func WithPNRGenerator(gen func() string) CoordinatorOption {
	return func(c *Coordinator) {
		c.newPNR = gen
	}
}

func NewCoordinator(
	store repository.Store,
	routes RouteLookup,
	gateway payment.Gateway,
	cfg config.ReservationConfig,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		store:                 store,
		routes:                routes,
		inventory:             inventory.New(store),
		rac:                   queue.NewRAC(cfg.RACCapacity),
		waitlist:              queue.NewWaitlist(),
		gateway:               gateway,
		validator:             newValidator(),
		currency:              "inr",
		maxRetries:            cfg.MaxRetries,
		retryBackoff:          cfg.RetryBackoff(),
		assignSeatOnPromotion: cfg.AssignSeatOnPromotion,
		newPNR:                uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Inventory exposes the seat inventory for read-only listing.
func (c *Coordinator) Inventory() *inventory.Inventory {
	return c.inventory
}

// CreateBooking confirms the requested seat when it is free, otherwise
// admits the request to RAC, otherwise to the waitlist. A nil error means
// the returned result is committed.
func (c *Coordinator) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.BookingResult, error) {
	if err := c.validate(&input); err != nil {
		return nil, err
	}

	route, err := c.routes.GetRoute(ctx, input.RouteID)
	if err != nil {
		return nil, err
	}
	if route.TrainID != input.TrainID {
		return nil, &domain.ValidationError{Field: "route_id", Reason: fmt.Sprintf("is not served by train %d", input.TrainID)}
	}

	pnr := c.newPNR()
	var (
		result *domain.BookingResult
		events []pendingEvent
	)
	err = c.inScope(ctx, input.Scope(), func(tx repository.ScopeTx) error {
		result, events = nil, nil
		booking := &domain.Booking{
			PNR:           pnr,
			UserID:        input.UserID,
			TrainID:       input.TrainID,
			RouteID:       input.RouteID,
			PassengerName: input.PassengerName,
			PassengerAge:  input.PassengerAge,
		}

		if input.SeatID != nil {
			confirmed, err := c.confirm(ctx, tx, booking, *input.SeatID, route.PriceCents)
			if err != nil {
				return err
			}
			if confirmed {
				result = &domain.BookingResult{
					Success:       true,
					Status:        domain.BookingStatusConfirmed,
					BookingID:     booking.ID,
					PNR:           pnr,
					SeatID:        booking.SeatID,
					PaymentStatus: domain.PaymentStatusPending,
					Message:       "Booking confirmed successfully",
				}
				events = append(events, newEvent(eventConfirmed, *booking, nil))
				return nil
			}
		}

		entry, err := c.enqueue(ctx, tx, booking)
		if err != nil {
			return err
		}
		result = &domain.BookingResult{
			Success:   true,
			Status:    booking.Status,
			BookingID: booking.ID,
			PNR:       pnr,
			Position:  entry.Position,
		}
		if entry.Kind == domain.QueueRAC {
			result.Message = fmt.Sprintf("Added to RAC. Position: %d", entry.Position)
			events = append(events, newEvent(eventRAC, *booking, entry))
		} else {
			result.Message = fmt.Sprintf("Added to waitlist. Position: %d", entry.Position)
			events = append(events, newEvent(eventWaitlisted, *booking, entry))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status == domain.BookingStatusConfirmed {
		c.settlePayment(ctx, input.Scope(), result, route.PriceCents)
		events[0].paymentStatus = result.PaymentStatus
	}
	c.publish(ctx, events)
	return result, nil
}

// confirm allocates seatID and writes the Confirmed booking with a Pending
// payment. It reports false, with nothing written, when the seat is taken or
// not part of the scope.
func (c *Coordinator) confirm(ctx context.Context, tx repository.ScopeTx, booking *domain.Booking, seatID, priceCents int64) (bool, error) {
	err := c.inventory.Allocate(ctx, tx, seatID)
	if errors.Is(err, domain.ErrSeatUnavailable) || errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	booking.Status = domain.BookingStatusConfirmed
	booking.SeatID = &seatID
	if err := tx.CreateBooking(ctx, booking); err != nil {
		return false, err
	}
	if err := tx.CreatePayment(ctx, &domain.Payment{
		BookingID:   booking.ID,
		AmountCents: priceCents,
		Status:      domain.PaymentStatusPending,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// enqueue writes the booking as RAC and admits it, falling back to the
// waitlist when RAC is full.
func (c *Coordinator) enqueue(ctx context.Context, tx repository.ScopeTx, booking *domain.Booking) (*domain.QueueEntry, error) {
	booking.Status = domain.BookingStatusRAC
	booking.SeatID = nil
	if err := tx.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	entry, err := c.rac.Admit(ctx, tx, booking.ID, booking.UserID)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrQueueFull) {
		return nil, err
	}

	booking.Status = domain.BookingStatusWaitlisted
	if err := tx.UpdateBooking(ctx, booking.ID, booking.Status, nil); err != nil {
		return nil, err
	}
	return c.waitlist.Admit(ctx, tx, booking.ID, booking.UserID)
}

// settlePayment charges the gateway for a committed Confirmed booking and
// records the outcome. A failed charge keeps the seat.
func (c *Coordinator) settlePayment(ctx context.Context, scope domain.Scope, result *domain.BookingResult, amountCents int64) {
	receipt, err := c.gateway.Charge(ctx, payment.Charge{
		BookingID:   result.BookingID,
		PNR:         result.PNR,
		AmountCents: amountCents,
		Currency:    c.currency,
	})
	if err != nil {
		log.Printf("payment gateway failed for booking %d: %v", result.BookingID, err)
		receipt = &payment.Receipt{Status: domain.PaymentStatusFailed}
	}

	var superseded domain.PaymentStatus
	err = c.inScope(ctx, scope, func(tx repository.ScopeTx) error {
		superseded = ""
		current, err := tx.GetPayment(ctx, result.BookingID)
		if err != nil {
			return err
		}
		if current.Status != domain.PaymentStatusPending {
			superseded = current.Status
			return nil
		}
		return tx.UpdatePaymentStatus(ctx, result.BookingID, receipt.Status, receipt.ProviderRef)
	})
	if err != nil {
		log.Printf("record payment status %s for booking %d: %v", receipt.Status, result.BookingID, err)
		return
	}
	if superseded != "" {
		// cancelled while the charge was in flight
		log.Printf("payment for booking %d is already %s, returning the %s charge", result.BookingID, superseded, receipt.Status)
		if receipt.ProviderRef != "" {
			c.returnPayment(ctx, &domain.Payment{
				BookingID:   result.BookingID,
				AmountCents: amountCents,
				Status:      receipt.Status,
				ProviderRef: receipt.ProviderRef,
			})
		}
		return
	}

	result.PaymentStatus = receipt.Status
	switch receipt.Status {
	case domain.PaymentStatusSuccess:
		result.Message += "; payment successful"
	case domain.PaymentStatusFailed:
		result.Message += "; payment failed, seat remains reserved"
	default:
		result.Message += "; payment pending"
	}
}

// CancelBooking cancels a live booking. It returns false without error when
// the booking is unknown or already cancelled.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID int64) (bool, error) {
	if bookingID <= 0 {
		return false, nil
	}
	current, err := c.store.GetBooking(ctx, bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var (
		cancelled bool
		events    []pendingEvent
		refund    *domain.Payment
	)
	err = c.inScope(ctx, current.Scope(), func(tx repository.ScopeTx) error {
		cancelled, events, refund = false, nil, nil

		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == domain.BookingStatusCancelled {
			return nil
		}

		prev := *booking
		booking.Status = domain.BookingStatusCancelled
		if err := tx.UpdateBooking(ctx, booking.ID, booking.Status, booking.SeatID); err != nil {
			return err
		}
		cancelled = true
		events = append(events, newEvent(eventCancelled, *booking, nil))

		switch {
		case prev.HoldsSeat():
			if refund, err = c.refund(ctx, tx, booking.ID); err != nil {
				return err
			}
			if err := c.inventory.Release(ctx, tx, *prev.SeatID); err != nil {
				return err
			}
			promoted, err := c.promote(ctx, tx, *prev.SeatID)
			if err != nil {
				return err
			}
			events = append(events, promoted...)
		default:
			if kind, queued := prev.Status.QueueKind(); queued {
				if err := c.withdraw(ctx, tx, kind, booking.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if refund != nil && refund.ProviderRef != "" {
		c.returnPayment(ctx, refund)
	}
	// A seat handed over on promotion is charged like a fresh confirmation.
	for i := range events {
		ev := &events[i]
		if ev.kind != eventPromoted || ev.amountCents == 0 {
			continue
		}
		result := &domain.BookingResult{BookingID: ev.booking.ID, PNR: ev.booking.PNR}
		c.settlePayment(ctx, current.Scope(), result, ev.amountCents)
		if result.PaymentStatus != "" {
			ev.paymentStatus = result.PaymentStatus
		}
	}
	c.publish(ctx, events)
	return cancelled, nil
}

// returnPayment gives the money back for a cancelled booking: a settled
// charge is refunded, a charge still awaiting the provider is voided.
func (c *Coordinator) returnPayment(ctx context.Context, p *domain.Payment) {
	switch p.Status {
	case domain.PaymentStatusPending:
		if err := c.gateway.Void(ctx, p.ProviderRef); err != nil {
			log.Printf("gateway void for booking %d failed: %v", p.BookingID, err)
		}
	case domain.PaymentStatusSuccess:
		if err := c.gateway.Refund(ctx, p.ProviderRef, p.AmountCents); err != nil {
			log.Printf("gateway refund for booking %d failed: %v", p.BookingID, err)
		}
	}
}

// refund marks a paid or pending payment Refunded and returns it as it was
// before, so the provider can be told.
func (c *Coordinator) refund(ctx context.Context, tx repository.ScopeTx, bookingID int64) (*domain.Payment, error) {
	p, err := tx.GetPayment(ctx, bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentStatusSuccess && p.Status != domain.PaymentStatusPending {
		return nil, nil
	}
	if err := tx.UpdatePaymentStatus(ctx, bookingID, domain.PaymentStatusRefunded, ""); err != nil {
		return nil, err
	}
	return p, nil
}

// SettlePayment applies a provider's asynchronous verdict to a booking's
// payment. Only a Pending payment changes, so redelivered or late events
// are harmless; it reports whether anything changed. A charge that succeeds
// after its booking was cancelled is refunded.
func (c *Coordinator) SettlePayment(ctx context.Context, s payment.Settlement) (bool, error) {
	if s.BookingID <= 0 {
		return false, &domain.ValidationError{Field: "booking_id", Reason: "must be positive"}
	}
	if s.Status != domain.PaymentStatusSuccess && s.Status != domain.PaymentStatusFailed {
		return false, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("%q does not settle a payment", s.Status)}
	}
	booking, err := c.store.GetBooking(ctx, s.BookingID)
	if err != nil {
		return false, err
	}

	var (
		applied bool
		late    *domain.Payment
	)
	err = c.inScope(ctx, booking.Scope(), func(tx repository.ScopeTx) error {
		applied, late = false, nil
		current, err := tx.GetPayment(ctx, s.BookingID)
		if err != nil {
			return err
		}
		if current.ProviderRef != "" && s.ProviderRef != "" && current.ProviderRef != s.ProviderRef {
			log.Printf("WARNING: settlement for booking %d names %s, payment is %s", s.BookingID, s.ProviderRef, current.ProviderRef)
			return nil
		}
		switch current.Status {
		case domain.PaymentStatusPending:
			applied = true
			return tx.UpdatePaymentStatus(ctx, s.BookingID, s.Status, s.ProviderRef)
		case domain.PaymentStatusRefunded:
			if s.Status == domain.PaymentStatusSuccess && s.ProviderRef != "" {
				late = &domain.Payment{
					BookingID:   s.BookingID,
					AmountCents: current.AmountCents,
					Status:      domain.PaymentStatusSuccess,
					ProviderRef: s.ProviderRef,
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if late != nil {
		log.Printf("payment for cancelled booking %d succeeded late, refunding", s.BookingID)
		c.returnPayment(ctx, late)
	}
	return applied, nil
}

func (c *Coordinator) withdraw(ctx context.Context, tx repository.ScopeTx, kind domain.QueueKind, bookingID int64) error {
	q := c.waitlist
	if kind == domain.QueueRAC {
		q = c.rac
	}
	_, err := q.Withdraw(ctx, tx, bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("WARNING: booking %d in %s had no active %s entry", bookingID, tx.Scope(), kind)
		return nil
	}
	return err
}

// promote runs the cascade for a freed seat: RAC head first, waitlist head
// only when RAC is empty. At most one entry is promoted per freed seat.
func (c *Coordinator) promote(ctx context.Context, tx repository.ScopeTx, seatID int64) ([]pendingEvent, error) {
	entry, err := c.rac.PromoteHead(ctx, tx)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if entry, err = c.waitlist.PromoteHead(ctx, tx); err != nil {
			return nil, err
		}
	}
	if entry == nil {
		return nil, nil
	}

	booking, err := tx.GetBookingForUpdate(ctx, entry.BookingID)
	if err != nil {
		return nil, err
	}

	if !c.assignSeatOnPromotion {
		booking.Status = domain.BookingStatusPromoted
		if err := tx.UpdateBooking(ctx, booking.ID, booking.Status, nil); err != nil {
			return nil, err
		}
		return []pendingEvent{newEvent(eventPromoted, *booking, entry)}, nil
	}

	if err := c.inventory.Allocate(ctx, tx, seatID); err != nil {
		return nil, err
	}
	booking.Status = domain.BookingStatusConfirmed
	booking.SeatID = &seatID
	if err := tx.UpdateBooking(ctx, booking.ID, booking.Status, booking.SeatID); err != nil {
		return nil, err
	}
	route, err := c.routes.GetRoute(ctx, booking.RouteID)
	if err != nil {
		return nil, err
	}
	if err := tx.CreatePayment(ctx, &domain.Payment{
		BookingID:   booking.ID,
		AmountCents: route.PriceCents,
		Status:      domain.PaymentStatusPending,
	}); err != nil {
		return nil, err
	}
	ev := newEvent(eventPromoted, *booking, entry)
	ev.paymentStatus = domain.PaymentStatusPending
	ev.amountCents = route.PriceCents
	return []pendingEvent{ev}, nil
}

func (c *Coordinator) ListBookingsForUser(ctx context.Context, userID int64) ([]domain.BookingDetails, error) {
	if userID <= 0 {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	return c.store.ListBookingsForUser(ctx, userID)
}

// GetRACQueue lists Active entries by position followed by the queue's
// promoted and withdrawn history.
func (c *Coordinator) GetRACQueue(ctx context.Context, trainID, routeID int64) ([]domain.QueueEntry, error) {
	return c.store.ListQueue(ctx, domain.NewScope(trainID, routeID), domain.QueueRAC)
}

func (c *Coordinator) GetWaitlist(ctx context.Context, trainID, routeID int64) ([]domain.QueueEntry, error) {
	return c.store.ListQueue(ctx, domain.NewScope(trainID, routeID), domain.QueueWaitlist)
}

// AuditQueues checks the capacity and dense-position invariants of every
// scope that has Active queue entries.
func (c *Coordinator) AuditQueues(ctx context.Context) ([]queue.Violation, error) {
	scopes, err := c.store.ActiveScopes(ctx)
	if err != nil {
		return nil, err
	}

	violations := make([]queue.Violation, 0)
	for _, scope := range scopes {
		for _, q := range []*queue.Queue{c.rac, c.waitlist} {
			entries, err := c.store.ListQueue(ctx, scope, q.Kind())
			if err != nil {
				return nil, err
			}
			violations = append(violations, q.Audit(scope, entries)...)
		}
	}
	for _, v := range violations {
		log.Printf("queue audit violation scope=%s kind=%s: %s", v.Scope, v.Kind, v.Message)
	}
	return violations, nil
}

// inScope runs fn as one scope transaction, retrying the whole unit on
// concurrency conflicts with linear backoff.
func (c *Coordinator) inScope(ctx context.Context, scope domain.Scope, fn func(tx repository.ScopeTx) error) error {
	for attempt := 1; ; attempt++ {
		err := c.store.InScope(ctx, scope, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) || attempt > c.maxRetries {
			if !errors.Is(err, domain.ErrInvalidInput) {
				log.Printf("transaction in %s failed after %d attempt(s): %v", scope, attempt, err)
			}
			return err
		}

		log.Printf("concurrency conflict in %s, retry %d/%d: %v", scope, attempt, c.maxRetries, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryBackoff * time.Duration(attempt)):
		}
	}
}

var (
	_ ReservationUseCase = (*Coordinator)(nil)
	_ PaymentUseCase     = (*Coordinator)(nil)
)
