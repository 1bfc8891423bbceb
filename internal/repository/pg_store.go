package repository

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const bookingColumns = `booking_id, pnr, user_id, seat_id, train_id, route_id, passenger_name, passenger_age, status, created_at, updated_at`

const entryColumns = `entry_id, kind, booking_id, user_id, train_id, route_id, position, status, requested_at, updated_at`

const seatColumns = `seat_id, train_id, route_id, compartment, class_type, seat_number, berth_type, is_available`

// DB is the subset of *pgxpool.Pool the Postgres repositories need.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGStore struct {
	db DB
}

func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

// InScope serialises transactions of one scope with a transaction-level
// advisory lock; unrelated scopes never wait on each other.
func (s *PGStore) InScope(ctx context.Context, scope domain.Scope, fn func(tx ScopeTx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, scopeLockKey(scope)); err != nil {
		return classify(err)
	}

	if err := fn(&pgScopeTx{tx: tx, scope: scope}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (s *PGStore) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id=$1`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, classify(err)
	}
	return b, nil
}

func (s *PGStore) ListBookingsForUser(ctx context.Context, userID int64) ([]domain.BookingDetails, error) {
	rows, err := s.db.Query(ctx, `
		SELECT b.booking_id, b.pnr, b.user_id, b.seat_id, b.train_id, b.route_id,
		       b.passenger_name, b.passenger_age, b.status, b.created_at, b.updated_at,
		       t.train_name, t.train_number,
		       r.source_station, r.destination_station, r.departure_time, r.arrival_time, r.price_cents,
		       COALESCE(s.seat_number, ''), COALESCE(s.berth_type, ''), COALESCE(s.compartment, ''), COALESCE(s.class_type, ''),
		       p.amount_cents, COALESCE(p.status, '')
		FROM bookings b
		JOIN trains t ON b.train_id = t.train_id
		JOIN routes r ON b.route_id = r.route_id
		LEFT JOIN seats s ON b.seat_id = s.seat_id
		LEFT JOIN payments p ON b.booking_id = p.booking_id
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC, b.booking_id DESC`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	details := make([]domain.BookingDetails, 0)
	for rows.Next() {
		var d domain.BookingDetails
		var departure, arrival pgtype.Time
		if err := rows.Scan(
			&d.ID, &d.PNR, &d.UserID, &d.SeatID, &d.TrainID, &d.RouteID,
			&d.PassengerName, &d.PassengerAge, &d.Status, &d.CreatedAt, &d.UpdatedAt,
			&d.TrainName, &d.TrainNumber,
			&d.SourceStation, &d.DestinationStation, &departure, &arrival, &d.PriceCents,
			&d.SeatNumber, &d.BerthType, &d.Compartment, &d.ClassType,
			&d.PaymentAmountCents, &d.PaymentStatus,
		); err != nil {
			return nil, classify(err)
		}
		d.DepartureTime = formatClock(departure)
		d.ArrivalTime = formatClock(arrival)
		details = append(details, d)
	}
	return details, classify(rows.Err())
}

func (s *PGStore) ListQueue(ctx context.Context, scope domain.Scope, kind domain.QueueKind) ([]domain.QueueEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM queue_entries
		WHERE train_id=$1 AND route_id=$2 AND kind=$3
		ORDER BY (status <> 'Active'), CASE WHEN status = 'Active' THEN position ELSE 0 END, entry_id`,
		scope.TrainID, scope.RouteID, kind)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	list := make([]domain.QueueEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify(err)
		}
		list = append(list, *e)
	}
	return list, classify(rows.Err())
}

func (s *PGStore) ListSeats(ctx context.Context, scope domain.Scope) ([]domain.Seat, error) {
	rows, err := s.db.Query(ctx, `SELECT `+seatColumns+` FROM seats WHERE train_id=$1 AND route_id=$2 ORDER BY seat_id`, scope.TrainID, scope.RouteID)
	if err != nil {
		return nil, classify(err)
	}
	return collectSeats(rows)
}

func (s *PGStore) ActiveScopes(ctx context.Context) ([]domain.Scope, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT train_id, route_id FROM queue_entries WHERE status='Active' ORDER BY train_id, route_id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	scopes := make([]domain.Scope, 0)
	for rows.Next() {
		var scope domain.Scope
		if err := rows.Scan(&scope.TrainID, &scope.RouteID); err != nil {
			return nil, classify(err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, classify(rows.Err())
}

func (s *PGStore) SeedSeats(ctx context.Context, scope domain.Scope, seats []domain.Seat) error {
	return s.InScope(ctx, scope, func(stx ScopeTx) error {
		tx := stx.(*pgScopeTx).tx
		for i := range seats {
			seats[i].TrainID = scope.TrainID
			seats[i].RouteID = scope.RouteID
			if err := tx.QueryRow(ctx, `INSERT INTO seats (train_id, route_id, compartment, class_type, seat_number, berth_type, is_available)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (train_id, route_id, seat_number) DO UPDATE SET compartment = EXCLUDED.compartment
				RETURNING seat_id`,
				scope.TrainID, scope.RouteID, seats[i].Compartment, seats[i].ClassType, seats[i].SeatNumber, seats[i].BerthType, seats[i].Available).
				Scan(&seats[i].ID); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

type pgScopeTx struct {
	tx    pgx.Tx
	scope domain.Scope
}

func (t *pgScopeTx) Scope() domain.Scope {
	return t.scope
}

func (t *pgScopeTx) GetSeat(ctx context.Context, seatID int64) (*domain.Seat, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+seatColumns+` FROM seats WHERE seat_id=$1 AND train_id=$2 AND route_id=$3`, seatID, t.scope.TrainID, t.scope.RouteID)
	seat, err := scanSeat(row)
	if err != nil {
		return nil, classify(err)
	}
	return seat, nil
}

func (t *pgScopeTx) ListSeats(ctx context.Context) ([]domain.Seat, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+seatColumns+` FROM seats WHERE train_id=$1 AND route_id=$2 ORDER BY seat_id`, t.scope.TrainID, t.scope.RouteID)
	if err != nil {
		return nil, classify(err)
	}
	return collectSeats(rows)
}

func (t *pgScopeTx) SetSeatAvailability(ctx context.Context, seatID int64, available bool) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `UPDATE seats SET is_available=$1
		WHERE seat_id=$2 AND train_id=$3 AND route_id=$4 AND is_available <> $1`,
		available, seatID, t.scope.TrainID, t.scope.RouteID)
	if err != nil {
		return false, classify(err)
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "already in that state" from "no such seat".
	if _, err := t.GetSeat(ctx, seatID); err != nil {
		return false, err
	}
	return false, nil
}

func (t *pgScopeTx) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	if booking.Scope() != t.scope {
		return fmt.Errorf("booking for %s outside transaction scope %s: %w", booking.Scope(), t.scope, domain.ErrPersistence)
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO bookings (pnr, user_id, seat_id, train_id, route_id, passenger_name, passenger_age, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING booking_id, created_at, updated_at`,
		booking.PNR, booking.UserID, booking.SeatID, booking.TrainID, booking.RouteID, booking.PassengerName, booking.PassengerAge, booking.Status).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	return classify(err)
}

func (t *pgScopeTx) GetBookingForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE booking_id=$1 AND train_id=$2 AND route_id=$3 FOR UPDATE`, id, t.scope.TrainID, t.scope.RouteID)
	b, err := scanBooking(row)
	if err != nil {
		return nil, classify(err)
	}
	return b, nil
}

func (t *pgScopeTx) UpdateBooking(ctx context.Context, id int64, status domain.BookingStatus, seatID *int64) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE bookings SET status=$1, seat_id=$2, updated_at=now()
		WHERE booking_id=$3 AND train_id=$4 AND route_id=$5`,
		status, seatID, id, t.scope.TrainID, t.scope.RouteID)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *pgScopeTx) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO payments (booking_id, amount_cents, status, provider_ref)
		VALUES ($1, $2, $3, $4)
		RETURNING payment_id, created_at, updated_at`,
		payment.BookingID, payment.AmountCents, payment.Status, payment.ProviderRef).
		Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	return classify(err)
}

func (t *pgScopeTx) GetPayment(ctx context.Context, bookingID int64) (*domain.Payment, error) {
	var p domain.Payment
	err := t.tx.QueryRow(ctx, `SELECT p.payment_id, p.booking_id, p.amount_cents, p.status, p.provider_ref, p.created_at, p.updated_at
		FROM payments p JOIN bookings b ON p.booking_id = b.booking_id
		WHERE p.booking_id=$1 AND b.train_id=$2 AND b.route_id=$3`, bookingID, t.scope.TrainID, t.scope.RouteID).
		Scan(&p.ID, &p.BookingID, &p.AmountCents, &p.Status, &p.ProviderRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (t *pgScopeTx) UpdatePaymentStatus(ctx context.Context, bookingID int64, status domain.PaymentStatus, providerRef string) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE payments p SET status=$1,
			provider_ref = CASE WHEN $2::text = '' THEN p.provider_ref ELSE $2::text END,
			updated_at=now()
		FROM bookings b
		WHERE p.booking_id = b.booking_id AND p.booking_id=$3 AND b.train_id=$4 AND b.route_id=$5`,
		status, providerRef, bookingID, t.scope.TrainID, t.scope.RouteID)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("payment for booking %d: %w", bookingID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgScopeTx) CountActive(ctx context.Context, kind domain.QueueKind) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM queue_entries
		WHERE train_id=$1 AND route_id=$2 AND kind=$3 AND status='Active'`,
		t.scope.TrainID, t.scope.RouteID, kind).Scan(&n)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (t *pgScopeTx) CreateQueueEntry(ctx context.Context, entry *domain.QueueEntry) error {
	if entry.Scope() != t.scope {
		return fmt.Errorf("queue entry for %s outside transaction scope %s: %w", entry.Scope(), t.scope, domain.ErrPersistence)
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO queue_entries (kind, booking_id, user_id, train_id, route_id, position, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING entry_id, requested_at, updated_at`,
		entry.Kind, entry.BookingID, entry.UserID, entry.TrainID, entry.RouteID, entry.Position, entry.Status).
		Scan(&entry.ID, &entry.RequestedAt, &entry.UpdatedAt)
	return classify(err)
}

func (t *pgScopeTx) FirstActive(ctx context.Context, kind domain.QueueKind) (*domain.QueueEntry, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries
		WHERE train_id=$1 AND route_id=$2 AND kind=$3 AND status='Active'
		ORDER BY position LIMIT 1`, t.scope.TrainID, t.scope.RouteID, kind)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return e, nil
}

func (t *pgScopeTx) ActiveEntryByBooking(ctx context.Context, kind domain.QueueKind, bookingID int64) (*domain.QueueEntry, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries
		WHERE train_id=$1 AND route_id=$2 AND kind=$3 AND status='Active' AND booking_id=$4`,
		t.scope.TrainID, t.scope.RouteID, kind, bookingID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, classify(err)
	}
	return e, nil
}

func (t *pgScopeTx) SetQueueEntryStatus(ctx context.Context, entryID int64, status domain.QueueEntryStatus) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE queue_entries SET status=$1, updated_at=now()
		WHERE entry_id=$2 AND train_id=$3 AND route_id=$4`, status, entryID, t.scope.TrainID, t.scope.RouteID)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("queue entry %d: %w", entryID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgScopeTx) ClosePositionGap(ctx context.Context, kind domain.QueueKind, position int) error {
	_, err := t.tx.Exec(ctx, `UPDATE queue_entries SET position = position - 1, updated_at=now()
		WHERE train_id=$1 AND route_id=$2 AND kind=$3 AND status='Active' AND position > $4`,
		t.scope.TrainID, t.scope.RouteID, kind, position)
	return classify(err)
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.PNR, &b.UserID, &b.SeatID, &b.TrainID, &b.RouteID, &b.PassengerName, &b.PassengerAge, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanEntry(row pgx.Row) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	if err := row.Scan(&e.ID, &e.Kind, &e.BookingID, &e.UserID, &e.TrainID, &e.RouteID, &e.Position, &e.Status, &e.RequestedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanSeat(row pgx.Row) (*domain.Seat, error) {
	var s domain.Seat
	if err := row.Scan(&s.ID, &s.TrainID, &s.RouteID, &s.Compartment, &s.ClassType, &s.SeatNumber, &s.BerthType, &s.Available); err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSeats(rows pgx.Rows) ([]domain.Seat, error) {
	defer rows.Close()
	seats := make([]domain.Seat, 0)
	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, classify(err)
		}
		seats = append(seats, *seat)
	}
	return seats, classify(rows.Err())
}

// scopeLockKey hashes both ids into the bigint advisory lock key space. A
// hash collision only makes two scopes wait on each other.
func scopeLockKey(scope domain.Scope) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(scope.TrainID))
	binary.BigEndian.PutUint64(buf[8:], uint64(scope.RouteID))
	h := fnv.New64a()
	h.Write(buf[:])
	return int64(h.Sum64())
}

// classify maps driver errors onto the domain taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"23505": // unique_violation, e.g. two confirmed bookings on one seat
			return fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

var _ Store = (*PGStore)(nil)
