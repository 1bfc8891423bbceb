package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
)

// CommitHook runs right before a memory transaction is committed. A non-nil
// error discards the transaction as if the database had aborted it.
type CommitHook func(scope domain.Scope) error

type MemoryStoreOption func(*MemoryStore)

func WithCommitHook(hook CommitHook) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.commitHook = hook
	}
}

func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// MemoryStore keeps everything in process. Each scope has its own lock;
// transaction writes are staged and become visible to readers only when
// the transaction commits.
type MemoryStore struct {
	mu       sync.RWMutex
	seats    map[int64]domain.Seat
	bookings map[int64]domain.Booking
	payments map[int64]domain.Payment // keyed by booking id
	entries  map[int64]domain.QueueEntry
	trains   map[int64]domain.Train
	routes   map[int64]domain.Route
	users    map[int64]domain.User

	lockMu     sync.Mutex
	scopeLocks map[domain.Scope]chan struct{}

	seatSeq    atomic.Int64
	bookingSeq atomic.Int64
	paymentSeq atomic.Int64
	entrySeq   atomic.Int64

	commitHook CommitHook
	now        func() time.Time
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		seats:      make(map[int64]domain.Seat),
		bookings:   make(map[int64]domain.Booking),
		payments:   make(map[int64]domain.Payment),
		entries:    make(map[int64]domain.QueueEntry),
		trains:     make(map[int64]domain.Train),
		routes:     make(map[int64]domain.Route),
		users:      make(map[int64]domain.User),
		scopeLocks: make(map[domain.Scope]chan struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) AddTrain(train domain.Train) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trains[train.ID] = train
}

func (s *MemoryStore) AddRoute(route domain.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route.ID] = route
}

func (s *MemoryStore) AddUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// CreateTrain, CreateRoute and CreateUser assign the next free ID, like
// their PostgreSQL counterparts, so seeding works against either store.
func (s *MemoryStore) CreateTrain(_ context.Context, train *domain.Train) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trains {
		if t.Number == train.Number {
			train.ID = t.ID
			s.trains[t.ID] = *train
			return nil
		}
	}
	train.ID = int64(len(s.trains) + 1)
	s.trains[train.ID] = *train
	return nil
}

func (s *MemoryStore) CreateRoute(_ context.Context, route *domain.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trains[route.TrainID]; !ok {
		return fmt.Errorf("train %d: %w", route.TrainID, domain.ErrNotFound)
	}
	route.ID = int64(len(s.routes) + 1)
	s.routes[route.ID] = *route
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username {
			user.ID = u.ID
			s.users[u.ID] = *user
			return nil
		}
	}
	user.ID = int64(len(s.users) + 1)
	s.users[user.ID] = *user
	return nil
}

// scopeLock returns the scope's lock: a one-slot channel that is full while
// a transaction holds it.
func (s *MemoryStore) scopeLock(scope domain.Scope) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.scopeLocks[scope]
	if !ok {
		l = make(chan struct{}, 1)
		s.scopeLocks[scope] = l
	}
	return l
}

// InScope waits for the scope lock until ctx is done, so a cancelled caller
// gives up instead of queueing behind a slow transaction.
func (s *MemoryStore) InScope(ctx context.Context, scope domain.Scope, fn func(tx ScopeTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.scopeLock(scope)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	tx := &memoryTx{
		store:    s,
		scope:    scope,
		seats:    make(map[int64]domain.Seat),
		bookings: make(map[int64]domain.Booking),
		payments: make(map[int64]domain.Payment),
		entries:  make(map[int64]domain.QueueEntry),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if s.commitHook != nil {
		if err := s.commitHook(scope); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, seat := range tx.seats {
		s.seats[id] = seat
	}
	for id, b := range tx.bookings {
		s.bookings[id] = b
	}
	for id, p := range tx.payments {
		s.payments[id] = p
	}
	for id, e := range tx.entries {
		s.entries[id] = e
	}
	return nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id int64) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	b = cloneBooking(b)
	return &b, nil
}

func (s *MemoryStore) ListBookingsForUser(_ context.Context, userID int64) ([]domain.BookingDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details := make([]domain.BookingDetails, 0)
	for _, b := range s.bookings {
		if b.UserID != userID {
			continue
		}
		d := domain.BookingDetails{Booking: cloneBooking(b)}
		if t, ok := s.trains[b.TrainID]; ok {
			d.TrainName = t.Name
			d.TrainNumber = t.Number
		}
		if r, ok := s.routes[b.RouteID]; ok {
			d.SourceStation = r.SourceStation
			d.DestinationStation = r.DestinationStation
			d.DepartureTime = r.DepartureTime
			d.ArrivalTime = r.ArrivalTime
			d.PriceCents = r.PriceCents
		}
		if b.SeatID != nil {
			if seat, ok := s.seats[*b.SeatID]; ok {
				d.SeatNumber = seat.SeatNumber
				d.BerthType = seat.BerthType
				d.Compartment = seat.Compartment
				d.ClassType = seat.ClassType
			}
		}
		if p, ok := s.payments[b.ID]; ok {
			amount := p.AmountCents
			d.PaymentAmountCents = &amount
			d.PaymentStatus = p.Status
		}
		details = append(details, d)
	}

	sort.Slice(details, func(i, j int) bool {
		if !details[i].CreatedAt.Equal(details[j].CreatedAt) {
			return details[i].CreatedAt.After(details[j].CreatedAt)
		}
		return details[i].ID > details[j].ID
	})
	return details, nil
}

func (s *MemoryStore) ListQueue(_ context.Context, scope domain.Scope, kind domain.QueueKind) ([]domain.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]domain.QueueEntry, 0)
	for _, e := range s.entries {
		if e.Scope() == scope && e.Kind == kind {
			list = append(list, e)
		}
	}
	sortQueue(list)
	return list, nil
}

func (s *MemoryStore) ListSeats(_ context.Context, scope domain.Scope) ([]domain.Seat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seats := make([]domain.Seat, 0)
	for _, seat := range s.seats {
		if seat.Scope() == scope {
			seats = append(seats, seat)
		}
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].ID < seats[j].ID })
	return seats, nil
}

func (s *MemoryStore) ActiveScopes(_ context.Context) ([]domain.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[domain.Scope]struct{})
	for _, e := range s.entries {
		if e.Status == domain.QueueEntryActive {
			seen[e.Scope()] = struct{}{}
		}
	}
	scopes := make([]domain.Scope, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].TrainID != scopes[j].TrainID {
			return scopes[i].TrainID < scopes[j].TrainID
		}
		return scopes[i].RouteID < scopes[j].RouteID
	})
	return scopes, nil
}

// SeedSeats stores seats under scope and writes the assigned IDs back into
// the slice. A seat number already present in the scope keeps its ID and
// availability; only its compartment is updated.
func (s *MemoryStore) SeedSeats(_ context.Context, scope domain.Scope, seats []domain.Seat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]int64)
	for id, seat := range s.seats {
		if seat.Scope() == scope {
			existing[seat.SeatNumber] = id
		}
	}
	for i := range seats {
		seats[i].TrainID = scope.TrainID
		seats[i].RouteID = scope.RouteID
		if id, ok := existing[seats[i].SeatNumber]; ok {
			stored := s.seats[id]
			stored.Compartment = seats[i].Compartment
			s.seats[id] = stored
			seats[i].ID = id
			continue
		}
		seats[i].ID = s.seatSeq.Add(1)
		s.seats[seats[i].ID] = seats[i]
		existing[seats[i].SeatNumber] = seats[i].ID
	}
	return nil
}

func (s *MemoryStore) GetTrain(_ context.Context, id int64) (*domain.Train, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trains[id]
	if !ok {
		return nil, fmt.Errorf("train %d: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (s *MemoryStore) GetRoute(_ context.Context, id int64) (*domain.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[id]
	if !ok {
		return nil, fmt.Errorf("route %d: %w", id, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *MemoryStore) SearchRoutes(_ context.Context, source, destination string) ([]domain.RouteSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source = strings.ToLower(source)
	destination = strings.ToLower(destination)

	results := make([]domain.RouteSummary, 0)
	for _, r := range s.routes {
		if !strings.Contains(strings.ToLower(r.SourceStation), source) ||
			!strings.Contains(strings.ToLower(r.DestinationStation), destination) {
			continue
		}
		t, ok := s.trains[r.TrainID]
		if !ok {
			continue
		}
		available := 0
		for _, seat := range s.seats {
			if seat.Scope() == r.Scope() && seat.Available {
				available++
			}
		}
		results = append(results, domain.RouteSummary{Train: t, Route: r, AvailableSeats: available})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Train.Name != results[j].Train.Name {
			return results[i].Train.Name < results[j].Train.Name
		}
		return results[i].Route.ID < results[j].Route.ID
	})
	return results, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

type memoryTx struct {
	store *MemoryStore
	scope domain.Scope

	seats    map[int64]domain.Seat
	bookings map[int64]domain.Booking
	payments map[int64]domain.Payment
	entries  map[int64]domain.QueueEntry
}

func (tx *memoryTx) Scope() domain.Scope {
	return tx.scope
}

func (tx *memoryTx) seat(id int64) (domain.Seat, bool) {
	if seat, ok := tx.seats[id]; ok {
		return seat, true
	}
	tx.store.mu.RLock()
	seat, ok := tx.store.seats[id]
	tx.store.mu.RUnlock()
	if !ok || seat.Scope() != tx.scope {
		return domain.Seat{}, false
	}
	return seat, true
}

func (tx *memoryTx) booking(id int64) (domain.Booking, bool) {
	if b, ok := tx.bookings[id]; ok {
		return b, true
	}
	tx.store.mu.RLock()
	b, ok := tx.store.bookings[id]
	tx.store.mu.RUnlock()
	if !ok || b.Scope() != tx.scope {
		return domain.Booking{}, false
	}
	return cloneBooking(b), true
}

func (tx *memoryTx) entry(id int64) (domain.QueueEntry, bool) {
	if e, ok := tx.entries[id]; ok {
		return e, true
	}
	tx.store.mu.RLock()
	e, ok := tx.store.entries[id]
	tx.store.mu.RUnlock()
	if !ok || e.Scope() != tx.scope {
		return domain.QueueEntry{}, false
	}
	return e, true
}

// activeEntries merges committed and staged Active entries of kind, ordered
// by position.
func (tx *memoryTx) activeEntries(kind domain.QueueKind) []domain.QueueEntry {
	merged := make(map[int64]domain.QueueEntry)
	tx.store.mu.RLock()
	for id, e := range tx.store.entries {
		if e.Scope() == tx.scope && e.Kind == kind {
			merged[id] = e
		}
	}
	tx.store.mu.RUnlock()
	for id, e := range tx.entries {
		if e.Kind == kind {
			merged[id] = e
		}
	}

	active := make([]domain.QueueEntry, 0, len(merged))
	for _, e := range merged {
		if e.Status == domain.QueueEntryActive {
			active = append(active, e)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Position < active[j].Position })
	return active
}

func (tx *memoryTx) GetSeat(_ context.Context, seatID int64) (*domain.Seat, error) {
	seat, ok := tx.seat(seatID)
	if !ok {
		return nil, fmt.Errorf("seat %d: %w", seatID, domain.ErrNotFound)
	}
	return &seat, nil
}

func (tx *memoryTx) ListSeats(_ context.Context) ([]domain.Seat, error) {
	merged := make(map[int64]domain.Seat)
	tx.store.mu.RLock()
	for id, seat := range tx.store.seats {
		if seat.Scope() == tx.scope {
			merged[id] = seat
		}
	}
	tx.store.mu.RUnlock()
	for id, seat := range tx.seats {
		merged[id] = seat
	}

	seats := make([]domain.Seat, 0, len(merged))
	for _, seat := range merged {
		seats = append(seats, seat)
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].ID < seats[j].ID })
	return seats, nil
}

func (tx *memoryTx) SetSeatAvailability(_ context.Context, seatID int64, available bool) (bool, error) {
	seat, ok := tx.seat(seatID)
	if !ok {
		return false, fmt.Errorf("seat %d: %w", seatID, domain.ErrNotFound)
	}
	if seat.Available == available {
		return false, nil
	}
	seat.Available = available
	tx.seats[seatID] = seat
	return true, nil
}

func (tx *memoryTx) CreateBooking(_ context.Context, booking *domain.Booking) error {
	if booking.Scope() != tx.scope {
		return fmt.Errorf("booking for %s outside transaction scope %s: %w", booking.Scope(), tx.scope, domain.ErrPersistence)
	}
	now := tx.store.now()
	booking.ID = tx.store.bookingSeq.Add(1)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	tx.bookings[booking.ID] = cloneBooking(*booking)
	return nil
}

func (tx *memoryTx) GetBookingForUpdate(_ context.Context, id int64) (*domain.Booking, error) {
	b, ok := tx.booking(id)
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	return &b, nil
}

func (tx *memoryTx) UpdateBooking(_ context.Context, id int64, status domain.BookingStatus, seatID *int64) error {
	b, ok := tx.booking(id)
	if !ok {
		return fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	b.Status = status
	b.SeatID = cloneID(seatID)
	b.UpdatedAt = tx.store.now()
	tx.bookings[id] = b
	return nil
}

func (tx *memoryTx) CreatePayment(_ context.Context, payment *domain.Payment) error {
	if _, ok := tx.booking(payment.BookingID); !ok {
		return fmt.Errorf("booking %d: %w", payment.BookingID, domain.ErrNotFound)
	}
	now := tx.store.now()
	payment.ID = tx.store.paymentSeq.Add(1)
	payment.CreatedAt = now
	payment.UpdatedAt = now
	tx.payments[payment.BookingID] = *payment
	return nil
}

func (tx *memoryTx) GetPayment(_ context.Context, bookingID int64) (*domain.Payment, error) {
	if _, ok := tx.booking(bookingID); !ok {
		return nil, fmt.Errorf("booking %d: %w", bookingID, domain.ErrNotFound)
	}
	p, ok := tx.payments[bookingID]
	if !ok {
		tx.store.mu.RLock()
		p, ok = tx.store.payments[bookingID]
		tx.store.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("payment for booking %d: %w", bookingID, domain.ErrNotFound)
	}
	return &p, nil
}

func (tx *memoryTx) UpdatePaymentStatus(ctx context.Context, bookingID int64, status domain.PaymentStatus, providerRef string) error {
	p, err := tx.GetPayment(ctx, bookingID)
	if err != nil {
		return err
	}
	p.Status = status
	if providerRef != "" {
		p.ProviderRef = providerRef
	}
	p.UpdatedAt = tx.store.now()
	tx.payments[bookingID] = *p
	return nil
}

func (tx *memoryTx) CountActive(_ context.Context, kind domain.QueueKind) (int, error) {
	return len(tx.activeEntries(kind)), nil
}

func (tx *memoryTx) CreateQueueEntry(_ context.Context, entry *domain.QueueEntry) error {
	if entry.Scope() != tx.scope {
		return fmt.Errorf("queue entry for %s outside transaction scope %s: %w", entry.Scope(), tx.scope, domain.ErrPersistence)
	}
	now := tx.store.now()
	entry.ID = tx.store.entrySeq.Add(1)
	entry.RequestedAt = now
	entry.UpdatedAt = now
	tx.entries[entry.ID] = *entry
	return nil
}

func (tx *memoryTx) FirstActive(_ context.Context, kind domain.QueueKind) (*domain.QueueEntry, error) {
	active := tx.activeEntries(kind)
	if len(active) == 0 {
		return nil, nil
	}
	head := active[0]
	return &head, nil
}

func (tx *memoryTx) ActiveEntryByBooking(_ context.Context, kind domain.QueueKind, bookingID int64) (*domain.QueueEntry, error) {
	for _, e := range tx.activeEntries(kind) {
		if e.BookingID == bookingID {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("active %s entry for booking %d: %w", kind, bookingID, domain.ErrNotFound)
}

func (tx *memoryTx) SetQueueEntryStatus(_ context.Context, entryID int64, status domain.QueueEntryStatus) error {
	e, ok := tx.entry(entryID)
	if !ok {
		return fmt.Errorf("queue entry %d: %w", entryID, domain.ErrNotFound)
	}
	e.Status = status
	e.UpdatedAt = tx.store.now()
	tx.entries[entryID] = e
	return nil
}

func (tx *memoryTx) ClosePositionGap(_ context.Context, kind domain.QueueKind, position int) error {
	now := tx.store.now()
	for _, e := range tx.activeEntries(kind) {
		if e.Position > position {
			e.Position--
			e.UpdatedAt = now
			tx.entries[e.ID] = e
		}
	}
	return nil
}

// sortQueue orders Active entries by position, followed by the history of
// promoted and withdrawn entries in arrival order.
func sortQueue(list []domain.QueueEntry) {
	sort.Slice(list, func(i, j int) bool {
		ai := list[i].Status == domain.QueueEntryActive
		aj := list[j].Status == domain.QueueEntryActive
		if ai != aj {
			return ai
		}
		if ai && list[i].Position != list[j].Position {
			return list[i].Position < list[j].Position
		}
		return list[i].ID < list[j].ID
	})
}

func cloneBooking(b domain.Booking) domain.Booking {
	b.SeatID = cloneID(b.SeatID)
	return b
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

var (
	_ Store             = (*MemoryStore)(nil)
	_ CatalogRepository = (*MemoryStore)(nil)
	_ UserDirectory     = (*MemoryStore)(nil)
)
