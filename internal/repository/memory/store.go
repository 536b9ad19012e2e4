// Package memory is an in-process storage backend. A transaction works on a
// copy of the state under the store mutex and swaps it in on commit, so every
// RunTx is serializable and a failed one leaves no trace.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type state struct {
	locations    map[int64]domain.Location
	holds        map[uuid.UUID]domain.Hold
	reservations map[uuid.UUID]domain.Reservation
	intents      map[string]domain.PaymentIntent
	payments     map[string]domain.Payment
	events       map[string]domain.PaymentEvent
	users        map[int64]domain.Contact
	outbox       []domain.OutboxEvent
	reviews      []domain.Review
	nextLocation int64
	nextReview   int64
}

func newState() *state {
	return &state{
		locations:    map[int64]domain.Location{},
		holds:        map[uuid.UUID]domain.Hold{},
		reservations: map[uuid.UUID]domain.Reservation{},
		intents:      map[string]domain.PaymentIntent{},
		payments:     map[string]domain.Payment{},
		events:       map[string]domain.PaymentEvent{},
		users:        map[int64]domain.Contact{},
	}
}

func (s *state) clone() *state {
	return &state{
		locations:    maps.Clone(s.locations),
		holds:        maps.Clone(s.holds),
		reservations: maps.Clone(s.reservations),
		intents:      maps.Clone(s.intents),
		payments:     maps.Clone(s.payments),
		events:       maps.Clone(s.events),
		users:        maps.Clone(s.users),
		outbox:       slices.Clone(s.outbox),
		reviews:      slices.Clone(s.reviews),
		nextLocation: s.nextLocation,
		nextReview:   s.nextReview,
	}
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock replaces the clock used for default timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Queries) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &queries{s: s, st: s.st.clone(), inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.st = tx.st

	return nil
}

func (s *Store) auto() *queries { return &queries{s: s} }

func (s *Store) Inventory() repository.InventoryRepo      { return s.auto().Inventory() }
func (s *Store) Reservations() repository.ReservationRepo { return s.auto().Reservations() }
func (s *Store) Payments() repository.PaymentRepo         { return s.auto().Payments() }
func (s *Store) Outbox() repository.OutboxRepo            { return s.auto().Outbox() }
func (s *Store) Locations() repository.LocationRepo       { return s.auto().Locations() }
func (s *Store) Users() repository.UserRepo               { return s.auto().Users() }
func (s *Store) Reviews() repository.ReviewRepo           { return s.auto().Reviews() }

// AddLocation stores a location and returns its id. A zero ID is assigned.
func (s *Store) AddLocation(l domain.Location) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == 0 {
		s.st.nextLocation++
		l.ID = s.st.nextLocation
	} else if l.ID > s.st.nextLocation {
		s.st.nextLocation = l.ID
	}

	if l.Currency == "" {
		l.Currency = "EUR"
	}
	if l.Type == "" {
		l.Type = domain.ParkingPublic
	}
	now := s.now()
	l.CreatedAt, l.UpdatedAt = now, now

	s.st.locations[l.ID] = l

	return l.ID
}

func (s *Store) AddUser(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.users[c.UserID] = c
}

// queries binds repositories to either a transaction copy or the live state.
type queries struct {
	s    *Store
	st   *state
	inTx bool
}

// begin returns the state to operate on and a function that ends the call.
// Outside a transaction every call locks the store for its duration.
func (q *queries) begin() (*state, func()) {
	if q.inTx {
		return q.st, func() {}
	}

	q.s.mu.Lock()
	return q.s.st, q.s.mu.Unlock
}

func (q *queries) Inventory() repository.InventoryRepo      { return &inventoryRepo{q} }
func (q *queries) Reservations() repository.ReservationRepo { return &reservationRepo{q} }
func (q *queries) Payments() repository.PaymentRepo         { return &paymentRepo{q} }
func (q *queries) Outbox() repository.OutboxRepo            { return &outboxRepo{q} }
func (q *queries) Locations() repository.LocationRepo       { return &locationRepo{q} }
func (q *queries) Users() repository.UserRepo               { return &userRepo{q} }
func (q *queries) Reviews() repository.ReviewRepo           { return &reviewRepo{q} }
