package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
)

// Store is a storage backend. Calls made on it directly run in their own
// implicit transaction; RunTx groups several calls atomically.
type Store interface {
	Queries
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Queries) error) error
}

type Queries interface {
	Inventory() InventoryRepo
	Reservations() ReservationRepo
	Payments() PaymentRepo
	Outbox() OutboxRepo
	Locations() LocationRepo
	Users() UserRepo
	Reviews() ReviewRepo
}

// InventoryRepo is the only code path allowed to change available spots.
type InventoryRepo interface {
	// Reserve takes one spot. ErrNoCapacity when none is left or the location
	// is not bookable, ErrNotFound when it does not exist.
	Reserve(ctx context.Context, locationID int64) (domain.Hold, error)
	// Release returns the hold's spot. released is false when the hold was
	// already released.
	Release(ctx context.Context, holdID uuid.UUID) (hold domain.Hold, released bool, err error)
	Peek(ctx context.Context, locationID int64) (domain.Availability, error)
}

type DueKind int

const (
	// DuePending selects pending reservations created at or before the cutoff.
	DuePending DueKind = iota
	// DueStart selects confirmed reservations whose start time has been reached.
	DueStart
	// DueEnd selects confirmed or active reservations whose end time has been reached.
	DueEnd
)

type ReservationRepo interface {
	Create(ctx context.Context, r *domain.Reservation) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Reservation, error)
	// Transition applies t only if the current status is in t.From and
	// returns ErrStaleState otherwise.
	Transition(ctx context.Context, id uuid.UUID, t domain.Transition) (*domain.Reservation, error)
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) error
	SetPaymentStatus(ctx context.Context, id uuid.UUID, ps domain.PaymentStatus, at time.Time) error
	// Extend moves the end time when the current status is in from.
	Extend(ctx context.Context, id uuid.UUID, from []domain.Status, newEnd, at time.Time) (*domain.Reservation, error)
	ListDue(ctx context.Context, kind DueKind, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type PaymentRepo interface {
	CreateIntent(ctx context.Context, in *domain.PaymentIntent) error
	GetIntent(ctx context.Context, externalID string) (*domain.PaymentIntent, error)
	// UpdateIntentStatus moves the intent only along domain.IntentSources.
	UpdateIntentStatus(ctx context.Context, externalID string, to domain.IntentStatus, at time.Time) (bool, error)
	// RecordPayment is keyed by intent id; created is false for a repeat.
	RecordPayment(ctx context.Context, p *domain.Payment) (created bool, err error)
	MarkPaymentRefunded(ctx context.Context, intentID string, at time.Time) error
	// MarkEventApplied inserts the event id; fresh is false when it was seen before.
	MarkEventApplied(ctx context.Context, ev domain.PaymentEvent) (fresh bool, err error)
	// ListByUser lists payment records of the user's reservations, newest first.
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Payment, error)
}

type OutboxRepo interface {
	Append(ctx context.Context, ev domain.OutboxEvent) error
	// ClaimPending leases up to limit undispatched events, oldest first.
	// A leased event is not returned again until the lease runs out.
	ClaimPending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkFailed counts a failed attempt; the event is retried once its lease expires.
	MarkFailed(ctx context.Context, id uuid.UUID) error
	// Park counts a final failed attempt and takes the event out of delivery.
	Park(ctx context.Context, id uuid.UUID, at time.Time) error
}

type LocationRepo interface {
	Get(ctx context.Context, id int64) (*domain.Location, error)
	Search(ctx context.Context, f domain.SearchFilter) ([]domain.LocationHit, error)
}

type ReviewRepo interface {
	// Add stores a review. ErrConflict when the user already reviewed the location.
	Add(ctx context.Context, r *domain.Review) error
	// ListByLocation returns a page of reviews, newest first, and the total count.
	ListByLocation(ctx context.Context, locationID int64, limit, offset int) ([]domain.Review, int, error)
	// RefreshRating recomputes the location's average rating and count.
	RefreshRating(ctx context.Context, locationID int64, at time.Time) (rating float64, count int, err error)
}

type UserRepo interface {
	Contact(ctx context.Context, userID int64) (*domain.Contact, error)
}
