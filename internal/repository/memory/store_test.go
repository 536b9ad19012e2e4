package memory_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
	"github.com/kirinyoku/parkgo/internal/repository/memory"
)

func newLocation(total int) domain.Location {
	return domain.Location{
		Name:            "Plaza Mayor",
		TotalSpots:      total,
		AvailableSpots:  total,
		HourlyRateCents: 250,
		IsActive:        true,
		IsOpen:          true,
	}
}

func TestReserveLastSpotConcurrently(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	locID := s.AddLocation(newLocation(1))

	const callers = 16

	var (
		wg         sync.WaitGroup
		ok, denied atomic.Int32
	)

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Inventory().Reserve(ctx, locID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, repository.ErrNoCapacity):
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(callers-1), denied.Load())

	av, err := s.Inventory().Peek(ctx, locID)
	require.NoError(t, err)
	assert.Equal(t, 0, av.Available)
}

func TestCounterStaysInBounds(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	locID := s.AddLocation(newLocation(3))

	var (
		mu    sync.Mutex
		holds []uuid.UUID
		wg    sync.WaitGroup
	)

	for i := range 8 {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for range 200 {
				if rnd.Intn(2) == 0 {
					if h, err := s.Inventory().Reserve(ctx, locID); err == nil {
						mu.Lock()
						holds = append(holds, h.ID)
						mu.Unlock()
					}
				} else {
					mu.Lock()
					var id uuid.UUID
					if len(holds) > 0 {
						idx := rnd.Intn(len(holds))
						id = holds[idx]
					}
					mu.Unlock()
					if id != uuid.Nil {
						_, _, _ = s.Inventory().Release(ctx, id)
					}
				}

				av, err := s.Inventory().Peek(ctx, locID)
				if assert.NoError(t, err) {
					assert.GreaterOrEqual(t, av.Available, 0)
					assert.LessOrEqual(t, av.Available, av.Total)
				}
			}
		}(int64(i))
	}
	wg.Wait()
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	locID := s.AddLocation(newLocation(2))

	h, err := s.Inventory().Reserve(ctx, locID)
	require.NoError(t, err)

	_, released, err := s.Inventory().Release(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, released)

	_, released, err = s.Inventory().Release(ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, released)

	av, _ := s.Inventory().Peek(ctx, locID)
	assert.Equal(t, 2, av.Available)
}

func TestReserveRejectsClosedLocation(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	loc := newLocation(5)
	loc.IsOpen = false
	locID := s.AddLocation(loc)

	_, err := s.Inventory().Reserve(ctx, locID)
	assert.ErrorIs(t, err, repository.ErrNoCapacity)

	_, err = s.Inventory().Reserve(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRunTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	locID := s.AddLocation(newLocation(1))
	boom := errors.New("boom")

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Queries) error {
		if _, err := tx.Inventory().Reserve(ctx, locID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	av, _ := s.Inventory().Peek(ctx, locID)
	assert.Equal(t, 1, av.Available)
}

func TestTransitionIsGuarded(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	r := &domain.Reservation{HoldID: uuid.New(), Status: domain.StatusPending}
	require.NoError(t, s.Reservations().Create(ctx, r))

	now := time.Now()
	got, err := s.Reservations().Transition(ctx, r.ID, domain.Transition{
		From: []domain.Status{domain.StatusPending},
		To:   domain.StatusConfirmed,
		At:   now,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)

	_, err = s.Reservations().Transition(ctx, r.ID, domain.Transition{
		From: []domain.Status{domain.StatusPending},
		To:   domain.StatusExpired,
		At:   now,
	})
	assert.ErrorIs(t, err, repository.ErrStaleState)

	dup := &domain.Reservation{HoldID: r.HoldID, Status: domain.StatusPending}
	assert.ErrorIs(t, s.Reservations().Create(ctx, dup), repository.ErrConflict)
}

func TestEventAppliedOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	fresh, err := s.Payments().MarkEventApplied(ctx, domain.PaymentEvent{ID: "evt_1"})
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.Payments().MarkEventApplied(ctx, domain.PaymentEvent{ID: "evt_1"})
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestIntentStatusNeverLeavesSucceeded(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.Payments().CreateIntent(ctx, &domain.PaymentIntent{ExternalID: "pi_1", Status: domain.IntentPending}))

	moved, err := s.Payments().UpdateIntentStatus(ctx, "pi_1", domain.IntentSucceeded, time.Now())
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = s.Payments().UpdateIntentStatus(ctx, "pi_1", domain.IntentFailed, time.Now())
	require.NoError(t, err)
	assert.False(t, moved)

	in, err := s.Payments().GetIntent(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentSucceeded, in.Status)
}

func TestOutboxLease(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()

	for range 3 {
		require.NoError(t, s.Outbox().Append(ctx, domain.OutboxEvent{Type: domain.EventReservationCreated}))
	}

	first, err := s.Outbox().ClaimPending(ctx, 2, now, time.Minute)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := s.Outbox().ClaimPending(ctx, 10, now, time.Minute)
	require.NoError(t, err)
	require.Len(t, second, 1)

	require.NoError(t, s.Outbox().MarkDispatched(ctx, first[0].ID, now))
	require.NoError(t, s.Outbox().MarkFailed(ctx, first[1].ID))

	later, err := s.Outbox().ClaimPending(ctx, 10, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	require.Len(t, later, 2)
	assert.Equal(t, first[1].ID, later[0].ID)
	assert.Equal(t, 1, later[0].Attempts)
}

func TestParkedEventIsNotClaimed(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()

	require.NoError(t, s.Outbox().Append(ctx, domain.OutboxEvent{Type: domain.EventReservationExpired}))

	claimed, err := s.Outbox().ClaimPending(ctx, 10, now, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, s.Outbox().Park(ctx, claimed[0].ID, now))

	later, err := s.Outbox().ClaimPending(ctx, 10, now.Add(time.Hour), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, later)

	ev := s.Events()[0]
	require.NotNil(t, ev.ParkedAt)
	assert.Nil(t, ev.DispatchedAt)
	assert.Equal(t, 1, ev.Attempts)
}

func TestSearchOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	near := newLocation(3)
	near.Name, near.Latitude, near.Longitude = "Near", 40.4170, -3.7036
	far := newLocation(3)
	far.Name, far.Latitude, far.Longitude, far.Rating = "Far", 40.4400, -3.7000, 5
	away := newLocation(3)
	away.Name, away.Latitude, away.Longitude = "Away", 41.3870, 2.1701

	s.AddLocation(far)
	s.AddLocation(near)
	s.AddLocation(away)

	f := domain.SearchFilter{Geo: &domain.GeoPoint{Lat: 40.4169, Lng: -3.7035, RadiusKm: 10}}
	f.Normalize()

	hits, err := s.Locations().Search(ctx, f)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Near", hits[0].Name)
	assert.Equal(t, "Far", hits[1].Name)
	require.NotNil(t, hits[0].DistanceKm)

	f = domain.SearchFilter{Text: "way"}
	f.Normalize()
	hits, err = s.Locations().Search(ctx, f)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Away", hits[0].Name)
}
