package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository/memory"
)

type sink struct {
	name string
	fail bool
	seen []domain.EventType
}

func (s *sink) Name() string { return s.name }

func (s *sink) Handle(_ context.Context, ev domain.OutboxEvent) error {
	s.seen = append(s.seen, ev.Type)
	if s.fail {
		return errors.New("unavailable")
	}
	return nil
}

func appendEvents(t *testing.T, store *memory.Store, types ...domain.EventType) {
	t.Helper()
	for i, typ := range types {
		require.NoError(t, store.Outbox().Append(context.Background(), domain.OutboxEvent{
			ID:          uuid.New(),
			Type:        typ,
			AggregateID: uuid.New(),
			Payload:     []byte(`{}`),
			CreatedAt:   time.Unix(int64(i), 0),
		}))
	}
}

func TestDrainDeliversInOrder(t *testing.T) {
	store := memory.New()
	appendEvents(t, store, domain.EventReservationCreated, domain.EventReservationConfirmed)

	a, b := &sink{name: "a"}, &sink{name: "b"}
	relay := NewRelay(store, nil, Config{}, a, b)

	n, err := relay.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := []domain.EventType{domain.EventReservationCreated, domain.EventReservationConfirmed}
	assert.Equal(t, want, a.seen)
	assert.Equal(t, want, b.seen)

	n, err = relay.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, ev := range store.Events() {
		assert.NotNil(t, ev.DispatchedAt)
	}
}

func TestFailedSinkRetriesAfterLease(t *testing.T) {
	store := memory.New()
	appendEvents(t, store, domain.EventReservationCancelled)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	flaky := &sink{name: "flaky", fail: true}
	relay := NewRelay(store, nil, Config{Lease: time.Minute, Now: func() time.Time { return now }}, flaky)

	n, err := relay.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.Events()[0].Attempts)

	n, err = relay.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, flaky.seen, 1, "leased event is not offered again yet")

	now = now.Add(2 * time.Minute)
	flaky.fail = false

	n, err = relay.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, flaky.seen, 2)
}

func TestEventParkedAfterMaxAttempts(t *testing.T) {
	store := memory.New()
	appendEvents(t, store, domain.EventReservationExpired, domain.EventReservationCreated)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	broken := &sink{name: "broken", fail: true}
	relay := NewRelay(store, nil, Config{
		Lease:       time.Minute,
		MaxAttempts: 3,
		Now:         func() time.Time { return now },
	}, broken)

	for range 3 {
		_, err := relay.DrainOnce(context.Background())
		require.NoError(t, err)
		now = now.Add(2 * time.Minute)
	}

	for _, ev := range store.Events() {
		assert.Equal(t, 3, ev.Attempts)
		require.NotNil(t, ev.ParkedAt, "event %s parked", ev.Type)
		assert.Nil(t, ev.DispatchedAt)
	}

	broken.fail = false
	n, err := relay.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, broken.seen, 6, "parked events are not offered again")
}
