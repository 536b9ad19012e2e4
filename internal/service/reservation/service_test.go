package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository/memory"
	"github.com/kirinyoku/parkgo/internal/service/inventory"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeOpener struct {
	err   error
	calls int
}

func (o *fakeOpener) OpenIntent(_ context.Context, r domain.Reservation) (Intent, error) {
	o.calls++
	if o.err != nil {
		return Intent{}, o.err
	}
	return Intent{ID: "pi_" + r.ID.String()[:8], ClientSecret: "secret"}, nil
}

type fixture struct {
	store *memory.Store
	svc   *Service
	now   *time.Time
	loc   int64
}

func newFixture(t *testing.T, spots int) *fixture {
	t.Helper()

	now := t0
	clock := func() time.Time { return now }

	store := memory.New().WithClock(clock)
	loc := store.AddLocation(domain.Location{
		Name:            "Gran Via",
		TotalSpots:      spots,
		AvailableSpots:  spots,
		HourlyRateCents: 250,
		DailyRateCents:  2000,
		IsActive:        true,
		IsOpen:          true,
	})

	ledger := inventory.New(store, nil, nil, nil)
	svc := New(store, ledger, nil, Config{MaxDuration: 72 * time.Hour, Now: clock})

	return &fixture{store: store, svc: svc, now: &now, loc: loc}
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	a, err := f.store.Inventory().Peek(context.Background(), f.loc)
	require.NoError(t, err)
	return a.Available
}

func (f *fixture) book(t *testing.T, user int64) domain.Reservation {
	t.Helper()
	b, err := f.svc.Book(context.Background(), BookRequest{
		UserID:     user,
		LocationID: f.loc,
		Start:      t0.Add(time.Hour),
		End:        t0.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	return b.Reservation
}

func TestBookCreatesPendingReservation(t *testing.T) {
	f := newFixture(t, 2)
	opener := &fakeOpener{}
	f.svc.SetIntentOpener(opener)

	b, err := f.svc.Book(context.Background(), BookRequest{
		UserID:      7,
		LocationID:  f.loc,
		Start:       t0.Add(time.Hour),
		End:         t0.Add(3 * time.Hour),
		AmountCents: 500,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, b.Reservation.Status)
	assert.Equal(t, domain.PaymentPending, b.Reservation.PaymentStatus)
	assert.Equal(t, int64(500), b.Reservation.AmountCents)
	assert.Equal(t, "card", b.Reservation.PaymentMethod)
	assert.Equal(t, "secret", b.ClientSecret)
	assert.NotEmpty(t, b.Reservation.PaymentIntentID)
	assert.Equal(t, 1, f.available(t))

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventReservationCreated, events[0].Type)
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	cases := []struct {
		name string
		req  BookRequest
		want error
	}{
		{"end before start", BookRequest{Start: t0.Add(2 * time.Hour), End: t0.Add(time.Hour)}, ErrInvalidWindow},
		{"ended", BookRequest{Start: t0.Add(-3 * time.Hour), End: t0.Add(-time.Hour)}, ErrWindowInPast},
		{"too long", BookRequest{Start: t0, End: t0.Add(73 * time.Hour)}, ErrDurationTooLong},
		{"wrong amount", BookRequest{Start: t0, End: t0.Add(time.Hour), AmountCents: 1}, ErrAmountMismatch},
		{"unknown location", BookRequest{LocationID: 404, Start: t0, End: t0.Add(time.Hour)}, ErrLocationNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.req.LocationID == 0 {
				tc.req.LocationID = f.loc
			}
			_, err := f.svc.Book(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Equal(t, 1, f.available(t), "rejected bookings take no spot")
}

func TestBookLastSpotUnderContention(t *testing.T) {
	f := newFixture(t, 1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		refused int
	)
	for i := range 10 {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), BookRequest{
				UserID:     user,
				LocationID: f.loc,
				Start:      t0.Add(time.Hour),
				End:        t0.Add(2 * time.Hour),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else if errors.Is(err, ErrNoCapacity) {
				refused++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, 9, refused)
	assert.Equal(t, 0, f.available(t))
}

func TestBookCompensatesWhenProviderFails(t *testing.T) {
	f := newFixture(t, 1)
	f.svc.SetIntentOpener(&fakeOpener{err: errors.New("stripe down")})

	_, err := f.svc.Book(context.Background(), BookRequest{
		UserID:     1,
		LocationID: f.loc,
		Start:      t0.Add(time.Hour),
		End:        t0.Add(2 * time.Hour),
	})
	require.ErrorIs(t, err, ErrPaymentUnavailable)

	assert.Equal(t, 1, f.available(t), "spot returned")

	list, err := f.svc.List(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.StatusCancelled, list[0].Status)
	assert.Equal(t, domain.PaymentFailed, list[0].PaymentStatus)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	res := f.book(t, 1)

	got, err := f.svc.Cancel(ctx, 1, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, 1, f.available(t))

	got, err = f.svc.Cancel(ctx, 1, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, 1, f.available(t), "no second release")

	var cancelled int
	for _, ev := range f.store.Events() {
		if ev.Type == domain.EventReservationCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestCancelOwnershipAndTerminal(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	res := f.book(t, 1)

	_, err := f.svc.Cancel(ctx, 2, res.ID, "")
	assert.ErrorIs(t, err, ErrReservationNotFound)

	_, err = f.svc.Cancel(ctx, 1, uuid.New(), "")
	assert.ErrorIs(t, err, ErrReservationNotFound)

	_, _, err = f.svc.Expire(ctx, res.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, 1, res.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	var te TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.StatusExpired, te.From)
	assert.Equal(t, domain.StatusCancelled, te.To)

	assert.Equal(t, 2, f.available(t))
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	f := newFixture(t, 1)
	res := f.book(t, 1)

	_, _, err := f.svc.Activate(context.Background(), res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, f.available(t))
}

func TestLifecycleReleasesOnce(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	res := f.book(t, 1)

	_, err := f.svc.Transition(ctx, res.ID, Change{
		To:            domain.StatusConfirmed,
		PaymentStatus: domain.PaymentPaid,
	})
	require.NoError(t, err)

	_, _, err = f.svc.Activate(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t))

	done, moved, err := f.svc.Complete(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, domain.PaymentPaid, done.PaymentStatus)
	assert.Equal(t, 1, f.available(t))

	_, moved, err = f.svc.Complete(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, 1, f.available(t))
}

func TestGetActivatesLazily(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	res := f.book(t, 1)

	_, err := f.svc.Transition(ctx, res.ID, Change{To: domain.StatusConfirmed, PaymentStatus: domain.PaymentPaid})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, 1, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)

	*f.now = t0.Add(90 * time.Minute)

	got, err = f.svc.Get(ctx, 1, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)

	_, err = f.svc.Get(ctx, 2, res.ID)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestExtend(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	res := f.book(t, 1)

	_, err := f.svc.Extend(ctx, 1, res.ID, res.EndTime.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending reservations cannot be extended")

	_, err = f.svc.Transition(ctx, res.ID, Change{To: domain.StatusConfirmed, PaymentStatus: domain.PaymentPaid})
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, 1, res.ID, res.EndTime)
	assert.ErrorIs(t, err, ErrInvalidExtension)

	_, err = f.svc.Extend(ctx, 1, res.ID, res.StartTime.Add(73*time.Hour))
	assert.ErrorIs(t, err, ErrDurationTooLong)

	got, err := f.svc.Extend(ctx, 1, res.ID, res.EndTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, res.EndTime.Add(2*time.Hour), got.EndTime)
	assert.Equal(t, res.AmountCents, got.AmountCents)
	assert.Equal(t, 0, f.available(t), "spot stays held")

	events := f.store.Events()
	assert.Equal(t, domain.EventReservationExtended, events[len(events)-1].Type)
}
