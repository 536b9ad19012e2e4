package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository/memory"
	"github.com/kirinyoku/parkgo/internal/service/payment"
	"github.com/kirinyoku/parkgo/internal/service/reservation"
)

func countEvents(store *memory.Store, typ domain.EventType) int {
	n := 0
	for _, ev := range store.Events() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestCancelRacingPaymentReleasesOnce(t *testing.T) {
	for i := range 25 {
		f := newSingleSpot(t)
		ctx := context.Background()

		b, err := f.res.Book(ctx, reservation.BookRequest{
			UserID: 3, LocationID: f.loc, Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
		})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			cancelErr error
			applyErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = f.res.Cancel(ctx, 3, b.Reservation.ID, "")
		}()
		go func() {
			defer wg.Done()
			_, applyErr = f.pay.ApplyEvent(ctx, f.event("evt_paid", domain.EventIntentSucceeded, b.Reservation))
		}()
		wg.Wait()

		require.NoError(t, cancelErr, "round %d", i)
		require.NoError(t, applyErr, "round %d", i)

		got := f.get(t, b.Reservation)
		assert.Equal(t, domain.StatusCancelled, got.Status, "round %d", i)
		assert.Equal(t, domain.PaymentPaid, got.PaymentStatus, "round %d", i)
		assert.Equal(t, 1, f.available(t), "round %d", i)
		assert.Len(t, f.store.PaymentsFor(b.Reservation.ID), 1, "round %d", i)
		assert.Equal(t, 1, countEvents(f.store, domain.EventReservationCancelled), "round %d", i)
	}
}

func TestExpiryRacingPaymentHasOneWinner(t *testing.T) {
	for i := range 25 {
		f := newSingleSpot(t)
		ctx := context.Background()

		b, err := f.res.Book(ctx, reservation.BookRequest{
			UserID: 3, LocationID: f.loc, Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour),
		})
		require.NoError(t, err)

		f.now = t0.Add(time.Hour)

		var (
			wg       sync.WaitGroup
			rep      Report
			sweepErr error
			outcome  payment.Outcome
			applyErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			rep, sweepErr = f.sw.SweepOnce(ctx)
		}()
		go func() {
			defer wg.Done()
			outcome, applyErr = f.pay.ApplyEvent(ctx, f.event("evt_paid", domain.EventIntentSucceeded, b.Reservation))
		}()
		wg.Wait()

		require.NoError(t, sweepErr, "round %d", i)
		require.NoError(t, applyErr, "round %d", i)
		assert.Equal(t, payment.OutcomeApplied, outcome, "round %d", i)

		got := f.get(t, b.Reservation)
		switch got.Status {
		case domain.StatusExpired:
			assert.Equal(t, 1, rep.Expired, "round %d", i)
			assert.Equal(t, 1, f.available(t), "round %d", i)
			assert.Equal(t, 1, countEvents(f.store, domain.EventRefundRequested), "round %d", i)
		case domain.StatusConfirmed:
			assert.Zero(t, rep.Expired, "round %d", i)
			assert.Equal(t, 0, f.available(t), "round %d", i)
			assert.Zero(t, countEvents(f.store, domain.EventRefundRequested), "round %d", i)
		default:
			t.Fatalf("round %d: unexpected status %s", i, got.Status)
		}
		assert.Equal(t, domain.PaymentPaid, got.PaymentStatus, "round %d", i)
	}
}

func TestParallelSweepsExpireOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var booked []domain.Reservation
	for range 4 {
		booked = append(booked, f.book(t, t0.Add(2*time.Hour), t0.Add(3*time.Hour)))
	}
	f.now = t0.Add(45 * time.Minute)
	clock := f.now

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total Report
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sw := New(f.store, f.res, nil, nil, Config{
				GracePeriod: 30 * time.Minute,
				Now:         func() time.Time { return clock },
			})
			rep, err := sw.SweepOnce(ctx)
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			total.Expired += rep.Expired
			total.Failed += rep.Failed
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, total.Expired, "each reservation counted by exactly one sweep")
	assert.Zero(t, total.Failed)

	for _, r := range booked {
		assert.Equal(t, domain.StatusExpired, f.status(t, r))
	}

	a, err := f.store.Inventory().Peek(ctx, f.loc)
	require.NoError(t, err)
	assert.Equal(t, 5, a.Available)
	assert.Equal(t, 4, countEvents(f.store, domain.EventReservationExpired))
}
