package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/service/reservation"
)

func TestHistoryListsOwnPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := NewHistory(f.store)

	mine := f.book(t)
	_, err := f.pay.ApplyEvent(ctx, eventFor("evt_1", domain.EventIntentSucceeded, mine))
	require.NoError(t, err)

	theirs, err := f.res.Book(ctx, reservation.BookRequest{
		UserID: 77, LocationID: f.loc, Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	_, err = f.pay.ApplyEvent(ctx, eventFor("evt_2", domain.EventIntentSucceeded, theirs.Reservation))
	require.NoError(t, err)

	list, err := h.List(ctx, 42, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ReservationID)
	assert.Equal(t, mine.PaymentIntentID, list[0].IntentID)
	assert.Equal(t, domain.PaymentRecordSucceeded, list[0].Status)

	list, err = h.List(ctx, 42, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHistoryStatusChecksOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := NewHistory(f.store)

	r := f.book(t)

	view, err := h.Status(ctx, 42, r.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentPending, view.Status)
	assert.Equal(t, domain.StatusPending, view.ReservationStatus)
	assert.Equal(t, r.AmountCents, view.AmountCents)

	_, err = f.pay.ApplyEvent(ctx, eventFor("evt_ok", domain.EventIntentSucceeded, r))
	require.NoError(t, err)

	view, err = h.Status(ctx, 42, r.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentSucceeded, view.Status)
	assert.Equal(t, domain.StatusConfirmed, view.ReservationStatus)
	assert.Equal(t, domain.PaymentPaid, view.PaymentStatus)

	_, err = h.Status(ctx, 43, r.PaymentIntentID)
	assert.ErrorIs(t, err, ErrIntentNotFound)

	_, err = h.Status(ctx, 42, "pi_missing")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}
