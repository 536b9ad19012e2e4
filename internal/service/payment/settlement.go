package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
	"github.com/kirinyoku/parkgo/internal/uow"
)

// Settlement returns money for reservations that ended without being used.
// It consumes outbox events and may see the same event more than once;
// provider calls are keyed by intent id, and the local records only move
// forward.
type Settlement struct {
	store    repository.Store
	provider Provider
	uow      *uow.UoW
	log      *slog.Logger
	now      func() time.Time
}

func NewSettlement(store repository.Store, provider Provider, log *slog.Logger, now func() time.Time) *Settlement {
	if now == nil {
		now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Settlement{
		store:    store,
		provider: provider,
		uow:      uow.New(store, uow.Config{}),
		log:      log.With("component", "settlement"),
		now:      now,
	}
}

func (s *Settlement) Name() string { return "settlement" }

// Handle settles one outbox event. Event types it does not care about are
// accepted without doing anything.
func (s *Settlement) Handle(ctx context.Context, ev domain.OutboxEvent) error {
	const op = "service.payment.Settlement.Handle"

	switch ev.Type {
	case domain.EventReservationCancelled,
		domain.EventReservationExpired,
		domain.EventRefundRequested:
	default:
		return nil
	}

	payload, err := ev.Reservation()
	if err != nil {
		// Undecodable payloads never become decodable; do not retry them.
		s.log.ErrorContext(ctx, "bad outbox payload", "event_id", ev.ID, "err", err)
		return nil
	}

	intentID := payload.PaymentIntentID
	if intentID == "" {
		res, err := s.store.Reservations().Get(ctx, payload.ReservationID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("%s:%w", op, err)
		}
		intentID = res.PaymentIntentID
	}

	if intentID == "" {
		return nil
	}

	intent, err := s.store.Payments().GetIntent(ctx, intentID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%s:%w", op, err)
	}

	// A refund request is only emitted after the provider reported the money
	// captured, so it is honoured whatever the local mirror says.
	if ev.Type == domain.EventRefundRequested {
		if intent.Status == domain.IntentRefunded {
			return nil
		}
		return s.refund(ctx, intent)
	}

	switch intent.Status {
	case domain.IntentSucceeded:
		return s.refund(ctx, intent)
	case domain.IntentPending, domain.IntentFailed:
		return s.cancel(ctx, intent)
	}

	return nil
}

func (s *Settlement) refund(ctx context.Context, intent *domain.PaymentIntent) error {
	const op = "service.payment.Settlement.refund"

	if err := s.provider.Refund(ctx, intent.ExternalID, "refund:"+intent.ExternalID); err != nil {
		return fmt.Errorf("%s:%w", op, errors.Join(ErrProvider, err))
	}

	now := s.now()

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		_ func(uow.AfterCommit),
	) error {
		if _, err := tx.Payments().UpdateIntentStatus(ctx, intent.ExternalID, domain.IntentRefunded, now); err != nil {
			return err
		}

		if err := tx.Payments().MarkPaymentRefunded(ctx, intent.ExternalID, now); err != nil &&
			!errors.Is(err, repository.ErrNotFound) {
			return err
		}

		return tx.Reservations().SetPaymentStatus(ctx, intent.ReservationID, domain.PaymentRefunded, now)
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.log.InfoContext(ctx, "payment refunded",
		"reservation_id", intent.ReservationID, "intent_id", intent.ExternalID, "amount_cents", intent.AmountCents)

	return nil
}

func (s *Settlement) cancel(ctx context.Context, intent *domain.PaymentIntent) error {
	const op = "service.payment.Settlement.cancel"

	if err := s.provider.CancelIntent(ctx, intent.ExternalID, "cancel:"+intent.ExternalID); err != nil {
		return fmt.Errorf("%s:%w", op, errors.Join(ErrProvider, err))
	}

	if _, err := s.store.Payments().UpdateIntentStatus(ctx, intent.ExternalID, domain.IntentCancelled, s.now()); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
