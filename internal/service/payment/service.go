// Package payment keeps reservations consistent with the payment provider:
// it opens intents, applies webhook events exactly once and settles money
// for reservations that ended without being used.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
	"github.com/kirinyoku/parkgo/internal/service/reservation"
	"github.com/kirinyoku/parkgo/internal/uow"
)

// Outcome tells the webhook caller what became of an event. Every outcome
// is acknowledged to the provider.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDuplicate
	OutcomeIgnored
	OutcomeOrphaned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeOrphaned:
		return "orphaned"
	}
	return "unknown"
}

type Config struct {
	Now func() time.Time
}

type Service struct {
	store        repository.Store
	reservations *reservation.Service
	provider     Provider
	uow          *uow.UoW
	log          *slog.Logger
	now          func() time.Time
}

func New(
	store repository.Store,
	reservations *reservation.Service,
	provider Provider,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:        store,
		reservations: reservations,
		provider:     provider,
		uow:          uow.New(store, uow.Config{}),
		log:          log.With("component", "payment"),
		now:          cfg.Now,
	}
}

// OpenIntent opens the provider intent for a pending reservation, records
// it and links it to the reservation. The provider call is keyed by the
// reservation id, so retrying returns the same intent.
func (s *Service) OpenIntent(ctx context.Context, r domain.Reservation) (reservation.Intent, error) {
	const op = "service.payment.OpenIntent"

	pi, err := s.provider.CreateIntent(ctx, IntentRequest{
		AmountCents: r.AmountCents,
		Currency:    r.Currency,
		Metadata: map[string]string{
			MetaReservationID: r.ID.String(),
			MetaUserID:        strconv.FormatInt(r.UserID, 10),
		},
		IdempotencyKey: "reservation:" + r.ID.String(),
	})
	if err != nil {
		return reservation.Intent{}, fmt.Errorf("%s:%w", op, errors.Join(ErrProvider, err))
	}

	now := s.now()

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		_ func(uow.AfterCommit),
	) error {
		err := tx.Payments().CreateIntent(ctx, &domain.PaymentIntent{
			ExternalID:    pi.ID,
			ReservationID: r.ID,
			AmountCents:   r.AmountCents,
			Currency:      r.Currency,
			Status:        domain.IntentPending,
			CreatedAt:     now,
		})
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return err
		}

		return tx.Reservations().SetPaymentIntent(ctx, r.ID, pi.ID, now)
	})
	if err != nil {
		// Nothing local points at the intent, so nothing would settle it later.
		if cerr := s.provider.CancelIntent(context.WithoutCancel(ctx), pi.ID, "cancel:"+pi.ID); cerr != nil {
			s.log.ErrorContext(ctx, "cancel unrecorded intent failed",
				"reservation_id", r.ID, "intent_id", pi.ID, "err", cerr)
		}
		return reservation.Intent{ID: pi.ID}, fmt.Errorf("%s:%w", op, err)
	}

	return reservation.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// Apply verifies and applies a raw webhook delivery.
//
// Returns:
//   - Outcome: what happened to the event.
//   - error: payment.ErrInvalidSignature if the payload is not authentic;
//     nothing is changed in that case.
func (s *Service) Apply(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	const op = "service.payment.Apply"

	ev, err := s.provider.ParseEvent(payload, signature)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("%s:%w", op, err)
	}

	return s.ApplyEvent(ctx, ev)
}

// ApplyEvent applies a verified event. The event id is recorded in the same
// transaction as the state change it causes, so a redelivered event is a
// no-op and a failed apply leaves no record behind.
func (s *Service) ApplyEvent(ctx context.Context, ev Event) (Outcome, error) {
	const op = "service.payment.ApplyEvent"

	if ev.ID == "" {
		return OutcomeIgnored, fmt.Errorf("%s:%w", op, ErrInvalidSignature)
	}

	var outcome Outcome

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		after func(uow.AfterCommit),
	) error {
		o, err := s.apply(ctx, tx, after, ev)
		outcome = o
		return err
	})
	if err != nil {
		return outcome, fmt.Errorf("%s:%w", op, err)
	}

	s.log.InfoContext(ctx, "payment event",
		"event_id", ev.ID, "kind", ev.Kind, "intent_id", ev.IntentID, "outcome", outcome)

	return outcome, nil
}

func (s *Service) apply(
	ctx context.Context,
	tx repository.Queries,
	after func(uow.AfterCommit),
	ev Event,
) (Outcome, error) {
	now := s.now()

	fresh, err := tx.Payments().MarkEventApplied(ctx, domain.PaymentEvent{
		ID:            ev.ID,
		IntentID:      ev.IntentID,
		Kind:          ev.Kind,
		ReservationID: ev.ReservationID,
		ReceivedAt:    now,
	})
	if err != nil {
		return OutcomeIgnored, err
	}

	if !fresh {
		return OutcomeDuplicate, nil
	}

	if ev.Undecodable {
		s.log.WarnContext(ctx, "payment event body could not be decoded",
			"event_id", ev.ID, "kind", ev.Kind)
		return OutcomeIgnored, nil
	}

	switch ev.Kind {
	case domain.EventIntentSucceeded, domain.EventIntentFailed,
		domain.EventIntentCanceled, domain.EventChargeRefunded:
	default:
		return OutcomeIgnored, nil
	}

	if ev.IntentID == "" {
		return OutcomeIgnored, nil
	}

	res, err := s.resolve(ctx, tx, ev)
	if err != nil {
		return OutcomeIgnored, err
	}

	if res == nil {
		s.log.WarnContext(ctx, "payment event for unknown reservation",
			"event_id", ev.ID, "intent_id", ev.IntentID, "reservation_id", ev.ReservationID)
		return OutcomeOrphaned, nil
	}

	if res.PaymentIntentID != "" && res.PaymentIntentID != ev.IntentID {
		return OutcomeIgnored, nil
	}

	intent, err := s.ensureIntent(ctx, tx, res, ev, now)
	if err != nil {
		return OutcomeIgnored, err
	}

	switch ev.Kind {
	case domain.EventIntentSucceeded:
		return s.succeeded(ctx, tx, after, res, intent, ev, now)
	case domain.EventIntentFailed:
		return s.failed(ctx, tx, after, res, ev, domain.IntentFailed, "payment failed", now)
	case domain.EventIntentCanceled:
		return s.failed(ctx, tx, after, res, ev, domain.IntentCancelled, "payment cancelled", now)
	default:
		return s.refunded(ctx, tx, after, res, ev, now)
	}
}

// resolve finds the reservation an event belongs to, by metadata first and
// by the recorded intent otherwise. nil means there is none.
func (s *Service) resolve(ctx context.Context, tx repository.Queries, ev Event) (*domain.Reservation, error) {
	id := ev.ReservationID

	if id == uuid.Nil {
		in, err := tx.Payments().GetIntent(ctx, ev.IntentID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, nil
		case err != nil:
			return nil, err
		}
		id = in.ReservationID
	}

	res, err := tx.Reservations().Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}

	return res, err
}

// ensureIntent returns the intent record, creating it when the webhook
// overtook OpenIntent.
func (s *Service) ensureIntent(
	ctx context.Context,
	tx repository.Queries,
	res *domain.Reservation,
	ev Event,
	now time.Time,
) (*domain.PaymentIntent, error) {
	in, err := tx.Payments().GetIntent(ctx, ev.IntentID)
	if err == nil {
		return in, nil
	}

	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	in = &domain.PaymentIntent{
		ExternalID:    ev.IntentID,
		ReservationID: res.ID,
		AmountCents:   res.AmountCents,
		Currency:      res.Currency,
		Status:        domain.IntentPending,
		CreatedAt:     now,
	}

	if err := tx.Payments().CreateIntent(ctx, in); err != nil {
		return nil, err
	}

	if res.PaymentIntentID == "" {
		if err := tx.Reservations().SetPaymentIntent(ctx, res.ID, ev.IntentID, now); err != nil {
			return nil, err
		}
		res.PaymentIntentID = ev.IntentID
	}

	return in, nil
}

func (s *Service) succeeded(
	ctx context.Context,
	tx repository.Queries,
	after func(uow.AfterCommit),
	res *domain.Reservation,
	intent *domain.PaymentIntent,
	ev Event,
	now time.Time,
) (Outcome, error) {
	if _, err := tx.Payments().UpdateIntentStatus(ctx, ev.IntentID, domain.IntentSucceeded, now); err != nil {
		return OutcomeIgnored, err
	}

	amount, currency := ev.AmountCents, ev.Currency
	if amount == 0 {
		amount, currency = intent.AmountCents, intent.Currency
	}

	method := ev.Method
	if method == "" {
		method = res.PaymentMethod
	}

	if _, err := tx.Payments().RecordPayment(ctx, &domain.Payment{
		ReservationID: res.ID,
		IntentID:      ev.IntentID,
		AmountCents:   amount,
		Currency:      currency,
		Method:        method,
		Status:        domain.PaymentRecordSucceeded,
		CreatedAt:     now,
	}); err != nil {
		return OutcomeIgnored, err
	}

	switch {
	case res.Status == domain.StatusPending:
		if _, _, err := s.reservations.TransitionTx(ctx, tx, after, res.ID, reservation.Change{
			To:            domain.StatusConfirmed,
			PaymentStatus: domain.PaymentPaid,
		}); err != nil {
			return OutcomeIgnored, err
		}

	case res.Status == domain.StatusCancelled || res.Status == domain.StatusExpired:
		// Paid after the reservation ended: nothing to confirm, money goes back.
		if err := tx.Reservations().SetPaymentStatus(ctx, res.ID, domain.PaymentPaid, now); err != nil {
			return OutcomeIgnored, err
		}

		res.PaymentStatus = domain.PaymentPaid

		out, err := domain.NewReservationEvent(domain.EventRefundRequested, *res, "paid after "+string(res.Status), now)
		if err != nil {
			return OutcomeIgnored, err
		}

		if err := tx.Outbox().Append(ctx, out); err != nil {
			return OutcomeIgnored, err
		}

		s.log.WarnContext(ctx, "payment for finished reservation, refund requested",
			"reservation_id", res.ID, "status", res.Status, "intent_id", ev.IntentID)
	}

	return OutcomeApplied, nil
}

func (s *Service) failed(
	ctx context.Context,
	tx repository.Queries,
	after func(uow.AfterCommit),
	res *domain.Reservation,
	ev Event,
	to domain.IntentStatus,
	reason string,
	now time.Time,
) (Outcome, error) {
	moved, err := tx.Payments().UpdateIntentStatus(ctx, ev.IntentID, to, now)
	if err != nil {
		return OutcomeIgnored, err
	}

	// A succeeded intent is never downgraded by a late failure.
	if !moved {
		return OutcomeIgnored, nil
	}

	if res.Status != domain.StatusPending {
		return OutcomeApplied, nil
	}

	if _, _, err := s.reservations.TransitionTx(ctx, tx, after, res.ID, reservation.Change{
		To:            domain.StatusCancelled,
		PaymentStatus: domain.PaymentFailed,
		Reason:        reason,
	}); err != nil {
		return OutcomeIgnored, err
	}

	return OutcomeApplied, nil
}

func (s *Service) refunded(
	ctx context.Context,
	tx repository.Queries,
	after func(uow.AfterCommit),
	res *domain.Reservation,
	ev Event,
	now time.Time,
) (Outcome, error) {
	if _, err := tx.Payments().UpdateIntentStatus(ctx, ev.IntentID, domain.IntentRefunded, now); err != nil {
		return OutcomeIgnored, err
	}

	if err := tx.Payments().MarkPaymentRefunded(ctx, ev.IntentID, now); err != nil &&
		!errors.Is(err, repository.ErrNotFound) {
		return OutcomeIgnored, err
	}

	if res.Status.HoldsInventory() {
		if _, _, err := s.reservations.TransitionTx(ctx, tx, after, res.ID, reservation.Change{
			To:            domain.StatusCancelled,
			PaymentStatus: domain.PaymentRefunded,
			Reason:        "payment refunded",
		}); err != nil {
			return OutcomeIgnored, err
		}

		return OutcomeApplied, nil
	}

	if err := tx.Reservations().SetPaymentStatus(ctx, res.ID, domain.PaymentRefunded, now); err != nil {
		return OutcomeIgnored, err
	}

	return OutcomeApplied, nil
}
