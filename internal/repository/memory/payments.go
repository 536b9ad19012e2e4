package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type paymentRepo struct{ q *queries }

func (r *paymentRepo) CreateIntent(ctx context.Context, in *domain.PaymentIntent) error {
	const op = "memory.PaymentRepo.CreateIntent"

	st, done := r.q.begin()
	defer done()

	if _, ok := st.intents[in.ExternalID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.q.s.now()
	}
	in.UpdatedAt = in.CreatedAt

	st.intents[in.ExternalID] = *in

	return nil
}

func (r *paymentRepo) GetIntent(ctx context.Context, externalID string) (*domain.PaymentIntent, error) {
	const op = "memory.PaymentRepo.GetIntent"

	st, done := r.q.begin()
	defer done()

	in, ok := st.intents[externalID]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &in, nil
}

func (r *paymentRepo) UpdateIntentStatus(ctx context.Context, externalID string, to domain.IntentStatus, at time.Time) (bool, error) {
	const op = "memory.PaymentRepo.UpdateIntentStatus"

	st, done := r.q.begin()
	defer done()

	in, ok := st.intents[externalID]
	if !ok {
		return false, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if !slices.Contains(domain.IntentSources(to), in.Status) {
		return false, nil
	}

	in.Status = to
	in.UpdatedAt = at
	st.intents[externalID] = in

	return true, nil
}

func (r *paymentRepo) RecordPayment(ctx context.Context, p *domain.Payment) (bool, error) {
	st, done := r.q.begin()
	defer done()

	if existing, ok := st.payments[p.IntentID]; ok {
		*p = existing
		return false, nil
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.q.s.now()
	}
	p.UpdatedAt = p.CreatedAt

	st.payments[p.IntentID] = *p

	return true, nil
}

func (r *paymentRepo) MarkPaymentRefunded(ctx context.Context, intentID string, at time.Time) error {
	const op = "memory.PaymentRepo.MarkPaymentRefunded"

	st, done := r.q.begin()
	defer done()

	p, ok := st.payments[intentID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	p.Status = domain.PaymentRecordRefunded
	p.UpdatedAt = at
	st.payments[intentID] = p

	return nil
}

func (r *paymentRepo) MarkEventApplied(ctx context.Context, ev domain.PaymentEvent) (bool, error) {
	st, done := r.q.begin()
	defer done()

	if _, ok := st.events[ev.ID]; ok {
		return false, nil
	}

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = r.q.s.now()
	}
	st.events[ev.ID] = ev

	return true, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Payment, error) {
	st, done := r.q.begin()
	defer done()

	var out []domain.Payment
	for _, p := range st.payments {
		if res, ok := st.reservations[p.ReservationID]; ok && res.UserID == userID {
			out = append(out, p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].IntentID < out[j].IntentID
	})

	return page(out, limit, offset), nil
}

// PaymentsFor lists the payment records of a reservation.
func (s *Store) PaymentsFor(reservationID uuid.UUID) []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Payment
	for _, p := range s.st.payments {
		if p.ReservationID == reservationID {
			out = append(out, p)
		}
	}

	return out
}
