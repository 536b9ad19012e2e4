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

type reservationRepo struct{ q *queries }

func (r *reservationRepo) Create(ctx context.Context, res *domain.Reservation) error {
	const op = "memory.ReservationRepo.Create"

	st, done := r.q.begin()
	defer done()

	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}

	if _, ok := st.reservations[res.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	for _, other := range st.reservations {
		if other.HoldID == res.HoldID {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	if res.CreatedAt.IsZero() {
		res.CreatedAt = r.q.s.now()
	}
	res.UpdatedAt = res.CreatedAt

	st.reservations[res.ID] = *res

	return nil
}

func (r *reservationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "memory.ReservationRepo.Get"

	st, done := r.q.begin()
	defer done()

	res, ok := st.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &res, nil
}

func (r *reservationRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Reservation, error) {
	st, done := r.q.begin()
	defer done()

	var out []domain.Reservation
	for _, res := range st.reservations {
		if res.UserID == userID {
			out = append(out, res)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return page(out, limit, offset), nil
}

func (r *reservationRepo) Transition(ctx context.Context, id uuid.UUID, t domain.Transition) (*domain.Reservation, error) {
	return r.update(ctx, "memory.ReservationRepo.Transition", id, t.From, func(res *domain.Reservation) {
		res.Status = t.To
		if t.PaymentStatus != "" {
			res.PaymentStatus = t.PaymentStatus
		}
		if t.Reason != "" {
			res.CancelReason = t.Reason
		}
		res.UpdatedAt = t.At
	})
}

func (r *reservationRepo) Extend(ctx context.Context, id uuid.UUID, from []domain.Status, newEnd, at time.Time) (*domain.Reservation, error) {
	return r.update(ctx, "memory.ReservationRepo.Extend", id, from, func(res *domain.Reservation) {
		res.EndTime = newEnd
		res.UpdatedAt = at
	})
}

func (r *reservationRepo) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) error {
	_, err := r.update(ctx, "memory.ReservationRepo.SetPaymentIntent", id, nil, func(res *domain.Reservation) {
		res.PaymentIntentID = intentID
		res.UpdatedAt = at
	})
	return err
}

func (r *reservationRepo) SetPaymentStatus(ctx context.Context, id uuid.UUID, ps domain.PaymentStatus, at time.Time) error {
	_, err := r.update(ctx, "memory.ReservationRepo.SetPaymentStatus", id, nil, func(res *domain.Reservation) {
		res.PaymentStatus = ps
		res.UpdatedAt = at
	})
	return err
}

// update applies fn when the reservation's status is in from. A nil from
// accepts any status.
func (r *reservationRepo) update(
	ctx context.Context,
	op string,
	id uuid.UUID,
	from []domain.Status,
	fn func(res *domain.Reservation),
) (*domain.Reservation, error) {
	st, done := r.q.begin()
	defer done()

	res, ok := st.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if from != nil && !slices.Contains(from, res.Status) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrStaleState)
	}

	fn(&res)
	st.reservations[id] = res

	return &res, nil
}

func (r *reservationRepo) ListDue(ctx context.Context, kind repository.DueKind, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	st, done := r.q.begin()
	defer done()

	type due struct {
		id uuid.UUID
		at time.Time
	}

	var hits []due
	for _, res := range st.reservations {
		switch kind {
		case repository.DuePending:
			if res.Status == domain.StatusPending && !res.CreatedAt.After(cutoff) {
				hits = append(hits, due{res.ID, res.CreatedAt})
			}
		case repository.DueStart:
			if res.Status == domain.StatusConfirmed && !res.StartTime.After(cutoff) {
				hits = append(hits, due{res.ID, res.StartTime})
			}
		case repository.DueEnd:
			if (res.Status == domain.StatusConfirmed || res.Status == domain.StatusActive) &&
				!res.EndTime.After(cutoff) {
				hits = append(hits, due{res.ID, res.EndTime})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].at.Before(hits[j].at) })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.id)
	}

	return out, nil
}

func page[T any](in []T, limit, offset int) []T {
	offset = max(offset, 0)
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}
