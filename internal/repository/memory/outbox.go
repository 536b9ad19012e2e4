package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type outboxRepo struct{ q *queries }

func (r *outboxRepo) Append(ctx context.Context, ev domain.OutboxEvent) error {
	st, done := r.q.begin()
	defer done()

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.q.s.now()
	}

	st.outbox = append(st.outbox, ev)

	return nil
}

func (r *outboxRepo) ClaimPending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]domain.OutboxEvent, error) {
	st, done := r.q.begin()
	defer done()

	until := now.Add(lease)

	var out []domain.OutboxEvent
	for i := range st.outbox {
		if limit > 0 && len(out) >= limit {
			break
		}

		ev := &st.outbox[i]
		if ev.DispatchedAt != nil || ev.ParkedAt != nil ||
			(ev.LockedUntil != nil && ev.LockedUntil.After(now)) {
			continue
		}

		ev.LockedUntil = &until
		out = append(out, *ev)
	}

	return out, nil
}

func (r *outboxRepo) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update("memory.OutboxRepo.MarkDispatched", id, func(ev *domain.OutboxEvent) {
		ev.DispatchedAt = &at
	})
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.update("memory.OutboxRepo.MarkFailed", id, func(ev *domain.OutboxEvent) {
		ev.Attempts++
	})
}

func (r *outboxRepo) Park(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update("memory.OutboxRepo.Park", id, func(ev *domain.OutboxEvent) {
		ev.Attempts++
		ev.ParkedAt = &at
		ev.LockedUntil = nil
	})
}

func (r *outboxRepo) update(op string, id uuid.UUID, fn func(ev *domain.OutboxEvent)) error {
	st, done := r.q.begin()
	defer done()

	for i := range st.outbox {
		if st.outbox[i].ID == id {
			fn(&st.outbox[i])
			return nil
		}
	}

	return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

// Events returns a copy of every outbox event, oldest first.
func (s *Store) Events() []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OutboxEvent, len(s.st.outbox))
	copy(out, s.st.outbox)

	return out
}
