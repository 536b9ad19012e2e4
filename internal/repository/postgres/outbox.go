package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type OutboxRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OutboxRepo) With(db DB) *OutboxRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OutboxRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *OutboxRepo) Append(ctx context.Context, ev domain.OutboxEvent) error {
	const op = "postgres.OutboxRepo.Append"

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	_, err := r.handle().Exec(ctx,
		`INSERT INTO outbox (id, type, aggregate_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, now()))`,
		ev.ID, ev.Type, ev.AggregateID, []byte(ev.Payload), nullTime(ev.CreatedAt),
	)

	return wrapDBErr(op, err)
}

// ClaimPending leases a batch. Rows locked by a concurrent claimer are
// skipped rather than waited on.
func (r *OutboxRepo) ClaimPending(
	ctx context.Context,
	limit int,
	now time.Time,
	lease time.Duration,
) ([]domain.OutboxEvent, error) {
	const op = "postgres.OutboxRepo.ClaimPending"

	rows, err := r.handle().Query(ctx,
		`UPDATE outbox o
		    SET locked_until = $2
		   FROM (SELECT id FROM outbox
		          WHERE dispatched_at IS NULL
		            AND parked_at IS NULL
		            AND (locked_until IS NULL OR locked_until <= $1)
		          ORDER BY created_at
		          LIMIT $3
		          FOR UPDATE SKIP LOCKED) due
		  WHERE o.id = due.id
		  RETURNING o.id, o.type, o.aggregate_id, o.payload, o.created_at, o.locked_until, o.attempts`,
		now, now.Add(lease), limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collect(rows, func(row pgx.Row) (domain.OutboxEvent, error) {
		var ev domain.OutboxEvent
		var payload []byte
		err := row.Scan(&ev.ID, &ev.Type, &ev.AggregateID, &payload,
			&ev.CreatedAt, &ev.LockedUntil, &ev.Attempts)
		ev.Payload = payload
		return ev, err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	// UPDATE ... RETURNING does not keep the subquery order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (r *OutboxRepo) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	const op = "postgres.OutboxRepo.MarkDispatched"

	return r.exec(ctx, op,
		`UPDATE outbox SET dispatched_at = $2, locked_until = NULL WHERE id = $1`,
		id, at,
	)
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.OutboxRepo.MarkFailed"

	return r.exec(ctx, op,
		`UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`,
		id,
	)
}

func (r *OutboxRepo) Park(ctx context.Context, id uuid.UUID, at time.Time) error {
	const op = "postgres.OutboxRepo.Park"

	return r.exec(ctx, op,
		`UPDATE outbox SET attempts = attempts + 1, parked_at = $2, locked_until = NULL WHERE id = $1`,
		id, at,
	)
}

func (r *OutboxRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.handle().Exec(ctx, sql, args...)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
