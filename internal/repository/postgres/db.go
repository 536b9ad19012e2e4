package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/parkgo/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

var _ repository.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		opts: pgx.TxOptions{
			IsoLevel:   pgx.Serializable,
			AccessMode: pgx.ReadWrite,
		},
	}
}

// RunTx runs fn in a serializable transaction. Serialization failures and
// deadlocks surface as repository.ErrTransient so callers can retry.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Queries) error,
) error {
	const op = "postgres.Store.RunTx"

	tx, err := s.pool.BeginTx(ctx, s.opts)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, &queries{pool: s.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit:%w", op, translateDBErr(err))
	}

	return nil
}

func (s *Store) auto() *queries { return &queries{pool: s.pool} }

func (s *Store) Inventory() repository.InventoryRepo      { return s.auto().Inventory() }
func (s *Store) Reservations() repository.ReservationRepo { return s.auto().Reservations() }
func (s *Store) Payments() repository.PaymentRepo         { return s.auto().Payments() }
func (s *Store) Outbox() repository.OutboxRepo            { return s.auto().Outbox() }
func (s *Store) Locations() repository.LocationRepo       { return s.auto().Locations() }
func (s *Store) Users() repository.UserRepo               { return s.auto().Users() }
func (s *Store) Reviews() repository.ReviewRepo           { return s.auto().Reviews() }

// queries hands out repositories bound to a transaction when db is set.
type queries struct {
	pool *pgxpool.Pool
	db   DB
}

func (q *queries) Inventory() repository.InventoryRepo {
	return (&InventoryRepo{pool: q.pool}).With(q.db)
}

func (q *queries) Reservations() repository.ReservationRepo {
	return (&ReservationRepo{pool: q.pool}).With(q.db)
}

func (q *queries) Payments() repository.PaymentRepo {
	return (&PaymentRepo{pool: q.pool}).With(q.db)
}

func (q *queries) Outbox() repository.OutboxRepo {
	return (&OutboxRepo{pool: q.pool}).With(q.db)
}

func (q *queries) Locations() repository.LocationRepo {
	return (&LocationRepo{pool: q.pool}).With(q.db)
}

func (q *queries) Users() repository.UserRepo {
	return (&UserRepo{pool: q.pool}).With(q.db)
}

func (q *queries) Reviews() repository.ReviewRepo {
	return (&ReviewRepo{pool: q.pool}).With(q.db)
}
