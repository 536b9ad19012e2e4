package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type InventoryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *InventoryRepo) With(db DB) *InventoryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *InventoryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Reserve takes one spot from a location.
//
// The decrement is a single conditional UPDATE, so two callers racing for the
// last spot cannot both succeed under any isolation level.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - locationID: parking location to reserve from.
//
// Returns:
//   - domain.Hold: the hold token when successful.
//   - error: repository.ErrNoCapacity if no spot is left or the location is closed.
//   - error: repository.ErrNotFound if the location does not exist.
func (r *InventoryRepo) Reserve(ctx context.Context, locationID int64) (domain.Hold, error) {
	const op = "postgres.InventoryRepo.Reserve"

	if r.db != nil {
		h, err := r.reserveCore(ctx, r.db, locationID)
		if err != nil {
			return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
		}
		return h, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.Hold{}, wrapDBErr(op, err)
	}

	defer tx.Rollback(ctx)

	h, err := r.reserveCore(ctx, tx, locationID)
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Hold{}, wrapDBErr(op, err)
	}

	return h, nil
}

// Release returns a hold's spot to its location.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - holdID: the hold to release.
//
// Returns:
//   - domain.Hold: the hold as stored.
//   - bool: false when the hold had already been released.
//   - error: repository.ErrNotFound if the hold does not exist.
func (r *InventoryRepo) Release(ctx context.Context, holdID uuid.UUID) (domain.Hold, bool, error) {
	const op = "postgres.InventoryRepo.Release"

	if r.db != nil {
		h, released, err := r.releaseCore(ctx, r.db, holdID)
		if err != nil {
			return domain.Hold{}, false, fmt.Errorf("%s:%w", op, err)
		}
		return h, released, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.Hold{}, false, wrapDBErr(op, err)
	}

	defer tx.Rollback(ctx)

	h, released, err := r.releaseCore(ctx, tx, holdID)
	if err != nil {
		return domain.Hold{}, false, fmt.Errorf("%s:%w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Hold{}, false, wrapDBErr(op, err)
	}

	return h, released, nil
}

// Peek reads the counters. The result is advisory.
func (r *InventoryRepo) Peek(ctx context.Context, locationID int64) (domain.Availability, error) {
	const op = "postgres.InventoryRepo.Peek"

	av := domain.Availability{LocationID: locationID}
	err := r.handle().QueryRow(ctx,
		`SELECT available_spots, total_spots FROM parkings WHERE id = $1`,
		locationID,
	).Scan(&av.Available, &av.Total)
	if err != nil {
		return domain.Availability{}, wrapDBErr(op, err)
	}

	return av, nil
}

func (r *InventoryRepo) reserveCore(ctx context.Context, db DB, locationID int64) (domain.Hold, error) {
	tag, err := db.Exec(ctx,
		`UPDATE parkings
		    SET available_spots = available_spots - 1, updated_at = now()
		  WHERE id = $1
		    AND is_active AND is_open
		    AND available_spots > 0`,
		locationID,
	)
	if err != nil {
		return domain.Hold{}, translateDBErr(err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM parkings WHERE id = $1)`,
			locationID,
		).Scan(&exists); err != nil {
			return domain.Hold{}, translateDBErr(err)
		}

		if !exists {
			return domain.Hold{}, repository.ErrNotFound
		}

		return domain.Hold{}, repository.ErrNoCapacity
	}

	h := domain.Hold{ID: uuid.New(), LocationID: locationID}
	if err := db.QueryRow(ctx,
		`INSERT INTO inventory_holds (id, parking_id)
		 VALUES ($1, $2)
		 RETURNING created_at`,
		h.ID, locationID,
	).Scan(&h.CreatedAt); err != nil {
		return domain.Hold{}, translateDBErr(err)
	}

	return h, nil
}

func (r *InventoryRepo) releaseCore(ctx context.Context, db DB, holdID uuid.UUID) (domain.Hold, bool, error) {
	h := domain.Hold{ID: holdID}

	err := db.QueryRow(ctx,
		`UPDATE inventory_holds
		    SET released_at = now()
		  WHERE id = $1 AND released_at IS NULL
		  RETURNING parking_id, created_at, released_at`,
		holdID,
	).Scan(&h.LocationID, &h.CreatedAt, &h.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already released or unknown.
		err = db.QueryRow(ctx,
			`SELECT parking_id, created_at, released_at FROM inventory_holds WHERE id = $1`,
			holdID,
		).Scan(&h.LocationID, &h.CreatedAt, &h.ReleasedAt)
		if err != nil {
			return domain.Hold{}, false, translateDBErr(err)
		}
		return h, false, nil
	}
	if err != nil {
		return domain.Hold{}, false, translateDBErr(err)
	}

	if _, err := db.Exec(ctx,
		`UPDATE parkings
		    SET available_spots = LEAST(available_spots + 1, total_spots), updated_at = now()
		  WHERE id = $1`,
		h.LocationID,
	); err != nil {
		return domain.Hold{}, false, translateDBErr(err)
	}

	return h, true, nil
}
