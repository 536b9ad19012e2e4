package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

const reservationColumns = `id, user_id, parking_id, hold_id, start_time, end_time,
	amount_cents, currency, status, payment_status, payment_method,
	payment_intent_id, cancel_reason, created_at, updated_at`

type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID, &res.UserID, &res.LocationID, &res.HoldID,
		&res.StartTime, &res.EndTime,
		&res.AmountCents, &res.Currency, &res.Status, &res.PaymentStatus,
		&res.PaymentMethod, &res.PaymentIntentID, &res.CancelReason,
		&res.CreatedAt, &res.UpdatedAt,
	)
	return res, err
}

// Create inserts a reservation. A zero ID is generated.
//
// Returns:
//   - error: repository.ErrConflict if the hold already backs another reservation.
func (r *ReservationRepo) Create(ctx context.Context, res *domain.Reservation) error {
	const op = "postgres.ReservationRepo.Create"

	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}

	err := r.handle().QueryRow(ctx,
		`INSERT INTO reservations
		   (id, user_id, parking_id, hold_id, start_time, end_time, amount_cents,
		    currency, status, payment_status, payment_method, payment_intent_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		res.ID, res.UserID, res.LocationID, res.HoldID, res.StartTime, res.EndTime,
		res.AmountCents, res.Currency, res.Status, res.PaymentStatus,
		res.PaymentMethod, res.PaymentIntentID,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *ReservationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Get"

	res, err := scanReservation(r.handle().QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &res, nil
}

func (r *ReservationRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ListByUser"

	rows, err := r.handle().Query(ctx,
		`SELECT `+reservationColumns+`
		   FROM reservations
		  WHERE user_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collect(rows, scanReservation)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Transition changes the status only if it still matches one of t.From.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: reservation to move.
//   - t: guarded transition; an empty PaymentStatus or Reason keeps the stored value.
//
// Returns:
//   - *domain.Reservation: the reservation after the update.
//   - error: repository.ErrStaleState if the status changed underneath.
//   - error: repository.ErrNotFound if the reservation does not exist.
func (r *ReservationRepo) Transition(ctx context.Context, id uuid.UUID, t domain.Transition) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Transition"

	res, err := scanReservation(r.handle().QueryRow(ctx,
		`UPDATE reservations
		    SET status = $3,
		        payment_status = COALESCE(NULLIF($4, ''), payment_status),
		        cancel_reason = COALESCE(NULLIF($5, ''), cancel_reason),
		        updated_at = $6
		  WHERE id = $1 AND status = ANY($2)
		  RETURNING `+reservationColumns,
		id, statusStrings(t.From), t.To, string(t.PaymentStatus), t.Reason, t.At,
	))
	if err != nil {
		return nil, r.staleOrMissing(ctx, op, id, err)
	}

	return &res, nil
}

func (r *ReservationRepo) Extend(
	ctx context.Context,
	id uuid.UUID,
	from []domain.Status,
	newEnd, at time.Time,
) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Extend"

	res, err := scanReservation(r.handle().QueryRow(ctx,
		`UPDATE reservations
		    SET end_time = $3, updated_at = $4
		  WHERE id = $1 AND status = ANY($2)
		  RETURNING `+reservationColumns,
		id, statusStrings(from), newEnd, at,
	))
	if err != nil {
		return nil, r.staleOrMissing(ctx, op, id, err)
	}

	return &res, nil
}

func (r *ReservationRepo) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) error {
	const op = "postgres.ReservationRepo.SetPaymentIntent"

	return r.exec(ctx, op,
		`UPDATE reservations SET payment_intent_id = $2, updated_at = $3 WHERE id = $1`,
		id, intentID, at,
	)
}

func (r *ReservationRepo) SetPaymentStatus(ctx context.Context, id uuid.UUID, ps domain.PaymentStatus, at time.Time) error {
	const op = "postgres.ReservationRepo.SetPaymentStatus"

	return r.exec(ctx, op,
		`UPDATE reservations SET payment_status = $2, updated_at = $3 WHERE id = $1`,
		id, ps, at,
	)
}

// ListDue returns ids of reservations the sweeper has to move, oldest first.
func (r *ReservationRepo) ListDue(
	ctx context.Context,
	kind repository.DueKind,
	cutoff time.Time,
	limit int,
) ([]uuid.UUID, error) {
	const op = "postgres.ReservationRepo.ListDue"

	var q string
	switch kind {
	case repository.DuePending:
		q = `SELECT id FROM reservations
		      WHERE status = 'pending' AND created_at <= $1
		      ORDER BY created_at LIMIT $2`
	case repository.DueStart:
		q = `SELECT id FROM reservations
		      WHERE status = 'confirmed' AND start_time <= $1
		      ORDER BY start_time LIMIT $2`
	case repository.DueEnd:
		q = `SELECT id FROM reservations
		      WHERE status IN ('confirmed', 'active') AND end_time <= $1
		      ORDER BY end_time LIMIT $2`
	default:
		return nil, fmt.Errorf("%s: unknown kind %d", op, kind)
	}

	rows, err := r.handle().Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	ids, err := collect(rows, func(row pgx.Row) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

func (r *ReservationRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.handle().Exec(ctx, sql, args...)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// staleOrMissing tells a lost guard apart from an unknown id.
func (r *ReservationRepo) staleOrMissing(ctx context.Context, op string, id uuid.UUID, err error) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return wrapDBErr(op, err)
	}

	var exists bool
	if err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`,
		id,
	).Scan(&exists); err != nil {
		return wrapDBErr(op, err)
	}

	if exists {
		return fmt.Errorf("%s:%w", op, repository.ErrStaleState)
	}

	return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}
