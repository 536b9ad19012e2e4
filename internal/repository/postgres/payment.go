package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/parkgo/internal/domain"
)

type PaymentRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *PaymentRepo) With(db DB) *PaymentRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PaymentRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *PaymentRepo) CreateIntent(ctx context.Context, in *domain.PaymentIntent) error {
	const op = "postgres.PaymentRepo.CreateIntent"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO payment_intents (external_id, reservation_id, amount_cents, currency, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		in.ExternalID, in.ReservationID, in.AmountCents, in.Currency, in.Status,
	).Scan(&in.CreatedAt, &in.UpdatedAt)

	return wrapDBErr(op, err)
}

func (r *PaymentRepo) GetIntent(ctx context.Context, externalID string) (*domain.PaymentIntent, error) {
	const op = "postgres.PaymentRepo.GetIntent"

	var in domain.PaymentIntent
	err := r.handle().QueryRow(ctx,
		`SELECT external_id, reservation_id, amount_cents, currency, status, created_at, updated_at
		   FROM payment_intents WHERE external_id = $1`,
		externalID,
	).Scan(&in.ExternalID, &in.ReservationID, &in.AmountCents, &in.Currency,
		&in.Status, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &in, nil
}

// UpdateIntentStatus moves an intent forward. It reports false when the
// current status may not move to the target, e.g. succeeded to failed.
func (r *PaymentRepo) UpdateIntentStatus(
	ctx context.Context,
	externalID string,
	to domain.IntentStatus,
	at time.Time,
) (bool, error) {
	const op = "postgres.PaymentRepo.UpdateIntentStatus"

	tag, err := r.handle().Exec(ctx,
		`UPDATE payment_intents
		    SET status = $2, updated_at = $3
		  WHERE external_id = $1 AND status = ANY($4)`,
		externalID, to, at, intentStatusStrings(domain.IntentSources(to)),
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

// RecordPayment inserts a payment keyed by its provider intent. On a repeat
// the stored record is loaded into p and created is false.
func (r *PaymentRepo) RecordPayment(ctx context.Context, p *domain.Payment) (bool, error) {
	const op = "postgres.PaymentRepo.RecordPayment"

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	tag, err := r.handle().Exec(ctx,
		`INSERT INTO payments
		   (id, reservation_id, payment_intent_id, amount_cents, currency, payment_method, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (payment_intent_id) DO NOTHING`,
		p.ID, p.ReservationID, p.IntentID, p.AmountCents, p.Currency, p.Method, p.Status,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	err = r.handle().QueryRow(ctx,
		`SELECT id, reservation_id, amount_cents, currency, payment_method, status, created_at, updated_at
		   FROM payments WHERE payment_intent_id = $1`,
		p.IntentID,
	).Scan(&p.ID, &p.ReservationID, &p.AmountCents, &p.Currency, &p.Method,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) MarkPaymentRefunded(ctx context.Context, intentID string, at time.Time) error {
	const op = "postgres.PaymentRepo.MarkPaymentRefunded"

	var id uuid.UUID
	err := r.handle().QueryRow(ctx,
		`UPDATE payments SET status = 'refunded', updated_at = $2
		  WHERE payment_intent_id = $1
		  RETURNING id`,
		intentID, at,
	).Scan(&id)

	return wrapDBErr(op, err)
}

// MarkEventApplied records a provider event id. fresh is false when the id
// was already recorded, in which case the event must not be applied again.
func (r *PaymentRepo) MarkEventApplied(ctx context.Context, ev domain.PaymentEvent) (bool, error) {
	const op = "postgres.PaymentRepo.MarkEventApplied"

	var reservationID *uuid.UUID
	if ev.ReservationID != uuid.Nil {
		reservationID = &ev.ReservationID
	}

	tag, err := r.handle().Exec(ctx,
		`INSERT INTO payment_events (event_id, intent_id, kind, reservation_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO NOTHING`,
		ev.ID, ev.IntentID, ev.Kind, reservationID,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Payment, error) {
	const op = "postgres.PaymentRepo.ListByUser"

	rows, err := r.handle().Query(ctx,
		`SELECT p.id, p.reservation_id, p.payment_intent_id, p.amount_cents, p.currency,
		        p.payment_method, p.status, p.created_at, p.updated_at
		   FROM payments p
		   JOIN reservations r ON r.id = p.reservation_id
		  WHERE r.user_id = $1
		  ORDER BY p.created_at DESC, p.payment_intent_id
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collect(rows, func(row pgx.Row) (domain.Payment, error) {
		var p domain.Payment
		err := row.Scan(&p.ID, &p.ReservationID, &p.IntentID, &p.AmountCents, &p.Currency,
			&p.Method, &p.Status, &p.CreatedAt, &p.UpdatedAt)
		return p, err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
