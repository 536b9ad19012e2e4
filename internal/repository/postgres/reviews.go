package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/parkgo/internal/domain"
)

type ReviewRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReviewRepo) With(db DB) *ReviewRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReviewRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Add inserts a review. The (user_id, parking_id) unique key turns a second
// review of the same location into repository.ErrConflict.
func (r *ReviewRepo) Add(ctx context.Context, rv *domain.Review) error {
	const op = "postgres.ReviewRepo.Add"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO parking_reviews (user_id, parking_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		 RETURNING id, created_at`,
		rv.UserID, rv.LocationID, rv.Rating, rv.Comment, nullTime(rv.CreatedAt),
	).Scan(&rv.ID, &rv.CreatedAt)

	return wrapDBErr(op, err)
}

func (r *ReviewRepo) ListByLocation(ctx context.Context, locationID int64, limit, offset int) ([]domain.Review, int, error) {
	const op = "postgres.ReviewRepo.ListByLocation"

	var total int
	if err := r.handle().QueryRow(ctx,
		`SELECT COUNT(*) FROM parking_reviews WHERE parking_id = $1`,
		locationID,
	).Scan(&total); err != nil {
		return nil, 0, wrapDBErr(op, err)
	}

	rows, err := r.handle().Query(ctx,
		`SELECT rv.id, rv.user_id, rv.parking_id, rv.rating, rv.comment,
		        COALESCE(TRIM(u.first_name || ' ' || u.last_name), ''), rv.created_at
		   FROM parking_reviews rv
		   LEFT JOIN users u ON u.id = rv.user_id
		  WHERE rv.parking_id = $1
		  ORDER BY rv.created_at DESC, rv.id DESC
		  LIMIT $2 OFFSET $3`,
		locationID, limit, offset,
	)
	if err != nil {
		return nil, 0, wrapDBErr(op, err)
	}

	out, err := collect(rows, func(row pgx.Row) (domain.Review, error) {
		var rv domain.Review
		err := row.Scan(&rv.ID, &rv.UserID, &rv.LocationID, &rv.Rating, &rv.Comment,
			&rv.AuthorName, &rv.CreatedAt)
		return rv, err
	})
	if err != nil {
		return nil, 0, wrapDBErr(op, err)
	}

	return out, total, nil
}

func (r *ReviewRepo) RefreshRating(ctx context.Context, locationID int64, at time.Time) (float64, int, error) {
	const op = "postgres.ReviewRepo.RefreshRating"

	var (
		rating float64
		count  int
	)
	err := r.handle().QueryRow(ctx,
		`UPDATE parkings p
		    SET rating = agg.avg, total_ratings = agg.n, updated_at = $2
		   FROM (SELECT COALESCE(ROUND(AVG(rating), 2), 0) AS avg, COUNT(*) AS n
		           FROM parking_reviews WHERE parking_id = $1) agg
		  WHERE p.id = $1
		  RETURNING p.rating::float8, p.total_ratings`,
		locationID, at,
	).Scan(&rating, &count)
	if err != nil {
		return 0, 0, wrapDBErr(op, err)
	}

	return rating, count, nil
}
