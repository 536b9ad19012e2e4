package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/parkgo/internal/domain"
)

const locationColumns = `id, COALESCE(owner_id, 0), name, description, address, latitude, longitude,
	parking_type, amenities, total_spots, available_spots, hourly_rate_cents,
	daily_rate_cents, currency, rating::float8, total_ratings, is_active, is_open,
	created_at, updated_at`

type LocationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *LocationRepo) With(db DB) *LocationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *LocationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func scanLocation(row pgx.Row, extra ...any) (domain.Location, error) {
	var l domain.Location
	dest := []any{
		&l.ID, &l.OwnerID, &l.Name, &l.Description, &l.Address, &l.Latitude, &l.Longitude,
		&l.Type, &l.Amenities, &l.TotalSpots, &l.AvailableSpots, &l.HourlyRateCents,
		&l.DailyRateCents, &l.Currency, &l.Rating, &l.TotalRatings, &l.IsActive, &l.IsOpen,
		&l.CreatedAt, &l.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return l, err
}

// Get retrieves a location by its ID.
//
// Returns:
//   - *domain.Location: the location when found.
//   - error: repository.ErrNotFound if the location is not found.
func (r *LocationRepo) Get(ctx context.Context, id int64) (*domain.Location, error) {
	const op = "postgres.LocationRepo.Get"

	l, err := scanLocation(r.handle().QueryRow(ctx,
		`SELECT `+locationColumns+` FROM parkings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &l, nil
}

// Search lists active locations matching f. f is expected to be normalized.
//
// Ordering is by distance when a point is given, otherwise by rating and
// number of ratings; SortPrice orders by hourly rate.
func (r *LocationRepo) Search(ctx context.Context, f domain.SearchFilter) ([]domain.LocationHit, error) {
	const op = "postgres.LocationRepo.Search"

	sql, args := buildSearch(f)

	rows, err := r.handle().Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	hits, err := collect(rows, func(row pgx.Row) (domain.LocationHit, error) {
		var dist *float64
		l, err := scanLocation(row, &dist)
		return domain.LocationHit{Location: l, DistanceKm: dist}, err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return hits, nil
}

func buildSearch(f domain.SearchFilter) (string, []any) {
	var (
		where = []string{"is_active"}
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	distance := "NULL::float8"
	if f.Geo != nil {
		lat, lng := arg(f.Geo.Lat), arg(f.Geo.Lng)
		distance = fmt.Sprintf(
			`(6371 * acos(LEAST(1, cos(radians(%[1]s)) * cos(radians(latitude)) *
			  cos(radians(longitude) - radians(%[2]s)) +
			  sin(radians(%[1]s)) * sin(radians(latitude)))))`,
			lat, lng,
		)
	}

	if f.Text != "" {
		p := arg("%" + f.Text + "%")
		where = append(where, fmt.Sprintf("(name ILIKE %[1]s OR description ILIKE %[1]s)", p))
	}

	if f.Type != "" {
		where = append(where, "parking_type = "+arg(string(f.Type)))
	}

	if f.MinPriceCents != nil {
		where = append(where, "hourly_rate_cents >= "+arg(*f.MinPriceCents))
	}

	if f.MaxPriceCents != nil {
		where = append(where, "hourly_rate_cents <= "+arg(*f.MaxPriceCents))
	}

	if len(f.Amenities) > 0 {
		where = append(where, "amenities @> "+arg(f.Amenities)+"::text[]")
	}

	if f.Geo != nil {
		where = append(where, distance+" <= "+arg(f.Geo.RadiusKm))
	}

	var order string
	switch {
	case f.Sort == domain.SortPrice:
		order = "hourly_rate_cents, rating DESC, total_ratings DESC, id"
	case f.Sort == domain.SortRating:
		order = "rating DESC, total_ratings DESC, id"
	case f.Geo != nil:
		order = "distance_km, rating DESC, id"
	default:
		order = "rating DESC, total_ratings DESC, id"
	}

	sql := `SELECT ` + locationColumns + `, ` + distance + ` AS distance_km
	          FROM parkings
	         WHERE ` + strings.Join(where, " AND ") + `
	         ORDER BY ` + order + `
	         LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	return sql, args
}

type UserRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *UserRepo) With(db DB) *UserRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *UserRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *UserRepo) Contact(ctx context.Context, userID int64) (*domain.Contact, error) {
	const op = "postgres.UserRepo.Contact"

	c := domain.Contact{UserID: userID}
	err := r.handle().QueryRow(ctx,
		`SELECT email, first_name, last_name, phone FROM users WHERE id = $1`,
		userID,
	).Scan(&c.Email, &c.FirstName, &c.LastName, &c.Phone)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &c, nil
}
