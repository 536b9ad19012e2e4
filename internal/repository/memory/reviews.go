package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type reviewRepo struct{ q *queries }

func (r *reviewRepo) Add(ctx context.Context, rv *domain.Review) error {
	const op = "memory.ReviewRepo.Add"

	st, done := r.q.begin()
	defer done()

	for _, cur := range st.reviews {
		if cur.UserID == rv.UserID && cur.LocationID == rv.LocationID {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	st.nextReview++
	rv.ID = st.nextReview
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = r.q.s.now()
	}

	st.reviews = append(st.reviews, *rv)

	return nil
}

func (r *reviewRepo) ListByLocation(ctx context.Context, locationID int64, limit, offset int) ([]domain.Review, int, error) {
	st, done := r.q.begin()
	defer done()

	var out []domain.Review
	for _, rv := range st.reviews {
		if rv.LocationID != locationID {
			continue
		}
		if c, ok := st.users[rv.UserID]; ok {
			rv.AuthorName = c.FullName()
		}
		out = append(out, rv)
	}

	slices.SortStableFunc(out, func(a, b domain.Review) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})

	return page(out, limit, offset), len(out), nil
}

func (r *reviewRepo) RefreshRating(ctx context.Context, locationID int64, at time.Time) (float64, int, error) {
	const op = "memory.ReviewRepo.RefreshRating"

	st, done := r.q.begin()
	defer done()

	loc, ok := st.locations[locationID]
	if !ok {
		return 0, 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	var sum, n int
	for _, rv := range st.reviews {
		if rv.LocationID == locationID {
			sum += rv.Rating
			n++
		}
	}

	loc.Rating, loc.TotalRatings = 0, n
	if n > 0 {
		// Two decimals, like the NUMERIC(3, 2) column.
		loc.Rating = math.Round(float64(sum)/float64(n)*100) / 100
	}
	loc.UpdatedAt = at
	st.locations[locationID] = loc

	return loc.Rating, loc.TotalRatings, nil
}
