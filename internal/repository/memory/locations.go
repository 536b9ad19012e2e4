package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type locationRepo struct{ q *queries }

func (r *locationRepo) Get(ctx context.Context, id int64) (*domain.Location, error) {
	const op = "memory.LocationRepo.Get"

	st, done := r.q.begin()
	defer done()

	loc, ok := st.locations[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	loc.Amenities = slices.Clone(loc.Amenities)

	return &loc, nil
}

func (r *locationRepo) Search(ctx context.Context, f domain.SearchFilter) ([]domain.LocationHit, error) {
	st, done := r.q.begin()
	defer done()

	text := strings.ToLower(strings.TrimSpace(f.Text))

	var hits []domain.LocationHit
	for _, loc := range st.locations {
		if !loc.IsActive || !matches(loc, f, text) {
			continue
		}

		hit := domain.LocationHit{Location: loc}
		hit.Amenities = slices.Clone(loc.Amenities)

		if f.Geo != nil {
			d := domain.DistanceKm(f.Geo.Lat, f.Geo.Lng, loc.Latitude, loc.Longitude)
			if d > f.Geo.RadiusKm {
				continue
			}
			hit.DistanceKm = &d
		}

		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool { return less(hits[i], hits[j], f) })

	return page(hits, f.Limit, f.Offset), nil
}

func matches(loc domain.Location, f domain.SearchFilter, text string) bool {
	if text != "" &&
		!strings.Contains(strings.ToLower(loc.Name), text) &&
		!strings.Contains(strings.ToLower(loc.Description), text) {
		return false
	}

	if f.Type != "" && loc.Type != f.Type {
		return false
	}

	if f.MinPriceCents != nil && loc.HourlyRateCents < *f.MinPriceCents {
		return false
	}

	if f.MaxPriceCents != nil && loc.HourlyRateCents > *f.MaxPriceCents {
		return false
	}

	for _, a := range f.Amenities {
		if !slices.Contains(loc.Amenities, a) {
			return false
		}
	}

	return true
}

// less orders like the SQL backend: distance for geo queries, otherwise
// rating then number of ratings; price sorts by hourly rate. Ties by id.
func less(a, b domain.LocationHit, f domain.SearchFilter) bool {
	switch {
	case f.Sort == domain.SortPrice:
		if a.HourlyRateCents != b.HourlyRateCents {
			return a.HourlyRateCents < b.HourlyRateCents
		}
	case f.Sort == domain.SortRating:
	case f.Geo != nil:
		if *a.DistanceKm != *b.DistanceKm {
			return *a.DistanceKm < *b.DistanceKm
		}
	}

	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	if a.TotalRatings != b.TotalRatings {
		return a.TotalRatings > b.TotalRatings
	}

	return a.ID < b.ID
}

type userRepo struct{ q *queries }

func (r *userRepo) Contact(ctx context.Context, userID int64) (*domain.Contact, error) {
	const op = "memory.UserRepo.Contact"

	st, done := r.q.begin()
	defer done()

	c, ok := st.users[userID]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &c, nil
}
