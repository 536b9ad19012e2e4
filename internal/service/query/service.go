// Package query is the read side: location lookups, search and advisory
// availability. Everything it returns may be a few seconds stale.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
	redisrepo "github.com/kirinyoku/parkgo/internal/repository/redis"
)

type Config struct {
	LocationTTL     time.Duration
	AvailabilityTTL time.Duration
	SearchTTL       time.Duration
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store repository.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.LocationTTL <= 0 {
		cfg.LocationTTL = 60 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 5 * time.Second
	}

	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = 10 * time.Second
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// Location retrieves a parking location by its ID.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the location.
//
// Returns:
//   - *domain.Location: the location.
//   - error: query.ErrLocationNotFound if the location is not found.
func (s *Service) Location(ctx context.Context, id int64) (*domain.Location, error) {
	const op = "service.query.Location"

	loc, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyLocation(id),
		s.cfg.LocationTTL,
		func(ctx context.Context) (domain.Location, error) {
			l, err := s.store.Locations().Get(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Location{}, ErrLocationNotFound
				}

				return domain.Location{}, err
			}

			return *l, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &loc, nil
}

// Availability returns the advisory spot counters of a location.
func (s *Service) Availability(ctx context.Context, id int64) (*domain.Availability, error) {
	const op = "service.query.Availability"

	a, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyLocationAvailability(id),
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.Availability, error) {
			a, err := s.store.Inventory().Peek(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Availability{}, ErrLocationNotFound
				}

				return domain.Availability{}, err
			}

			return a, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &a, nil
}

// Nearby lists active locations within radiusKm of a point, closest first.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]domain.LocationHit, error) {
	const op = "service.query.Nearby"

	if !domain.ValidCoordinates(lat, lng) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCoordinates)
	}

	hits, err := s.Search(ctx, domain.SearchFilter{
		Geo:   &domain.GeoPoint{Lat: lat, Lng: lng, RadiusKm: radiusKm},
		Sort:  domain.SortDistance,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return hits, nil
}

// Search lists active locations matching f. Results are ordered by distance
// when a point is given and by rating otherwise, unless f.Sort says so.
func (s *Service) Search(ctx context.Context, f domain.SearchFilter) ([]domain.LocationHit, error) {
	const op = "service.query.Search"

	f.Normalize()

	if f.Geo != nil && !domain.ValidCoordinates(f.Geo.Lat, f.Geo.Lng) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCoordinates)
	}

	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidFilter)
	}

	if f.MinPriceCents != nil && f.MaxPriceCents != nil && *f.MinPriceCents > *f.MaxPriceCents {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidFilter)
	}

	hits, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeySearch(digest(f)),
		s.cfg.SearchTTL,
		func(ctx context.Context) ([]domain.LocationHit, error) {
			return s.store.Locations().Search(ctx, f)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return hits, nil
}

func digest(f domain.SearchFilter) string {
	b, _ := json.Marshal(f)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:12])
}
