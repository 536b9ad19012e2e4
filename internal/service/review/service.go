// Package review lets users rate locations and keeps each location's
// average rating in step with its reviews.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
	redisrepo "github.com/kirinyoku/parkgo/internal/repository/redis"
	"github.com/kirinyoku/parkgo/internal/uow"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

type Config struct {
	Now func() time.Time
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	uow   *uow.UoW
	log   *slog.Logger
	now   func() time.Time
}

// New builds the service. cache may be nil.
func New(store repository.Store, cache *redisrepo.Cache, log *slog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store: store,
		cache: cache,
		uow:   uow.New(store, uow.Config{}),
		log:   log.With("component", "review"),
		now:   cfg.Now,
	}
}

type AddRequest struct {
	UserID     int64
	LocationID int64
	Rating     int
	Comment    string
}

// Add stores the user's review of an active location and recomputes the
// location's rating in the same transaction.
//
// Returns:
//   - *domain.Review: the stored review.
//   - error: ErrInvalidRating or ErrCommentTooLong for bad input,
//     ErrLocationNotFound for a missing or inactive location,
//     ErrAlreadyReviewed when the user reviewed it before.
func (s *Service) Add(ctx context.Context, req AddRequest) (*domain.Review, error) {
	const op = "service.review.Add"

	if req.Rating < domain.MinRating || req.Rating > domain.MaxRating {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidRating)
	}

	comment := strings.TrimSpace(req.Comment)
	if utf8.RuneCountInString(comment) > domain.MaxReviewComment {
		return nil, fmt.Errorf("%s:%w", op, ErrCommentTooLong)
	}

	now := s.now()
	rv := &domain.Review{
		UserID:     req.UserID,
		LocationID: req.LocationID,
		Rating:     req.Rating,
		Comment:    comment,
		CreatedAt:  now,
	}

	var (
		rating float64
		count  int
	)

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		after func(uow.AfterCommit),
	) error {
		loc, err := tx.Locations().Get(ctx, req.LocationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrLocationNotFound
			}
			return err
		}

		if !loc.IsActive {
			return ErrLocationNotFound
		}

		if err := tx.Reviews().Add(ctx, rv); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyReviewed
			}
			return err
		}

		rating, count, err = tx.Reviews().RefreshRating(ctx, req.LocationID, now)
		if err != nil {
			return err
		}

		after(func(ctx context.Context) {
			if err := s.cache.InvalidateLocation(ctx, req.LocationID); err != nil {
				s.log.WarnContext(ctx, "cache invalidation failed",
					"parking_id", req.LocationID, "err", err)
			}
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.log.InfoContext(ctx, "review added",
		"parking_id", req.LocationID, "rating", req.Rating, "average", rating, "count", count)

	return rv, nil
}

// Page is one page of a location's reviews.
type Page struct {
	Reviews []domain.Review
	Page    int
	Limit   int
	Total   int
}

// Pages is the number of pages at the current page size.
func (p Page) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// List returns a page of the location's reviews, newest first. page starts
// at 1; limit is clamped to [1, MaxPageSize].
func (s *Service) List(ctx context.Context, locationID int64, page, limit int) (Page, error) {
	const op = "service.review.List"

	page = max(page, 1)
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	if _, err := s.store.Locations().Get(ctx, locationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Page{}, fmt.Errorf("%s:%w", op, ErrLocationNotFound)
		}
		return Page{}, fmt.Errorf("%s:%w", op, err)
	}

	reviews, total, err := s.store.Reviews().ListByLocation(ctx, locationID, limit, (page-1)*limit)
	if err != nil {
		return Page{}, fmt.Errorf("%s:%w", op, err)
	}

	if reviews == nil {
		reviews = []domain.Review{}
	}

	return Page{Reviews: reviews, Page: page, Limit: limit, Total: total}, nil
}
