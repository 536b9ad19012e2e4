// Package inventory owns the available-spot counters of parking locations.
// Every change goes through a conditional update in the store; nothing here
// reads a counter and writes it back.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
	redisrepo "github.com/kirinyoku/parkgo/internal/repository/redis"
	"github.com/kirinyoku/parkgo/internal/uow"
)

// Publisher announces availability changes to other instances.
type Publisher interface {
	PublishLocationChanged(ctx context.Context, c redisrepo.LocationChange) error
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	pub   Publisher
	uow   *uow.UoW
	log   *slog.Logger
}

// New builds the ledger. cache and pub may be nil.
func New(
	store repository.Store,
	cache *redisrepo.Cache,
	pub Publisher,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store: store,
		cache: cache,
		pub:   pub,
		uow:   uow.New(store, uow.Config{}),
		log:   log.With("component", "inventory"),
	}
}

// Reserve takes one spot at a location in its own transaction.
//
// Returns:
//   - domain.Hold: the hold owning the spot.
//   - error: inventory.ErrNoCapacity if no spot is left or the location is closed.
//   - error: inventory.ErrLocationNotFound if the location does not exist.
func (s *Service) Reserve(ctx context.Context, locationID int64) (domain.Hold, error) {
	const op = "service.inventory.Reserve"

	var hold domain.Hold

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		after func(uow.AfterCommit),
	) error {
		h, err := s.ReserveTx(ctx, tx, after, locationID)
		hold = h
		return err
	})
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	return hold, nil
}

// ReserveTx is Reserve inside a caller's transaction.
func (s *Service) ReserveTx(
	ctx context.Context,
	tx repository.Queries,
	after func(uow.AfterCommit),
	locationID int64,
) (domain.Hold, error) {
	const op = "service.inventory.ReserveTx"

	hold, err := tx.Inventory().Reserve(ctx, locationID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNoCapacity):
			return domain.Hold{}, fmt.Errorf("%s:%w", op, ErrNoCapacity)
		case errors.Is(err, repository.ErrNotFound):
			return domain.Hold{}, fmt.Errorf("%s:%w", op, ErrLocationNotFound)
		}

		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	after(s.changed(locationID))

	return hold, nil
}

// Release returns a hold's spot. released is false when the hold had already
// been released, in which case nothing changes.
func (s *Service) Release(ctx context.Context, holdID uuid.UUID) (bool, error) {
	const op = "service.inventory.Release"

	var released bool

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		after func(uow.AfterCommit),
	) error {
		ok, err := s.ReleaseTx(ctx, tx, after, holdID)
		released = ok
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	return released, nil
}

// ReleaseTx is Release inside a caller's transaction.
func (s *Service) ReleaseTx(
	ctx context.Context,
	tx repository.Queries,
	after func(uow.AfterCommit),
	holdID uuid.UUID,
) (bool, error) {
	const op = "service.inventory.ReleaseTx"

	hold, released, err := tx.Inventory().Release(ctx, holdID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%s:%w", op, ErrHoldNotFound)
		}

		return false, fmt.Errorf("%s:%w", op, err)
	}

	if released {
		after(s.changed(hold.LocationID))
	}

	return released, nil
}

// Peek reads the current counters. The result is advisory.
func (s *Service) Peek(ctx context.Context, locationID int64) (domain.Availability, error) {
	const op = "service.inventory.Peek"

	a, err := s.store.Inventory().Peek(ctx, locationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Availability{}, fmt.Errorf("%s:%w", op, ErrLocationNotFound)
		}

		return domain.Availability{}, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

func (s *Service) changed(locationID int64) uow.AfterCommit {
	return func(ctx context.Context) {
		if err := s.cache.InvalidateLocation(ctx, locationID); err != nil {
			s.log.WarnContext(ctx, "cache invalidation failed",
				"parking_id", locationID, "err", err)
		}

		if s.pub == nil {
			return
		}

		a, err := s.store.Inventory().Peek(ctx, locationID)
		if err != nil {
			return
		}

		if err := s.pub.PublishLocationChanged(ctx, redisrepo.LocationChange{
			LocationID: a.LocationID,
			Available:  a.Available,
			Total:      a.Total,
		}); err != nil {
			s.log.WarnContext(ctx, "publish availability failed",
				"parking_id", locationID, "err", err)
		}
	}
}
