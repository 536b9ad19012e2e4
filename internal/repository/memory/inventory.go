package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type inventoryRepo struct{ q *queries }

func (r *inventoryRepo) Reserve(ctx context.Context, locationID int64) (domain.Hold, error) {
	const op = "memory.InventoryRepo.Reserve"

	st, done := r.q.begin()
	defer done()

	loc, ok := st.locations[locationID]
	if !ok {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if !loc.Bookable() || loc.AvailableSpots <= 0 {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, repository.ErrNoCapacity)
	}

	now := r.q.s.now()
	loc.AvailableSpots--
	loc.UpdatedAt = now
	st.locations[locationID] = loc

	h := domain.Hold{ID: uuid.New(), LocationID: locationID, CreatedAt: now}
	st.holds[h.ID] = h

	return h, nil
}

func (r *inventoryRepo) Release(ctx context.Context, holdID uuid.UUID) (domain.Hold, bool, error) {
	const op = "memory.InventoryRepo.Release"

	st, done := r.q.begin()
	defer done()

	h, ok := st.holds[holdID]
	if !ok {
		return domain.Hold{}, false, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if h.Released() {
		return h, false, nil
	}

	now := r.q.s.now()
	h.ReleasedAt = &now
	st.holds[holdID] = h

	if loc, ok := st.locations[h.LocationID]; ok {
		loc.AvailableSpots = min(loc.AvailableSpots+1, loc.TotalSpots)
		loc.UpdatedAt = now
		st.locations[h.LocationID] = loc
	}

	return h, true, nil
}

func (r *inventoryRepo) Peek(ctx context.Context, locationID int64) (domain.Availability, error) {
	const op = "memory.InventoryRepo.Peek"

	st, done := r.q.begin()
	defer done()

	loc, ok := st.locations[locationID]
	if !ok {
		return domain.Availability{}, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return domain.Availability{
		LocationID: loc.ID,
		Available:  loc.AvailableSpots,
		Total:      loc.TotalSpots,
	}, nil
}
