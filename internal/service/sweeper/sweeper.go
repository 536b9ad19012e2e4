// Package sweeper advances reservations that time has moved on: unpaid
// pending ones expire, confirmed ones start, and finished ones complete.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
	"github.com/kirinyoku/parkgo/internal/service/reservation"
)

// Locker keeps several instances from sweeping at the same time. It is an
// optimisation only: every item is guarded by its own transition.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

type Config struct {
	// GracePeriod is how long a pending reservation may wait for payment.
	GracePeriod time.Duration
	// Batch bounds the items handled per category and run.
	Batch int
	Now   func() time.Time
}

type Report struct {
	Expired   int
	Completed int
	Activated int
	Failed    int
	Skipped   bool
}

type Sweeper struct {
	store        repository.Store
	reservations *reservation.Service
	lock         Locker
	cfg          Config
	log          *slog.Logger
}

func New(
	store repository.Store,
	reservations *reservation.Service,
	lock Locker,
	log *slog.Logger,
	cfg Config,
) *Sweeper {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Minute
	}

	if cfg.Batch <= 0 {
		cfg.Batch = 200
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Sweeper{
		store:        store,
		reservations: reservations,
		lock:         lock,
		cfg:          cfg,
		log:          log.With("component", "sweeper"),
	}
}

// Run is a worker.Job.
func (s *Sweeper) Run(ctx context.Context) error {
	rep, err := s.SweepOnce(ctx)
	if err != nil {
		return err
	}

	if rep.Expired+rep.Completed+rep.Activated+rep.Failed > 0 {
		s.log.InfoContext(ctx, "sweep",
			"expired", rep.Expired,
			"completed", rep.Completed,
			"activated", rep.Activated,
			"failed", rep.Failed,
		)
	}

	return nil
}

// SweepOnce handles at most Batch reservations per category. Ended
// reservations are completed before started ones are activated, so a
// reservation whose whole window passed is never activated on the way.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	const op = "service.sweeper.SweepOnce"

	var rep Report

	if s.lock != nil {
		unlock, ok, err := s.lock.TryLock(ctx)
		switch {
		case err != nil:
			s.log.WarnContext(ctx, "sweeper lock unavailable, sweeping anyway", "err", err)
		case !ok:
			rep.Skipped = true
			return rep, nil
		default:
			defer unlock()
		}
	}

	now := s.cfg.Now()

	passes := []struct {
		kind    repository.DueKind
		cutoff  time.Time
		apply   func(context.Context, uuid.UUID) (*domain.Reservation, bool, error)
		counter *int
	}{
		{repository.DuePending, now.Add(-s.cfg.GracePeriod), s.reservations.Expire, &rep.Expired},
		{repository.DueEnd, now, s.reservations.Complete, &rep.Completed},
		{repository.DueStart, now, s.reservations.Activate, &rep.Activated},
	}

	for _, p := range passes {
		ids, err := s.store.Reservations().ListDue(ctx, p.kind, p.cutoff, s.cfg.Batch)
		if err != nil {
			return rep, fmt.Errorf("%s:%w", op, err)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return rep, err
			}

			_, moved, err := p.apply(ctx, id)
			switch {
			case err == nil && moved:
				*p.counter++
			case err == nil:
				// Already there, moved by a concurrent sweep.
			case errors.Is(err, reservation.ErrInvalidTransition),
				errors.Is(err, reservation.ErrAlreadyTerminal):
				// Moved by someone else since it was listed.
			default:
				rep.Failed++
				s.log.ErrorContext(ctx, "sweep item failed", "reservation_id", id, "err", err)
			}
		}
	}

	return rep, nil
}
