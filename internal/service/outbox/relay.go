// Package outbox delivers domain events recorded with their transactions
// to the sinks that act on them. Delivery is at least once: an event whose
// sinks did not all accept it is offered to every sink again later.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

// Sink consumes outbox events. Handle must tolerate seeing an event twice.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev domain.OutboxEvent) error
}

type Config struct {
	Batch int
	// Lease is how long a claimed event is hidden from other relays.
	Lease time.Duration
	// MaxAttempts is how many failed deliveries an event gets before it is
	// parked. Defaults to 20.
	MaxAttempts int
	Now         func() time.Time
}

type Relay struct {
	store repository.Store
	sinks []Sink
	cfg   Config
	log   *slog.Logger
}

func NewRelay(store repository.Store, log *slog.Logger, cfg Config, sinks ...Sink) *Relay {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}

	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Relay{
		store: store,
		sinks: sinks,
		cfg:   cfg,
		log:   log.With("component", "outbox"),
	}
}

// Run is a worker.Job.
func (r *Relay) Run(ctx context.Context) error {
	_, err := r.DrainOnce(ctx)
	return err
}

// DrainOnce claims one batch and offers every event to every sink.
//
// Returns:
//   - int: events delivered to all sinks and marked dispatched.
//   - error: only store failures; sink failures are counted on the event.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	const op = "service.outbox.DrainOnce"

	events, err := r.store.Outbox().ClaimPending(ctx, r.cfg.Batch, r.cfg.Now(), r.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	var dispatched int

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}

		if err := r.deliver(ctx, ev); err != nil {
			if err := r.failed(ctx, ev, err); err != nil {
				return dispatched, fmt.Errorf("%s:%w", op, err)
			}

			continue
		}

		if err := r.store.Outbox().MarkDispatched(ctx, ev.ID, r.cfg.Now()); err != nil {
			return dispatched, fmt.Errorf("%s:%w", op, err)
		}

		dispatched++
	}

	return dispatched, nil
}

// failed counts the attempt, parking the event when it was the last one.
func (r *Relay) failed(ctx context.Context, ev domain.OutboxEvent, cause error) error {
	attempt := ev.Attempts + 1

	if attempt < r.cfg.MaxAttempts {
		r.log.WarnContext(ctx, "outbox delivery failed",
			"event_id", ev.ID, "type", ev.Type, "attempt", attempt, "err", cause)
		return r.store.Outbox().MarkFailed(ctx, ev.ID)
	}

	r.log.ErrorContext(ctx, "outbox event parked after repeated failures",
		"event_id", ev.ID, "type", ev.Type, "aggregate_id", ev.AggregateID, "attempts", attempt, "err", cause)

	return r.store.Outbox().Park(ctx, ev.ID, r.cfg.Now())
}

func (r *Relay) deliver(ctx context.Context, ev domain.OutboxEvent) error {
	var errs []error

	for _, s := range r.sinks {
		if err := s.Handle(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}

	return errors.Join(errs...)
}
