package uow

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/kirinyoku/parkgo/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

type Config struct {
	// MaxRetries bounds how many times a transaction failing with
	// repository.ErrTransient is re-run.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// UoW represents a unit of work.
type UoW struct {
	store repository.Store
	cfg   Config
}

func New(store repository.Store, cfg Config) *UoW {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 20 * time.Millisecond
	}

	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 500 * time.Millisecond
	}

	return &UoW{store: store, cfg: cfg}
}

// Do runs fn inside a transaction. Serialization failures are retried with
// exponential backoff; hooks registered by a failed attempt are discarded.
// After a successful commit, it executes all after-commit hooks.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Queries, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	attempt := func() error {
		hooks = hooks[:0]

		err := u.store.RunTx(ctx, func(ctx context.Context, tx repository.Queries) error {
			return fn(ctx, tx, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err != nil && !errors.Is(err, repository.ErrTransient) {
			return backoff.Permanent(err)
		}

		return err
	}

	if err := backoff.Retry(attempt, u.policy(ctx)); err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

func (u *UoW) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.cfg.InitialInterval
	b.MaxInterval = u.cfg.MaxInterval
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, u.cfg.MaxRetries), ctx)
}
