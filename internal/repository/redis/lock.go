package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived cluster-wide mutexes.
type Locker struct {
	rs *redsync.Redsync
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rs: redsync.New(goredis.NewPool(rdb))}
}

// Mutex is one named lock with a fixed expiry.
type Mutex struct {
	m *redsync.Mutex
}

func (l *Locker) Mutex(name string, expiry time.Duration) *Mutex {
	return &Mutex{m: l.rs.NewMutex(name,
		redsync.WithExpiry(expiry),
		redsync.WithTries(1),
	)}
}

// TryLock makes a single attempt. ok is false when another holder has it.
func (m *Mutex) TryLock(ctx context.Context) (unlock func(), ok bool, err error) {
	const op = "redis.Mutex.TryLock"

	if err := m.m.TryLockContext(ctx); err != nil {
		var (
			taken    *redsync.ErrTaken
			takenVal redsync.ErrTaken
		)
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || errors.As(err, &takenVal) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	return func() {
		// Detached so shutdown does not leave the lock behind until expiry.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_, _ = m.m.UnlockContext(ctx)
	}, true, nil
}
