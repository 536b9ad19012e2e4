package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const idemNS = "parkgo:v1:idem"

// KeyIdemBooking scopes an Idempotency-Key to the user who sent it.
func KeyIdemBooking(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:bookings:%d:%s", idemNS, userID, idemKey)
}

// Stored values are "L:<fingerprint>" while the first request runs and
// "R:<fingerprint>:<response>" once it has answered.
const (
	idemLocked = "L:"
	idemDone   = "R:"
)

// Claims the key for a new request or returns what is already there.
const luaIdemClaim = `
local cur = redis.call('GET', KEYS[1])
if cur then return cur end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return false
`

// Drops the key only while it still holds our lock.
const luaIdemAbort = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

type IdemState int

const (
	// IdemClaimed means the caller owns the key and must Complete or Abort.
	IdemClaimed IdemState = iota
	// IdemInFlight means another request with this key has not answered yet.
	IdemInFlight
	// IdemDone means Response holds the answer to an earlier request.
	IdemDone
)

type IdemEntry struct {
	State       IdemState
	Fingerprint string
	Response    string
}

// IdempotencyStore remembers the response to a request key together with a
// fingerprint of the request that produced it.
type IdempotencyStore struct {
	rdb   *redis.Client
	ttl   time.Duration
	claim *redis.Script
	abort *redis.Script
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		rdb:   rdb,
		ttl:   ttl,
		claim: redis.NewScript(luaIdemClaim),
		abort: redis.NewScript(luaIdemAbort),
	}
}

// Claim takes key for a request with the given fingerprint, holding it for
// at most lockTTL, or reports the state an earlier request left behind.
func (s *IdempotencyStore) Claim(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (IdemEntry, error) {
	const op = "redis.IdempotencyStore.Claim"

	cur, err := s.claim.Run(ctx, s.rdb, []string{key}, idemLocked+fingerprint, lockTTL.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return IdemEntry{State: IdemClaimed, Fingerprint: fingerprint}, nil
	}
	if err != nil {
		return IdemEntry{}, fmt.Errorf("%s:%w", op, err)
	}

	return parseIdem(cur), nil
}

func parseIdem(v string) IdemEntry {
	if rest, ok := strings.CutPrefix(v, idemDone); ok {
		fp, resp, _ := strings.Cut(rest, ":")
		return IdemEntry{State: IdemDone, Fingerprint: fp, Response: resp}
	}

	return IdemEntry{State: IdemInFlight, Fingerprint: strings.TrimPrefix(v, idemLocked)}
}

// Complete stores the response for the idempotency window.
func (s *IdempotencyStore) Complete(ctx context.Context, key, fingerprint, response string) error {
	return s.rdb.Set(ctx, key, idemDone+fingerprint+":"+response, s.ttl).Err()
}

// Abort frees a claimed key so the request can be retried. A key whose lock
// expired and was claimed again is left alone.
func (s *IdempotencyStore) Abort(ctx context.Context, key, fingerprint string) error {
	return s.abort.Run(ctx, s.rdb, []string{key}, idemLocked+fingerprint).Err()
}
