package redisclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("professional lock not acquired")
)

// Locker serializes appointment mutations per professional. Mutations for
// different professionals never contend with each other.
type Locker interface {
	WithProfessionalLock(ctx context.Context, professionalID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisProfessionalLocker struct {
	client  *redis.Client
	ttl     time.Duration
	maxWait time.Duration
}

// NewRedisProfessionalLocker creates a locker backed by a per-professional
// Redis key. Acquisition retries with jitter up to maxWait, then gives up
// with ErrLockNotAcquired so contended requests fail fast instead of piling
// up.
func NewRedisProfessionalLocker(client *redis.Client, ttl, maxWait time.Duration) Locker {
	return &redisProfessionalLocker{
		client:  client,
		ttl:     ttl,
		maxWait: maxWait,
	}
}

func (l *redisProfessionalLocker) WithProfessionalLock(ctx context.Context, professionalID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:professional:%s", professionalID.String())
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	// Release must survive the request being cancelled mid-critical-section,
	// or the professional stays locked until the TTL runs out.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisProfessionalLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire professional lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		// Jittered backoff keeps rival waiters from stampeding the key.
		sleep := 10*time.Millisecond + time.Duration(rand.Intn(40))*time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisProfessionalLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release professional lock: %w", err)
	}
	return nil
}
