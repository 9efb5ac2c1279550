// Package redislock is a lock.Locker for multi-instance deployments: a
// SET NX PX lease per key, released with a compare-and-delete script so an
// expired holder cannot free a lease taken over by someone else.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xraph/tenure/lock"
)

var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker holds leases in redis.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// Compile-time check.
var _ lock.Locker = (*Locker)(nil)

// Option configures a Locker.
type Option func(*Locker)

// WithPrefix sets the key namespace. Defaults to "tenure:lock:".
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// WithTTL sets the lease length. A holder that outlives it loses the lock.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

// WithRetryInterval sets the delay between acquisition attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) { l.retry = d }
}

// WithLogger sets the logger used for release failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New returns a Locker backed by client.
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: "tenure:lock:",
		ttl:    10 * time.Second,
		retry:  25 * time.Millisecond,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements lock.Locker.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	k := l.prefix + key

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(lock.ErrLockNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("tenure/redislock: set %s: %w", k, err)
		}
		if ok {
			return l.releaser(k, token), nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errors.Join(lock.ErrLockNotAcquired, ctx.Err())
		}
	}
}

func (l *Locker) releaser(key, token string) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := release.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("tenure/redislock: token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
