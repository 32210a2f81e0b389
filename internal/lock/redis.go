package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "catalogue:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another run is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker backed by SET NX PX, shared by every service replica.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

// Acquire takes key for ttl, or returns ErrLocked.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	// Renewal and release must still run after the caller's context is done.
	ctx = context.WithoutCancel(ctx)
	stop := keepAlive(ttl, func() bool { return r.extend(ctx, redisKey, token, ttl) })

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.Warn("redis release lock failed",
					slog.String("key", redisKey),
					slog.String("error", err.Error()),
				)
			}
		})
	}, nil
}

// extend reports false once the key no longer holds token. A Redis error
// keeps the renewal going.
func (r *Redis) extend(ctx context.Context, redisKey, token string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := extendScript.Run(ctx, r.client, []string{redisKey}, token, ttl.Milliseconds()).Int()
	if err != nil {
		r.logger.Warn("redis extend lock failed",
			slog.String("key", redisKey),
			slog.String("error", err.Error()),
		)
		return true
	}
	if n == 0 {
		r.logger.Warn("redis lock lost before release", slog.String("key", redisKey))
		return false
	}
	return true
}
