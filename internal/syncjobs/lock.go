package syncjobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a per-key mutual exclusion lock stored in Redis.
type RedisLocker struct {
	client redis.Cmdable
}

// NewRedisLocker creates a locker on the given client.
func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	if client == nil {
		panic("syncjobs: redis client cannot be nil")
	}
	return &RedisLocker{client: client}
}

// Acquire takes the lock for ttl. ok is false when someone else holds it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("syncjobs: acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still owns it. An expired or stolen lock is
// left alone.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("syncjobs: release %s: %w", key, err)
	}
	return nil
}
