package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/movierama/internal/logging"
)

// releaseScript deletes the lock only if it still carries our token, so a
// holder whose TTL expired cannot release somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker serializes work across processes with SET NX PX.  The TTL
// bounds how long a crashed holder blocks the key.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker returns a distributed locker.  Keys are stored under
// prefix + ":" + key.
func NewRedisLocker(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, retry: 20 * time.Millisecond}
}

func (l *RedisLocker) redisKey(key string) string { return l.prefix + ":" + key }

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	rk := l.redisKey(key)
	token := uuid.NewString()
	wait := l.retry
	for {
		ok, err := l.rdb.SetNX(ctx, rk, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			break
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		if wait < 200*time.Millisecond {
			wait *= 2
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release even if the request context is already cancelled
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{rk}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				logging.Warn().Err(err).Str("key", rk).Msg("release reaction lock failed, it will expire")
			}
		})
	}, nil
}
