package redis_lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/ports"
)

const (
	DefaultTTL = 30 * time.Second
	keyPrefix  = "cosigner:lock:"
)

// releaseScript deletes the lock only if it still holds the caller's token.
// KEYS[1] = lock key
// ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// locker is a ports.Locker shared by every daemon instance connected to the
// same redis. Locks expire after ttl if the holder dies.
type locker struct {
	client *redis.Client
	ttl    time.Duration

	warn func(err error, format string, a ...interface{})
}

func NewLocker(addr, password string, db int, ttl time.Duration) ports.Locker {
	return newLocker(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

func newLocker(client *redis.Client, ttl time.Duration) *locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("redis locker: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &locker{client, ttl, warnFn}
}

func (l *locker) WithLock(
	ctx context.Context, key string, fn func(ctx context.Context) error,
) (bool, error) {
	lockKey := keyPrefix + key
	token := uuid.New().String()

	acquired, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock error: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer l.release(lockKey, token)

	return true, fn(ctx)
}

// release uses a fresh context so that the lock is freed even if the
// caller's one is done.
func (l *locker) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(
		ctx, l.client, []string{lockKey}, token,
	).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.warn(err, "failed to release lock %s", lockKey)
	}
}

func (l *locker) Close() error {
	return l.client.Close()
}
