package inmemory_lock

import (
	"context"
	"sync"

	"github.com/vulpemventures/cosigner/internal/core/ports"
)

// locker is a process-local ports.Locker, for single-instance deployments
// and tests.
type locker struct {
	lock *sync.Mutex
	held map[string]struct{}
}

func NewLocker() ports.Locker {
	return &locker{
		lock: &sync.Mutex{},
		held: make(map[string]struct{}),
	}
}

func (l *locker) WithLock(
	ctx context.Context, key string, fn func(ctx context.Context) error,
) (bool, error) {
	if !l.acquire(key) {
		return false, nil
	}
	defer l.release(key)

	return true, fn(ctx)
}

func (l *locker) acquire(key string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *locker) release(key string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	delete(l.held, key)
}
