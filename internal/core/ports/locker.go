package ports

import "context"

// Locker provides mutual exclusion across every instance of the daemon.
type Locker interface {
	// WithLock runs fn only if the lock for key is acquired, and releases it
	// afterwards. It returns false without running fn if the lock is held by
	// someone else.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error)
}
