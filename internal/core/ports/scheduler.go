package ports

import "time"

// Scheduler is a registry of named, cancellable deferred tasks.
type Scheduler interface {
	Exists(name string) bool
	// Register schedules fn at fireAt, or right away if fireAt is past. The
	// entry is removed once fn starts. It returns false if a task with the
	// same name is already registered.
	Register(name string, fireAt time.Time, fn func()) bool
	Cancel(name string) bool
	Stop()
}
