// Package lock implements the advisory writer lock record for an index
// location. Presence means held, absence means free, and the timestamp of the
// record gives its age so a crashed holder can be detected and evicted.
//
// The lock is best-effort. It is not linearizable across processes and relies
// on a staleness timeout for recovery.
package lock

import (
	"time"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// Locker is the lock record for index locations.
type Locker interface {
	// Obtain takes the lock for location if it is free. It returns false,
	// without error, when another holder has it.
	Obtain(location string) (bool, error)

	// Release drops the lock. Releasing a free lock is a no-op.
	Release(location string) error

	// IsLocked reports whether the lock for location is currently held.
	IsLocked(location string) (bool, error)

	// LockedAt returns when the current holder took the lock. ok is false
	// when the lock is free.
	LockedAt(location string) (at time.Time, ok bool, err error)

	// ForceClear removes the lock regardless of holder. When observed is
	// non-zero the lock is only removed if its timestamp still equals
	// observed, so a lock re-taken by a new holder survives. It reports
	// whether the lock was removed.
	ForceClear(location string, observed time.Time) (bool, error)
}

// Backend names, matching config.LockBackend*.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
)

// New returns the Locker for backend.
func New(backend string, opts ...Option) (Locker, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryLocker(opts...), nil
	case BackendFile:
		return NewFileLocker(opts...), nil
	default:
		return nil, serrors.ConfigError("unknown lock backend "+backend, nil)
	}
}
