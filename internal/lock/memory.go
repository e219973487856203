package lock

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// MemoryLocker keeps lock records in process memory. It suits deployments
// where a single process owns every index location.
type MemoryLocker struct {
	clock clock.Clock

	mu   sync.Mutex
	held map[string]time.Time
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an empty in-process lock table.
func NewMemoryLocker(opts ...Option) *MemoryLocker {
	o := applyOptions(opts)
	return &MemoryLocker{
		clock: o.clock,
		held:  make(map[string]time.Time),
	}
}

func (m *MemoryLocker) Obtain(location string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[location]; ok {
		return false, nil
	}
	m.held[location] = m.clock.Now()
	return true, nil
}

func (m *MemoryLocker) Release(location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.held, location)
	return nil
}

func (m *MemoryLocker) IsLocked(location string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.held[location]
	return ok, nil
}

func (m *MemoryLocker) LockedAt(location string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.held[location]
	return at, ok, nil
}

func (m *MemoryLocker) ForceClear(location string, observed time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.held[location]
	if !ok {
		return false, nil
	}
	if !observed.IsZero() && !at.Equal(observed) {
		return false, nil
	}
	delete(m.held, location)
	return true, nil
}
