// Package writer manages write handles for index locations.
//
// A Manager hands out at most one write handle per location. In cached mode
// the handle stays open for the life of the Manager and Release only
// commits. In uncached mode every Release commits and closes the handle so
// other processes sharing the storage can take the lock record.
//
// Same-process callers are serialized by a per-location mutex. Cross-process
// callers are arbitrated by a lock.Locker, optionally evicting a lock that is
// older than a maximum age.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"

	"github.com/Aman-CERP/searchkit/internal/engine"
	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/keylock"
	"github.com/Aman-CERP/searchkit/internal/lock"
	"github.com/Aman-CERP/searchkit/internal/metrics"
)

// errLockRace means the lock was free when checked but taken before open.
var errLockRace = errors.New("writer: lost lock race")

// Opener opens engines by location. *engine.Registry satisfies it.
type Opener interface {
	Open(location string) (*engine.Engine, error)
}

// Options configures a Manager.
type Options struct {
	// Cache keeps handles open across Release calls.
	Cache bool
	// LockWaitSleep is the pause between lock checks. Defaults to 1s.
	LockWaitSleep time.Duration
	// MaxRetries bounds lock races in one Acquire. 0 means unbounded.
	MaxRetries int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Manager is the writer lifecycle manager.
type Manager struct {
	engines Opener
	locker  lock.Locker
	opts    Options
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	keys keylock.Map

	mu     sync.Mutex
	cached map[string]*Handle
	open   map[*Handle]struct{}
	closed bool
}

// NewManager creates a Manager.
func NewManager(engines Opener, locker lock.Locker, opts Options) *Manager {
	if opts.LockWaitSleep <= 0 {
		opts.LockWaitSleep = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "writer")
	}
	return &Manager{
		engines: engines,
		locker:  locker,
		opts:    opts,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		cached:  make(map[string]*Handle),
		open:    make(map[*Handle]struct{}),
	}
}

// Cached reports whether the Manager runs in cached mode.
func (m *Manager) Cached() bool {
	return m.opts.Cache
}

// Acquire returns the write handle for location, waiting while another
// holder has the lock. See AcquireWithMaxAge.
func (m *Manager) Acquire(ctx context.Context, location string) (*Handle, error) {
	return m.AcquireWithMaxAge(ctx, location, 0)
}

// AcquireWithMaxAge returns the write handle for location. While the lock
// is held by someone else it sleeps and re-checks; when maxAge is positive
// a lock older than maxAge is cleared. The wait ends on success, on ctx
// cancellation, or after MaxRetries lost lock races.
//
// In cached mode a positive maxAge is a configuration error.
func (m *Manager) AcquireWithMaxAge(ctx context.Context, location string, maxAge time.Duration) (*Handle, error) {
	if m.opts.Cache && maxAge > 0 {
		return nil, serrors.ConfigError("max lock age requires writer caching to be disabled", nil).
			WithSuggestion("Set writer.cache to false or remove writer.max_lock_age")
	}

	unlock := m.keys.Lock(location)
	defer unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, serrors.StateError("writer manager is closed")
	}
	if h, ok := m.cached[location]; ok && m.opts.Cache {
		m.mu.Unlock()
		m.metrics.ObserveAcquire(metrics.OutcomeCached)
		return h, nil
	}
	m.mu.Unlock()

	locked, err := m.locker.IsLocked(location)
	if err != nil {
		m.metrics.ObserveAcquire(metrics.OutcomeError)
		return nil, err
	}

	var h *Handle
	if !locked {
		h, err = m.openHandle(location)
		if errors.Is(err, errLockRace) {
			m.metrics.IncLockRace()
			h, err = m.waitForWriter(ctx, location, maxAge)
		}
	} else {
		h, err = m.waitForWriter(ctx, location, maxAge)
	}
	if err != nil {
		m.metrics.ObserveAcquire(metrics.OutcomeError)
		return nil, err
	}

	m.mu.Lock()
	m.open[h] = struct{}{}
	if m.opts.Cache {
		m.cached[location] = h
	}
	m.mu.Unlock()

	m.metrics.ObserveAcquire(metrics.OutcomeOK)
	m.metrics.WriterOpened()
	return h, nil
}

// waitForWriter loops until the lock can be taken.
func (m *Manager) waitForWriter(ctx context.Context, location string, maxAge time.Duration) (*Handle, error) {
	start := m.clock.Now()
	races := 0

	m.logger.Debug("writer_lock_wait",
		slog.String("location", location),
		slog.Duration("max_age", maxAge))

	for {
		for {
			at, held, err := m.locker.LockedAt(location)
			if err != nil {
				return nil, err
			}
			if !held {
				break
			}
			if maxAge > 0 {
				if age := m.clock.Now().Sub(at); age > maxAge {
					if err := m.forceClear(location, at, age); err != nil {
						return nil, err
					}
					continue
				}
			}
			if err := m.sleep(ctx, location); err != nil {
				return nil, err
			}
		}

		h, err := m.openHandle(location)
		if err == nil {
			m.metrics.ObserveWait(m.clock.Now().Sub(start))
			return h, nil
		}
		if !errors.Is(err, errLockRace) {
			return nil, err
		}

		races++
		m.metrics.IncLockRace()
		m.logger.Debug("writer_lock_race",
			slog.String("location", location),
			slog.Int("races", races))
		if m.opts.MaxRetries > 0 && races >= m.opts.MaxRetries {
			return nil, serrors.LockTimeoutError("gave up waiting for index writer lock", err).
				WithDetail("location", location).
				WithDetail("races", fmt.Sprint(races))
		}
		if err := m.sleep(ctx, location); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) forceClear(location string, at time.Time, age time.Duration) error {
	cleared, err := m.locker.ForceClear(location, at)
	if err != nil {
		return err
	}
	if cleared {
		m.metrics.IncForceClear()
		m.logger.Warn("lock_force_cleared",
			slog.String("location", location),
			slog.Duration("age", age))
	}
	return nil
}

func (m *Manager) sleep(ctx context.Context, location string) error {
	select {
	case <-ctx.Done():
		return serrors.LockTimeoutError("cancelled while waiting for index writer lock", ctx.Err()).
			WithDetail("location", location)
	case <-m.clock.After(m.opts.LockWaitSleep):
		return nil
	}
}

// openHandle takes the lock record and opens the engine. It returns
// errLockRace when either lock is held elsewhere.
func (m *Manager) openHandle(location string) (*Handle, error) {
	ok, err := m.locker.Obtain(location)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errLockRace
	}

	eng, err := m.engines.Open(location)
	if err != nil {
		if relErr := m.locker.Release(location); relErr != nil {
			m.logger.Warn("lock_release_failed",
				slog.String("location", location),
				slog.String("error", relErr.Error()))
		}
		if errors.Is(err, engine.ErrLockHeld) {
			return nil, errLockRace
		}
		return nil, serrors.IOError("failed to open index writer", err).
			WithDetail("location", location)
	}

	m.logger.Debug("writer_opened", slog.String("location", location))
	return &Handle{Writer: eng.NewWriter(), location: location, engine: eng}, nil
}

// Release ends one use of h. In cached mode it commits and leaves h open;
// otherwise it commits, closes h and frees the lock.
func (m *Manager) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if m.opts.Cache {
		if h.closed.Load() {
			return nil
		}
		if err := h.Commit(ctx); err != nil {
			return serrors.IOError("failed to commit index writer", err).
				WithDetail("location", h.location)
		}
		return nil
	}
	return m.closeHandle(ctx, h)
}

// closeHandle commits, closes the engine reference and frees the lock.
func (m *Manager) closeHandle(ctx context.Context, h *Handle) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	var result *multierror.Error
	if err := h.Commit(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to commit %s: %w", h.location, err))
	}
	if err := h.engine.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.locker.Release(h.location); err != nil {
		result = multierror.Append(result, err)
	}

	m.mu.Lock()
	delete(m.open, h)
	if m.cached[h.location] == h {
		delete(m.cached, h.location)
	}
	m.mu.Unlock()
	m.metrics.WriterClosed()

	m.logger.Debug("writer_closed", slog.String("location", h.location))

	if err := result.ErrorOrNil(); err != nil {
		return serrors.IOError("failed to close index writer", err).
			WithDetail("location", h.location)
	}
	return nil
}

// Unlock force-clears the lock record for location. It does not close a
// handle this Manager holds.
func (m *Manager) Unlock(location string) (bool, error) {
	cleared, err := m.locker.ForceClear(location, time.Time{})
	if err != nil {
		return false, err
	}
	if cleared {
		m.logger.Warn("lock_force_cleared",
			slog.String("location", location),
			slog.String("reason", "explicit unlock"))
	}
	return cleared, nil
}

// OpenCount returns the number of open handles.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Close commits and closes every open handle. Later Acquire calls fail.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	handles := make([]*Handle, 0, len(m.open))
	for h := range m.open {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var result *multierror.Error
	for _, h := range handles {
		if err := m.closeHandle(ctx, h); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
