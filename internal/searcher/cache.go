// Package searcher caches one read handle per index location.
//
// A cached handle is refreshed at most once per reopen interval, so a burst
// of queries shares one view while staleness stays bounded. ForceNeedsReopen
// makes the next Acquire refresh regardless of the timer. Old views stay
// valid for the queries still holding them and close when the last one
// releases.
//
// In detached mode the cache holds no reference of its own. A view is shared
// only while some query holds it, and the engine is closed when the last
// query releases it, so other processes on the same storage can open the
// location between queries.
package searcher

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
	"github.com/Aman-CERP/searchkit/internal/metrics"
)

// Reopen triggers, used as metric labels.
const (
	triggerTimer  = "timer"
	triggerForced = "forced"
	triggerIdle   = "idle"
)

// Opener opens engines by location. *engine.Registry satisfies it.
type Opener interface {
	Open(location string) (*engine.Engine, error)
}

// Options configures a Cache.
type Options struct {
	// ReopenInterval is the minimum time between refreshes. Defaults to 30s.
	ReopenInterval time.Duration
	// Watch refreshes early when the index store changes on disk.
	Watch bool
	// Detach closes a location's engine whenever no query holds a view.
	Detach bool
	// LockWaitSleep is the pause between open attempts while another
	// process has the index open. Defaults to 1s.
	LockWaitSleep time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type entry struct {
	engine *engine.Engine // nil in detached mode

	mu         sync.Mutex
	current    *engine.Snapshot
	lastReopen time.Time // zero forces the next Acquire to refresh
}

// Cache is the searcher cache.
type Cache struct {
	engines Opener
	opts    Options
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	keys    keylock.Map
	watcher *storeWatcher

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewCache creates a Cache. It fails only when Watch is set and the file
// watcher cannot start.
func NewCache(engines Opener, opts Options) (*Cache, error) {
	if opts.ReopenInterval <= 0 {
		opts.ReopenInterval = 30 * time.Second
	}
	if opts.LockWaitSleep <= 0 {
		opts.LockWaitSleep = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "searcher")
	}

	c := &Cache{
		engines: engines,
		opts:    opts,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		entries: make(map[string]*entry),
	}

	if opts.Watch {
		w, err := newStoreWatcher(c.ForceNeedsReopen, opts.Logger)
		if err != nil {
			return nil, serrors.IOError("failed to start index watcher", err)
		}
		c.watcher = w
	}
	return c, nil
}

// Acquire returns the current read handle for location, refreshing it first
// when the reopen interval has elapsed or a refresh was forced. While another
// process has the index open it waits until ctx is done. The caller must
// pass the handle to Release.
func (c *Cache) Acquire(ctx context.Context, location string) (*engine.Snapshot, error) {
	e, err := c.entry(ctx, location)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if c.opts.Detach {
		return c.acquireDetached(ctx, location, e)
	}

	if trigger, due := c.needsReopen(e); due {
		if err := c.reopen(location, e, trigger); err != nil {
			return nil, err
		}
	}

	snap := e.current
	if snap == nil || !snap.Retain() {
		return nil, serrors.StateError("searcher cache is closed").WithDetail("location", location)
	}
	return snap, nil
}

// acquireDetached shares the current view while a query still holds it and
// is not due, and otherwise opens a fresh one. Caller holds e.mu.
func (c *Cache) acquireDetached(ctx context.Context, location string, e *entry) (*engine.Snapshot, error) {
	trigger, due := c.needsReopen(e)
	if !due && e.current != nil && e.current.Retain() {
		return e.current, nil
	}
	if !due {
		trigger = triggerIdle
	}

	eng, err := c.openEngine(ctx, location)
	if err != nil {
		return nil, err
	}
	snap, err := eng.OwningSnapshot()
	if err != nil {
		_ = eng.Close()
		return nil, serrors.IOError("failed to open read handle", err).WithDetail("location", location)
	}

	e.current = snap
	e.lastReopen = c.clock.Now()
	c.metrics.ObserveReopen(trigger)
	c.logger.Debug("searcher_reopened",
		slog.String("location", location),
		slog.String("trigger", trigger))
	return snap, nil
}

// Release returns a handle obtained from Acquire.
func (c *Cache) Release(location string, snap *engine.Snapshot) error {
	if snap == nil {
		return nil
	}
	if err := snap.Release(); err != nil {
		return serrors.IOError("failed to release read handle", err).WithDetail("location", location)
	}
	return nil
}

// ForceNeedsReopen marks the cached handle for location stale. It is a no-op
// for locations that have not been searched yet.
func (c *Cache) ForceNeedsReopen(location string) {
	c.mu.Lock()
	e, ok := c.entries[location]
	c.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.lastReopen = time.Time{}
	e.mu.Unlock()
}

// needsReopen reports whether e is due and, if so, why. Caller holds e.mu.
func (c *Cache) needsReopen(e *entry) (string, bool) {
	if e.lastReopen.IsZero() {
		return triggerForced, true
	}
	if c.clock.Now().Sub(e.lastReopen) > c.opts.ReopenInterval {
		return triggerTimer, true
	}
	return "", false
}

// reopen swaps in a fresh snapshot. Caller holds e.mu.
func (c *Cache) reopen(location string, e *entry, trigger string) error {
	snap, err := e.engine.Snapshot()
	if err != nil {
		return serrors.IOError("failed to refresh read handle", err).WithDetail("location", location)
	}

	old := e.current
	e.current = snap
	e.lastReopen = c.clock.Now()

	if old != nil {
		if err := old.Release(); err != nil {
			c.logger.Warn("searcher_release_failed",
				slog.String("location", location),
				slog.String("error", err.Error()))
		}
	}

	c.metrics.ObserveReopen(trigger)
	c.logger.Debug("searcher_reopened",
		slog.String("location", location),
		slog.String("trigger", trigger),
		slog.Uint64("version", snap.Version()))
	return nil
}

// openEngine opens location, sleeping and retrying while another process
// has it open.
func (c *Cache) openEngine(ctx context.Context, location string) (*engine.Engine, error) {
	waited := false
	for {
		eng, err := c.engines.Open(location)
		if err == nil {
			return eng, nil
		}
		if !errors.Is(err, engine.ErrLockHeld) {
			return nil, serrors.IOError("failed to open index for search", err).WithDetail("location", location)
		}
		if !waited {
			c.logger.Debug("searcher_lock_wait", slog.String("location", location))
			waited = true
		}
		select {
		case <-ctx.Done():
			return nil, serrors.LockTimeoutError("cancelled while waiting for index to become readable", ctx.Err()).
				WithDetail("location", location)
		case <-c.clock.After(c.opts.LockWaitSleep):
		}
	}
}

// entry returns the cache slot for location, creating it on first use. In
// attached mode a new slot opens the engine and takes the first view.
func (c *Cache) entry(ctx context.Context, location string) (*entry, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, serrors.StateError("searcher cache is closed")
	}
	if e, ok := c.entries[location]; ok {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	unlock := c.keys.Lock(location)
	defer unlock()

	// Another caller may have created it while we waited.
	c.mu.Lock()
	if e, ok := c.entries[location]; ok {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	e := &entry{}
	if !c.opts.Detach {
		eng, err := c.openEngine(ctx, location)
		if err != nil {
			return nil, err
		}
		snap, err := eng.Snapshot()
		if err != nil {
			_ = eng.Close()
			return nil, serrors.IOError("failed to open read handle", err).WithDetail("location", location)
		}
		e.engine, e.current, e.lastReopen = eng, snap, c.clock.Now()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = e.drop()
		return nil, serrors.StateError("searcher cache is closed")
	}
	c.entries[location] = e
	c.mu.Unlock()

	if c.watcher != nil {
		if err := c.watcher.add(location); err != nil {
			c.logger.Warn("searcher_watch_failed",
				slog.String("location", location),
				slog.String("error", err.Error()))
		}
	}

	c.logger.Debug("searcher_opened",
		slog.String("location", location),
		slog.Bool("detached", c.opts.Detach))
	return e, nil
}

// drop releases the references the cache itself holds on e. Detached slots
// hold none.
func (e *entry) drop() error {
	if e.engine == nil {
		return nil
	}
	var result *multierror.Error
	if e.current != nil {
		if err := e.current.Release(); err != nil {
			result = multierror.Append(result, err)
		}
		e.current = nil
	}
	if err := e.engine.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Close drops the cached handles and engine references. Handles still held
// by callers stay usable until released.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := c.entries
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	var result *multierror.Error
	if c.watcher != nil {
		if err := c.watcher.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to stop index watcher: %w", err))
		}
	}
	for location, e := range entries {
		e.mu.Lock()
		err := e.drop()
		e.mu.Unlock()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to release %s: %w", location, err))
		}
	}
	return result.ErrorOrNil()
}
