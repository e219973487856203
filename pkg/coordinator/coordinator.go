// Package coordinator owns the shared index resources of a process: the
// engine registry, the writer lifecycle manager and the searcher cache.
//
// One Coordinator is created from configuration at startup and passed to
// the code that indexes or searches. Close releases every resource it owns.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/searchkit/internal/config"
	"github.com/Aman-CERP/searchkit/internal/engine"
	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/lock"
	"github.com/Aman-CERP/searchkit/internal/metrics"
	"github.com/Aman-CERP/searchkit/internal/searcher"
	"github.com/Aman-CERP/searchkit/internal/writer"
	"github.com/Aman-CERP/searchkit/pkg/index"
	"github.com/Aman-CERP/searchkit/pkg/search"
)

// Options carries process dependencies that do not belong in configuration.
type Options struct {
	Logger *slog.Logger
	Clock  clock.Clock
	// Registerer receives the collectors when metrics are enabled. Defaults
	// to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Coordinator is the process-wide registry of index resources.
type Coordinator struct {
	cfg       *config.Config
	logger    *slog.Logger
	clock     clock.Clock
	metrics   *metrics.Metrics
	engines   *engine.Registry
	writers   *writer.Manager
	searchers *searcher.Cache
	analyzer  engine.Analyzer
	maxAge    time.Duration

	mu     sync.Mutex
	closed bool
}

// New builds a Coordinator from cfg. cfg is validated first.
func New(cfg *config.Config, opts Options) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		m = metrics.New(reg)
	}

	engines, err := engine.NewRegistry(engine.Options{
		Analyzer:    cfg.Engine.Analyzer,
		BoltTimeout: cfg.BoltTimeoutDuration(),
		Logger:      opts.Logger.With("component", "engine"),
	})
	if err != nil {
		return nil, serrors.ConfigError("failed to set up index engine", err)
	}

	analyzer, err := engine.NewCachedAnalyzer(engines.Analyzer(), cfg.Engine.TokenCacheSize)
	if err != nil {
		_ = engines.Close()
		return nil, serrors.ConfigError("failed to set up token cache", err)
	}

	locker, err := lock.New(cfg.ResolvedLockBackend(),
		lock.WithClock(opts.Clock),
		lock.WithLogger(opts.Logger.With("component", "lock")))
	if err != nil {
		_ = engines.Close()
		return nil, err
	}

	writers := writer.NewManager(engines, locker, writer.Options{
		Cache:         cfg.Writer.Cache,
		LockWaitSleep: cfg.LockWaitSleepDuration(),
		MaxRetries:    cfg.Writer.MaxRetries,
		Clock:         opts.Clock,
		Logger:        opts.Logger.With("component", "writer"),
		Metrics:       m,
	})

	// Without writer caching the storage is shared, so another process must
	// be able to open a location whenever no query is running here.
	searchers, err := searcher.NewCache(engines, searcher.Options{
		ReopenInterval: cfg.ReopenIntervalDuration(),
		Watch:          cfg.Searcher.Watch,
		Detach:         !cfg.Writer.Cache,
		LockWaitSleep:  cfg.LockWaitSleepDuration(),
		Clock:          opts.Clock,
		Logger:         opts.Logger.With("component", "searcher"),
		Metrics:        m,
	})
	if err != nil {
		_ = writers.Close(context.Background())
		_ = engines.Close()
		return nil, err
	}

	opts.Logger.Debug("coordinator_started",
		slog.Bool("writer_cache", cfg.Writer.Cache),
		slog.String("lock_backend", cfg.ResolvedLockBackend()),
		slog.Duration("reopen_interval", cfg.ReopenIntervalDuration()))

	return &Coordinator{
		cfg:       cfg,
		logger:    opts.Logger,
		clock:     opts.Clock,
		metrics:   m,
		engines:   engines,
		writers:   writers,
		searchers: searchers,
		analyzer:  analyzer,
		maxAge:    cfg.MaxLockAgeDuration(),
	}, nil
}

// Config returns the configuration the Coordinator was built from.
func (c *Coordinator) Config() *config.Config { return c.cfg }

// Metrics returns the collectors, or nil when metrics are disabled.
func (c *Coordinator) Metrics() *metrics.Metrics { return c.metrics }

// Analyzer returns the shared analyzer used for analyzed predicates.
func (c *Coordinator) Analyzer() engine.Analyzer { return c.analyzer }

// Writers returns the write handle source. It applies the configured max
// lock age to every acquisition.
func (c *Coordinator) Writers() index.Writers {
	return agedWriters{m: c.writers, maxAge: c.maxAge}
}

// Searchers returns the read handle cache.
func (c *Coordinator) Searchers() *searcher.Cache { return c.searchers }

// Index returns an Index writing to location.
func (c *Coordinator) Index(location string) (*index.Index, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return index.New(location, c.Writers(),
		index.WithAnalyzer(c.analyzer),
		index.WithClock(c.clock),
		index.WithLogger(c.logger.With("component", "index")))
}

// Query returns an empty Query over location.
func (c *Coordinator) Query(location string) (*search.Query, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return search.NewQuery(location, c.searchers,
		search.WithAnalyzer(c.analyzer),
		search.WithLogger(c.logger.With("component", "search")),
		search.WithMetrics(c.metrics))
}

// NewSweeper returns a Sweeper for location using the configured page size
// and worker count. Limit and Filter are taken from opts.
func NewSweeper[T any](c *Coordinator, location string, src index.Source[T], build index.BuildFunc[T], opts index.SweepOptions[T]) (*index.Sweeper[T], error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if opts.PageSize <= 0 {
		opts.PageSize = c.cfg.Sweep.PageSize
	}
	if opts.Workers <= 0 {
		opts.Workers = c.cfg.Sweep.Workers
	}
	if opts.Clock == nil {
		opts.Clock = c.clock
	}
	if opts.Logger == nil {
		opts.Logger = c.logger.With("component", "sweep")
	}
	if opts.Metrics == nil {
		opts.Metrics = c.metrics
	}
	return index.NewSweeper(location, c.Writers(), src, build, opts)
}

// Unlock force-clears the writer lock for location, for recovering from a
// holder that died without releasing it. It reports whether a lock was
// removed. Clearing a lock that a live process holds breaks its exclusivity.
func (c *Coordinator) Unlock(location string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.writers.Unlock(location)
}

// Close releases the read handles, commits and closes the write handles,
// then closes the engines. Later calls return nil.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var result *multierror.Error
	if err := c.searchers.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("searcher cache: %w", err))
	}
	if err := c.writers.Close(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("writer manager: %w", err))
	}
	if err := c.engines.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("engine registry: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		return serrors.IOError("failed to close index resources", err)
	}
	return nil
}

func (c *Coordinator) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return serrors.StateError("coordinator is closed")
	}
	return nil
}

// agedWriters applies a fixed max lock age to Acquire.
type agedWriters struct {
	m      *writer.Manager
	maxAge time.Duration
}

func (a agedWriters) Acquire(ctx context.Context, location string) (*writer.Handle, error) {
	return a.m.AcquireWithMaxAge(ctx, location, a.maxAge)
}

func (a agedWriters) Release(ctx context.Context, h *writer.Handle) error {
	return a.m.Release(ctx, h)
}
