package index

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchkit/internal/engine"
	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/metrics"
)

// Sweep outcome labels.
const (
	sweepIndexed = "indexed"
	sweepSkipped = "skipped"
	sweepFailed  = "failed"
)

// DefaultPageSize is the source page size when none is configured.
const DefaultPageSize = 10000

// ErrNilBuild is returned when creating a Sweeper without a BuildFunc.
var ErrNilBuild = errors.New("build function is required")

// ErrNilSource is returned when creating a Sweeper without a Source.
var ErrNilSource = errors.New("record source is required")

// Source lists records page by page. List is called with start 0, size,
// 2*size and so on until it returns an empty page.
type Source[T any] interface {
	List(ctx context.Context, start, size int) ([]T, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, start, size int) ([]T, error)

func (f SourceFunc[T]) List(ctx context.Context, start, size int) ([]T, error) {
	return f(ctx, start, size)
}

// BuildFunc converts one record into the documents indexed for it. It may
// return no documents.
type BuildFunc[T any] func(record T) ([]*Doc, error)

// SweepOptions configures a Sweeper.
type SweepOptions[T any] struct {
	// PageSize is the number of records requested per List call.
	PageSize int
	// Workers bounds concurrent BuildFunc calls within a page. Defaults to 1.
	Workers int
	// Limit stops the sweep after this many accepted records. Zero means no
	// limit.
	Limit int
	// Filter skips records for which it returns false.
	Filter func(record T) bool
	// Retry governs List retries. The zero value uses
	// serrors.DefaultRetryConfig.
	Retry *serrors.RetryConfig

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Pages     int
	Records   int // accepted records handed to BuildFunc
	Skipped   int // records rejected by Filter
	Failed    int // records whose BuildFunc returned an error
	Documents int
	Duration  time.Duration
}

// Sweeper rebuilds an index from a Source.
type Sweeper[T any] struct {
	location string
	writers  Writers
	source   Source[T]
	build    BuildFunc[T]
	opts     SweepOptions[T]
}

// NewSweeper creates a Sweeper for location.
func NewSweeper[T any](location string, writers Writers, source Source[T], build BuildFunc[T], opts SweepOptions[T]) (*Sweeper[T], error) {
	switch {
	case location == "":
		return nil, ErrEmptyLocation
	case writers == nil:
		return nil, ErrNilWriters
	case source == nil:
		return nil, ErrNilSource
	case build == nil:
		return nil, ErrNilBuild
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Retry == nil {
		cfg := serrors.DefaultRetryConfig()
		opts.Retry = &cfg
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "sweep")
	}
	return &Sweeper[T]{
		location: location,
		writers:  writers,
		source:   source,
		build:    build,
		opts:     opts,
	}, nil
}

// Run deletes every document at the location, then indexes the documents
// built from each source page. Nothing becomes visible until the final
// commit. Build failures are logged and counted; a List failure that
// survives the retries aborts the sweep and discards its changes.
func (s *Sweeper[T]) Run(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	begin := s.opts.Clock.Now()

	h, err := s.writers.Acquire(ctx, s.location)
	if err != nil {
		return stats, err
	}
	abort := func(err error) (SweepStats, error) {
		h.Rollback()
		if rerr := s.writers.Release(ctx, h); rerr != nil {
			s.opts.Logger.Warn("sweep_release_failed",
				slog.String("location", s.location),
				slog.String("error", rerr.Error()))
		}
		stats.Duration = s.opts.Clock.Now().Sub(begin)
		return stats, err
	}

	h.DeleteAll()

	size := s.opts.PageSize
	for start := 0; ; start += size {
		page, err := serrors.RetryWithResult(ctx, *s.opts.Retry, func() ([]T, error) {
			return s.source.List(ctx, start, size)
		})
		if err != nil {
			return abort(serrors.IOError("failed to list records", err).
				WithDetail("location", s.location).
				WithDetail("start", strconv.Itoa(start)))
		}
		if len(page) == 0 {
			break
		}
		stats.Pages++

		accepted, done := s.accept(page, &stats)
		docs, err := s.buildPage(ctx, accepted, &stats)
		if err != nil {
			return abort(err)
		}
		h.Add(docs...)
		stats.Documents += len(docs)

		s.opts.Logger.Debug("sweep_page",
			slog.String("location", s.location),
			slog.Int("start", start),
			slog.Int("records", len(page)),
			slog.Int("documents", len(docs)))
		if done {
			break
		}
	}

	if err := h.Commit(ctx); err != nil {
		return abort(serrors.IOError("failed to commit sweep", err).WithDetail("location", s.location))
	}
	if err := s.writers.Release(ctx, h); err != nil {
		return stats, err
	}

	stats.Duration = s.opts.Clock.Now().Sub(begin)
	s.opts.Metrics.ObserveSweep(sweepIndexed, stats.Records-stats.Failed)
	s.opts.Metrics.ObserveSweep(sweepSkipped, stats.Skipped)
	s.opts.Metrics.ObserveSweep(sweepFailed, stats.Failed)
	s.opts.Logger.Info("sweep_completed",
		slog.String("location", s.location),
		slog.Int("pages", stats.Pages),
		slog.Int("records", stats.Records),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Int("documents", stats.Documents),
		slog.Int64("duration_ms", stats.Duration.Milliseconds()))
	return stats, nil
}

// accept applies Limit and Filter to page in order. It reports done once
// the limit is reached.
func (s *Sweeper[T]) accept(page []T, stats *SweepStats) ([]T, bool) {
	accepted := make([]T, 0, len(page))
	for _, rec := range page {
		if s.opts.Limit > 0 && stats.Records >= s.opts.Limit {
			return accepted, true
		}
		if s.opts.Filter != nil && !s.opts.Filter(rec) {
			stats.Skipped++
			continue
		}
		accepted = append(accepted, rec)
		stats.Records++
	}
	return accepted, false
}

// buildPage runs BuildFunc over records with bounded parallelism and
// returns the documents in record order.
func (s *Sweeper[T]) buildPage(ctx context.Context, records []T, stats *SweepStats) ([]engine.Document, error) {
	built := make([][]*Doc, len(records))
	failed := make([]error, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs, err := s.build(rec)
			if err != nil {
				failed[i] = err
				return nil
			}
			built[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, serrors.New(serrors.ErrCodeInternal, "sweep cancelled", err).
			WithDetail("location", s.location)
	}

	var docs []engine.Document
	for i := range records {
		if failed[i] != nil {
			stats.Failed++
			s.opts.Logger.Warn("sweep_record_failed",
				slog.String("location", s.location),
				slog.String("error", failed[i].Error()))
			continue
		}
		docs = append(docs, documents(built[i])...)
	}
	return docs, nil
}

// Appender returns an Appender that builds documents the same way as s.
func (s *Sweeper[T]) Appender(opts ...Option) (*Appender[T], error) {
	ix, err := New(s.location, s.writers, append([]Option{WithLogger(s.opts.Logger), WithClock(s.opts.Clock)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return NewAppender(ix, s.build)
}
