package search

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	bsearch "github.com/blevesearch/bleve/v2/search"
	bq "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/searchkit/internal/engine"
	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/metrics"
	"github.com/Aman-CERP/searchkit/pkg/query"
)

// Query composes predicates for one index location and executes them.
type Query struct {
	*query.Builder

	location string
	snaps    Snapshots
	analyzer query.Analyzer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Query.
type Option func(*Query)

// WithAnalyzer sets the analyzer used by Analyzed predicates.
func WithAnalyzer(a query.Analyzer) Option {
	return func(q *Query) {
		q.analyzer = a
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Query) {
		q.logger = l
	}
}

// WithMetrics records query latency and outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Query) {
		q.metrics = m
	}
}

// NewQuery creates an empty Query over location.
func NewQuery(location string, snaps Snapshots, opts ...Option) (*Query, error) {
	if location == "" {
		return nil, ErrEmptyLocation
	}
	if snaps == nil {
		return nil, ErrNilSnapshots
	}

	q := &Query{
		Builder:  query.NewBuilder(),
		location: location,
		snaps:    snaps,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = slog.Default().With("component", "search")
	}
	return q, nil
}

// Location returns the index location the query runs against.
func (q *Query) Location() string {
	return q.location
}

// Get returns up to size matches after skipping start. A size of 0 returns
// no documents but still reports the total. Pages past the last match are
// empty.
func (q *Query) Get(ctx context.Context, start, size int) (*Page, error) {
	if start < 0 || size < 0 {
		return nil, serrors.ValidationError("start and size must not be negative", nil).
			WithDetail("start", strconv.Itoa(start)).
			WithDetail("size", strconv.Itoa(size))
	}

	var page *Page
	err := q.withSnapshot(ctx, func(run runner) error {
		total, docs, err := run(start, size)
		if err != nil {
			return err
		}
		page = NewPage(start, size, total, docs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetAll returns every match. The total is counted first and the documents
// are fetched from the same read handle, so both agree.
func (q *Query) GetAll(ctx context.Context) (*Page, error) {
	var page *Page
	err := q.withSnapshot(ctx, func(run runner) error {
		total, _, err := run(0, 0)
		if err != nil {
			return err
		}
		if total == 0 {
			page = NewPage(0, 0, 0, nil)
			return nil
		}
		total, docs, err := run(0, total)
		if err != nil {
			return err
		}
		page = NewPage(0, total, total, docs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Count returns the number of matches.
func (q *Query) Count(ctx context.Context) (int, error) {
	page, err := q.Get(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	return page.TotalCount(), nil
}

// NeedReopen makes the next query refresh the read handle so it sees the
// latest commit.
func (q *Query) NeedReopen() {
	q.snaps.ForceNeedsReopen(q.location)
}

// ClearParam discards every predicate and sort field.
func (q *Query) ClearParam() {
	q.Builder.Clear()
}

// runner executes the compiled query on a pinned read handle.
type runner func(start, size int) (int, []map[string]any, error)

func (q *Query) withSnapshot(ctx context.Context, fn func(run runner) error) (err error) {
	begin := time.Now()
	defer func() {
		q.metrics.ObserveQuery(begin, err)
	}()

	param := q.Param()
	compiled, err := query.Compile(param, q.analyzer)
	if err != nil {
		return err
	}
	order := param.SortOrder()

	snap, err := q.snaps.Acquire(ctx, q.location)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := q.snaps.Release(q.location, snap); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(func(start, size int) (int, []map[string]any, error) {
		return q.run(ctx, snap, compiled, order, start, size)
	})
}

func (q *Query) run(ctx context.Context, snap *engine.Snapshot, compiled bq.Query, order bsearch.SortOrder, start, size int) (int, []map[string]any, error) {
	hits, err := snap.Search(ctx, compiled, size, start, order)
	if err != nil {
		return 0, nil, serrors.New(serrors.ErrCodeSearchFailed, "query execution failed", err).
			WithDetail("location", q.location)
	}
	total := clampTotal(hits.Total)

	if size == 0 {
		return total, nil, nil
	}
	if len(hits.IDs) == 0 {
		q.logger.Debug("search_out_of_range",
			slog.String("location", q.location),
			slog.Int("start", start),
			slog.Int("total", total))
		return total, nil, nil
	}

	docs := make([]map[string]any, 0, len(hits.IDs))
	for _, id := range hits.IDs {
		fields, err := snap.Document(id)
		if err != nil {
			return 0, nil, serrors.New(serrors.ErrCodeSearchFailed, "failed to load matched document", err).
				WithDetail("location", q.location).
				WithDetail("id", id)
		}
		if fields == nil {
			continue
		}
		docs = append(docs, docToMap(fields))
	}

	q.logger.Debug("search_page",
		slog.String("location", q.location),
		slog.Int("start", start),
		slog.Int("end", start+len(docs)-1),
		slog.Int("total", total))
	return total, docs, nil
}

func clampTotal(n uint64) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// docToMap flattens stored fields. A repeated field becomes a []string.
func docToMap(fields []engine.StoredField) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		switch cur := m[f.Name].(type) {
		case nil:
			m[f.Name] = f.Value
		case string:
			m[f.Name] = []string{cur, f.Value}
		case []string:
			m[f.Name] = append(cur, f.Value)
		}
	}
	return m
}
