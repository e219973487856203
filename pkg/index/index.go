package index

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/juju/clock"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/writer"
	"github.com/Aman-CERP/searchkit/pkg/query"
)

// ErrNilWriters is returned when creating an Index without a writer source.
var ErrNilWriters = errors.New("writer source is required")

// ErrEmptyLocation is returned when creating an Index without a location.
var ErrEmptyLocation = errors.New("index location is required")

// Writers hands out write handles per index location. *writer.Manager
// satisfies it.
type Writers interface {
	Acquire(ctx context.Context, location string) (*writer.Handle, error)
	Release(ctx context.Context, h *writer.Handle) error
}

// Index submits documents to one location. The embedded Doc is the pending
// document consumed by AddIndex, UpdateIndex, BatchAdd and BatchUpdate.
//
// An Index is not safe for concurrent use.
type Index struct {
	*Doc

	location string
	writers  Writers
	analyzer query.Analyzer
	clock    clock.Clock
	logger   *slog.Logger

	batch      *writer.Handle
	batchStart time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithAnalyzer sets the analyzer for Analyzed predicates in BatchDeleteQuery.
func WithAnalyzer(a query.Analyzer) Option {
	return func(ix *Index) {
		ix.analyzer = a
	}
}

func WithClock(c clock.Clock) Option {
	return func(ix *Index) {
		ix.clock = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		ix.logger = l
	}
}

// New creates an Index over location.
func New(location string, writers Writers, opts ...Option) (*Index, error) {
	if location == "" {
		return nil, ErrEmptyLocation
	}
	if writers == nil {
		return nil, ErrNilWriters
	}
	ix := &Index{
		Doc:      NewDoc(),
		location: location,
		writers:  writers,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.clock == nil {
		ix.clock = clock.WallClock
	}
	if ix.logger == nil {
		ix.logger = slog.Default().With("component", "index")
	}
	return ix, nil
}

// Location returns the index location.
func (ix *Index) Location() string {
	return ix.location
}

// AddIndex appends the pending document and commits.
func (ix *Index) AddIndex(ctx context.Context) error {
	docs := documents([]*Doc{ix.Doc})
	return ix.single(ctx, func(h *writer.Handle) {
		h.Add(docs...)
	})
}

// UpdateIndex replaces every document whose field equals the pending
// document's first value for field.
func (ix *Index) UpdateIndex(ctx context.Context, field string) error {
	value, ok := ix.Get(field)
	if !ok {
		return serrors.ValidationError("pending document has no value for update field", nil).
			WithDetail("field", field)
	}
	return ix.UpdateIndexBy(ctx, field, value)
}

// UpdateIndexBy replaces every document whose field equals value with the
// pending document.
func (ix *Index) UpdateIndexBy(ctx context.Context, field, value string) error {
	docs := documents([]*Doc{ix.Doc})
	return ix.single(ctx, func(h *writer.Handle) {
		h.Update(field, value, docs...)
	})
}

// DeleteIndex removes every document where field matches value. Value may
// hold * and ? wildcards.
func (ix *Index) DeleteIndex(ctx context.Context, field, value string) error {
	q, err := query.Compile(query.NewBuilder().And(field, value).Param(), ix.analyzer)
	if err != nil {
		return err
	}
	return ix.single(ctx, func(h *writer.Handle) {
		h.DeleteQuery(q)
	})
}

// single runs one operation on its own writer acquisition. The handle is
// released whether or not the operation succeeds; release commits.
func (ix *Index) single(ctx context.Context, apply func(h *writer.Handle)) error {
	h, err := ix.writers.Acquire(ctx, ix.location)
	if err != nil {
		return err
	}
	apply(h)
	if err := h.Commit(ctx); err != nil {
		h.Rollback()
		_ = ix.writers.Release(ctx, h)
		return serrors.IOError("failed to commit index change", err).WithDetail("location", ix.location)
	}
	return ix.writers.Release(ctx, h)
}

// BatchAdd queues the pending document on the batch writer and starts a new
// pending document.
func (ix *Index) BatchAdd(ctx context.Context) error {
	h, err := ix.check(ctx)
	if err != nil {
		return err
	}
	h.Add(documents([]*Doc{ix.Doc})...)
	ix.Doc = NewDoc()
	return nil
}

// BatchAddDocs queues docs on the batch writer. The pending document is
// left untouched.
func (ix *Index) BatchAddDocs(ctx context.Context, docs ...*Doc) error {
	h, err := ix.check(ctx)
	if err != nil {
		return err
	}
	h.Add(documents(docs)...)
	return nil
}

// BatchUpdate queues an update keyed on the pending document's first value
// for field and starts a new pending document.
func (ix *Index) BatchUpdate(ctx context.Context, field string) error {
	value, ok := ix.Get(field)
	if !ok {
		return serrors.ValidationError("pending document has no value for update field", nil).
			WithDetail("field", field)
	}
	return ix.BatchUpdateBy(ctx, field, value)
}

// BatchUpdateBy queues an update of the documents where field equals value
// and starts a new pending document.
func (ix *Index) BatchUpdateBy(ctx context.Context, field, value string) error {
	h, err := ix.check(ctx)
	if err != nil {
		return err
	}
	h.Update(field, value, documents([]*Doc{ix.Doc})...)
	ix.Doc = NewDoc()
	return nil
}

// BatchDelete queues removal of documents where field matches value.
func (ix *Index) BatchDelete(ctx context.Context, field, value string) error {
	return ix.BatchDeleteQuery(ctx, query.NewBuilder().And(field, value))
}

// BatchDeleteQuery queues removal of every document matching b.
func (ix *Index) BatchDeleteQuery(ctx context.Context, b *query.Builder) error {
	var p *query.Param
	if b != nil {
		p = b.Param()
	}
	q, err := query.Compile(p, ix.analyzer)
	if err != nil {
		return err
	}
	h, err := ix.check(ctx)
	if err != nil {
		return err
	}
	h.DeleteQuery(q)
	return nil
}

// BatchDeleteAll queues removal of every document.
func (ix *Index) BatchDeleteAll(ctx context.Context) error {
	h, err := ix.check(ctx)
	if err != nil {
		return err
	}
	h.DeleteAll()
	return nil
}

// check acquires the batch writer on first use.
func (ix *Index) check(ctx context.Context) (*writer.Handle, error) {
	if ix.batch == nil {
		h, err := ix.writers.Acquire(ctx, ix.location)
		if err != nil {
			return nil, err
		}
		ix.batch = h
	}
	if ix.batchStart.IsZero() {
		ix.batchStart = ix.clock.Now()
	}
	return ix.batch, nil
}

// CommitBatch makes the queued batch operations visible. The writer stays
// held for further batch calls.
func (ix *Index) CommitBatch(ctx context.Context) error {
	if ix.batch == nil {
		return errNoBatch(ix.location)
	}
	if err := ix.batch.Commit(ctx); err != nil {
		return serrors.IOError("failed to commit batch", err).WithDetail("location", ix.location)
	}
	ix.logElapsed("batch_committed")
	return nil
}

// RollbackBatch discards the batch operations queued since the last commit.
// The writer stays held; CloseBatch still has to be called.
func (ix *Index) RollbackBatch() error {
	if ix.batch == nil {
		return errNoBatch(ix.location)
	}
	ix.batch.Rollback()
	ix.batchStart = time.Time{}
	return nil
}

// CloseBatch commits what is queued and releases the batch writer.
func (ix *Index) CloseBatch(ctx context.Context) error {
	if ix.batch == nil {
		return errNoBatch(ix.location)
	}
	h := ix.batch
	ix.batch = nil
	if err := h.Commit(ctx); err != nil {
		h.Rollback()
		_ = ix.writers.Release(ctx, h)
		ix.batchStart = time.Time{}
		return serrors.IOError("failed to commit batch", err).WithDetail("location", ix.location)
	}
	if err := ix.writers.Release(ctx, h); err != nil {
		return err
	}
	ix.logElapsed("batch_closed")
	return nil
}

// InBatch reports whether a batch writer is held.
func (ix *Index) InBatch() bool {
	return ix.batch != nil
}

func (ix *Index) logElapsed(event string) {
	if ix.batchStart.IsZero() {
		return
	}
	ix.logger.Info(event,
		slog.String("location", ix.location),
		slog.Int64("duration_ms", ix.clock.Now().Sub(ix.batchStart).Milliseconds()))
	ix.batchStart = time.Time{}
}

func errNoBatch(location string) error {
	return serrors.StateError("no batch writer has been acquired").WithDetail("location", location)
}
