package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/document"
	"github.com/blevesearch/bleve/v2/search/query"
)

// resolvePageSize bounds each search used to resolve delete targets.
const resolvePageSize = 1000

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opDeleteQuery
	opDeleteAll
)

type op struct {
	kind  opKind
	docs  []*document.Document
	field string
	value string
	query query.Query
}

// Writer queues index mutations and applies them in order on Commit.
// Nothing is visible to readers before Commit.
type Writer struct {
	engine *Engine

	mu      sync.Mutex
	pending []op
}

// Engine returns the Engine this Writer mutates.
func (w *Writer) Engine() *Engine {
	return w.engine
}

// Add queues documents for insertion.
func (w *Writer) Add(docs ...Document) {
	if len(docs) == 0 {
		return
	}
	w.enqueue(op{kind: opAdd, docs: w.buildAll(docs)})
}

// Update queues replacement of every document whose field holds value as
// an exact term. The replacement documents are added afterwards even when
// nothing matched.
func (w *Writer) Update(field, value string, docs ...Document) {
	w.enqueue(op{kind: opUpdate, field: field, value: value, docs: w.buildAll(docs)})
}

// DeleteTerm queues removal of documents whose field holds value exactly.
func (w *Writer) DeleteTerm(field, value string) {
	w.enqueue(op{kind: opUpdate, field: field, value: value})
}

// DeleteQuery queues removal of documents matching q.
func (w *Writer) DeleteQuery(q query.Query) {
	w.enqueue(op{kind: opDeleteQuery, query: q})
}

// DeleteAll queues removal of every document.
func (w *Writer) DeleteAll() {
	w.enqueue(op{kind: opDeleteAll})
}

// Pending returns the number of queued operations.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Rollback discards queued operations.
func (w *Writer) Rollback() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()
}

// Commit applies queued operations in order. On error the queue is kept
// so the caller may retry or roll back.
func (w *Writer) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}

	e := w.engine
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}

	b := e.index.NewBatch()
	flush := func() error {
		if b.Size() == 0 {
			return nil
		}
		if err := e.index.Batch(b); err != nil {
			return fmt.Errorf("failed to apply batch: %w", err)
		}
		b.Reset()
		return nil
	}

	for _, o := range w.pending {
		var target query.Query
		switch o.kind {
		case opUpdate:
			tq := query.NewTermQuery(o.value)
			tq.SetField(o.field)
			target = tq
		case opDeleteQuery:
			target = o.query
		case opDeleteAll:
			target = query.NewMatchAllQuery()
		}

		if target != nil {
			if err := flush(); err != nil {
				return err
			}
			ids, err := matchingIDs(ctx, e.index, target)
			if err != nil {
				return err
			}
			for _, id := range ids {
				b.Delete(id)
			}
		}

		for _, d := range o.docs {
			if err := b.IndexAdvanced(d); err != nil {
				return fmt.Errorf("failed to queue document: %w", err)
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	w.pending = nil
	e.version.Add(1)
	return nil
}

func (w *Writer) enqueue(o op) {
	w.mu.Lock()
	w.pending = append(w.pending, o)
	w.mu.Unlock()
}

func (w *Writer) buildAll(docs []Document) []*document.Document {
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, w.engine.registry.build(d))
	}
	return out
}

// matchingIDs collects every document ID matching q on the current index.
func matchingIDs(ctx context.Context, idx bleve.Index, q query.Query) ([]string, error) {
	var ids []string
	for from := 0; ; from += resolvePageSize {
		req := bleve.NewSearchRequestOptions(q, resolvePageSize, from, false)
		req.SortBy([]string{"_id"})
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve matching documents: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < resolvePageSize {
			return ids, nil
		}
	}
}
