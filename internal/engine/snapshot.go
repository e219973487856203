package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2/document"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"
	"github.com/hashicorp/go-multierror"
)

// Hits is the outcome of one Snapshot search.
type Hits struct {
	IDs   []string
	Total uint64
}

// Snapshot is an immutable point-in-time view of an index. It is shared by
// concurrent queries and closed when the last reference is released.
type Snapshot struct {
	reader  index.IndexReader
	mapping mapping.IndexMapping
	version uint64
	refs    atomic.Int64
	// owner, when set, is closed after the reader.
	owner *Engine
}

func newSnapshot(r index.IndexReader, m mapping.IndexMapping, version uint64) *Snapshot {
	s := &Snapshot{reader: r, mapping: m, version: version}
	s.refs.Store(1)
	return s
}

// Version is the engine commit count observed when the snapshot was taken.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Refs returns the current reference count.
func (s *Snapshot) Refs() int64 {
	return s.refs.Load()
}

// Retain adds a reference. It reports false if the snapshot was already
// closed.
func (s *Snapshot) Retain() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference and closes the reader on the last one.
func (s *Snapshot) Release() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}
	var result *multierror.Error
	if err := s.reader.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close index reader: %w", err))
	}
	if s.owner != nil {
		if err := s.owner.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// DocCount returns the number of live documents in the view.
func (s *Snapshot) DocCount() (uint64, error) {
	return s.reader.DocCount()
}

// Search runs q and returns up to size hit IDs after skipping skip hits.
// A nil order sorts by descending score. Size 0 still reports Total.
func (s *Snapshot) Search(ctx context.Context, q query.Query, size, skip int, order search.SortOrder) (*Hits, error) {
	if len(order) == 0 {
		order = search.SortOrder{&search.SortScore{Desc: true}}
	}

	searcher, err := q.Searcher(ctx, s.reader, s.mapping, search.SearcherOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to build searcher: %w", err)
	}
	defer func() {
		_ = searcher.Close()
	}()

	// The collector needs room for at least one hit to compute the total.
	collectSize := size
	if collectSize <= 0 {
		collectSize = 1
	}
	// No index holds that many hits, and skip+size must not overflow.
	if skip > math.MaxInt-collectSize {
		skip, size, collectSize = 0, 0, 1
	}
	coll := collector.NewTopNCollector(collectSize, skip, order)
	if err := coll.Collect(ctx, searcher, s.reader); err != nil {
		return nil, fmt.Errorf("failed to collect hits: %w", err)
	}

	hits := &Hits{Total: coll.Total()}
	if size <= 0 {
		return hits, nil
	}
	for _, h := range coll.Results() {
		id := h.ID
		if id == "" {
			if id, err = s.reader.ExternalID(h.IndexInternalID); err != nil {
				return nil, fmt.Errorf("failed to resolve hit id: %w", err)
			}
		}
		hits.IDs = append(hits.IDs, id)
	}
	return hits, nil
}

// Document returns the stored fields of id in insertion order, or nil when
// id is not in the view.
func (s *Snapshot) Document(id string) ([]StoredField, error) {
	doc, err := s.reader.Document(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}

	var fields []StoredField
	doc.VisitFields(func(f index.Field) {
		if f.Name() == "_id" {
			return
		}
		value := string(f.Value())
		if nf, ok := f.(*document.NumericField); ok {
			if n, err := nf.Number(); err == nil {
				value = FormatNumber(n)
			}
		}
		fields = append(fields, StoredField{Name: f.Name(), Value: value})
	})
	return fields, nil
}
