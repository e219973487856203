package engine

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
	})
	return r
}

func openEngine(t *testing.T, r *Registry) *Engine {
	t.Helper()
	e, err := r.Open(filepath.Join(t.TempDir(), "idx"))
	require.NoError(t, err)
	// Registered after TempDir so the index closes before its directory goes.
	t.Cleanup(func() {
		_ = e.Close()
	})
	return e
}

func record(id, title string, score float64) Document {
	return Document{Fields: []Field{
		{Name: "id", Kind: Keyword, Text: id, Index: true, Store: true},
		{Name: "title", Kind: Text, Text: title, Index: true, Store: true},
		{Name: "score", Kind: Number, Number: score, Index: true, Store: true},
	}}
}

func matchAll(t *testing.T, e *Engine) *Hits {
	t.Helper()
	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, snap.Release())
	}()
	hits, err := snap.Search(context.Background(), query.NewMatchAllQuery(), 100, 0, nil)
	require.NoError(t, err)
	return hits
}

func termQuery(field, value string) query.Query {
	q := query.NewTermQuery(value)
	q.SetField(field)
	return q
}

func TestRegistry_OpenIsSharedPerLocation(t *testing.T) {
	r := newTestRegistry(t)
	loc := filepath.Join(t.TempDir(), "idx")

	// When: opening the same location twice
	a, err := r.Open(loc)
	require.NoError(t, err)
	b, err := r.Open(loc)
	require.NoError(t, err)

	// Then: both callers share one engine
	assert.Same(t, a, b)
	assert.Equal(t, 2, r.Refs(loc))

	require.NoError(t, a.Close())
	assert.Equal(t, 1, r.Refs(loc))
	require.NoError(t, b.Close())
	assert.Equal(t, 0, r.Refs(loc))

	// And: the index reopens from disk
	c, err := r.Open(loc)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestRegistry_ReopenSeesCommittedDocuments(t *testing.T) {
	r := newTestRegistry(t)
	loc := filepath.Join(t.TempDir(), "idx")

	e, err := r.Open(loc)
	require.NoError(t, err)
	w := e.NewWriter()
	w.Add(record("1", "persisted", 1))
	require.NoError(t, w.Commit(context.Background()))
	require.NoError(t, e.Close())

	e, err = r.Open(loc)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, uint64(1), matchAll(t, e).Total)
}

func TestRegistry_UnknownAnalyzer(t *testing.T) {
	_, err := NewRegistry(Options{Analyzer: "no-such-analyzer"})
	assert.Error(t, err)
}

func TestRegistry_ClosedRejectsOpen(t *testing.T) {
	r, err := NewRegistry(Options{})
	require.NoError(t, err)
	e, err := r.Open(filepath.Join(t.TempDir(), "idx"))
	require.NoError(t, err)

	require.NoError(t, r.Close())

	_, err = r.Open(filepath.Join(t.TempDir(), "other"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWriter_NothingVisibleBeforeCommit(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	w := e.NewWriter()

	w.Add(record("1", "alpha", 1), record("2", "beta", 2))
	assert.Equal(t, 1, w.Pending())
	assert.Equal(t, uint64(0), matchAll(t, e).Total)

	require.NoError(t, w.Commit(context.Background()))
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, uint64(2), matchAll(t, e).Total)
	assert.Equal(t, uint64(1), e.Version())
}

func TestWriter_RollbackDiscardsPending(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	w := e.NewWriter()

	w.Add(record("1", "alpha", 1))
	w.Rollback()
	require.NoError(t, w.Commit(context.Background()))

	assert.Equal(t, uint64(0), matchAll(t, e).Total)
	assert.Equal(t, uint64(0), e.Version(), "empty commit is not a new version")
}

func TestWriter_UpdateReplacesByTerm(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	w := e.NewWriter()
	ctx := context.Background()

	w.Add(record("42", "old title", 1), record("7", "other", 1))
	require.NoError(t, w.Commit(ctx))

	w.Update("id", "42", record("42", "new title", 2))
	require.NoError(t, w.Commit(ctx))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Release() }()

	hits, err := snap.Search(ctx, termQuery("id", "42"), 10, 0, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), hits.Total)

	fields, err := snap.Document(hits.IDs[0])
	require.NoError(t, err)
	assert.Contains(t, fields, StoredField{Name: "title", Value: "new title"})
	assert.Contains(t, fields, StoredField{Name: "score", Value: "2"})
}

func TestWriter_UpdateWithinOneCommit(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	w := e.NewWriter()

	// Given: an add and an update of the same key queued together
	w.Add(record("1", "first", 1))
	w.Update("id", "1", record("1", "second", 1))

	require.NoError(t, w.Commit(context.Background()))

	// Then: the update sees the earlier add and replaces it
	assert.Equal(t, uint64(1), matchAll(t, e).Total)
}

func TestWriter_DeleteOperations(t *testing.T) {
	tests := []struct {
		name   string
		apply  func(w *Writer)
		remain uint64
	}{
		{"term", func(w *Writer) { w.DeleteTerm("id", "2") }, 2},
		{"query", func(w *Writer) { w.DeleteQuery(termQuery("title", "shared")) }, 1},
		{"all", func(w *Writer) { w.DeleteAll() }, 0},
		{"missing term", func(w *Writer) { w.DeleteTerm("id", "99") }, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			e := openEngine(t, r)
			w := e.NewWriter()
			ctx := context.Background()

			w.Add(record("1", "shared words", 1), record("2", "shared text", 2), record("3", "unique", 3))
			require.NoError(t, w.Commit(ctx))

			tt.apply(w)
			require.NoError(t, w.Commit(ctx))

			assert.Equal(t, tt.remain, matchAll(t, e).Total)
		})
	}
}

func TestWriter_DeleteAllThenAdd(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	w := e.NewWriter()
	ctx := context.Background()

	w.Add(record("1", "a", 1), record("2", "b", 2))
	require.NoError(t, w.Commit(ctx))

	w.DeleteAll()
	w.Add(record("3", "c", 3))
	require.NoError(t, w.Commit(ctx))

	assert.Equal(t, uint64(1), matchAll(t, e).Total)
}

func TestSnapshot_IsPointInTime(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	ctx := context.Background()

	before, err := e.Snapshot()
	require.NoError(t, err)
	defer func() { _ = before.Release() }()

	w := e.NewWriter()
	w.Add(record("1", "alpha", 1))
	require.NoError(t, w.Commit(ctx))

	hits, err := before.Search(ctx, query.NewMatchAllQuery(), 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), hits.Total)
	assert.Equal(t, uint64(1), matchAll(t, e).Total)
}

func TestSnapshot_RefCounting(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)

	snap, err := e.Snapshot()
	require.NoError(t, err)

	require.True(t, snap.Retain())
	assert.Equal(t, int64(2), snap.Refs())

	require.NoError(t, snap.Release())
	require.NoError(t, snap.Release())
	assert.Equal(t, int64(0), snap.Refs())
	assert.False(t, snap.Retain(), "closed snapshot cannot be retained")
}

func TestEngine_OwningSnapshotClosesEngine(t *testing.T) {
	r := newTestRegistry(t)
	loc := filepath.Join(t.TempDir(), "idx")
	e, err := r.Open(loc)
	require.NoError(t, err)

	// Given: a view that took over the only engine reference
	snap, err := e.OwningSnapshot()
	require.NoError(t, err)
	require.True(t, snap.Retain())
	assert.Equal(t, 1, r.Refs(loc))

	// When: the last holder releases it
	require.NoError(t, snap.Release())
	assert.Equal(t, 1, r.Refs(loc))
	require.NoError(t, snap.Release())

	// Then: the index is closed and another registry can open it
	assert.Equal(t, 0, r.Refs(loc))
	other, err := NewRegistry(Options{BoltTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = other.Close() }()
	e2, err := other.Open(loc)
	require.NoError(t, err)
	require.NoError(t, e2.Close())
}

func TestRegistry_OpenHeldElsewhereIsLockHeld(t *testing.T) {
	r := newTestRegistry(t)
	loc := filepath.Join(t.TempDir(), "idx")
	e, err := r.Open(loc)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	other, err := NewRegistry(Options{BoltTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = other.Close() }()

	_, err = other.Open(loc)

	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestSnapshot_SearchPagingAndSort(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	ctx := context.Background()

	w := e.NewWriter()
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		w.Add(record(id, "doc", float64(i)))
	}
	require.NoError(t, w.Commit(ctx))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Release() }()

	order := search.SortOrder{&search.SortField{Field: "score", Desc: true, Type: search.SortFieldAsNumber}}

	hits, err := snap.Search(ctx, query.NewMatchAllQuery(), 2, 1, order)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), hits.Total)
	require.Len(t, hits.IDs, 2)

	first, err := snap.Document(hits.IDs[0])
	require.NoError(t, err)
	assert.Contains(t, first, StoredField{Name: "id", Value: "d"})

	// Count only
	hits, err = snap.Search(ctx, query.NewMatchAllQuery(), 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), hits.Total)
	assert.Empty(t, hits.IDs)
}

func TestSnapshot_SearchSkipPastIntLimit(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	ctx := context.Background()

	w := e.NewWriter()
	w.Add(record("a", "doc", 1))
	require.NoError(t, w.Commit(ctx))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Release() }()

	// When: skip plus size would overflow int
	hits, err := snap.Search(ctx, query.NewMatchAllQuery(), 10, math.MaxInt-5, nil)

	// Then: no hits, and the total is still reported
	require.NoError(t, err)
	assert.Equal(t, uint64(1), hits.Total)
	assert.Empty(t, hits.IDs)
}

func TestSnapshot_DocumentMissing(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Release() }()

	fields, err := snap.Document("nope")
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestDocument_StoreAndIndexOptions(t *testing.T) {
	r := newTestRegistry(t)
	e := openEngine(t, r)
	ctx := context.Background()

	w := e.NewWriter()
	w.Add(Document{Fields: []Field{
		{Name: "key", Kind: Keyword, Text: "k1", Index: true},
		{Name: "note", Kind: Keyword, Text: "stored only", Store: true},
		{Name: "ghost", Kind: Keyword, Text: "nothing"},
		{Name: "tag", Kind: Keyword, Text: "x", Index: true, Store: true},
		{Name: "tag", Kind: Keyword, Text: "y", Index: true, Store: true},
	}})
	require.NoError(t, w.Commit(ctx))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Release() }()

	hits, err := snap.Search(ctx, termQuery("key", "k1"), 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, hits.IDs, 1)

	hits2, err := snap.Search(ctx, termQuery("note", "stored only"), 1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), hits2.Total, "store-only field is not searchable")

	fields, err := snap.Document(hits.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, []StoredField{
		{Name: "note", Value: "stored only"},
		{Name: "tag", Value: "x"},
		{Name: "tag", Value: "y"},
	}, fields)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{42, "42"},
		{-7, "-7"},
		{1.5, "1.5"},
		{1700000000000, "1700000000000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.in))
	}
}
