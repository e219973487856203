package index

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// numbers is a Source over 0..n-1.
type numbers struct {
	n     int
	calls atomic.Int32
	// ListFn overrides List when set.
	ListFn func(start, size int) ([]int, error)
}

func (s *numbers) List(_ context.Context, start, size int) ([]int, error) {
	s.calls.Add(1)
	if s.ListFn != nil {
		return s.ListFn(start, size)
	}
	var out []int
	for i := start; i < start+size && i < s.n; i++ {
		out = append(out, i)
	}
	return out, nil
}

func buildNumber(n int) ([]*Doc, error) {
	return []*Doc{NewDoc().Add("id", fmt.Sprintf("n%02d", n)).AddInt("n", int64(n))}, nil
}

var fastRetry = &serrors.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1}

func (f *fixture) seed(t *testing.T, ids ...string) {
	t.Helper()
	ix := f.index(t)
	for _, id := range ids {
		require.NoError(t, ix.BatchAddDocs(context.Background(), NewDoc().Add("id", id)))
	}
	require.NoError(t, ix.CloseBatch(context.Background()))
}

func TestSweeper_RebuildsFromAllPages(t *testing.T) {
	// Given: an index with stale content and a 25 record source
	f := newFixture(t, true)
	f.seed(t, "stale")
	src := &numbers{n: 25}
	s, err := NewSweeper[int](f.location, f.manager, src, buildNumber, SweepOptions[int]{
		PageSize: 10,
		Workers:  4,
		Metrics:  f.metrics,
	})
	require.NoError(t, err)

	// When
	stats, err := s.Run(context.Background())

	// Then: the source was paged until an empty page and replaced everything
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, 25, stats.Records)
	assert.Equal(t, 25, stats.Documents)
	assert.Equal(t, int32(4), src.calls.Load())

	ids := f.ids(t)
	assert.Len(t, ids, 25)
	assert.NotContains(t, ids, "stale")
	assert.Equal(t, "n00", ids[0])
	assert.Equal(t, 25.0, testutil.ToFloat64(f.metrics.SweepRecords.WithLabelValues(sweepIndexed)))
}

func TestSweeper_LimitAndFilter(t *testing.T) {
	f := newFixture(t, true)
	s, err := NewSweeper[int](f.location, f.manager, &numbers{n: 100}, buildNumber, SweepOptions[int]{
		PageSize: 10,
		Limit:    7,
		Filter:   func(n int) bool { return n%2 == 0 },
	})
	require.NoError(t, err)

	stats, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 7, stats.Records)
	assert.Equal(t, 6, stats.Skipped)
	assert.Equal(t, []string{"n00", "n02", "n04", "n06", "n08", "n10", "n12"}, f.ids(t))
}

func TestSweeper_BuildFailureSkipsRecord(t *testing.T) {
	f := newFixture(t, false)
	build := func(n int) ([]*Doc, error) {
		if n == 3 {
			return nil, errors.New("bad record")
		}
		if n == 4 {
			return nil, nil
		}
		return buildNumber(n)
	}
	s, err := NewSweeper[int](f.location, f.manager, &numbers{n: 6}, build, SweepOptions[int]{
		PageSize: 4,
		Workers:  2,
		Metrics:  f.metrics,
	})
	require.NoError(t, err)

	stats, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 6, stats.Records)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, []string{"n00", "n01", "n02", "n05"}, f.ids(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SweepRecords.WithLabelValues(sweepFailed)))
	assert.Zero(t, f.manager.OpenCount())
}

func TestSweeper_ListFailureKeepsOldContent(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "keep")
	src := &numbers{ListFn: func(start, _ int) ([]int, error) {
		if start == 0 {
			return []int{1, 2}, nil
		}
		return nil, errors.New("database gone")
	}}
	s, err := NewSweeper[int](f.location, f.manager, src, buildNumber, SweepOptions[int]{
		PageSize: 2,
		Retry:    fastRetry,
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeIOFailure, serrors.GetCode(err))
	assert.Equal(t, int32(3), src.calls.Load(), "first page plus one failed attempt and one retry")
	assert.Equal(t, []string{"keep"}, f.ids(t))
}

func TestSweeper_ListRetrySucceeds(t *testing.T) {
	f := newFixture(t, true)
	var failures atomic.Int32
	inner := &numbers{n: 3}
	src := &numbers{ListFn: func(start, size int) ([]int, error) {
		if start == 0 && failures.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return inner.List(context.Background(), start, size)
	}}
	s, err := NewSweeper[int](f.location, f.manager, src, buildNumber, SweepOptions[int]{Retry: fastRetry})
	require.NoError(t, err)

	stats, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
}

func TestSweeper_Cancelled(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewSweeper[int](f.location, f.manager, &numbers{n: 10}, func(n int) ([]*Doc, error) {
		cancel()
		return buildNumber(n)
	}, SweepOptions[int]{PageSize: 5})
	require.NoError(t, err)

	_, err = s.Run(ctx)

	assert.Error(t, err)
}

func TestNewSweeper_Validation(t *testing.T) {
	f := newFixture(t, true)
	src := &numbers{}

	_, err := NewSweeper[int]("", f.manager, src, buildNumber, SweepOptions[int]{})
	assert.ErrorIs(t, err, ErrEmptyLocation)
	_, err = NewSweeper[int](f.location, nil, src, buildNumber, SweepOptions[int]{})
	assert.ErrorIs(t, err, ErrNilWriters)
	_, err = NewSweeper[int](f.location, f.manager, nil, buildNumber, SweepOptions[int]{})
	assert.ErrorIs(t, err, ErrNilSource)
	_, err = NewSweeper[int](f.location, f.manager, src, nil, SweepOptions[int]{})
	assert.ErrorIs(t, err, ErrNilBuild)
}

func TestAppender(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "n00")
	s, err := NewSweeper[int](f.location, f.manager, &numbers{}, func(n int) ([]*Doc, error) {
		if n < 0 {
			return nil, errors.New("negative")
		}
		return buildNumber(n)
	}, SweepOptions[int]{})
	require.NoError(t, err)
	app, err := s.Appender()
	require.NoError(t, err)
	ctx := context.Background()

	// When: records are appended
	require.NoError(t, app.Append(ctx, 7, 8))

	// Then: existing content is kept
	assert.Equal(t, []string{"n00", "n07", "n08"}, f.ids(t))

	// When: one record fails to build, the whole call is discarded
	err = app.Append(ctx, 9, -1)
	assert.EqualError(t, err, "negative")
	assert.Equal(t, []string{"n00", "n07", "n08"}, f.ids(t))
	assert.Zero(t, f.manager.OpenCount())

	assert.NoError(t, app.Append(ctx))
}
