package engine

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	AnalyzeFn func(field, text string) ([]string, error)
	calls     atomic.Int32
}

func (f *fakeAnalyzer) Analyze(field, text string) ([]string, error) {
	f.calls.Add(1)
	return f.AnalyzeFn(field, text)
}

func TestBleveAnalyzer_Standard(t *testing.T) {
	a, err := NewAnalyzer("standard")
	require.NoError(t, err)

	terms, err := a.Analyze("body", "The Quick brown-fox")
	require.NoError(t, err)

	// Standard lowercases and drops English stop words.
	assert.Equal(t, []string{"quick", "brown", "fox"}, terms)
	assert.Equal(t, "standard", a.Name())
}

func TestBleveAnalyzer_Keyword(t *testing.T) {
	a, err := NewAnalyzer(KeywordAnalyzer)
	require.NoError(t, err)

	terms, err := a.Analyze("id", "Order 42")
	require.NoError(t, err)
	assert.Equal(t, []string{"Order 42"}, terms)
}

func TestCachedAnalyzer_MemoizesPerFieldAndText(t *testing.T) {
	inner := &fakeAnalyzer{AnalyzeFn: func(_, text string) ([]string, error) {
		return []string{text}, nil
	}}
	a, err := NewCachedAnalyzer(inner, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := a.Analyze("title", "hello")
		require.NoError(t, err)
	}
	_, err = a.Analyze("body", "hello")
	require.NoError(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 2, a.(*CachedAnalyzer).Len())
}

func TestCachedAnalyzer_ErrorsAreNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	inner := &fakeAnalyzer{AnalyzeFn: func(_, text string) ([]string, error) {
		if fail.Load() {
			return nil, assert.AnError
		}
		return []string{text}, nil
	}}
	a, err := NewCachedAnalyzer(inner, 8)
	require.NoError(t, err)

	_, err = a.Analyze("f", "x")
	assert.ErrorIs(t, err, assert.AnError)

	fail.Store(false)
	terms, err := a.Analyze("f", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, terms)
}

func TestCachedAnalyzer_ZeroSizeDisables(t *testing.T) {
	inner := &fakeAnalyzer{AnalyzeFn: func(_, _ string) ([]string, error) { return nil, nil }}
	a, err := NewCachedAnalyzer(inner, 0)
	require.NoError(t, err)
	assert.Same(t, inner, a)
}
