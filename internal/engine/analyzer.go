package engine

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/registry"
	lru "github.com/hashicorp/golang-lru/v2"
)

// KeywordAnalyzer indexes a value as one whole token.
const KeywordAnalyzer = "keyword"

// Analyzer tokenizes free text for a field.
type Analyzer interface {
	Analyze(field, text string) ([]string, error)
}

// BleveAnalyzer is a named analyzer from bleve's registry.
type BleveAnalyzer struct {
	name     string
	analyzer analysis.Analyzer
}

// NewAnalyzer looks up name in a fresh bleve registry cache.
func NewAnalyzer(name string) (*BleveAnalyzer, error) {
	a, err := registry.NewCache().AnalyzerNamed(name)
	if err != nil {
		return nil, fmt.Errorf("unknown analyzer %q: %w", name, err)
	}
	return &BleveAnalyzer{name: name, analyzer: a}, nil
}

// Name returns the registry name.
func (b *BleveAnalyzer) Name() string {
	return b.name
}

// Analyze returns the terms of text in token order. The same analyzer is
// used for every field.
func (b *BleveAnalyzer) Analyze(_ string, text string) ([]string, error) {
	tokens := b.analyzer.Analyze([]byte(text))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	return terms, nil
}

// CachedAnalyzer memoizes tokenization of repeated analyzed predicates.
type CachedAnalyzer struct {
	inner Analyzer
	cache *lru.Cache[string, []string]
}

// NewCachedAnalyzer wraps inner with an LRU of the given size.
// A size of 0 returns inner unwrapped.
func NewCachedAnalyzer(inner Analyzer, size int) (Analyzer, error) {
	if size <= 0 {
		return inner, nil
	}
	cache, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	return &CachedAnalyzer{inner: inner, cache: cache}, nil
}

// Analyze returns cached terms for (field, text) or computes and stores them.
// Callers must not modify the returned slice.
func (c *CachedAnalyzer) Analyze(field, text string) ([]string, error) {
	key := field + "\x00" + text
	if terms, ok := c.cache.Get(key); ok {
		return terms, nil
	}
	terms, err := c.inner.Analyze(field, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, terms)
	return terms, nil
}

// Len returns the number of cached entries.
func (c *CachedAnalyzer) Len() int {
	return c.cache.Len()
}
