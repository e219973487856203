// Package engine adapts bleve to the narrow surface searchkit needs: open an
// index location, apply ordered write batches, and take immutable read
// snapshots.
//
// A scorch index holds an exclusive file lock while open, so only one
// process can have a location open at a time, and only once within it.
// Registry hands out shared, ref-counted Engines and closes the bleve index
// when the last reference goes away, which frees the location for others.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hashicorp/go-multierror"
	bolt "go.etcd.io/bbolt"

	"github.com/Aman-CERP/searchkit/internal/keylock"
)

// StoreDir is the subdirectory of an index location holding bleve's files.
// The location itself also carries the writer lock sentinel.
const StoreDir = "index"

// ErrLockHeld means the engine's own file lock is held by another process.
// The writer manager treats it as a lost lock race.
var ErrLockHeld = errors.New("engine: index is locked by another process")

// ErrClosed is returned when using an Engine after its registry closed it.
var ErrClosed = errors.New("engine: closed")

// Options configures a Registry.
type Options struct {
	// Analyzer names the bleve analyzer for tokenized fields.
	Analyzer string
	// BoltTimeout bounds how long an open waits on the engine file lock.
	BoltTimeout time.Duration
	// Logger receives lifecycle events.
	Logger *slog.Logger
}

// Registry owns the open Engines of a process, one per location.
type Registry struct {
	opts     Options
	analyzer *BleveAnalyzer
	keyword  *BleveAnalyzer
	logger   *slog.Logger

	keys keylock.Map

	mu     sync.Mutex
	open   map[string]*Engine
	closed bool
}

// NewRegistry validates opts and returns an empty registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Analyzer == "" {
		opts.Analyzer = "standard"
	}
	if opts.BoltTimeout <= 0 {
		opts.BoltTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "engine")
	}

	analyzer, err := NewAnalyzer(opts.Analyzer)
	if err != nil {
		return nil, err
	}
	keyword, err := NewAnalyzer(KeywordAnalyzer)
	if err != nil {
		return nil, err
	}

	return &Registry{
		opts:     opts,
		analyzer: analyzer,
		keyword:  keyword,
		logger:   opts.Logger,
		open:     make(map[string]*Engine),
	}, nil
}

// Analyzer returns the analyzer used for tokenized fields.
func (r *Registry) Analyzer() *BleveAnalyzer {
	return r.analyzer
}

// Open returns the Engine for location, opening or creating the index on
// first use. Each successful Open must be paired with Engine.Close.
func (r *Registry) Open(location string) (*Engine, error) {
	unlock := r.keys.Lock(location)
	defer unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := r.open[location]; ok {
		e.refs++
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	idx, err := r.openIndex(location)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		location: location,
		index:    idx,
		mapping:  idx.Mapping(),
		registry: r,
		refs:     1,
	}

	r.mu.Lock()
	r.open[location] = e
	r.mu.Unlock()

	r.logger.Debug("engine_opened", slog.String("location", location))
	return e, nil
}

func (r *Registry) openIndex(location string) (bleve.Index, error) {
	path := filepath.Join(location, StoreDir)
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory %s: %w", location, err)
	}

	runtime := map[string]interface{}{
		"bolt_timeout": r.opts.BoltTimeout.String(),
	}

	idx, err := bleve.OpenUsing(path, runtime)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, r.newMapping())
	}
	if err != nil {
		if isLockTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, location)
		}
		return nil, fmt.Errorf("failed to open index %s: %w", location, err)
	}
	return idx, nil
}

func (r *Registry) newMapping() *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = r.opts.Analyzer
	return m
}

// release drops one reference to e, closing the index on the last one.
func (r *Registry) release(e *Engine) error {
	unlock := r.keys.Lock(e.location)
	defer unlock()

	r.mu.Lock()
	if e.refs == 0 {
		r.mu.Unlock()
		return nil
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.open, e.location)
	r.mu.Unlock()

	return e.shutdown()
}

// Refs returns the reference count for location, 0 when not open.
func (r *Registry) Refs(location string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.open[location]; ok {
		return e.refs
	}
	return 0
}

// Close force-closes every open index. Outstanding Engines become unusable.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	engines := make([]*Engine, 0, len(r.open))
	for _, e := range r.open {
		e.refs = 0
		engines = append(engines, e)
	}
	r.open = make(map[string]*Engine)
	r.mu.Unlock()

	var result *multierror.Error
	for _, e := range engines {
		if err := e.shutdown(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Engine is one open bleve index shared by every user of a location.
type Engine struct {
	location string
	index    bleve.Index
	mapping  mapping.IndexMapping
	registry *Registry

	refs int // guarded by registry.mu

	commitMu sync.Mutex
	version  atomic.Uint64
	closed   atomic.Bool
}

// Location returns the index location.
func (e *Engine) Location() string {
	return e.location
}

// Version counts the commits applied through this Engine.
func (e *Engine) Version() uint64 {
	return e.version.Load()
}

// Mapping returns the index mapping used to build query searchers.
func (e *Engine) Mapping() mapping.IndexMapping {
	return e.mapping
}

// DocCount returns the number of live documents.
func (e *Engine) DocCount() (uint64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	return e.index.DocCount()
}

// Snapshot returns a new immutable read view with one reference held by the
// caller.
func (e *Engine) Snapshot() (*Snapshot, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	adv, err := e.index.Advanced()
	if err != nil {
		return nil, fmt.Errorf("failed to access index internals: %w", err)
	}
	reader, err := adv.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open index reader: %w", err)
	}
	return newSnapshot(reader, e.mapping, e.version.Load()), nil
}

// OwningSnapshot is Snapshot, except the view takes over the caller's
// reference to e and drops it once the view is fully released. A reader that
// must not keep the store open while idle uses it.
func (e *Engine) OwningSnapshot() (*Snapshot, error) {
	s, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	s.owner = e
	return s, nil
}

// NewWriter returns a Writer that batches operations against this Engine.
func (e *Engine) NewWriter() *Writer {
	return &Writer{engine: e}
}

// Close releases the caller's reference.
func (e *Engine) Close() error {
	return e.registry.release(e)
}

func (e *Engine) shutdown() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if err := e.index.Close(); err != nil {
		return fmt.Errorf("failed to close index %s: %w", e.location, err)
	}
	e.registry.logger.Debug("engine_closed", slog.String("location", e.location))
	return nil
}

// isLockTimeout reports whether err is bolt giving up on the root file lock.
func isLockTimeout(err error) bool {
	if errors.Is(err, bolt.ErrTimeout) {
		return true
	}
	return strings.Contains(err.Error(), bolt.ErrTimeout.Error())
}
