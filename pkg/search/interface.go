package search

import (
	"context"
	"errors"

	"github.com/Aman-CERP/searchkit/internal/engine"
)

// ErrNilSnapshots is returned when creating a Query without a read-handle source.
var ErrNilSnapshots = errors.New("read handle source is required")

// ErrEmptyLocation is returned when creating a Query without an index location.
var ErrEmptyLocation = errors.New("index location is required")

// Snapshots hands out shared read handles per index location.
// *searcher.Cache satisfies it.
type Snapshots interface {
	Acquire(ctx context.Context, location string) (*engine.Snapshot, error)
	Release(location string, snap *engine.Snapshot) error
	ForceNeedsReopen(location string)
}
