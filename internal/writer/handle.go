package writer

import (
	"sync/atomic"

	"github.com/Aman-CERP/searchkit/internal/engine"
)

// Handle is a write handle for one location. The embedded engine.Writer
// queues mutations; Commit applies them.
type Handle struct {
	*engine.Writer

	location string
	engine   *engine.Engine
	closed   atomic.Bool
}

// Location returns the index location this handle writes to.
func (h *Handle) Location() string {
	return h.location
}

// Closed reports whether the handle has been closed by its Manager.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}
