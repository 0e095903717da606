// Package reload holds a compiled processing tree behind an atomic
// pointer so configuration can be swapped while events are in flight.
// In-flight matches keep the tree they started with; no lock is held on
// the matching hot path.
package reload

import (
	"sync/atomic"

	"github.com/WuerthPhoenix/tornado-match/internal/matcher"
	"github.com/WuerthPhoenix/tornado-match/internal/tree"
)

// Handle is a stable reference to the current compiled tree and its
// driver. Safe for concurrent Driver and Swap calls.
type Handle struct {
	current atomic.Pointer[matcher.Driver]
}

// New builds a Handle serving the given tree.
func New(t *tree.Compiled) *Handle {
	h := &Handle{}
	h.current.Store(matcher.New(t))
	return h
}

// Driver returns the driver for the currently installed tree. Callers
// keep using the returned driver for the whole of one event's match; a
// concurrent Swap does not affect it.
func (h *Handle) Driver() *matcher.Driver {
	return h.current.Load()
}

// Swap atomically installs a newly compiled tree. Matches already running
// complete on the tree they started with.
func (h *Handle) Swap(t *tree.Compiled) {
	h.current.Store(matcher.New(t))
}
