// Package capture implements the per-output frame lifecycle: the frame
// context state machine and the capture/get/free/render operations
// driven against a built stage graph.
package capture

import (
	"errors"
	"time"

	"github.com/e7canasta/camgraph/hw"
)

// ErrNoFrameAvailable is returned by frame access and render operations
// when the context holds no captured buffer, or when the last hardware
// operation on the output reported a failure.
var ErrNoFrameAvailable = errors.New("no frame available")

// Ownership tags who currently holds release responsibility for the
// context's buffer. The explicit tag replaces the reference system's
// "already rendered" boolean: every transition is an exhaustive match,
// never an implicit flag check.
type Ownership int

const (
	// OwnerNone: no buffer held (Empty state).
	OwnerNone Ownership = iota
	// OwnerContext: a captured buffer is held and the context must
	// release it (Captured state).
	OwnerContext
	// OwnerDisplay: the buffer was handed to the display stage, which
	// recycles it; the context must not release it (Rendered state).
	OwnerDisplay
)

func (o Ownership) String() string {
	switch o {
	case OwnerContext:
		return "held-by-context"
	case OwnerDisplay:
		return "held-by-display"
	default:
		return "unowned"
	}
}

// Stats is the per-output capture bookkeeping surfaced to callers.
type Stats struct {
	// Frames is the number of successful captures.
	Frames uint64
	// ZeroLengthRetries counts zero-payload deliveries silently
	// released and re-waited (a capture-port hardware quirk, not an
	// error).
	ZeroLengthRetries uint64
	// SideInfoSkipped counts raw-path side-info buffers discarded.
	SideInfoSkipped uint64
	// Started is when the first capture on this output began.
	Started time.Time
	// Elapsed is the time from the first capture to the latest one.
	Elapsed time.Duration
}

// FPS derives the effective capture rate.
func (s Stats) FPS() float64 {
	if s.Frames == 0 || s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

// Context is the per-(camera, output) frame context: a single-slot
// mailbox holding the most recently delivered buffer and its ownership
// state. Owned by the subsystem; public frame handles reference it but
// never own it. Not safe for concurrent capture/get/free/render calls —
// the caller serializes access per output, as the hardware contract
// requires.
type Context struct {
	Camera int
	Output int

	// ZeroCopy mirrors the output request; the payload returned by a
	// zero-copy context aliases pool memory and is only valid until the
	// buffer is freed or rendered.
	ZeroCopy bool

	buf     *hw.Buffer
	owner   Ownership
	lastErr error

	stats Stats
}

// NewContext creates the context for one configured output.
func NewContext(camera, output int, zeroCopy bool) *Context {
	return &Context{Camera: camera, Output: output, ZeroCopy: zeroCopy}
}

// Owner reports the current ownership state.
func (c *Context) Owner() Ownership { return c.owner }

// Stats returns a snapshot of the capture bookkeeping.
func (c *Context) Stats() Stats { return c.stats }

// dropHeld releases a held-but-unrendered buffer so a new capture never
// leaks the previous one. A buffer handed to the display is the
// display's to recycle; the context just forgets it.
func (c *Context) dropHeld() {
	switch c.owner {
	case OwnerContext:
		c.buf.Release()
	case OwnerDisplay, OwnerNone:
		// Nothing to release.
	}
	c.buf = nil
	c.owner = OwnerNone
}
