package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/camgraph/hw"

	"github.com/e7canasta/camgraph/internal/graph"
)

// Driver runs the steady-state per-frame loop against a built graph and
// its frame contexts.
type Driver struct {
	Log *slog.Logger
}

// CaptureNext captures the next frame for one output:
//
//	Empty/Captured → Captured
//
// On the capture-style output it first triggers a one-shot still. A
// previously held, not-yet-rendered buffer is released so it never
// leaks. The raw path runs the software conversion loop before the wait.
// Zero-payload deliveries are released and re-waited, never surfaced.
func (d *Driver) CaptureNext(ctx context.Context, slot *graph.Slot, fc *Context) error {
	bt := slot.Built
	if bt == nil {
		return fmt.Errorf("%w: camera %d graph not built", graph.ErrConfiguration, fc.Camera)
	}
	conn := bt.Deliveries[fc.Output]

	if fc.stats.Started.IsZero() {
		fc.stats.Started = time.Now()
	}

	if slot.Port == graph.PortCapture && bt.Source != nil {
		if err := bt.Source.SetProperty("capture-trigger", true); err != nil {
			fc.lastErr = err
			return fmt.Errorf("%w: capture trigger: %v", graph.ErrStageCreation, err)
		}
	}

	fc.dropHeld()

	if bt.Raw != nil {
		if err := d.captureRaw(ctx, bt, fc); err != nil {
			fc.lastErr = err
			return err
		}
	}

	// Return every free pool buffer upstream, then wait for a delivery.
	for {
		if err := drainPool(conn); err != nil {
			fc.lastErr = err
			return err
		}
		buf, err := conn.WaitDelivery(ctx)
		if err != nil {
			fc.lastErr = err
			return fmt.Errorf("waiting for frame on camera %d output %d: %w",
				fc.Camera, fc.Output, err)
		}
		if buf.Length == 0 {
			// Transient quirk on the capture-style output: release and
			// wait again.
			fc.stats.ZeroLengthRetries++
			buf.Release()
			continue
		}
		fc.buf = buf
		fc.owner = OwnerContext
		fc.lastErr = nil
		fc.stats.Frames++
		fc.stats.Elapsed = time.Since(fc.stats.Started)
		return nil
	}
}

// captureRaw drives the raw front-end through one frame: recycle
// empties, wait for a payload buffer (skipping side-info), convert it in
// software, and inject the finished RGB frame into the splitter tagged
// end-of-stream.
func (d *Driver) captureRaw(ctx context.Context, bt *graph.Built, fc *Context) error {
	for {
		for buf := bt.Raw.TakeEmpty(); buf != nil; buf = bt.Raw.TakeEmpty() {
			if err := bt.Raw.SendEmpty(buf); err != nil {
				return fmt.Errorf("recycling raw buffer: %w", err)
			}
		}
		raw, err := bt.Raw.WaitRaw(ctx)
		if err != nil {
			return fmt.Errorf("waiting for raw frame: %w", err)
		}
		if raw.Length == 0 || raw.Flags&hw.FlagSideInfo != 0 {
			fc.stats.SideInfoSkipped++
			raw.Release()
			continue
		}

		rgb, err := bt.Conv.Convert(raw.Payload())
		raw.Release()
		if err != nil {
			return fmt.Errorf("converting raw frame: %w", err)
		}

		out := hw.NewBuffer(rgb, nil)
		out.Length = len(rgb)
		out.Flags = hw.FlagEOS
		if err := bt.SplitterIn.Submit(out); err != nil {
			return fmt.Errorf("submitting converted frame: %w", err)
		}
		return nil
	}
}

// Frame returns the held buffer's payload.
//
// Fails with ErrNoFrameAvailable when no capture succeeded on this
// cycle, or when the last hardware operation on this output failed.
func (d *Driver) Frame(fc *Context) ([]byte, error) {
	if fc.lastErr != nil {
		return nil, fmt.Errorf("%w: camera %d output %d: last operation failed: %v",
			ErrNoFrameAvailable, fc.Camera, fc.Output, fc.lastErr)
	}
	if fc.owner != OwnerContext || fc.buf == nil {
		return nil, fmt.Errorf("%w: camera %d output %d (state %s)",
			ErrNoFrameAvailable, fc.Camera, fc.Output, fc.owner)
	}
	return fc.buf.Payload(), nil
}

// Free releases the held buffer back to its pool:
//
//	Captured → Empty
//
// Idempotent: freeing an empty context, or one whose buffer already went
// to the display, is a no-op.
func (d *Driver) Free(fc *Context) {
	switch fc.owner {
	case OwnerContext:
		fc.buf.Release()
		fc.buf = nil
		fc.owner = OwnerNone
	case OwnerDisplay, OwnerNone:
		// Display owns the release, or nothing is held.
	}
}

// Render hands the held buffer to the display stage:
//
//	Captured → Rendered
//
// Release responsibility passes to the display; a later Free is a no-op.
// Fails with ErrNoFrameAvailable under the same preconditions as Frame.
func (d *Driver) Render(slot *graph.Slot, fc *Context) error {
	if fc.lastErr != nil {
		return fmt.Errorf("%w: camera %d output %d: last operation failed: %v",
			ErrNoFrameAvailable, fc.Camera, fc.Output, fc.lastErr)
	}
	if fc.owner != OwnerContext || fc.buf == nil {
		return fmt.Errorf("%w: camera %d output %d (state %s)",
			ErrNoFrameAvailable, fc.Camera, fc.Output, fc.owner)
	}
	conn := slot.Built.Deliveries[fc.Output]
	if err := conn.SendDownstream(fc.buf); err != nil {
		fc.lastErr = err
		return fmt.Errorf("sending frame to renderer: %w", err)
	}
	fc.buf = nil
	fc.owner = OwnerDisplay
	return nil
}

// drainPool returns every free buffer to the upstream side of a
// connection so the producer always has something to fill.
func drainPool(conn hw.Connection) error {
	for buf := conn.TakeFree(); buf != nil; buf = conn.TakeFree() {
		if err := conn.SendUpstream(buf); err != nil {
			return fmt.Errorf("returning pool buffer upstream: %w", err)
		}
	}
	return nil
}
