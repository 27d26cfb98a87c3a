package camgraph

import (
	"context"
	"fmt"

	"github.com/e7canasta/camgraph/internal/capture"
	"github.com/e7canasta/camgraph/internal/graph"
)

// FrameHandle is the opaque per-output reference a caller holds: camera
// index, output index and a reference (never ownership) to the output's
// frame context. Created by ConfigCameraFrame; valid until Finalize.
//
// A FrameHandle is not safe for concurrent use. The caller serializes
// capture/get/free/render per output; independent outputs may be driven
// by independent goroutines.
type FrameHandle struct {
	pl     *pipeline
	camera int
	output int
	ctx    *capture.Context
}

// Camera returns the handle's camera index.
func (fc *FrameHandle) Camera() int { return fc.camera }

// Output returns the handle's splitter output index.
func (fc *FrameHandle) Output() int { return fc.output }

// slot resolves the handle's camera slot, verifying the subsystem is
// still alive and configuration has been finished.
func (fc *FrameHandle) slot() (*graph.Slot, error) {
	if fc.pl == nil || fc.pl.closed {
		return nil, fmt.Errorf("%w: subsystem finalized", ErrConfiguration)
	}
	if !fc.pl.finished {
		return nil, fmt.Errorf("%w: FinishConfig not called", ErrConfiguration)
	}
	return fc.pl.reg.Slot(fc.camera)
}

// CaptureNextFrame captures the next frame for this output, blocking
// until the hardware delivers one. Any previously captured, not yet
// rendered buffer is released first so it cannot leak. On the raw path
// this runs the software conversion loop (unpack, gain-correct,
// demosaic, histogram, auto-tune) before the wait.
//
// Cancellation is only via ctx: once the wait has started there is no
// other way to abort it short of tearing the graph down.
func (fc *FrameHandle) CaptureNextFrame(ctx context.Context) error {
	slot, err := fc.slot()
	if err != nil {
		return err
	}
	return fc.pl.capdrv.CaptureNext(ctx, slot, fc.ctx)
}

// Frame returns the captured frame's pixels. The slice aliases the
// delivered buffer: it is valid until the buffer is freed, rendered or
// replaced by the next capture. Fails with ErrNoFrameAvailable without
// a prior successful capture in this cycle.
func (fc *FrameHandle) Frame() ([]byte, error) {
	if _, err := fc.slot(); err != nil {
		return nil, err
	}
	return fc.pl.capdrv.Frame(fc.ctx)
}

// Free releases the captured buffer back to its pool. Idempotent, and a
// no-op when the buffer was already handed to the display stage.
func (fc *FrameHandle) Free() error {
	if _, err := fc.slot(); err != nil {
		return err
	}
	fc.pl.capdrv.Free(fc.ctx)
	return nil
}

// Render sends the captured buffer to the display stage. Release
// responsibility passes to the display: do not Free this cycle's buffer
// afterwards (doing so is a safe no-op). Fails with ErrNoFrameAvailable
// under the same preconditions as Frame.
func (fc *FrameHandle) Render() error {
	slot, err := fc.slot()
	if err != nil {
		return err
	}
	return fc.pl.capdrv.Render(slot, fc.ctx)
}

// Stats returns a snapshot of this output's capture bookkeeping.
func (fc *FrameHandle) Stats() CaptureStats {
	return fc.ctx.Stats()
}
