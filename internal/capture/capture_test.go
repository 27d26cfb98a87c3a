package capture_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/e7canasta/camgraph/hw"
	"github.com/e7canasta/camgraph/hw/sim"

	"github.com/e7canasta/camgraph/internal/capture"
	"github.com/e7canasta/camgraph/internal/graph"
	"github.com/e7canasta/camgraph/internal/rawcam"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildSlot configures and builds a single-output slot against the
// given driver, returning the slot and a teardown function.
func buildSlot(t *testing.T, drv hw.Driver, mutate func(*graph.Slot)) *graph.Slot {
	t.Helper()
	reg := graph.NewRegistry([]hw.CameraCapability{{Index: 0, MaxWidth: 3280, MaxHeight: 2464}})
	slot, err := reg.Slot(0)
	if err != nil {
		t.Fatalf("Slot(0) failed: %v", err)
	}
	if _, err := slot.RequestOutput(640, 480, hw.FormatRGB24, false); err != nil {
		t.Fatalf("RequestOutput failed: %v", err)
	}
	if mutate != nil {
		mutate(slot)
	}
	b := &graph.Builder{Driver: drv, Log: quietLogger()}
	built, err := b.FinishSlot(slot)
	if err != nil {
		t.Fatalf("FinishSlot failed: %v", err)
	}
	slot.Built = built
	t.Cleanup(func() { built.Teardown(quietLogger()) })
	return slot
}

// TestFrameBeforeCapture: accessing or rendering a frame without a
// successful capture fails with ErrNoFrameAvailable.
func TestFrameBeforeCapture(t *testing.T) {
	slot := buildSlot(t, sim.New(), nil)
	d := capture.Driver{Log: quietLogger()}
	fc := capture.NewContext(0, 0, false)

	if _, err := d.Frame(fc); !errors.Is(err, capture.ErrNoFrameAvailable) {
		t.Errorf("Frame error = %v, want ErrNoFrameAvailable", err)
	}
	if err := d.Render(slot, fc); !errors.Is(err, capture.ErrNoFrameAvailable) {
		t.Errorf("Render error = %v, want ErrNoFrameAvailable", err)
	}
}

// TestCaptureFrameRenderCycle runs the full state machine:
//
//	Empty → Captured → Rendered
//
// and checks the payload size, ownership transitions and that a second
// access after handing the buffer to the display fails.
func TestCaptureFrameRenderCycle(t *testing.T) {
	slot := buildSlot(t, sim.New(), nil)
	d := capture.Driver{Log: quietLogger()}
	fc := capture.NewContext(0, 0, false)

	if err := d.CaptureNext(context.Background(), slot, fc); err != nil {
		t.Fatalf("CaptureNext failed: %v", err)
	}
	if fc.Owner() != capture.OwnerContext {
		t.Fatalf("owner after capture = %s, want held-by-context", fc.Owner())
	}

	data, err := d.Frame(fc)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if want := 640 * 480 * 3; len(data) != want {
		t.Fatalf("payload = %d bytes, want %d", len(data), want)
	}

	if err := d.Render(slot, fc); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if fc.Owner() != capture.OwnerDisplay {
		t.Fatalf("owner after render = %s, want held-by-display", fc.Owner())
	}
	if _, err := d.Frame(fc); !errors.Is(err, capture.ErrNoFrameAvailable) {
		t.Errorf("Frame after render error = %v, want ErrNoFrameAvailable", err)
	}
	if err := d.Render(slot, fc); !errors.Is(err, capture.ErrNoFrameAvailable) {
		t.Errorf("second Render error = %v, want ErrNoFrameAvailable", err)
	}
}

// TestFreeIdempotent: Free releases once and is a no-op on an empty
// context and after a render.
func TestFreeIdempotent(t *testing.T) {
	slot := buildSlot(t, sim.New(), nil)
	d := capture.Driver{Log: quietLogger()}
	fc := capture.NewContext(0, 0, false)

	d.Free(fc) // empty context

	if err := d.CaptureNext(context.Background(), slot, fc); err != nil {
		t.Fatalf("CaptureNext failed: %v", err)
	}
	d.Free(fc)
	d.Free(fc) // second free must not double-release
	if fc.Owner() != capture.OwnerNone {
		t.Fatalf("owner after free = %s, want unowned", fc.Owner())
	}
	if _, err := d.Frame(fc); !errors.Is(err, capture.ErrNoFrameAvailable) {
		t.Errorf("Frame after free error = %v, want ErrNoFrameAvailable", err)
	}
}

// TestCaptureReleasesHeldBuffer: capturing repeatedly without freeing
// must not exhaust the pool; each capture drops the previous buffer.
func TestCaptureReleasesHeldBuffer(t *testing.T) {
	slot := buildSlot(t, sim.New(), nil)
	d := capture.Driver{Log: quietLogger()}
	fc := capture.NewContext(0, 0, false)

	for i := 0; i < 10; i++ {
		if err := d.CaptureNext(context.Background(), slot, fc); err != nil {
			t.Fatalf("capture %d failed: %v", i, err)
		}
	}
	if got := fc.Stats().Frames; got != 10 {
		t.Errorf("frames = %d, want 10", got)
	}
}

// TestCaptureCancellation: a canceled context aborts the wait and the
// frame context reports no frame.
func TestCaptureCancellation(t *testing.T) {
	slot := buildSlot(t, sim.New(), nil)
	d := capture.Driver{Log: quietLogger()}
	fc := capture.NewContext(0, 0, false)

	// Capture once so buffers are in flight, then drain and cancel.
	if err := d.CaptureNext(context.Background(), slot, fc); err != nil {
		t.Fatalf("CaptureNext failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.CaptureNext(ctx, slot, fc); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled capture error = %v, want context.Canceled", err)
	}
	if _, err := d.Frame(fc); !errors.Is(err, capture.ErrNoFrameAvailable) {
		t.Errorf("Frame after failed capture error = %v, want ErrNoFrameAvailable", err)
	}
}

// TestZeroLengthRetry: zero-payload deliveries on the capture-style
// output are released and re-waited, never surfaced, and the retry is
// counted.
func TestZeroLengthRetry(t *testing.T) {
	drv := sim.New(sim.WithZeroLengthEvery(3))
	slot := buildSlot(t, drv, func(s *graph.Slot) { s.Port = graph.PortCapture })
	d := capture.Driver{Log: quietLogger()}
	fc := capture.NewContext(0, 0, false)

	for i := 0; i < 6; i++ {
		if err := d.CaptureNext(context.Background(), slot, fc); err != nil {
			t.Fatalf("capture %d failed: %v", i, err)
		}
		data, err := d.Frame(fc)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", i, err)
		}
		if len(data) == 0 {
			t.Fatal("zero-length payload surfaced to the caller")
		}
		d.Free(fc)
	}
	stats := fc.Stats()
	if stats.Frames != 6 {
		t.Errorf("frames = %d, want 6", stats.Frames)
	}
	if stats.ZeroLengthRetries == 0 {
		t.Error("zero-length deliveries were never injected or never counted")
	}
}

// TestRawCapture drives the raw Bayer path end to end against the
// simulation front end: receiver negotiation, software conversion and
// splitter injection, with the leading side-info buffer skipped.
func TestRawCapture(t *testing.T) {
	slot := buildSlot(t, sim.New(), func(s *graph.Slot) {
		s.Raw = true
		s.Sensor = rawcam.SensorConfig{
			Model: rawcam.ModelIMX219, Width: 1920, Height: 1080,
			BitDepth: 10, Order: hw.BayerRGGB,
		}
	})
	d := capture.Driver{Log: quietLogger()}
	fc := capture.NewContext(0, 0, false)

	for i := 0; i < 3; i++ {
		if err := d.CaptureNext(context.Background(), slot, fc); err != nil {
			t.Fatalf("raw capture %d failed: %v", i, err)
		}
		data, err := d.Frame(fc)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", i, err)
		}
		if want := 640 * 480 * 3; len(data) != want {
			t.Fatalf("payload = %d bytes, want %d", len(data), want)
		}
		d.Free(fc)
	}
	stats := fc.Stats()
	if stats.Frames != 3 {
		t.Errorf("frames = %d, want 3", stats.Frames)
	}
	if stats.SideInfoSkipped == 0 {
		t.Error("side-info buffer was never skipped")
	}
}
