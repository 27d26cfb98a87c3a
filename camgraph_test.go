package camgraph_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/e7canasta/camgraph"
	"github.com/e7canasta/camgraph/hw"
	"github.com/e7canasta/camgraph/hw/sim"
)

func quietOpts(extra ...camgraph.Option) []camgraph.Option {
	opts := []camgraph.Option{
		camgraph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return append(opts, extra...)
}

// initSim brings the subsystem up on the simulation driver and registers
// the balancing Finalize.
func initSim(t *testing.T, extra ...camgraph.Option) {
	t.Helper()
	// Default driver first so a test-supplied WithDriver wins.
	opts := []camgraph.Option{camgraph.WithDriver(sim.New())}
	opts = append(opts, quietOpts(extra...)...)
	if err := camgraph.Init(opts...); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { camgraph.Finalize() })
}

// TestInitFinalizeRefcount: nested Init/Finalize pairs keep the
// subsystem alive until the counter hits zero.
//
// Scenario:
//  1. Init twice
//  2. One Finalize leaves the subsystem usable
//  3. The balancing Finalize tears it down
func TestInitFinalizeRefcount(t *testing.T) {
	opts := append(quietOpts(), camgraph.WithDriver(sim.New()))
	if err := camgraph.Init(opts...); err != nil {
		t.Fatalf("first Init failed: %v", err)
	}
	if err := camgraph.Init(opts...); err != nil {
		t.Fatalf("nested Init failed: %v", err)
	}

	if err := camgraph.Finalize(); err != nil {
		t.Fatalf("first Finalize failed: %v", err)
	}
	if got := camgraph.NumCameras(); got != 1 {
		t.Fatalf("cameras after one Finalize = %d, want subsystem still alive with 1", got)
	}

	if err := camgraph.Finalize(); err != nil {
		t.Fatalf("balancing Finalize failed: %v", err)
	}
	if got := camgraph.NumCameras(); got != 0 {
		t.Errorf("cameras after full Finalize = %d, want 0", got)
	}
}

// TestInitNoCameras: a camera-less system fails initialization with
// ErrNoCamerasFound, and the failed Init still needs its balancing
// Finalize.
func TestInitNoCameras(t *testing.T) {
	opts := append(quietOpts(), camgraph.WithDriver(sim.New(sim.WithCameras())))
	err := camgraph.Init(opts...)
	if !errors.Is(err, camgraph.ErrNoCamerasFound) {
		t.Fatalf("Init error = %v, want ErrNoCamerasFound", err)
	}
	camgraph.Finalize()
}

// TestScreenSize reports the simulated display resolution.
func TestScreenSize(t *testing.T) {
	initSim(t, camgraph.WithDriver(sim.New(sim.WithDisplaySize(1280, 720))))
	w, h, err := camgraph.ScreenSize()
	if err != nil {
		t.Fatalf("ScreenSize failed: %v", err)
	}
	if w != 1280 || h != 720 {
		t.Errorf("screen = %dx%d, want 1280x720", w, h)
	}
}

// TestConfigValidation: configuration errors surface before any graph is
// built and leave the subsystem usable.
func TestConfigValidation(t *testing.T) {
	initSim(t)

	if _, err := camgraph.ConfigCameraFrame(7, 640, 480, camgraph.FormatRGB24, false); err == nil {
		t.Error("out-of-range camera accepted")
	}
	if _, err := camgraph.ConfigCameraFrame(0, 0, 480, camgraph.FormatRGB24, false); err == nil {
		t.Error("zero width accepted")
	}
	if _, err := camgraph.ConfigCameraFrame(0, 9000, 480, camgraph.FormatRGB24, false); err == nil {
		t.Error("width beyond the sensor accepted")
	}

	for j := 0; j < 3; j++ {
		if _, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, false); err != nil {
			t.Fatalf("output %d rejected: %v", j, err)
		}
	}
	if _, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, false); !errors.Is(err, camgraph.ErrTooManyOutputs) {
		t.Errorf("fourth output error = %v, want ErrTooManyOutputs", err)
	}
}

// TestCaptureRenderLoop is the steady-state end-to-end scenario: one
// fullscreen VGA output, five capture/render cycles, consistent stats.
func TestCaptureRenderLoop(t *testing.T) {
	initSim(t)

	fc, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, false)
	if err != nil {
		t.Fatalf("ConfigCameraFrame failed: %v", err)
	}
	if err := camgraph.ConfigCameraFrameRender(fc, camgraph.RenderConfig{Fullscreen: true, Layer: 2}); err != nil {
		t.Fatalf("ConfigCameraFrameRender failed: %v", err)
	}
	if err := camgraph.FinishConfig(); err != nil {
		t.Fatalf("FinishConfig failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := fc.CaptureNextFrame(ctx); err != nil {
			t.Fatalf("capture %d failed: %v", i, err)
		}
		data, err := fc.Frame()
		if err != nil {
			t.Fatalf("Frame %d failed: %v", i, err)
		}
		if want := 640 * 480 * 3; len(data) != want {
			t.Fatalf("frame %d payload = %d bytes, want %d", i, len(data), want)
		}
		if err := fc.Render(); err != nil {
			t.Fatalf("Render %d failed: %v", i, err)
		}
	}

	stats := fc.Stats()
	if stats.Frames != 5 {
		t.Errorf("frames = %d, want 5", stats.Frames)
	}
	t.Logf("captured %d frames at %.1f fps", stats.Frames, stats.FPS())
}

// TestTwoOutputsIndependent: two outputs of different sizes and formats
// capture independently off the same splitter.
func TestTwoOutputsIndependent(t *testing.T) {
	initSim(t)

	big, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, false)
	if err != nil {
		t.Fatal(err)
	}
	small, err := camgraph.ConfigCameraFrame(0, 320, 240, camgraph.FormatRGBA, false)
	if err != nil {
		t.Fatal(err)
	}
	if big.Output() == small.Output() {
		t.Fatalf("outputs share fan-out index %d", big.Output())
	}
	if err := camgraph.FinishConfig(); err != nil {
		t.Fatalf("FinishConfig failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		for _, fc := range []*camgraph.FrameHandle{big, small} {
			if err := fc.CaptureNextFrame(ctx); err != nil {
				t.Fatalf("output %d capture %d failed: %v", fc.Output(), i, err)
			}
		}
		bd, err := big.Frame()
		if err != nil {
			t.Fatal(err)
		}
		sd, err := small.Frame()
		if err != nil {
			t.Fatal(err)
		}
		if len(bd) != 640*480*3 {
			t.Fatalf("big payload = %d bytes", len(bd))
		}
		if len(sd) != 320*240*4 {
			t.Fatalf("small payload = %d bytes", len(sd))
		}
		big.Free()
		small.Free()
	}
}

// TestConfigAfterFinish: every configuration operation is rejected once
// the graph is built.
func TestConfigAfterFinish(t *testing.T) {
	initSim(t)

	fc, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := camgraph.FinishConfig(); err != nil {
		t.Fatalf("FinishConfig failed: %v", err)
	}

	if _, err := camgraph.ConfigCameraFrame(0, 320, 240, camgraph.FormatRGB24, false); !errors.Is(err, camgraph.ErrConfiguration) {
		t.Errorf("ConfigCameraFrame after finish error = %v, want ErrConfiguration", err)
	}
	if err := camgraph.ConfigCameraPort(0, camgraph.CameraPortCapture); !errors.Is(err, camgraph.ErrConfiguration) {
		t.Errorf("ConfigCameraPort after finish error = %v, want ErrConfiguration", err)
	}
	if err := camgraph.ConfigCameraFrameRender(fc, camgraph.RenderConfig{Fullscreen: true}); !errors.Is(err, camgraph.ErrConfiguration) {
		t.Errorf("ConfigCameraFrameRender after finish error = %v, want ErrConfiguration", err)
	}
	if err := camgraph.FinishConfig(); !errors.Is(err, camgraph.ErrConfiguration) {
		t.Errorf("second FinishConfig error = %v, want ErrConfiguration", err)
	}
}

// TestCapturePortEndToEnd selects the stills output and survives the
// zero-length delivery quirk injected by the simulation.
func TestCapturePortEndToEnd(t *testing.T) {
	initSim(t, camgraph.WithDriver(sim.New(sim.WithZeroLengthEvery(2))))

	if err := camgraph.ConfigCameraPort(0, camgraph.CameraPortCapture); err != nil {
		t.Fatalf("ConfigCameraPort failed: %v", err)
	}
	fc, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := camgraph.FinishConfig(); err != nil {
		t.Fatalf("FinishConfig failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := fc.CaptureNextFrame(ctx); err != nil {
			t.Fatalf("capture %d failed: %v", i, err)
		}
		if err := fc.Free(); err != nil {
			t.Fatalf("Free %d failed: %v", i, err)
		}
	}
	stats := fc.Stats()
	if stats.Frames != 4 {
		t.Errorf("frames = %d, want 4", stats.Frames)
	}
	if stats.ZeroLengthRetries == 0 {
		t.Error("no zero-length retries counted on the capture output")
	}
}

// TestRawSensorEndToEnd runs the raw Bayer path through the public API:
// sensor config, graph build, software conversion, delivery.
func TestRawSensorEndToEnd(t *testing.T) {
	initSim(t)

	if err := camgraph.ConfigRawSensor(0, camgraph.RawSensorConfig{
		Model:    camgraph.SensorIMX219,
		Width:    1920,
		Height:   1080,
		BitDepth: 10,
		Order:    camgraph.BayerRGGB,
	}); err != nil {
		t.Fatalf("ConfigRawSensor failed: %v", err)
	}
	fc, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := camgraph.FinishConfig(); err != nil {
		t.Fatalf("FinishConfig failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := fc.CaptureNextFrame(ctx); err != nil {
			t.Fatalf("raw capture %d failed: %v", i, err)
		}
		data, err := fc.Frame()
		if err != nil {
			t.Fatal(err)
		}
		if want := 640 * 480 * 3; len(data) != want {
			t.Fatalf("payload = %d bytes, want %d", len(data), want)
		}
		if err := fc.Render(); err != nil {
			t.Fatalf("Render %d failed: %v", i, err)
		}
	}
	if got := fc.Stats().Frames; got != 3 {
		t.Errorf("frames = %d, want 3", got)
	}
}

// TestHandleInvalidAfterFinalize: outstanding frame handles fail cleanly
// once the subsystem is gone.
func TestHandleInvalidAfterFinalize(t *testing.T) {
	opts := append(quietOpts(), camgraph.WithDriver(sim.New()))
	if err := camgraph.Init(opts...); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	fc, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := camgraph.FinishConfig(); err != nil {
		t.Fatal(err)
	}
	if err := camgraph.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if err := fc.CaptureNextFrame(context.Background()); !errors.Is(err, camgraph.ErrConfiguration) {
		t.Errorf("capture after finalize error = %v, want ErrConfiguration", err)
	}
	if _, err := fc.Frame(); !errors.Is(err, camgraph.ErrConfiguration) {
		t.Errorf("frame after finalize error = %v, want ErrConfiguration", err)
	}
}

// TestProbedCapabilitiesBound: the probed sensor maximum from a custom
// capability table bounds configuration.
func TestProbedCapabilitiesBound(t *testing.T) {
	initSim(t, camgraph.WithDriver(sim.New(sim.WithCameras(
		hw.CameraCapability{Index: 0, MaxWidth: 1280, MaxHeight: 720},
		hw.CameraCapability{Index: 1, MaxWidth: 3280, MaxHeight: 2464},
	))))

	if got := camgraph.NumCameras(); got != 2 {
		t.Fatalf("cameras = %d, want 2", got)
	}
	if _, err := camgraph.ConfigCameraFrame(0, 1920, 1080, camgraph.FormatRGB24, false); err == nil {
		t.Error("camera 0 accepted a request beyond its probed maximum")
	}
	if _, err := camgraph.ConfigCameraFrame(1, 1920, 1080, camgraph.FormatRGB24, false); err != nil {
		t.Errorf("camera 1 rejected an in-range request: %v", err)
	}
}
