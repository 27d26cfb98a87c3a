package camgraph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/camgraph/hw"
	"github.com/e7canasta/camgraph/hw/gstdrv"

	"github.com/e7canasta/camgraph/internal/capture"
	"github.com/e7canasta/camgraph/internal/graph"
)

// pipeline is the subsystem state behind the package-level API: the
// owned registry of camera slots plus the builder and capture driver
// bound to one hardware driver.
type pipeline struct {
	drv     hw.Driver
	log     *slog.Logger
	reg     *graph.Registry
	builder graph.Builder
	capdrv  capture.Driver

	finished bool
	closed   bool
}

var (
	mu        sync.Mutex
	initCount int
	state     *pipeline
)

// Option configures Init.
type Option func(*initOptions)

type initOptions struct {
	driver hw.Driver
	log    *slog.Logger
}

// WithDriver selects the hardware driver. Default is the
// GStreamer-backed driver; tests use hw/sim.
func WithDriver(d hw.Driver) Option {
	return func(o *initOptions) { o.driver = d }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *initOptions) { o.log = l }
}

// Init brings the subsystem up. Idempotent via an internal call counter;
// the counter is incremented even when init fails, so Init/Finalize
// calls stay balanced regardless of outcome. The first call probes the
// physical cameras through a transient capability stage and records each
// camera's maximum resolution; a probe failure is fatal since no camera
// configuration is possible afterwards.
func Init(opts ...Option) (err error) {
	mu.Lock()
	defer mu.Unlock()
	defer func() { initCount++ }()

	if state != nil {
		return nil
	}

	o := initOptions{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.driver == nil {
		o.driver = gstdrv.New()
	}

	caps, err := probeCameras(o.driver)
	if err != nil {
		return err
	}
	o.log.Info("camgraph: initialized", "driver", o.driver.Name(), "cameras", len(caps))

	state = &pipeline{
		drv:     o.driver,
		log:     o.log,
		reg:     graph.NewRegistry(caps),
		builder: graph.Builder{Driver: o.driver, Log: o.log},
		capdrv:  capture.Driver{Log: o.log},
	}
	return nil
}

// probeCameras creates the transient capability stage, reads the camera
// table and destroys the stage again.
func probeCameras(drv hw.Driver) ([]hw.CameraCapability, error) {
	st, err := drv.NewStage(hw.KindCameraInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: capability stage: %v", ErrStageCreation, err)
	}
	defer st.Destroy()

	v, err := st.Property("camera-info")
	if err != nil {
		return nil, fmt.Errorf("%w: camera info: %v", ErrStageQuery, err)
	}
	caps, ok := v.([]hw.CameraCapability)
	if !ok {
		return nil, fmt.Errorf("%w: camera info has unexpected type %T", ErrStageQuery, v)
	}
	if len(caps) == 0 {
		return nil, ErrNoCamerasFound
	}
	return caps, nil
}

// Finalize balances one Init call. Only when the counter reaches zero is
// the subsystem actually torn down: built graphs are released in reverse
// construction order and all slot records are invalidated. Outstanding
// FrameHandles become invalid.
func Finalize() error {
	mu.Lock()
	defer mu.Unlock()

	initCount--
	if initCount > 0 || state == nil {
		return nil
	}

	for _, s := range state.reg.InUse() {
		if s.Built != nil {
			s.Built.Teardown(state.log)
			s.Built = nil
		}
	}
	state.reg.Invalidate()
	state.closed = true
	state.log.Info("camgraph: finalized")
	state = nil
	return nil
}

// current returns the live pipeline or an error when the subsystem is
// not initialized.
func current() (*pipeline, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: subsystem not initialized", ErrConfiguration)
	}
	return state, nil
}

// NumCameras reports the probed physical camera count.
func NumCameras() int {
	mu.Lock()
	defer mu.Unlock()
	if state == nil {
		return 0
	}
	return state.reg.NumCameras()
}

// ScreenSize reports the active display resolution.
func ScreenSize() (width, height int32, err error) {
	mu.Lock()
	defer mu.Unlock()
	pl, err := current()
	if err != nil {
		return 0, 0, err
	}
	return pl.drv.DisplaySize()
}

// ConfigCameraFrame requests one output frame stream from a camera:
// it validates the camera index and size against the probed limits,
// allocates the next splitter fan-out index, records the per-output
// format request and returns the FrameHandle for that output.
//
// Up to three outputs may be configured per camera. On any failure the
// slot state is left untouched.
func ConfigCameraFrame(camera int, width, height int32, pixel PixelFormat, zeroCopy bool) (*FrameHandle, error) {
	mu.Lock()
	defer mu.Unlock()
	pl, err := current()
	if err != nil {
		return nil, err
	}
	if pl.finished {
		return nil, fmt.Errorf("%w: configuration already finished", ErrConfiguration)
	}
	slot, err := pl.reg.Slot(camera)
	if err != nil {
		return nil, err
	}
	idx, err := slot.RequestOutput(width, height, pixel, zeroCopy)
	if err != nil {
		return nil, err
	}
	fc := &FrameHandle{
		pl:     pl,
		camera: camera,
		output: idx,
		ctx:    capture.NewContext(camera, idx, zeroCopy),
	}
	pl.log.Info("camgraph: output configured",
		"camera", camera, "output", idx,
		"size", fmt.Sprintf("%dx%d", width, height),
		"format", pixel.String(), "zero_copy", zeroCopy)
	return fc, nil
}

// ConfigCameraPort selects the source output feeding the camera's
// splitter: the low-latency preview output or the higher-quality
// capture output.
func ConfigCameraPort(camera int, port CameraPort) error {
	mu.Lock()
	defer mu.Unlock()
	pl, err := current()
	if err != nil {
		return err
	}
	if pl.finished {
		return fmt.Errorf("%w: configuration already finished", ErrConfiguration)
	}
	slot, err := pl.reg.Slot(camera)
	if err != nil {
		return err
	}
	slot.Port = port
	return nil
}

// ConfigCameraFrameRender sets the display destination for one output.
// May be called multiple times before FinishConfig; the last write wins.
func ConfigCameraFrameRender(fc *FrameHandle, cfg RenderConfig) error {
	mu.Lock()
	defer mu.Unlock()
	pl, err := current()
	if err != nil {
		return err
	}
	if fc == nil || fc.pl != pl {
		return fmt.Errorf("%w: frame handle does not belong to this subsystem", ErrConfiguration)
	}
	if pl.finished {
		return fmt.Errorf("%w: configuration already finished", ErrConfiguration)
	}
	slot, err := pl.reg.Slot(fc.camera)
	if err != nil {
		return err
	}
	slot.Renders[fc.output] = graph.RenderRegion{
		Fullscreen: cfg.Fullscreen,
		Dest:       hw.Rect{X: cfg.X, Y: cfg.Y, Width: cfg.Width, Height: cfg.Height},
		Layer:      cfg.Layer,
		Set:        true,
	}
	return nil
}

// ConfigRawSensor switches a camera slot to the raw Bayer ingestion
// path. The configuration is validated and applied during FinishConfig;
// the driver must provide raw receiver support.
func ConfigRawSensor(camera int, cfg RawSensorConfig) error {
	mu.Lock()
	defer mu.Unlock()
	pl, err := current()
	if err != nil {
		return err
	}
	if pl.finished {
		return fmt.Errorf("%w: configuration already finished", ErrConfiguration)
	}
	slot, err := pl.reg.Slot(camera)
	if err != nil {
		return err
	}
	slot.Raw = true
	slot.Sensor = cfg
	return nil
}

// FinishConfig builds, connects and enables the stage graph of every
// configured camera slot, in dependency order, and primes each delivery
// connection's buffer pool. Any failure aborts the whole operation and
// is fatal to that camera slot; the partial graph is rolled back.
func FinishConfig() error {
	mu.Lock()
	defer mu.Unlock()
	pl, err := current()
	if err != nil {
		return err
	}
	if pl.finished {
		return fmt.Errorf("%w: configuration already finished", ErrConfiguration)
	}
	for _, slot := range pl.reg.InUse() {
		built, err := pl.builder.FinishSlot(slot)
		if err != nil {
			return fmt.Errorf("building camera %d graph: %w", slot.Camera, err)
		}
		slot.Built = built
	}
	pl.finished = true
	return nil
}
