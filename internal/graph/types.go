package graph

import (
	"fmt"
	"sync"

	"github.com/e7canasta/camgraph/hw"

	"github.com/e7canasta/camgraph/internal/rawcam"
)

// PortSelection picks which physical source output feeds the slot.
type PortSelection int

const (
	// PortPreview is the sensor's low-latency preview output.
	PortPreview PortSelection = iota
	// PortCapture is the higher-quality stills output. Selecting it
	// forces the preview output into a sink so the sensor's AWB/AE
	// control loop keeps running.
	PortCapture
)

func (p PortSelection) String() string {
	if p == PortCapture {
		return "capture"
	}
	return "preview"
}

// usableOutputs reserves one splitter output so the fan-out is never
// saturated.
const usableOutputs = hw.MaxFanout - 1

// OutputRequest is one consumer's desired frame format, recorded at
// configuration time and realized by the processor stage built for it.
type OutputRequest struct {
	Width, Height int32
	Pixel         hw.PixelFormat
	ZeroCopy      bool
}

// Fanout tracks a slot's splitter output allocation. Indices are
// assigned monotonically and never reused within a slot's lifetime.
type Fanout struct {
	Next    int
	Outputs [hw.MaxFanout]OutputRequest
}

// RenderRegion is the display destination for one output. Last write
// before graph construction wins; the renderer stage reads it once.
type RenderRegion struct {
	Fullscreen bool
	Dest       hw.Rect
	Layer      int32
	Set        bool
}

// Slot is the per-camera configuration record: the owned replacement for
// the reference system's global per-camera arrays.
type Slot struct {
	Camera    int
	InUse     bool
	MaxWidth  int32 // sensor limit, probed once at init, immutable
	MaxHeight int32

	// WorkWidth/WorkHeight is the common working resolution upstream of
	// the splitter, computed by the builder as the elementwise maximum
	// of all output requests.
	WorkWidth, WorkHeight int32

	Port PortSelection

	Raw    bool
	Sensor rawcam.SensorConfig

	Fanout  Fanout
	Renders [hw.MaxFanout]RenderRegion

	Built *Built
}

// RequestOutput validates and records one output request, returning the
// allocated splitter output index. On any failure the slot is left
// untouched.
func (s *Slot) RequestOutput(width, height int32, pixel hw.PixelFormat, zeroCopy bool) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: invalid frame size %dx%d", ErrConfiguration, width, height)
	}
	if width > s.MaxWidth {
		return 0, fmt.Errorf("%w: width %d exceeds camera %d maximum %d",
			ErrConfiguration, width, s.Camera, s.MaxWidth)
	}
	if height > s.MaxHeight {
		return 0, fmt.Errorf("%w: height %d exceeds camera %d maximum %d",
			ErrConfiguration, height, s.Camera, s.MaxHeight)
	}
	switch pixel {
	case hw.FormatRGB24, hw.FormatRGBA:
	default:
		return 0, fmt.Errorf("%w: unsupported frame format %s", ErrConfiguration, pixel)
	}
	if s.Fanout.Next >= usableOutputs {
		return 0, fmt.Errorf("%w: camera %d already has %d outputs",
			ErrTooManyOutputs, s.Camera, s.Fanout.Next)
	}

	idx := s.Fanout.Next
	s.Fanout.Next++
	s.Fanout.Outputs[idx] = OutputRequest{
		Width: width, Height: height, Pixel: pixel, ZeroCopy: zeroCopy,
	}
	s.InUse = true
	return idx, nil
}

// Registry owns the camera slots: a mapping from camera index to its
// heap-allocated record, bounded by the probed capability table.
type Registry struct {
	mu    sync.Mutex
	caps  []hw.CameraCapability
	slots map[int]*Slot
}

// NewRegistry binds a registry to the probed capability table.
func NewRegistry(caps []hw.CameraCapability) *Registry {
	return &Registry{caps: caps, slots: make(map[int]*Slot)}
}

// NumCameras returns the probed physical camera count.
func (r *Registry) NumCameras() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.caps)
}

// Slot returns the record for the given camera, creating it on first
// use. Indices at or beyond the probed camera count are configuration
// errors and never allocate state.
func (r *Registry) Slot(camera int) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if camera < 0 || camera >= len(r.caps) {
		return nil, fmt.Errorf("%w: camera %d out of range (have %d cameras)",
			ErrConfiguration, camera, len(r.caps))
	}
	s, ok := r.slots[camera]
	if !ok {
		cap := r.caps[camera]
		s = &Slot{
			Camera:    camera,
			MaxWidth:  cap.MaxWidth,
			MaxHeight: cap.MaxHeight,
		}
		r.slots[camera] = s
	}
	return s, nil
}

// InUse returns the slots that have at least one configured output, in
// camera order.
func (r *Registry) InUse() []*Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Slot
	for i := range r.caps {
		if s, ok := r.slots[i]; ok && s.InUse {
			out = append(out, s)
		}
	}
	return out
}

// Invalidate drops every slot record. Called at final subsystem
// teardown; capability data is discarded with the registry itself.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = make(map[int]*Slot)
}
