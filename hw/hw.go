// Package hw defines the hardware component model driven by camgraph:
// stages with typed ports, directed buffer-pool-backed connections, and
// a Driver that creates them.
//
// # Model
//
// A Stage is a processing node (camera source, splitter, image processor,
// renderer, sink, raw front-end). Ports carry a pixel format, a padded
// working resolution and an exact crop rectangle. A Connection links one
// stage's output port to another's input port and owns the buffer pool
// circulating between them.
//
// Ordering rules the caller must respect:
//
//  1. A port must be committed before the owning stage is enabled.
//  2. A stage must be enabled before any connection touching it is created.
//  3. A connection must be enabled before buffers flow through it.
//
// # Buffer ownership
//
// Exactly one side holds write access to a Buffer at any time. Ownership
// transfers explicitly at each hand-off: pool → producer (SendUpstream),
// producer → caller (WaitDelivery), caller → consumer (SendDownstream),
// caller → pool (Release). Violations are programming errors, not runtime
// conditions, and drivers are free to panic on double release.
//
// # Drivers
//
// Two drivers ship with camgraph: hw/sim (software, hardware-free, used by
// the test suite) and hw/gstdrv (GStreamer-backed). Callers select one at
// Init time; the graph builder is driver-agnostic.
package hw

import "context"

// StageKind tags the node variants of the pipeline graph.
type StageKind int

const (
	// KindCameraInfo is the transient capability-probe stage created once
	// at subsystem init to enumerate cameras and their limits.
	KindCameraInfo StageKind = iota
	// KindSource is a fixed-function camera source producing color frames.
	KindSource
	// KindRawFrontEnd streams packed Bayer data from the sensor,
	// bypassing the fixed-function image pipe.
	KindRawFrontEnd
	// KindSplitter fans one input out to up to MaxFanout outputs.
	KindSplitter
	// KindProcessor is a format/scale image processor.
	KindProcessor
	// KindRenderer composites its input onto the display.
	KindRenderer
	// KindSink discards its input. Used to keep the sensor's AWB/AE loop
	// alive when the preview output has no consumer.
	KindSink
)

// String returns the component-model name of the stage kind.
func (k StageKind) String() string {
	switch k {
	case KindCameraInfo:
		return "camera-info"
	case KindSource:
		return "source"
	case KindRawFrontEnd:
		return "raw-front-end"
	case KindSplitter:
		return "splitter"
	case KindProcessor:
		return "processor"
	case KindRenderer:
		return "renderer"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// MaxFanout is the physical output count of a splitter stage. One output
// is reserved by the graph builder so the fan-out is never saturated.
const MaxFanout = 4

// PixelFormat identifies a wire pixel layout on a port.
type PixelFormat uint32

const (
	FormatUnknown PixelFormat = iota
	// FormatOpaque is a driver-internal handle format used on tunneled
	// links where the payload never reaches the CPU.
	FormatOpaque
	// FormatRGB24 is 8-bit-per-channel packed RGB.
	FormatRGB24
	// FormatRGBA is 8-bit-per-channel packed RGBA.
	FormatRGBA
	// FormatBayer is packed raw Bayer; bit depth and ordering travel in
	// the MIPI receiver config, not in the port format.
	FormatBayer
)

// String returns a caps-style name for the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatOpaque:
		return "opaque"
	case FormatRGB24:
		return "rgb24"
	case FormatRGBA:
		return "rgba"
	case FormatBayer:
		return "bayer"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the packed pixel stride for CPU-visible formats,
// or 0 for opaque/raw formats whose stride is driver-defined.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB24:
		return 3
	case FormatRGBA:
		return 4
	default:
		return 0
	}
}

// Rect is a crop or destination rectangle in pixels.
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// PortFormat is the committed working format of a port: a padded working
// canvas plus the exact crop the downstream consumer wants.
type PortFormat struct {
	Pixel         PixelFormat
	Width, Height int32 // padded working size
	Crop          Rect  // exact requested region
}

// CameraCapability is one physical camera's limits, probed once at init.
type CameraCapability struct {
	Index     int
	MaxWidth  int32
	MaxHeight int32
}

// Port is a typed endpoint on a stage.
type Port interface {
	// Index is the port's position within its direction group.
	Index() int
	// Commit applies the format to the hardware. Fails if the driver
	// rejects the format/size combination; such failures indicate a
	// configuration bug and must not be retried.
	Commit(PortFormat) error
	// Format returns the last committed format.
	Format() PortFormat
	// SetZeroCopy selects by-reference buffer sharing across this port.
	SetZeroCopy(enabled bool) error
}

// Stage is a processing node instance.
type Stage interface {
	// ID is the unique instance identifier assigned at creation.
	ID() string
	Kind() StageKind

	// Input and Output return the i-th port of the given direction.
	Input(i int) (Port, error)
	Output(i int) (Port, error)

	// SetProperty tunes a driver-defined stage property, e.g.
	// "camera-index", "use-capture-port", "capture-trigger", "layer".
	SetProperty(name string, value any) error
	// Property reads a driver-defined property, e.g. "camera-info".
	Property(name string) (any, error)

	// Enable starts the stage. All ports must be committed first.
	Enable() error
	// Disable stops the stage. Connections touching it must already be
	// disabled.
	Disable() error
	// Destroy releases the instance. Idempotent.
	Destroy() error
}

// ConnFlags selects connection behavior at creation.
type ConnFlags uint32

const (
	// ConnTunneled links the ports inside the driver; buffers never
	// surface to the caller and the connection has no pool or delivery
	// queue.
	ConnTunneled ConnFlags = 1 << iota
)

// Connection is a directed, pool-backed link between two ports.
type Connection interface {
	// ID is the unique connection identifier assigned at creation.
	ID() string
	// Enable opens the link for buffer flow.
	Enable() error
	// Disable stops buffer flow. Blocked waits are released with an error.
	Disable() error

	// TakeFree pops a free buffer from the pool, or nil when empty.
	// Tunneled connections always return nil.
	TakeFree() *Buffer
	// SendUpstream hands an empty buffer to the producer side so it has
	// something to fill. Ownership transfers to the driver.
	SendUpstream(*Buffer) error
	// WaitDelivery blocks until the producer delivers a filled buffer.
	// Ownership of the returned buffer transfers to the caller. Returns
	// ctx.Err() on cancellation and an error after Disable.
	WaitDelivery(ctx context.Context) (*Buffer, error)
	// SendDownstream pushes a held buffer into the consumer-side input
	// port. Ownership transfers to the consumer, which releases the
	// buffer back to the pool when done with it.
	SendDownstream(*Buffer) error
}

// Driver creates stages and connections for one hardware backend.
type Driver interface {
	// Name identifies the backend ("sim", "gst").
	Name() string
	// NewStage creates a disabled stage instance of the given kind.
	NewStage(kind StageKind) (Stage, error)
	// Connect creates a directed connection from an output port to an
	// input port. Both ports must be committed and both owning stages
	// enabled. The connection starts disabled.
	Connect(out, in Port, flags ConnFlags) (Connection, error)
	// DisplaySize reports the active display resolution.
	DisplaySize() (width, height int32, err error)
}

// BufferSink is implemented by input ports that accept buffers submitted
// directly by software, outside any connection. The raw path uses this to
// inject converted RGB frames into the splitter input.
type BufferSink interface {
	// Submit hands a filled buffer to the port. Ownership transfers to
	// the driver; the buffer is released once consumed.
	Submit(*Buffer) error
}

// BayerOrder is the color ordering of the top-left 2x2 Bayer cell.
type BayerOrder int

const (
	BayerRGGB BayerOrder = iota
	BayerBGGR
	BayerGBRG
	BayerGRBG
)

// String returns the conventional four-letter ordering name.
func (o BayerOrder) String() string {
	switch o {
	case BayerRGGB:
		return "RGGB"
	case BayerBGGR:
		return "BGGR"
	case BayerGBRG:
		return "GBRG"
	case BayerGRBG:
		return "GRBG"
	default:
		return "unknown"
	}
}

// MIPIConfig is the CSI-2 receiver configuration record negotiated with a
// raw front-end. The graph builder obtains it, adjusts encoding fields for
// the requested bit depth and ordering, and re-applies it before enabling
// the front-end.
type MIPIConfig struct {
	Lanes    int
	BitDepth int // 8, 10 or 12 bits per sample, packed
	Order    BayerOrder
	ImageID  byte // CSI-2 data type for image payload
	DataLen  int  // packed bytes per line
}

// RawStreamer is implemented by raw front-end stages. It exposes the
// front-end's two buffer queues directly: empties flow to the hardware,
// filled raw buffers flow back.
type RawStreamer interface {
	// ReceiverConfig returns the current MIPI receiver configuration.
	ReceiverConfig() (MIPIConfig, error)
	// ApplyReceiverConfig installs an adjusted configuration. Must be
	// called before Enable.
	ApplyReceiverConfig(MIPIConfig) error
	// TakeEmpty pops a recycled empty buffer, or nil when none is
	// waiting.
	TakeEmpty() *Buffer
	// SendEmpty returns an empty buffer to the hardware for filling.
	SendEmpty(*Buffer) error
	// WaitRaw blocks until the hardware delivers a filled raw buffer.
	// Side-info buffers (zero payload, FlagSideInfo set) are delivered
	// too and must be skipped by the caller.
	WaitRaw(ctx context.Context) (*Buffer, error)
}
