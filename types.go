package camgraph

import (
	"github.com/e7canasta/camgraph/hw"

	"github.com/e7canasta/camgraph/internal/capture"
	"github.com/e7canasta/camgraph/internal/graph"
	"github.com/e7canasta/camgraph/internal/rawcam"
)

// PixelFormat is re-exported from the hw component model.
type PixelFormat = hw.PixelFormat

const (
	// FormatRGB24 is 8-bit-per-channel packed RGB.
	FormatRGB24 = hw.FormatRGB24
	// FormatRGBA is 8-bit-per-channel packed RGBA.
	FormatRGBA = hw.FormatRGBA
)

// CameraPort selects which physical source output feeds a slot.
type CameraPort = graph.PortSelection

const (
	// CameraPortPreview is the sensor's low-latency preview output
	// (the default).
	CameraPortPreview = graph.PortPreview
	// CameraPortCapture is the higher-quality stills output. The
	// preview output is routed to a sink so the sensor's AWB/AE
	// control loop keeps running.
	CameraPortCapture = graph.PortCapture
)

// RenderConfig is the display destination of one output.
type RenderConfig struct {
	Fullscreen bool
	X, Y       int32
	// Width and Height of the destination rectangle; ignored when
	// Fullscreen is set.
	Width, Height int32
	// Layer is the compositing layer the frame renders on.
	Layer int32
}

// RawSensorConfig is the user-facing raw path configuration, translated
// into sensor registers and a MIPI receiver setup during FinishConfig.
type RawSensorConfig = rawcam.SensorConfig

// SensorIMX219 is the sensor model with register-level support.
const SensorIMX219 = rawcam.ModelIMX219

// BayerOrder is the color ordering of the sensor's 2x2 Bayer cell.
type BayerOrder = hw.BayerOrder

const (
	BayerRGGB = hw.BayerRGGB
	BayerBGGR = hw.BayerBGGR
	BayerGBRG = hw.BayerGBRG
	BayerGRBG = hw.BayerGRBG
)

// CaptureStats is the per-output capture bookkeeping; see
// FrameHandle.Stats.
type CaptureStats = capture.Stats
