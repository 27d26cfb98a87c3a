// Package rawcam implements the software side of the raw-sensor path:
// packed Bayer unpacking, per-channel gain correction, nearest-neighbor
// demosaicing, exposure histograms and sensor auto-tuning, plus the
// register translation for the supported sensor model.
package rawcam

import (
	"fmt"

	"github.com/e7canasta/camgraph/hw"
)

// ModelIMX219 is the only sensor model with register-level support. Other
// models can still stream if the receiver is already configured, but get
// no mode programming and no gain correction.
const ModelIMX219 = "imx219"

// SensorConfig is the user-facing raw sensor configuration translated
// into register writes during graph construction.
type SensorConfig struct {
	Model    string
	Width    int32
	Height   int32
	ClockHz  uint32
	HFlip    bool
	VFlip    bool
	Binning  int // 1 = none, 2 = 2x2 binning
	BitDepth int // 8, 10 or 12 bits per sample
	Order    hw.BayerOrder
}

// RegWrite is one sensor register assignment.
type RegWrite struct {
	Addr  uint16
	Value byte
}

// imx219Mode is one entry of the sensor's mode table.
type imx219Mode struct {
	width, height int32
	binning       int
	frameLenLines uint16
	lineLenPixels uint16
}

// Mode table covers the full field of view, the 2x2 binned field and the
// two common video crops.
var imx219Modes = []imx219Mode{
	{3280, 2464, 1, 2504, 3448},
	{1920, 1080, 1, 1114, 3448},
	{1640, 1232, 2, 1252, 3448},
	{640, 480, 2, 510, 3448},
}

// IMX219 register addresses used by the mode programming sequence.
const (
	regModeSelect    = 0x0100
	regOrientation   = 0x0172
	regFrameLenHi    = 0x0160
	regFrameLenLo    = 0x0161
	regLineLenHi     = 0x0162
	regLineLenLo     = 0x0163
	regXOutHi        = 0x016c
	regXOutLo        = 0x016d
	regYOutHi        = 0x016e
	regYOutLo        = 0x016f
	regBinningMode   = 0x0174
	regCSIDataFormat = 0x018c
	regExcckFreqHi   = 0x012a
	regExcckFreqLo   = 0x012b
)

// TranslateSensorConfig turns a user-facing configuration into the
// register writes applied while the raw front-end is built. Only the
// IMX219 is supported; anything else is a configuration error.
func TranslateSensorConfig(cfg SensorConfig) ([]RegWrite, error) {
	if cfg.Model != ModelIMX219 {
		return nil, fmt.Errorf("unsupported sensor model %q", cfg.Model)
	}
	switch cfg.BitDepth {
	case 8, 10:
	default:
		// The IMX219 emits 8- or 10-bit samples only.
		return nil, fmt.Errorf("sensor %s does not support %d-bit output", cfg.Model, cfg.BitDepth)
	}

	var mode *imx219Mode
	for i := range imx219Modes {
		m := &imx219Modes[i]
		if m.width == cfg.Width && m.height == cfg.Height {
			mode = m
			break
		}
	}
	if mode == nil {
		return nil, fmt.Errorf("sensor %s has no %dx%d mode", cfg.Model, cfg.Width, cfg.Height)
	}

	binning := cfg.Binning
	if binning == 0 {
		binning = mode.binning
	}
	var binReg byte
	switch binning {
	case 1:
		binReg = 0x00
	case 2:
		binReg = 0x03 // 2x2 binning, summed
	default:
		return nil, fmt.Errorf("sensor %s: unsupported binning %d", cfg.Model, binning)
	}

	var orient byte
	if cfg.HFlip {
		orient |= 0x01
	}
	if cfg.VFlip {
		orient |= 0x02
	}

	clockMHz := cfg.ClockHz / 1_000_000
	if clockMHz == 0 {
		clockMHz = 24
	}

	regs := []RegWrite{
		{regModeSelect, 0x00}, // standby while reprogramming
		{regCSIDataFormat, byte(cfg.BitDepth)},
		{regCSIDataFormat + 1, byte(cfg.BitDepth)},
		{regExcckFreqHi, byte(clockMHz >> 8)},
		{regExcckFreqLo, byte(clockMHz)},
		{regFrameLenHi, byte(mode.frameLenLines >> 8)},
		{regFrameLenLo, byte(mode.frameLenLines)},
		{regLineLenHi, byte(mode.lineLenPixels >> 8)},
		{regLineLenLo, byte(mode.lineLenPixels)},
		{regXOutHi, byte(cfg.Width >> 8)},
		{regXOutLo, byte(cfg.Width)},
		{regYOutHi, byte(cfg.Height >> 8)},
		{regYOutLo, byte(cfg.Height)},
		{regBinningMode, binReg},
		{regOrientation, orient},
		{regModeSelect, 0x01}, // streaming
	}
	return regs, nil
}

// Fixed per-channel gain correction for the IMX219's native response,
// in 1/256 units. Applied to the 8-bit intermediate before demosaicing.
var imx219Gain = [3]uint16{double(1.45), double(1.0), double(1.30)}

func double(f float64) uint16 { return uint16(f * 256) }

// GainCorrect scales each mosaic sample by its channel's fixed gain,
// clamping at white. Only meaningful for the supported model; callers
// skip it otherwise.
func GainCorrect(mosaic []byte, width, height int, order hw.BayerOrder) {
	for y := 0; y < height; y++ {
		row := mosaic[y*width : (y+1)*width]
		for x := range row {
			ch := channelAt(order, x, y)
			v := uint32(row[x]) * uint32(imx219Gain[ch]) >> 8
			if v > 255 {
				v = 255
			}
			row[x] = byte(v)
		}
	}
}
