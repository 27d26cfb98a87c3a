package rawcam

import (
	"fmt"

	"github.com/e7canasta/camgraph/hw"
)

// Converter is the per-slot software conversion pipeline of the raw
// path: packed Bayer in, full RGB out, with gain correction for the
// supported sensor model and exposure feedback to the auto-tuner.
//
// Scratch buffers are allocated once and reused; Convert is not safe for
// concurrent calls, matching the one-capture-at-a-time contract of a
// frame context.
type Converter struct {
	width, height int
	mipi          hw.MIPIConfig
	gainCorrect   bool
	outBPP        int

	tuner *AutoTuner
	hist  Histogram

	mosaic []byte
	rgb    []byte
}

// NewConverter sizes the conversion pipeline for the sensor's working
// resolution. gainCorrect selects the fixed per-channel correction of
// the supported model. outBPP is 3 (RGB24) or 4 (RGBA).
func NewConverter(width, height int32, mipi hw.MIPIConfig, gainCorrect bool, outBPP int, tuner *AutoTuner) (*Converter, error) {
	if outBPP != 3 && outBPP != 4 {
		return nil, fmt.Errorf("converter: unsupported output stride %d", outBPP)
	}
	if _, err := PackedLineBytes(int(width), mipi.BitDepth); err != nil {
		return nil, err
	}
	w, h := int(width), int(height)
	return &Converter{
		width:       w,
		height:      h,
		mipi:        mipi,
		gainCorrect: gainCorrect,
		outBPP:      outBPP,
		tuner:       tuner,
		mosaic:      make([]byte, w*h),
		rgb:         make([]byte, w*h*outBPP),
	}, nil
}

// Convert runs one frame through the software pipeline and returns the
// packed RGB result. The returned slice is owned by the converter and
// valid until the next call; callers hand it off before converting again.
func (c *Converter) Convert(raw []byte) ([]byte, error) {
	if err := Unpack(c.mosaic, raw, c.width, c.height, c.mipi.BitDepth); err != nil {
		return nil, err
	}
	if c.gainCorrect {
		GainCorrect(c.mosaic, c.width, c.height, c.mipi.Order)
	}
	DemosaicNearest(c.rgb, c.mosaic, c.width, c.height, c.mipi.Order, c.outBPP)

	c.hist.Compute(c.rgb, c.outBPP)
	if c.tuner != nil {
		c.tuner.Update(&c.hist)
	}
	return c.rgb, nil
}

// Histogram returns the per-channel histogram of the last converted
// frame.
func (c *Converter) Histogram() *Histogram { return &c.hist }
