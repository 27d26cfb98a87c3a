package graph

import (
	"fmt"

	"github.com/e7canasta/camgraph/hw"
)

// Hardware stages require the working canvas padded to these alignments.
// The crop rectangle keeps the exact requested size, so downstream
// consumers never see the padding.
const (
	alignWidth  = 32
	alignHeight = 16
)

func alignUp(v, a int32) int32 {
	return (v + a - 1) / a * a
}

// ConfigurePort commits the port's working format: the requested size
// padded up to the stage alignment, with the crop rectangle preserving
// the exact requested width and height.
func ConfigurePort(p hw.Port, pixel hw.PixelFormat, width, height int32) error {
	return ConfigurePortCrop(p, pixel, width, height, width, height)
}

// ConfigurePortCrop is the cropping variant: the stage declares an
// actual (padded) canvas of actualW x actualH while the crop exports only
// cropW x cropH. Used when one physical frame buffer is divided into
// several export regions.
func ConfigurePortCrop(p hw.Port, pixel hw.PixelFormat, actualW, actualH, cropW, cropH int32) error {
	f := hw.PortFormat{
		Pixel:  pixel,
		Width:  alignUp(actualW, alignWidth),
		Height: alignUp(actualH, alignHeight),
		Crop:   hw.Rect{X: 0, Y: 0, Width: cropW, Height: cropH},
	}
	if err := p.Commit(f); err != nil {
		return fmt.Errorf("%w: %s %dx%d (crop %dx%d): %v",
			ErrFormatCommit, pixel, f.Width, f.Height, cropW, cropH, err)
	}
	return nil
}
