package rawcam

import (
	"fmt"

	"github.com/e7canasta/camgraph/hw"
)

// PackedLineBytes returns the packed byte length of one mosaic line.
// Layout matches the SoC's CSI-2 unpacker: 10-bit packs four samples into
// five bytes (four high bytes then one byte of 2-bit tails, sample 0 in
// bits 1:0), 12-bit packs two samples into three bytes (two high bytes
// then a tail byte, sample 0's nibble low).
func PackedLineBytes(width, depth int) (int, error) {
	switch depth {
	case 8:
		return width, nil
	case 10:
		return (width + 3) / 4 * 5, nil
	case 12:
		return (width + 1) / 2 * 3, nil
	default:
		return 0, fmt.Errorf("unsupported raw bit depth %d", depth)
	}
}

// Unpack expands a packed Bayer payload into an 8-bit-per-sample mosaic,
// keeping each sample's high 8 bits. dst must hold width*height bytes.
func Unpack(dst, src []byte, width, height, depth int) error {
	lineBytes, err := PackedLineBytes(width, depth)
	if err != nil {
		return err
	}
	if len(src) < lineBytes*height {
		return fmt.Errorf("raw payload %d bytes, need %d for %dx%d at %d bits",
			len(src), lineBytes*height, width, height, depth)
	}
	if len(dst) < width*height {
		return fmt.Errorf("mosaic buffer %d bytes, need %d", len(dst), width*height)
	}

	for y := 0; y < height; y++ {
		line := src[y*lineBytes : (y+1)*lineBytes]
		out := dst[y*width : (y+1)*width]
		switch depth {
		case 8:
			copy(out, line[:width])
		case 10:
			for g := 0; g*4 < width; g++ {
				for k := 0; k < 4 && g*4+k < width; k++ {
					out[g*4+k] = line[g*5+k]
				}
			}
		case 12:
			for g := 0; g*2 < width; g++ {
				out[g*2] = line[g*3]
				if g*2+1 < width {
					out[g*2+1] = line[g*3+1]
				}
			}
		}
	}
	return nil
}

// channelAt returns 0 (red), 1 (green) or 2 (blue) for mosaic position
// (x, y) under the given cell ordering.
func channelAt(order hw.BayerOrder, x, y int) int {
	ex, ey := x&1, y&1
	switch order {
	case hw.BayerBGGR:
		ex, ey = 1-ex, 1-ey
	case hw.BayerGBRG:
		ey = 1 - ey
	case hw.BayerGRBG:
		ex = 1 - ex
	}
	switch {
	case ex == 0 && ey == 0:
		return 0
	case ex == 1 && ey == 1:
		return 2
	default:
		return 1
	}
}
