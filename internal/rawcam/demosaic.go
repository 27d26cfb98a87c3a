package rawcam

import "github.com/e7canasta/camgraph/hw"

// cellOffsets returns, for the given ordering, the (x, y) offsets inside
// a 2x2 Bayer cell of the red sample, one green sample and the blue
// sample.
func cellOffsets(order hw.BayerOrder) (r, g, b [2]int) {
	for ey := 0; ey < 2; ey++ {
		for ex := 0; ex < 2; ex++ {
			switch channelAt(order, ex, ey) {
			case 0:
				r = [2]int{ex, ey}
			case 2:
				b = [2]int{ex, ey}
			default:
				g = [2]int{ex, ey} // either green site works for NN
			}
		}
	}
	return r, g, b
}

// DemosaicNearest converts an 8-bit mosaic into a full packed RGB frame
// by nearest-neighbor upsampling: every pixel takes the R, G and B
// samples of its enclosing 2x2 cell. bpp selects RGB24 (3) or RGBA (4,
// alpha forced opaque).
func DemosaicNearest(dst, mosaic []byte, width, height int, order hw.BayerOrder, bpp int) {
	ro, gro, bo := cellOffsets(order)
	clampX := width - 1
	clampY := height - 1
	for y := 0; y < height; y++ {
		cy := y &^ 1
		for x := 0; x < width; x++ {
			cx := x &^ 1
			rx, ry := min(cx+ro[0], clampX), min(cy+ro[1], clampY)
			gx, gy := min(cx+gro[0], clampX), min(cy+gro[1], clampY)
			bx, by := min(cx+bo[0], clampX), min(cy+bo[1], clampY)
			i := (y*width + x) * bpp
			dst[i] = mosaic[ry*width+rx]
			dst[i+1] = mosaic[gy*width+gx]
			dst[i+2] = mosaic[by*width+bx]
			if bpp == 4 {
				dst[i+3] = 0xff
			}
		}
	}
}
