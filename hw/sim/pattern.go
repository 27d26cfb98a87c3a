package sim

// fillPattern writes a deterministic gradient test frame: each channel is
// a function of position and delivery sequence, so tests can assert on
// non-null, frame-to-frame-changing payloads.
func fillPattern(dst []byte, width, height int32, bpp int, seq uint64) {
	i := 0
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			dst[i] = byte(x + int32(seq))
			dst[i+1] = byte(y + int32(seq))
			dst[i+2] = byte(x + y)
			if bpp == 4 {
				dst[i+3] = 0xff
			}
			i += bpp
		}
	}
}

// scaleNearest resamples src (sw x sh) into dst (dw x dh) with
// nearest-neighbor sampling, converting between RGB24 and RGBA strides
// when they differ.
func scaleNearest(dst []byte, dw, dh int32, dstBPP int, src []byte, sw, sh int32, srcBPP int) {
	if sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 {
		return
	}
	for y := int32(0); y < dh; y++ {
		sy := y * sh / dh
		for x := int32(0); x < dw; x++ {
			sx := x * sw / dw
			di := (int(y)*int(dw) + int(x)) * dstBPP
			si := (int(sy)*int(sw) + int(sx)) * srcBPP
			for c := 0; c < 3; c++ {
				if si+c < len(src) {
					dst[di+c] = src[si+c]
				}
			}
			if dstBPP == 4 {
				dst[di+3] = 0xff
			}
		}
	}
}
