package rawcam

// Histogram is a per-channel 256-bin luminance histogram computed over a
// converted RGB frame, used as exposure feedback for the auto-tuner.
type Histogram struct {
	Bins   [3][256]uint32
	Pixels uint32
}

// Compute fills the histogram from a packed RGB frame at the given pixel
// stride. Previous contents are discarded.
func (h *Histogram) Compute(rgb []byte, bpp int) {
	*h = Histogram{}
	for i := 0; i+2 < len(rgb); i += bpp {
		h.Bins[0][rgb[i]]++
		h.Bins[1][rgb[i+1]]++
		h.Bins[2][rgb[i+2]]++
		h.Pixels++
	}
}

// Mean returns the mean sample value of one channel.
func (h *Histogram) Mean(channel int) float64 {
	if h.Pixels == 0 {
		return 0
	}
	var sum uint64
	for v, n := range h.Bins[channel] {
		sum += uint64(v) * uint64(n)
	}
	return float64(sum) / float64(h.Pixels)
}

// GreenMean is the exposure metric the tuner steers on: green carries the
// most luminance information in a Bayer mosaic.
func (h *Histogram) GreenMean() float64 {
	return h.Mean(1)
}
