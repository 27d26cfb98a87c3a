package rawcam

// Exposure limits in sensor integration lines. The floor keeps the
// sensor out of its non-linear short-exposure region; the ceiling is one
// frame length at the full-FoV mode.
const (
	minExposureLines = 4
	maxExposureLines = 2500
)

// targetLevel is the mid-gray green mean the tuner steers toward.
const targetLevel = 118.0

// AutoTuner is the sensor auto-exposure control loop run outside the
// fixed-function hardware. Each converted frame's histogram nudges the
// integration time proportionally toward mid-gray; the graph builder
// wires Apply to the raw front-end's sensor-exposure property.
type AutoTuner struct {
	exposure int32
	apply    func(exposureLines int32)
}

// NewAutoTuner starts at the given integration time. apply pushes an
// updated exposure to the sensor; nil disables actuation (histograms are
// still consumed, useful in tests).
func NewAutoTuner(initialLines int32, apply func(exposureLines int32)) *AutoTuner {
	if initialLines < minExposureLines {
		initialLines = minExposureLines
	}
	return &AutoTuner{exposure: initialLines, apply: apply}
}

// Exposure returns the current integration time in lines.
func (t *AutoTuner) Exposure() int32 { return t.exposure }

// Update consumes one frame's histogram and adjusts exposure with a
// proportional step. Dead band of ±8 levels avoids oscillating around
// the target.
func (t *AutoTuner) Update(h *Histogram) {
	mean := h.GreenMean()
	errLevel := targetLevel - mean
	if errLevel > -8 && errLevel < 8 {
		return
	}

	// Quarter-strength proportional step, scaled by current exposure so
	// the loop behaves the same at short and long integration times.
	step := int32(errLevel / targetLevel * float64(t.exposure) / 4)
	if step == 0 {
		if errLevel > 0 {
			step = 1
		} else {
			step = -1
		}
	}
	next := t.exposure + step
	if next < minExposureLines {
		next = minExposureLines
	}
	if next > maxExposureLines {
		next = maxExposureLines
	}
	if next == t.exposure {
		return
	}
	t.exposure = next
	if t.apply != nil {
		t.apply(next)
	}
}
