package rawcam

import (
	"testing"

	"github.com/e7canasta/camgraph/hw"
)

// TestTranslateSensorConfigModes accepts every entry of the mode table
// and ends the sequence streaming.
func TestTranslateSensorConfigModes(t *testing.T) {
	for _, m := range imx219Modes {
		cfg := SensorConfig{
			Model: ModelIMX219, Width: m.width, Height: m.height, BitDepth: 10,
		}
		regs, err := TranslateSensorConfig(cfg)
		if err != nil {
			t.Fatalf("mode %dx%d rejected: %v", m.width, m.height, err)
		}
		if len(regs) == 0 {
			t.Fatalf("mode %dx%d produced no register writes", m.width, m.height)
		}
		first, last := regs[0], regs[len(regs)-1]
		if first.Addr != regModeSelect || first.Value != 0x00 {
			t.Errorf("mode %dx%d: sequence does not start in standby: %+v", m.width, m.height, first)
		}
		if last.Addr != regModeSelect || last.Value != 0x01 {
			t.Errorf("mode %dx%d: sequence does not end streaming: %+v", m.width, m.height, last)
		}
	}
}

// TestTranslateSensorConfigOrientation encodes the flip bits into the
// orientation register.
func TestTranslateSensorConfigOrientation(t *testing.T) {
	cfg := SensorConfig{
		Model: ModelIMX219, Width: 1920, Height: 1080, BitDepth: 10,
		HFlip: true, VFlip: true,
	}
	regs, err := TranslateSensorConfig(cfg)
	if err != nil {
		t.Fatalf("TranslateSensorConfig failed: %v", err)
	}
	found := false
	for _, r := range regs {
		if r.Addr == regOrientation {
			found = true
			if r.Value != 0x03 {
				t.Errorf("orientation = %#x, want 0x03 for both flips", r.Value)
			}
		}
	}
	if !found {
		t.Error("orientation register never written")
	}
}

// TestTranslateSensorConfigRejects covers the configuration errors: an
// unknown model, a bit depth the sensor cannot emit, an off-table mode
// and an unsupported binning factor.
func TestTranslateSensorConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		cfg  SensorConfig
	}{
		{"unknown model", SensorConfig{Model: "ov5647", Width: 1920, Height: 1080, BitDepth: 10}},
		{"12-bit depth", SensorConfig{Model: ModelIMX219, Width: 1920, Height: 1080, BitDepth: 12}},
		{"off-table mode", SensorConfig{Model: ModelIMX219, Width: 1280, Height: 720, BitDepth: 10}},
		{"bad binning", SensorConfig{Model: ModelIMX219, Width: 1920, Height: 1080, BitDepth: 10, Binning: 3}},
	}
	for _, c := range cases {
		if _, err := TranslateSensorConfig(c.cfg); err == nil {
			t.Errorf("%s: accepted", c.name)
		}
	}
}

// TestGainCorrectClamps keeps corrected samples within 8 bits.
func TestGainCorrectClamps(t *testing.T) {
	// All-white mosaic: red gain 1.45 would push past 255 without the
	// clamp.
	mosaic := []byte{255, 255, 255, 255}
	GainCorrect(mosaic, 2, 2, hw.BayerRGGB)
	for i, v := range mosaic {
		if v != 255 {
			t.Errorf("sample %d = %d, want clamped 255", i, v)
		}
	}
}

// TestGainCorrectScalesRed applies the red-channel gain on the red site
// only.
func TestGainCorrectScalesRed(t *testing.T) {
	mosaic := []byte{100, 100, 100, 100}
	GainCorrect(mosaic, 2, 2, hw.BayerRGGB)

	wantR := byte(100 * uint32(imx219Gain[0]) >> 8)
	wantB := byte(100 * uint32(imx219Gain[2]) >> 8)
	if mosaic[0] != wantR {
		t.Errorf("red sample = %d, want %d", mosaic[0], wantR)
	}
	if mosaic[1] != 100 {
		t.Errorf("green sample = %d, want 100 (unity gain)", mosaic[1])
	}
	if mosaic[3] != wantB {
		t.Errorf("blue sample = %d, want %d", mosaic[3], wantB)
	}
}
