package ppm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/e7canasta/camgraph/ppm"
)

// TestEncodeDecodeRoundTrip writes a small gradient frame and parses it
// back; the pixels must survive byte for byte.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	const w, h = 4, 3
	rgb := make([]byte, w*h*3)
	for i := range rgb {
		rgb[i] = byte(i * 7)
	}

	var buf bytes.Buffer
	if err := ppm.Encode(&buf, rgb, w, h); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, gw, gh, err := ppm.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if gw != w || gh != h {
		t.Fatalf("decoded size %dx%d, want %dx%d", gw, gh, w, h)
	}
	if !bytes.Equal(got, rgb) {
		t.Error("decoded pixels differ from encoded input")
	}
}

// TestEncodeHeader pins the exact three-line header other tooling
// parses.
func TestEncodeHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := ppm.Encode(&buf, make([]byte, 2*1*3), 2, 1); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "P3\n2 1\n255\n") {
		t.Errorf("unexpected header: %q", buf.String()[:min(len(buf.String()), 16)])
	}
}

// TestEncodeShortBuffer rejects a pixel buffer smaller than the frame.
func TestEncodeShortBuffer(t *testing.T) {
	var buf bytes.Buffer
	if err := ppm.Encode(&buf, make([]byte, 5), 4, 4); err == nil {
		t.Error("Encode accepted a short buffer")
	}
}

// TestDecodeRejects covers the parse failures: wrong magic, unsupported
// depth, out-of-range and missing samples.
func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name, in string
	}{
		{"wrong magic", "P6\n1 1\n255\n0 0 0\n"},
		{"wrong depth", "P3\n1 1\n65535\n0 0 0\n"},
		{"sample out of range", "P3\n1 1\n255\n0 0 300\n"},
		{"truncated samples", "P3\n2 1\n255\n0 0 0\n"},
		{"zero size", "P3\n0 1\n255\n"},
	}
	for _, c := range cases {
		if _, _, _, err := ppm.Decode(strings.NewReader(c.in)); err == nil {
			t.Errorf("%s: accepted", c.name)
		}
	}
}
