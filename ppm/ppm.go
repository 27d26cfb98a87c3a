// Package ppm reads and writes plain-text (P3) PPM images: a three-line
// header (magic token, dimensions, maximum channel value) followed by
// one "R G B" line per pixel in row-major order. The format is
// byte-for-byte reproducible and human-inspectable, which is the point:
// captured frames dumped with it can be diffed and re-parsed exactly.
package ppm

import (
	"bufio"
	"fmt"
	"io"
)

// maxVal is the only channel depth supported: 8 bits.
const maxVal = 255

// Encode writes rgb (packed RGB24, row-major, width*height*3 bytes) as a
// plain-text P3 image.
func Encode(w io.Writer, rgb []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("ppm: invalid size %dx%d", width, height)
	}
	if len(rgb) < width*height*3 {
		return fmt.Errorf("ppm: buffer %d bytes, need %d for %dx%d",
			len(rgb), width*height*3, width, height)
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P3\n%d %d\n%d\n", width, height, maxVal); err != nil {
		return err
	}
	for i := 0; i < width*height*3; i += 3 {
		if _, err := fmt.Fprintf(bw, "%d %d %d\n", rgb[i], rgb[i+1], rgb[i+2]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode parses a plain-text P3 image back into packed RGB24.
func Decode(r io.Reader) (rgb []byte, width, height int, err error) {
	br := bufio.NewReader(r)

	var magic string
	if _, err := fmt.Fscan(br, &magic); err != nil {
		return nil, 0, 0, fmt.Errorf("ppm: reading magic: %w", err)
	}
	if magic != "P3" {
		return nil, 0, 0, fmt.Errorf("ppm: unsupported magic %q", magic)
	}
	var depth int
	if _, err := fmt.Fscan(br, &width, &height, &depth); err != nil {
		return nil, 0, 0, fmt.Errorf("ppm: reading header: %w", err)
	}
	if width <= 0 || height <= 0 {
		return nil, 0, 0, fmt.Errorf("ppm: invalid size %dx%d", width, height)
	}
	if depth != maxVal {
		return nil, 0, 0, fmt.Errorf("ppm: unsupported channel depth %d", depth)
	}

	rgb = make([]byte, width*height*3)
	for i := range rgb {
		var v int
		if _, err := fmt.Fscan(br, &v); err != nil {
			return nil, 0, 0, fmt.Errorf("ppm: reading sample %d: %w", i, err)
		}
		if v < 0 || v > maxVal {
			return nil, 0, 0, fmt.Errorf("ppm: sample %d out of range: %d", i, v)
		}
		rgb[i] = byte(v)
	}
	return rgb, width, height, nil
}
