package sim

import (
	"context"
	"fmt"

	"github.com/e7canasta/camgraph/hw"
)

// rawPoolDepth is the raw front-end's buffer count: enough to keep the
// receiver filling while one buffer is being converted in software.
const rawPoolDepth = 4

// rawState is the simulated CSI-2 receiver behind a raw front-end stage.
//
// Queue model mirrors the hardware: empties flow in via SendEmpty, filled
// packed-Bayer buffers flow out via WaitRaw. The first buffer after
// enable carries receiver side info and no image payload, which the
// capture driver's raw loop must skip.
type rawState struct {
	st      *stage
	mipi    hw.MIPIConfig
	empties chan *hw.Buffer
	rawq    chan *hw.Buffer
	seq     uint64
}

func newRawState(st *stage) *rawState {
	return &rawState{
		st: st,
		mipi: hw.MIPIConfig{
			Lanes:    2,
			BitDepth: 10,
			Order:    hw.BayerRGGB,
			ImageID:  0x2b,
		},
		empties: make(chan *hw.Buffer, rawPoolDepth),
		rawq:    make(chan *hw.Buffer, rawPoolDepth),
	}
}

// start allocates the raw pool once the front-end is enabled. The output
// port must be committed by then, per the component model ordering rules.
func (r *rawState) start() {
	f := r.st.outputs[0].Format()
	size := packedLineBytes(int(f.Crop.Width), r.mipi.BitDepth) * int(f.Crop.Height)
	for i := 0; i < rawPoolDepth; i++ {
		r.empties <- hw.NewBuffer(make([]byte, size), r.recycle)
	}
}

func (r *rawState) recycle(b *hw.Buffer) {
	select {
	case r.empties <- b:
	default:
	}
}

// ReceiverConfig implements hw.RawStreamer.
func (s *stage) ReceiverConfig() (hw.MIPIConfig, error) {
	if s.raw == nil {
		return hw.MIPIConfig{}, fmt.Errorf("sim: %s is not a raw front-end", s.kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw.mipi, nil
}

// ApplyReceiverConfig implements hw.RawStreamer.
func (s *stage) ApplyReceiverConfig(cfg hw.MIPIConfig) error {
	if s.raw == nil {
		return fmt.Errorf("sim: %s is not a raw front-end", s.kind)
	}
	switch cfg.BitDepth {
	case 8, 10, 12:
	default:
		return fmt.Errorf("sim: unsupported raw bit depth %d", cfg.BitDepth)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return fmt.Errorf("sim: receiver config must be applied before enable")
	}
	s.raw.mipi = cfg
	return nil
}

// TakeEmpty implements hw.RawStreamer.
func (s *stage) TakeEmpty() *hw.Buffer {
	if s.raw == nil {
		return nil
	}
	select {
	case b := <-s.raw.empties:
		return b
	default:
		return nil
	}
}

// SendEmpty implements hw.RawStreamer. The simulated receiver fills the
// buffer synchronously: the first delivery after enable is a side-info
// buffer, every later one is a packed Bayer frame.
func (s *stage) SendEmpty(b *hw.Buffer) error {
	if s.raw == nil {
		return fmt.Errorf("sim: %s is not a raw front-end", s.kind)
	}
	if !s.isEnabled() {
		b.Release()
		return fmt.Errorf("sim: send-empty on disabled raw front-end")
	}
	r := s.raw
	s.mu.Lock()
	seq := r.seq
	r.seq++
	mipi := r.mipi
	s.mu.Unlock()

	if seq == 0 {
		b.Length = 0
		b.Flags = hw.FlagSideInfo
	} else {
		f := s.outputs[0].Format()
		fillBayer(b.Data, int(f.Crop.Width), int(f.Crop.Height), mipi, seq)
		b.Length = packedLineBytes(int(f.Crop.Width), mipi.BitDepth) * int(f.Crop.Height)
		b.Flags = 0
	}
	b.Seq = seq
	select {
	case r.rawq <- b:
		return nil
	default:
		b.Release()
		return fmt.Errorf("sim: raw queue overrun")
	}
}

// WaitRaw implements hw.RawStreamer.
func (s *stage) WaitRaw(ctx context.Context) (*hw.Buffer, error) {
	if s.raw == nil {
		return nil, fmt.Errorf("sim: %s is not a raw front-end", s.kind)
	}
	select {
	case b := <-s.raw.rawq:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// packedLineBytes is the packed byte length of one line of width samples.
//
// Packing follows the SoC's CSI-2 unpacker layout: 10-bit groups four
// samples into five bytes (four high bytes, then one byte of 2-bit tails,
// sample 0 in bits 1:0), 12-bit pairs two samples into three bytes (two
// high bytes, then sample 0's tail in the low nibble).
func packedLineBytes(width, depth int) int {
	switch depth {
	case 10:
		return (width + 3) / 4 * 5
	case 12:
		return (width + 1) / 2 * 3
	default:
		return width
	}
}

// fillBayer synthesizes a packed Bayer mosaic of the gradient test scene.
// Samples carry the 8-bit pattern value in their high bits, so software
// unpacking recovers the same gradient fillPattern produces.
func fillBayer(dst []byte, width, height int, mipi hw.MIPIConfig, seq uint64) {
	shift := uint(mipi.BitDepth - 8)
	sample := func(x, y int) uint16 {
		var v byte
		switch bayerChannel(mipi.Order, x, y) {
		case 0: // red
			v = byte(x + int(seq))
		case 1: // green
			v = byte(y + int(seq))
		default: // blue
			v = byte(x + y)
		}
		return uint16(v) << shift
	}

	lineBytes := packedLineBytes(width, mipi.BitDepth)
	for y := 0; y < height; y++ {
		line := dst[y*lineBytes : (y+1)*lineBytes]
		switch mipi.BitDepth {
		case 10:
			for g := 0; g < (width+3)/4; g++ {
				var tails byte
				for k := 0; k < 4; k++ {
					x := g*4 + k
					var v uint16
					if x < width {
						v = sample(x, y)
					}
					line[g*5+k] = byte(v >> 2)
					tails |= byte(v&0x3) << uint(2*k)
				}
				line[g*5+4] = tails
			}
		case 12:
			for g := 0; g < (width+1)/2; g++ {
				var v0, v1 uint16
				v0 = sample(g*2, y)
				if g*2+1 < width {
					v1 = sample(g*2+1, y)
				}
				line[g*3] = byte(v0 >> 4)
				line[g*3+1] = byte(v1 >> 4)
				line[g*3+2] = byte(v0&0xf) | byte(v1&0xf)<<4
			}
		default:
			for x := 0; x < width; x++ {
				line[x] = byte(sample(x, y))
			}
		}
	}
}

// bayerChannel returns 0 (red), 1 (green) or 2 (blue) for the pixel at
// (x, y) under the given cell ordering.
func bayerChannel(order hw.BayerOrder, x, y int) int {
	// Map the 2x2 cell position to the RGGB reference, then reorder.
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
