package gstdrv

import (
	"context"
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/camgraph/hw"
)

// Raw front-end streaming. V4L2 owns the capture queue, so the empty
// side of the hw.RawStreamer contract degrades to no-ops: TakeEmpty
// never has a recycled buffer to hand out, and SendEmpty just releases.

func (s *stage) ReceiverConfig() (hw.MIPIConfig, error) {
	if s.kind != hw.KindRawFrontEnd {
		return hw.MIPIConfig{}, fmt.Errorf("gstdrv: receiver config on %s stage", s.kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mipi, nil
}

// ApplyReceiverConfig pins the v4l2src caps to the packed Bayer layout
// the configuration describes. Must run before Enable.
func (s *stage) ApplyReceiverConfig(cfg hw.MIPIConfig) error {
	if s.kind != hw.KindRawFrontEnd {
		return fmt.Errorf("gstdrv: receiver config on %s stage", s.kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return fmt.Errorf("gstdrv: receiver config after enable")
	}
	switch cfg.BitDepth {
	case 8, 10, 12:
	default:
		return fmt.Errorf("gstdrv: unsupported bayer depth %d", cfg.BitDepth)
	}
	caps := fmt.Sprintf("video/x-bayer,format=%s", bayerCapsName(cfg.Order, cfg.BitDepth))
	s.elements[1].SetProperty("caps", gst.NewCapsFromString(caps))
	s.mipi = cfg
	return nil
}

// bayerCapsName builds the video/x-bayer format token, e.g. "rggb" for
// 8-bit and "rggb10" for deeper packings.
func bayerCapsName(order hw.BayerOrder, depth int) string {
	name := "rggb"
	switch order {
	case hw.BayerBGGR:
		name = "bggr"
	case hw.BayerGBRG:
		name = "gbrg"
	case hw.BayerGRBG:
		name = "grbg"
	}
	if depth > 8 {
		name = fmt.Sprintf("%s%d", name, depth)
	}
	return name
}

func (s *stage) TakeEmpty() *hw.Buffer { return nil }

func (s *stage) SendEmpty(b *hw.Buffer) error {
	if b != nil {
		b.Release()
	}
	return nil
}

// WaitRaw pulls the next packed Bayer buffer and copies it out; the
// mapping is only valid until Unmap, so the copy cannot be avoided.
func (s *stage) WaitRaw(ctx context.Context) (*hw.Buffer, error) {
	if s.kind != hw.KindRawFrontEnd {
		return nil, fmt.Errorf("gstdrv: raw wait on %s stage", s.kind)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sample := s.rawSink.PullSample()
		if sample == nil {
			if s.rawSink.IsEOS() {
				return nil, fmt.Errorf("gstdrv: raw stream ended")
			}
			continue
		}
		buffer := sample.GetBuffer()
		if buffer == nil {
			continue
		}
		mapInfo := buffer.Map(gst.MapRead)
		data := mapInfo.Bytes()
		out := make([]byte, len(data))
		copy(out, data)
		buffer.Unmap()

		b := hw.NewBuffer(out, nil)
		b.Length = len(out)
		return b, nil
	}
}
