package sim_test

import (
	"context"
	"testing"

	"github.com/e7canasta/camgraph/hw"
	"github.com/e7canasta/camgraph/hw/sim"
)

func commitPort(t *testing.T, p hw.Port, pixel hw.PixelFormat, w, h int32) {
	t.Helper()
	err := p.Commit(hw.PortFormat{
		Pixel: pixel, Width: w, Height: h,
		Crop: hw.Rect{Width: w, Height: h},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

// TestCameraInfoProbe: the capability stage reports the configured
// camera table as a copy.
func TestCameraInfoProbe(t *testing.T) {
	drv := sim.New(sim.WithCameras(
		hw.CameraCapability{Index: 0, MaxWidth: 1280, MaxHeight: 720},
	))
	st, err := drv.NewStage(hw.KindCameraInfo)
	if err != nil {
		t.Fatalf("NewStage failed: %v", err)
	}
	v, err := st.Property("camera-info")
	if err != nil {
		t.Fatalf("Property failed: %v", err)
	}
	caps, ok := v.([]hw.CameraCapability)
	if !ok {
		t.Fatalf("camera-info has type %T", v)
	}
	if len(caps) != 1 || caps[0].MaxWidth != 1280 {
		t.Errorf("caps = %+v", caps)
	}

	caps[0].MaxWidth = 1
	v2, _ := st.Property("camera-info")
	if v2.([]hw.CameraCapability)[0].MaxWidth != 1280 {
		t.Error("camera-info returned shared state, want a copy")
	}
}

// TestPortCommitValidation: unknown formats, oversized canvases and
// crops larger than the canvas are rejected.
func TestPortCommitValidation(t *testing.T) {
	drv := sim.New()
	st, _ := drv.NewStage(hw.KindProcessor)
	p, _ := st.Input(0)

	bad := []hw.PortFormat{
		{Pixel: hw.FormatUnknown, Width: 640, Height: 480, Crop: hw.Rect{Width: 640, Height: 480}},
		{Pixel: hw.FormatRGBA, Width: 0, Height: 480, Crop: hw.Rect{Width: 0, Height: 480}},
		{Pixel: hw.FormatRGBA, Width: 8192, Height: 480, Crop: hw.Rect{Width: 8192, Height: 480}},
		{Pixel: hw.FormatRGBA, Width: 640, Height: 480, Crop: hw.Rect{Width: 700, Height: 480}},
	}
	for i, f := range bad {
		if err := p.Commit(f); err == nil {
			t.Errorf("case %d: Commit accepted %+v", i, f)
		}
	}
}

// TestConnectOrderingRules: connections require committed ports and
// enabled stages on both ends.
func TestConnectOrderingRules(t *testing.T) {
	drv := sim.New()
	proc, _ := drv.NewStage(hw.KindProcessor)
	render, _ := drv.NewStage(hw.KindRenderer)
	out, _ := proc.Output(0)
	in, _ := render.Input(0)

	if _, err := drv.Connect(out, in, 0); err == nil {
		t.Error("Connect accepted uncommitted ports")
	}

	commitPort(t, out, hw.FormatRGB24, 640, 480)
	commitPort(t, in, hw.FormatRGB24, 640, 480)
	if _, err := drv.Connect(out, in, 0); err == nil {
		t.Error("Connect accepted disabled stages")
	}

	if err := proc.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := render.Enable(); err != nil {
		t.Fatal(err)
	}
	if _, err := drv.Connect(out, in, 0); err != nil {
		t.Errorf("Connect failed on a valid pair: %v", err)
	}

	// Direction matters: input to output is rejected.
	if _, err := drv.Connect(in, out, 0); err == nil {
		t.Error("Connect accepted reversed port directions")
	}
}

// TestDeliveryPattern: the simulated source fills a deterministic
// gradient so image-path tests can assert on pixel values.
func TestDeliveryPattern(t *testing.T) {
	drv := sim.New()
	src, _ := drv.NewStage(hw.KindSource)
	render, _ := drv.NewStage(hw.KindRenderer)

	out, _ := src.Output(0)
	in, _ := render.Input(0)
	commitPort(t, out, hw.FormatRGB24, 64, 32)
	commitPort(t, in, hw.FormatRGB24, 64, 32)
	if err := src.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := render.Enable(); err != nil {
		t.Fatal(err)
	}

	conn, err := drv.Connect(out, in, 0)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := conn.Enable(); err != nil {
		t.Fatal(err)
	}

	buf := conn.TakeFree()
	if buf == nil {
		t.Fatal("pool empty before first use")
	}
	if err := conn.SendUpstream(buf); err != nil {
		t.Fatalf("SendUpstream failed: %v", err)
	}
	got, err := conn.WaitDelivery(context.Background())
	if err != nil {
		t.Fatalf("WaitDelivery failed: %v", err)
	}
	defer got.Release()

	if got.Length != 64*32*3 {
		t.Fatalf("payload = %d bytes, want %d", got.Length, 64*32*3)
	}
	// Pixel (x=3, y=2) of frame 0: R=x, G=y, B=x+y.
	i := (2*64 + 3) * 3
	if got.Data[i] != 3 || got.Data[i+1] != 2 || got.Data[i+2] != 5 {
		t.Errorf("pixel (3,2) = %v, want [3 2 5]", got.Data[i:i+3])
	}
}

// TestWaitDeliveryCancellation: a canceled context aborts the wait.
func TestWaitDeliveryCancellation(t *testing.T) {
	drv := sim.New()
	proc, _ := drv.NewStage(hw.KindProcessor)
	render, _ := drv.NewStage(hw.KindRenderer)
	out, _ := proc.Output(0)
	in, _ := render.Input(0)
	commitPort(t, out, hw.FormatRGB24, 64, 32)
	commitPort(t, in, hw.FormatRGB24, 64, 32)
	proc.Enable()
	render.Enable()

	conn, err := drv.Connect(out, in, 0)
	if err != nil {
		t.Fatal(err)
	}
	conn.Enable()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conn.WaitDelivery(ctx); err != context.Canceled {
		t.Errorf("WaitDelivery error = %v, want context.Canceled", err)
	}
}

// TestRawStreamerNegotiation: the raw front-end rejects bad depths and
// post-enable reconfiguration, and delivers a leading side-info buffer
// followed by packed payloads.
func TestRawStreamerNegotiation(t *testing.T) {
	drv := sim.New()
	st, _ := drv.NewStage(hw.KindRawFrontEnd)
	raw, ok := st.(hw.RawStreamer)
	if !ok {
		t.Fatal("raw front-end does not implement RawStreamer")
	}

	mipi, err := raw.ReceiverConfig()
	if err != nil {
		t.Fatalf("ReceiverConfig failed: %v", err)
	}
	mipi.BitDepth = 9
	if err := raw.ApplyReceiverConfig(mipi); err == nil {
		t.Error("ApplyReceiverConfig accepted depth 9")
	}

	mipi.BitDepth = 10
	mipi.DataLen = (64 + 3) / 4 * 5
	if err := raw.ApplyReceiverConfig(mipi); err != nil {
		t.Fatalf("ApplyReceiverConfig failed: %v", err)
	}

	out, _ := st.Output(0)
	commitPort(t, out, hw.FormatBayer, 64, 32)
	if err := st.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := raw.ApplyReceiverConfig(mipi); err == nil {
		t.Error("ApplyReceiverConfig accepted post-enable reconfiguration")
	}

	// First cycle delivers the side-info marker, then payloads.
	b := raw.TakeEmpty()
	if b == nil {
		t.Fatal("no empty raw buffer available")
	}
	if err := raw.SendEmpty(b); err != nil {
		t.Fatal(err)
	}
	got, err := raw.WaitRaw(context.Background())
	if err != nil {
		t.Fatalf("WaitRaw failed: %v", err)
	}
	if got.Flags&hw.FlagSideInfo == 0 || got.Length != 0 {
		t.Errorf("first delivery flags=%#x length=%d, want zero-length side-info", got.Flags, got.Length)
	}
	got.Release()

	b = raw.TakeEmpty()
	if b == nil {
		t.Fatal("side-info buffer was not recycled")
	}
	if err := raw.SendEmpty(b); err != nil {
		t.Fatal(err)
	}
	got, err = raw.WaitRaw(context.Background())
	if err != nil {
		t.Fatalf("WaitRaw failed: %v", err)
	}
	defer got.Release()
	want := (64 + 3) / 4 * 5 * 32
	if got.Length != want {
		t.Errorf("raw payload = %d bytes, want packed %d", got.Length, want)
	}
}
