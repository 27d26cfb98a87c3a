// Package gstdrv implements the hw component model on GStreamer via
// go-gst. Stage kinds map onto elements (libcamerasrc, tee,
// videoconvert+videoscale, kmssink, fakesink); tunneled connections are
// plain element links, while app-visible connections surface buffers
// through an appsink/appsrc pair so the capture driver can wait on
// deliveries and hand frames to the display explicitly.
//
// GStreamer owns the real buffer pools. The hw pool operations are
// mapped accordingly: TakeFree circulates a fixed set of buffer headers,
// SendUpstream arms a header for the next delivery, and WaitDelivery
// fills an armed header from the next pulled sample.
package gstdrv

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/camgraph/hw"
)

// Driver is the GStreamer-backed hw.Driver. All stages live in one
// pipeline, which reaches PLAYING once the first connection is enabled.
type Driver struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
	playing  bool
}

// New creates the driver and initializes GStreamer (safe to call
// multiple times).
func New() *Driver {
	gst.Init(nil)
	return &Driver{}
}

// Name implements hw.Driver.
func (d *Driver) Name() string { return "gst" }

// DisplaySize implements hw.Driver. GStreamer has no portable display
// query; the compositor sink scales to the full output, so report the
// common overlay size.
func (d *Driver) DisplaySize() (int32, int32, error) {
	return 1920, 1080, nil
}

func (d *Driver) hostPipeline() (*gst.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		p, err := gst.NewPipeline("camgraph")
		if err != nil {
			return nil, fmt.Errorf("gstdrv: creating pipeline: %w", err)
		}
		d.pipeline = p
	}
	return d.pipeline, nil
}

// ensurePlaying transitions the host pipeline to PLAYING once buffers
// are expected to flow.
func (d *Driver) ensurePlaying() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil || d.playing {
		return nil
	}
	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstdrv: starting pipeline: %w", err)
	}
	d.playing = true
	return nil
}

// NewStage implements hw.Driver.
func (d *Driver) NewStage(kind hw.StageKind) (hw.Stage, error) {
	if kind == hw.KindCameraInfo {
		return newInfoStage(d), nil
	}
	pipeline, err := d.hostPipeline()
	if err != nil {
		return nil, err
	}
	st := &stage{drv: d, id: uuid.NewString(), kind: kind, props: map[string]any{}}
	if err := st.build(pipeline); err != nil {
		return nil, err
	}
	return st, nil
}

// Connect implements hw.Driver.
func (d *Driver) Connect(out, in hw.Port, flags hw.ConnFlags) (hw.Connection, error) {
	po, ok := out.(*port)
	if !ok {
		return nil, fmt.Errorf("gstdrv: output port is not a gst port")
	}
	pi, ok := in.(*port)
	if !ok {
		return nil, fmt.Errorf("gstdrv: input port is not a gst port")
	}
	if !po.fmtSet || !pi.fmtSet {
		return nil, fmt.Errorf("gstdrv: connect %s->%s: ports must be committed first",
			po.st.kind, pi.st.kind)
	}
	c := &conn{
		drv:   d,
		id:    uuid.NewString(),
		out:   po,
		in:    pi,
		flags: flags,
	}
	if flags&hw.ConnTunneled != 0 {
		if err := po.st.tail().Link(pi.st.head()); err != nil {
			return nil, fmt.Errorf("gstdrv: linking %s->%s: %w", po.st.kind, pi.st.kind, err)
		}
		return c, nil
	}
	if err := c.buildAppBridge(); err != nil {
		return nil, err
	}
	return c, nil
}

// conn is one directed link. Non-tunneled connections bridge producer
// and consumer through appsink/appsrc so buffers surface to the caller.
type conn struct {
	drv   *Driver
	id    string
	out   *port
	in    *port
	flags hw.ConnFlags

	mu      sync.Mutex
	enabled bool

	sink *app.Sink
	src  *app.Source

	headers chan *hw.Buffer // free buffer headers
	armed   chan *hw.Buffer // headers awaiting the next delivery
}

const headerDepth = 3

// buildAppBridge inserts appsink after the producer and appsrc before
// the consumer, and prepares the header pool.
func (c *conn) buildAppBridge() error {
	pipeline, err := c.drv.hostPipeline()
	if err != nil {
		return err
	}
	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("gstdrv: creating appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", headerDepth)
	sink.SetProperty("drop", true)

	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("gstdrv: creating appsrc: %w", err)
	}
	src.SetProperty("is-live", true)
	src.SetProperty("format", 3) // GST_FORMAT_TIME

	pipeline.AddMany(sink.Element, src.Element)
	if err := c.out.st.tail().Link(sink.Element); err != nil {
		return fmt.Errorf("gstdrv: linking producer to appsink: %w", err)
	}
	if err := src.Element.Link(c.in.st.head()); err != nil {
		return fmt.Errorf("gstdrv: linking appsrc to consumer: %w", err)
	}
	c.sink = sink
	c.src = src

	size := c.payloadSize()
	c.headers = make(chan *hw.Buffer, headerDepth)
	c.armed = make(chan *hw.Buffer, headerDepth)
	for i := 0; i < headerDepth; i++ {
		c.headers <- hw.NewBuffer(make([]byte, size), c.recycle)
	}
	return nil
}

func (c *conn) payloadSize() int {
	f := c.out.format
	bpp := f.Pixel.BytesPerPixel()
	if bpp == 0 {
		bpp = 4
	}
	return int(f.Crop.Width) * int(f.Crop.Height) * bpp
}

func (c *conn) recycle(b *hw.Buffer) {
	select {
	case c.headers <- b:
	default:
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Enable() error {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
	return c.drv.ensurePlaying()
}

func (c *conn) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	return nil
}

func (c *conn) TakeFree() *hw.Buffer {
	if c.headers == nil {
		return nil
	}
	select {
	case b := <-c.headers:
		return b
	default:
		return nil
	}
}

func (c *conn) SendUpstream(b *hw.Buffer) error {
	if c.armed == nil {
		return fmt.Errorf("gstdrv: send-upstream on tunneled connection")
	}
	select {
	case c.armed <- b:
		return nil
	default:
		b.Release()
		return nil
	}
}

// WaitDelivery pulls the next sample and copies it into an armed header.
// The copy is unavoidable: GStreamer reuses its buffers after Unmap.
func (c *conn) WaitDelivery(ctx context.Context) (*hw.Buffer, error) {
	if c.sink == nil {
		return nil, fmt.Errorf("gstdrv: wait-delivery on tunneled connection")
	}
	var b *hw.Buffer
	select {
	case b = <-c.armed:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		if err := ctx.Err(); err != nil {
			b.Release()
			return nil, err
		}
		sample := c.sink.PullSample()
		if sample == nil {
			if c.sink.IsEOS() {
				b.Release()
				return nil, fmt.Errorf("gstdrv: stream ended")
			}
			continue
		}
		buffer := sample.GetBuffer()
		if buffer == nil {
			slog.Warn("gstdrv: sample without buffer, skipping")
			continue
		}
		mapInfo := buffer.Map(gst.MapRead)
		data := mapInfo.Bytes()
		n := copy(b.Data, data)
		buffer.Unmap()
		b.Length = n
		return b, nil
	}
}

// SendDownstream pushes the held payload into the consumer-side appsrc
// and recycles the header.
func (c *conn) SendDownstream(b *hw.Buffer) error {
	if c.src == nil {
		return fmt.Errorf("gstdrv: send-downstream on tunneled connection")
	}
	gbuf := gst.NewBufferFromBytes(b.Payload())
	ret := c.src.PushBuffer(gbuf)
	b.Release()
	if ret != gst.FlowOK {
		return fmt.Errorf("gstdrv: pushing buffer to display: flow %v", ret)
	}
	return nil
}
