package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/e7canasta/camgraph/hw"
)

// poolDepth is the buffer-header count of a non-tunneled connection's
// pool, matching the shallow pools the hardware framework allocates.
const poolDepth = 3

type conn struct {
	drv   *Driver
	id    string
	out   *port
	in    *port
	flags hw.ConnFlags

	mu      sync.Mutex
	enabled bool
	seq     uint64
	parked  []*hw.Buffer // upstream-held empties on source-less (raw) chains

	pool       chan *hw.Buffer
	deliveries chan *hw.Buffer
	done       chan struct{} // closed on Disable, releases blocked waits
}

func newConn(d *Driver, out, in *port, flags hw.ConnFlags) *conn {
	c := &conn{
		drv:   d,
		id:    uuid.NewString(),
		out:   out,
		in:    in,
		flags: flags,
		done:  make(chan struct{}),
	}
	if flags&hw.ConnTunneled == 0 {
		c.pool = make(chan *hw.Buffer, poolDepth)
		c.deliveries = make(chan *hw.Buffer, poolDepth)
		size := c.bufferSize()
		for i := 0; i < poolDepth; i++ {
			c.pool <- hw.NewBuffer(make([]byte, size), c.recycle)
		}
	}
	return c
}

// bufferSize is the payload capacity of one pool buffer: the producer
// output's crop at its pixel stride.
func (c *conn) bufferSize() int {
	f := c.out.Format()
	bpp := f.Pixel.BytesPerPixel()
	if bpp == 0 {
		bpp = 4
	}
	return int(f.Crop.Width) * int(f.Crop.Height) * bpp
}

func (c *conn) recycle(b *hw.Buffer) {
	select {
	case c.pool <- b:
	default:
		// Pool full: header was double-released, which violates the
		// single-owner rule. Drop it so the fault is observable as a
		// shrinking pool rather than silent corruption.
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
	return nil
}

func (c *conn) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil
	}
	c.enabled = false
	close(c.done)
	c.done = make(chan struct{})
	return nil
}

func (c *conn) isEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *conn) TakeFree() *hw.Buffer {
	if c.pool == nil {
		return nil
	}
	select {
	case b := <-c.pool:
		return b
	default:
		return nil
	}
}

// SendUpstream hands an empty buffer to the producer side. When the chain
// above this connection ends at an enabled camera source, the simulated
// hardware fills the buffer synchronously and queues the delivery.
// Raw-path chains have no source; their deliveries arrive via the
// splitter input's Submit instead, so the buffer is parked with the
// driver until a software frame needs it.
func (c *conn) SendUpstream(b *hw.Buffer) error {
	if c.pool == nil {
		return fmt.Errorf("sim: send-upstream on tunneled connection")
	}
	if !c.isEnabled() {
		return fmt.Errorf("sim: send-upstream on disabled connection")
	}
	src := c.drv.upstreamSource(c.out.st)
	if src == nil || !src.isEnabled() {
		c.mu.Lock()
		c.parked = append(c.parked, b)
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	seq := c.seq
	c.seq++
	zeroLen := c.drv.zeroLenEvery > 0 &&
		src.boolProp("use-capture-port") &&
		seq%c.drv.zeroLenEvery == c.drv.zeroLenEvery-1
	c.mu.Unlock()

	f := c.out.Format()
	if zeroLen {
		b.Length = 0
	} else {
		fillPattern(b.Data, f.Crop.Width, f.Crop.Height, pixelStride(f.Pixel), seq)
		b.Length = c.bufferSize()
	}
	b.Seq = seq
	select {
	case c.deliveries <- b:
		return nil
	default:
		b.Release()
		return fmt.Errorf("sim: delivery queue overrun")
	}
}

func (c *conn) WaitDelivery(ctx context.Context) (*hw.Buffer, error) {
	if c.deliveries == nil {
		return nil, fmt.Errorf("sim: wait-delivery on tunneled connection")
	}
	c.mu.Lock()
	done := c.done
	enabled := c.enabled
	c.mu.Unlock()
	if !enabled {
		return nil, fmt.Errorf("sim: wait-delivery on disabled connection")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case b := <-c.deliveries:
		return b, nil
	case <-done:
		return nil, fmt.Errorf("sim: connection disabled while waiting")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendDownstream pushes a held buffer into the consumer input port. The
// simulated renderer composites immediately and recycles the header back
// to the pool, which is exactly the responsibility transfer the capture
// driver's render path relies on.
func (c *conn) SendDownstream(b *hw.Buffer) error {
	if !c.isEnabled() {
		return fmt.Errorf("sim: send-downstream on disabled connection")
	}
	b.Release()
	return nil
}

// deliverScaled services a software-submitted frame (raw path): it takes
// a free buffer, scales the payload to this connection's output crop with
// nearest-neighbor sampling, and queues the delivery.
func (c *conn) deliverScaled(payload []byte, srcFmt hw.PortFormat) {
	if c.pool == nil || !c.isEnabled() {
		return
	}
	c.mu.Lock()
	var b *hw.Buffer
	if len(c.parked) > 0 {
		b = c.parked[0]
		c.parked = c.parked[1:]
	}
	c.mu.Unlock()
	if b == nil {
		b = c.TakeFree()
	}
	if b == nil {
		// No free header: consumer is holding everything. Drop, as the
		// hardware splitter would.
		return
	}
	dst := c.out.Format()
	scaleNearest(b.Data, dst.Crop.Width, dst.Crop.Height, pixelStride(dst.Pixel),
		payload, srcFmt.Crop.Width, srcFmt.Crop.Height, pixelStride(srcFmt.Pixel))
	b.Length = c.bufferSize()
	c.mu.Lock()
	b.Seq = c.seq
	c.seq++
	c.mu.Unlock()
	select {
	case c.deliveries <- b:
	default:
		b.Release()
	}
}

func pixelStride(f hw.PixelFormat) int {
	if bpp := f.BytesPerPixel(); bpp != 0 {
		return bpp
	}
	return 4
}
