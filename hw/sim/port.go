package sim

import (
	"fmt"
	"sync"

	"github.com/e7canasta/camgraph/hw"
)

type direction int

const (
	dirInput direction = iota
	dirOutput
)

// maxDim is the simulated device limit on a working canvas edge.
const maxDim = 4096

type port struct {
	st  *stage
	dir direction
	idx int

	mu       sync.Mutex
	fmtSet   bool
	format   hw.PortFormat
	zeroCopy bool
}

func (p *port) Index() int { return p.idx }

// Commit validates and stores the format. Rejections here are what the
// port configurator surfaces as format-commit failures.
func (p *port) Commit(f hw.PortFormat) error {
	if f.Pixel == hw.FormatUnknown {
		return fmt.Errorf("sim: %s port %d: unknown pixel format", p.st.kind, p.idx)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("sim: %s port %d: invalid size %dx%d",
			p.st.kind, p.idx, f.Width, f.Height)
	}
	if f.Width > maxDim || f.Height > maxDim {
		return fmt.Errorf("sim: %s port %d: size %dx%d exceeds device limit %d",
			p.st.kind, p.idx, f.Width, f.Height, maxDim)
	}
	if f.Crop.Width > f.Width || f.Crop.Height > f.Height {
		return fmt.Errorf("sim: %s port %d: crop %dx%d larger than canvas %dx%d",
			p.st.kind, p.idx, f.Crop.Width, f.Crop.Height, f.Width, f.Height)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fmtSet = true
	p.format = f
	return nil
}

func (p *port) Format() hw.PortFormat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

func (p *port) SetZeroCopy(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zeroCopy = enabled
	return nil
}

func (p *port) committed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fmtSet
}

// Submit implements hw.BufferSink on the splitter input port. The payload
// is fanned out to every downstream delivery queue, scaled to each
// output's requested crop, then the submitted buffer is released.
func (p *port) Submit(buf *hw.Buffer) error {
	if p.st.kind != hw.KindSplitter || p.dir != dirInput {
		return fmt.Errorf("sim: submit on %s port %d: not a splitter input", p.st.kind, p.idx)
	}
	if !p.st.isEnabled() {
		return fmt.Errorf("sim: submit on disabled splitter")
	}
	src := p.Format()
	for _, c := range p.st.drv.deliveryConnsFrom(p.st) {
		c.deliverScaled(buf.Payload(), src)
	}
	buf.Release()
	return nil
}
