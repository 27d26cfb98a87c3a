// Package sim implements the hw component model in software.
//
// The simulated driver produces deterministic synthetic frames, so the
// graph builder and the capture/render driver can be exercised end to end
// on any machine, with no camera and no display. It honors the component
// model's ordering rules (commit before enable, enable before connect,
// connect-enable before flow) and reproduces the two hardware behaviors
// the capture driver must cope with: zero-length deliveries on the
// capture-style source output, and side-info buffers on the raw front-end.
package sim

import (
	"fmt"
	"sync"

	"github.com/e7canasta/camgraph/hw"
)

// Option configures a simulated driver.
type Option func(*Driver)

// WithCameras replaces the default single-camera capability table.
func WithCameras(caps ...hw.CameraCapability) Option {
	return func(d *Driver) { d.cameras = caps }
}

// WithDisplaySize sets the reported display resolution.
func WithDisplaySize(width, height int32) Option {
	return func(d *Driver) { d.displayW, d.displayH = width, height }
}

// WithZeroLengthEvery makes every n-th delivery on a capture-port source
// chain report zero payload length, mimicking the hardware quirk the
// capture driver silently retries.
func WithZeroLengthEvery(n uint64) Option {
	return func(d *Driver) { d.zeroLenEvery = n }
}

// Driver is the software hw.Driver.
type Driver struct {
	mu sync.Mutex

	cameras            []hw.CameraCapability
	displayW, displayH int32
	zeroLenEvery       uint64

	stages []*stage
	conns  []*conn
}

// New creates a simulated driver. The default capability table holds one
// 3280x2464 camera (the supported raw sensor's full field of view) and a
// 1920x1080 display.
func New(opts ...Option) *Driver {
	d := &Driver{
		cameras: []hw.CameraCapability{
			{Index: 0, MaxWidth: 3280, MaxHeight: 2464},
		},
		displayW: 1920,
		displayH: 1080,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements hw.Driver.
func (d *Driver) Name() string { return "sim" }

// DisplaySize implements hw.Driver.
func (d *Driver) DisplaySize() (int32, int32, error) {
	return d.displayW, d.displayH, nil
}

// NewStage implements hw.Driver.
func (d *Driver) NewStage(kind hw.StageKind) (hw.Stage, error) {
	st, err := newStage(d, kind)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.stages = append(d.stages, st)
	d.mu.Unlock()
	return st, nil
}

// Connect implements hw.Driver. Both ports must be committed and both
// owning stages enabled; this is where the component model's ordering
// rules are enforced.
func (d *Driver) Connect(out, in hw.Port, flags hw.ConnFlags) (hw.Connection, error) {
	po, ok := out.(*port)
	if !ok {
		return nil, fmt.Errorf("sim: output port is not a sim port")
	}
	pi, ok := in.(*port)
	if !ok {
		return nil, fmt.Errorf("sim: input port is not a sim port")
	}
	if po.dir != dirOutput || pi.dir != dirInput {
		return nil, fmt.Errorf("sim: connection must run output->input")
	}
	if !po.committed() || !pi.committed() {
		return nil, fmt.Errorf("sim: connect %s->%s: both ports must be committed first",
			po.st.kind, pi.st.kind)
	}
	if !po.st.isEnabled() || !pi.st.isEnabled() {
		return nil, fmt.Errorf("sim: connect %s->%s: both stages must be enabled first",
			po.st.kind, pi.st.kind)
	}
	c := newConn(d, po, pi, flags)
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// upstreamSource walks connections backwards from st and returns the
// camera source feeding it, or nil when the chain starts at a splitter
// with no upstream (the raw path, fed by software Submit).
func (d *Driver) upstreamSource(st *stage) *stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := map[*stage]bool{}
	for st != nil && !seen[st] {
		seen[st] = true
		if st.kind == hw.KindSource {
			return st
		}
		var up *stage
		for _, c := range d.conns {
			if c.in.st == st {
				up = c.out.st
				break
			}
		}
		st = up
	}
	return nil
}

// deliveryConnsFrom walks forward from st and collects every non-tunneled
// enabled connection reachable downstream. The splitter input's Submit
// uses this to fan a software-injected frame out to each output's
// delivery queue.
func (d *Driver) deliveryConnsFrom(st *stage) []*conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*conn
	seen := map[*stage]bool{}
	var walk func(*stage)
	walk = func(s *stage) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true
		for _, c := range d.conns {
			if c.out.st != s {
				continue
			}
			if c.flags&hw.ConnTunneled == 0 {
				out = append(out, c)
			}
			walk(c.in.st)
		}
	}
	walk(st)
	return out
}
