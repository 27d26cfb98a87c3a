package sim

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/e7canasta/camgraph/hw"
)

// portCount returns the input/output port counts per stage kind. The
// source exposes two outputs: 0 is the low-latency preview output, 1 the
// higher-quality capture output.
func portCount(kind hw.StageKind) (inputs, outputs int, err error) {
	switch kind {
	case hw.KindCameraInfo:
		return 0, 0, nil
	case hw.KindSource:
		return 0, 2, nil
	case hw.KindRawFrontEnd:
		return 0, 1, nil
	case hw.KindSplitter:
		return 1, hw.MaxFanout, nil
	case hw.KindProcessor:
		return 1, 1, nil
	case hw.KindRenderer, hw.KindSink:
		return 1, 0, nil
	default:
		return 0, 0, fmt.Errorf("sim: unknown stage kind %d", int(kind))
	}
}

type stage struct {
	drv  *Driver
	id   string
	kind hw.StageKind

	mu        sync.Mutex
	enabled   bool
	destroyed bool
	props     map[string]any

	inputs  []*port
	outputs []*port

	raw *rawState // non-nil for KindRawFrontEnd
}

func newStage(d *Driver, kind hw.StageKind) (*stage, error) {
	nin, nout, err := portCount(kind)
	if err != nil {
		return nil, err
	}
	st := &stage{
		drv:   d,
		id:    uuid.NewString(),
		kind:  kind,
		props: make(map[string]any),
	}
	for i := 0; i < nin; i++ {
		st.inputs = append(st.inputs, &port{st: st, dir: dirInput, idx: i})
	}
	for i := 0; i < nout; i++ {
		st.outputs = append(st.outputs, &port{st: st, dir: dirOutput, idx: i})
	}
	if kind == hw.KindRawFrontEnd {
		st.raw = newRawState(st)
	}
	return st, nil
}

func (s *stage) ID() string         { return s.id }
func (s *stage) Kind() hw.StageKind { return s.kind }

func (s *stage) Input(i int) (hw.Port, error) {
	if i < 0 || i >= len(s.inputs) {
		return nil, fmt.Errorf("sim: %s has no input port %d", s.kind, i)
	}
	return s.inputs[i], nil
}

func (s *stage) Output(i int) (hw.Port, error) {
	if i < 0 || i >= len(s.outputs) {
		return nil, fmt.Errorf("sim: %s has no output port %d", s.kind, i)
	}
	return s.outputs[i], nil
}

func (s *stage) SetProperty(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return fmt.Errorf("sim: %s stage destroyed", s.kind)
	}
	s.props[name] = value
	return nil
}

func (s *stage) Property(name string) (any, error) {
	if s.kind == hw.KindCameraInfo && name == "camera-info" {
		caps := make([]hw.CameraCapability, len(s.drv.cameras))
		copy(caps, s.drv.cameras)
		return caps, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.props[name]
	if !ok {
		return nil, fmt.Errorf("sim: %s has no property %q", s.kind, name)
	}
	return v, nil
}

func (s *stage) boolProp(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.props[name].(bool)
	return v
}

func (s *stage) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return fmt.Errorf("sim: enable on destroyed %s stage", s.kind)
	}
	s.enabled = true
	if s.raw != nil {
		s.raw.start()
	}
	return nil
}

func (s *stage) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	return nil
}

func (s *stage) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.destroyed = true
	return nil
}

func (s *stage) isEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}
