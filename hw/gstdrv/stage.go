package gstdrv

import (
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/camgraph/hw"
)

// elementNames returns the GStreamer element chain backing each stage
// kind, head to tail.
func elementNames(kind hw.StageKind) ([]string, error) {
	switch kind {
	case hw.KindSource:
		// The internal tee lets both the preview and capture output
		// ports link off the same sensor stream.
		return []string{"libcamerasrc", "tee"}, nil
	case hw.KindRawFrontEnd:
		return []string{"v4l2src", "capsfilter", "appsink"}, nil
	case hw.KindSplitter:
		return []string{"tee"}, nil
	case hw.KindProcessor:
		return []string{"videoconvert", "videoscale", "capsfilter"}, nil
	case hw.KindRenderer:
		return []string{"videoconvert", "autovideosink"}, nil
	case hw.KindSink:
		return []string{"fakesink"}, nil
	default:
		return nil, fmt.Errorf("gstdrv: unknown stage kind %d", int(kind))
	}
}

// portCount mirrors the component model: source output 0 is preview,
// output 1 is capture.
func portCount(kind hw.StageKind) (inputs, outputs int) {
	switch kind {
	case hw.KindSource:
		return 0, 2
	case hw.KindRawFrontEnd:
		return 0, 1
	case hw.KindSplitter:
		return 1, hw.MaxFanout
	case hw.KindProcessor:
		return 1, 1
	case hw.KindRenderer, hw.KindSink:
		return 1, 0
	}
	return 0, 0
}

type stage struct {
	drv  *Driver
	id   string
	kind hw.StageKind

	mu        sync.Mutex
	enabled   bool
	destroyed bool
	props     map[string]any

	elements []*gst.Element
	inputs   []*port
	outputs  []*port

	// Raw front-end state.
	rawSink *app.Sink
	mipi    hw.MIPIConfig

	// Splitter software-injection source, linked on first Submit.
	injectSrc    *app.Source
	injectLinked bool
}

func (s *stage) build(pipeline *gst.Pipeline) error {
	names, err := elementNames(s.kind)
	if err != nil {
		return err
	}
	for _, name := range names {
		el, err := gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("gstdrv: creating %s for %s stage: %w", name, s.kind, err)
		}
		s.elements = append(s.elements, el)
	}
	pipeline.AddMany(s.elements...)
	if len(s.elements) > 1 {
		if err := gst.ElementLinkMany(s.elements...); err != nil {
			return fmt.Errorf("gstdrv: linking %s chain: %w", s.kind, err)
		}
	}

	nin, nout := portCount(s.kind)
	for i := 0; i < nin; i++ {
		s.inputs = append(s.inputs, &port{st: s, dir: dirInput, idx: i})
	}
	for i := 0; i < nout; i++ {
		s.outputs = append(s.outputs, &port{st: s, dir: dirOutput, idx: i})
	}

	switch s.kind {
	case hw.KindRawFrontEnd:
		s.rawSink = app.SinkFromElement(s.elements[len(s.elements)-1])
		s.rawSink.SetProperty("sync", false)
		s.mipi = hw.MIPIConfig{Lanes: 2, BitDepth: 10, Order: hw.BayerRGGB, ImageID: 0x2b}
	case hw.KindSplitter:
		src, err := app.NewAppSrc()
		if err != nil {
			return fmt.Errorf("gstdrv: creating splitter injection source: %w", err)
		}
		src.SetProperty("is-live", true)
		pipeline.Add(src.Element)
		s.injectSrc = src
	}
	return nil
}

// head is the element an upstream link attaches to; tail is the element
// a downstream link leaves from.
func (s *stage) head() *gst.Element { return s.elements[0] }
func (s *stage) tail() *gst.Element { return s.elements[len(s.elements)-1] }

func (s *stage) ID() string         { return s.id }
func (s *stage) Kind() hw.StageKind { return s.kind }

func (s *stage) Input(i int) (hw.Port, error) {
	if i < 0 || i >= len(s.inputs) {
		return nil, fmt.Errorf("gstdrv: %s has no input port %d", s.kind, i)
	}
	return s.inputs[i], nil
}

func (s *stage) Output(i int) (hw.Port, error) {
	if i < 0 || i >= len(s.outputs) {
		return nil, fmt.Errorf("gstdrv: %s has no output port %d", s.kind, i)
	}
	return s.outputs[i], nil
}

// SetProperty forwards known names to the underlying elements and keeps
// the rest as stage-local metadata for the graph builder.
func (s *stage) SetProperty(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return fmt.Errorf("gstdrv: %s stage destroyed", s.kind)
	}
	switch {
	case s.kind == hw.KindSource && name == "camera-index":
		if idx, ok := value.(int); ok {
			s.head().SetProperty("camera-name", fmt.Sprintf("%d", idx))
		}
	case s.kind == hw.KindRawFrontEnd && name == "device":
		s.head().SetProperty("device", value)
	}
	s.props[name] = value
	return nil
}

func (s *stage) Property(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.props[name]
	if !ok {
		return nil, fmt.Errorf("gstdrv: %s has no property %q", s.kind, name)
	}
	return v, nil
}

func (s *stage) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return fmt.Errorf("gstdrv: enable on destroyed %s stage", s.kind)
	}
	for _, el := range s.elements {
		el.SyncStateWithParent()
	}
	s.enabled = true
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
	if s.destroyed {
		return nil
	}
	for _, el := range s.elements {
		el.SetState(gst.StateNull)
	}
	s.enabled = false
	s.destroyed = true
	return nil
}

type portDir int

const (
	dirInput portDir = iota
	dirOutput
)

type port struct {
	st  *stage
	dir portDir
	idx int

	mu       sync.Mutex
	fmtSet   bool
	format   hw.PortFormat
	zeroCopy bool
}

func (p *port) Index() int { return p.idx }

// Commit records the format and, where the stage chain ends in a
// capsfilter, pins the negotiated caps to the exact crop.
func (p *port) Commit(f hw.PortFormat) error {
	if f.Pixel == hw.FormatUnknown {
		return fmt.Errorf("gstdrv: committing unknown pixel format on %s", p.st.kind)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("gstdrv: committing invalid size %dx%d on %s", f.Width, f.Height, p.st.kind)
	}
	// Only the processor chain ends in a capsfilter that pins caps.
	if caps := capsFor(f); caps != "" && p.dir == dirOutput && p.st.kind == hw.KindProcessor {
		p.st.tail().SetProperty("caps", gst.NewCapsFromString(caps))
	}
	p.mu.Lock()
	p.format = f
	p.fmtSet = true
	p.mu.Unlock()
	return nil
}

// capsFor maps CPU-visible formats to caps strings; opaque and raw
// formats negotiate inside GStreamer.
func capsFor(f hw.PortFormat) string {
	var name string
	switch f.Pixel {
	case hw.FormatRGB24:
		name = "RGB"
	case hw.FormatRGBA:
		name = "RGBA"
	default:
		return ""
	}
	return fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d",
		name, f.Crop.Width, f.Crop.Height)
}

func (p *port) Format() hw.PortFormat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

// SetZeroCopy is accepted and recorded; GStreamer decides buffer
// sharing during caps negotiation, so this is advisory here.
func (p *port) SetZeroCopy(enabled bool) error {
	p.mu.Lock()
	p.zeroCopy = enabled
	p.mu.Unlock()
	return nil
}

// Submit implements hw.BufferSink on the splitter input: software-built
// frames are pushed through the injection appsrc into the tee. The
// appsrc is linked on first use so camera-fed splitters never pay for
// it.
func (p *port) Submit(b *hw.Buffer) error {
	s := p.st
	if s.kind != hw.KindSplitter || p.dir != dirInput {
		b.Release()
		return fmt.Errorf("gstdrv: submit on %s %s port", s.kind, dirName(p.dir))
	}
	s.mu.Lock()
	if !s.injectLinked {
		if err := s.injectSrc.Element.Link(s.head()); err != nil {
			s.mu.Unlock()
			b.Release()
			return fmt.Errorf("gstdrv: linking injection source to splitter: %w", err)
		}
		s.injectSrc.Element.SyncStateWithParent()
		s.injectLinked = true
	}
	src := s.injectSrc
	s.mu.Unlock()

	gbuf := gst.NewBufferFromBytes(b.Payload())
	ret := src.PushBuffer(gbuf)
	b.Release()
	if ret != gst.FlowOK {
		return fmt.Errorf("gstdrv: injecting frame into splitter: flow %v", ret)
	}
	return nil
}

func dirName(d portDir) string {
	if d == dirInput {
		return "input"
	}
	return "output"
}
