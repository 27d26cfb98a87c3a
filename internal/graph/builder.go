package graph

import (
	"fmt"
	"log/slog"

	"github.com/e7canasta/camgraph/hw"

	"github.com/e7canasta/camgraph/internal/rawcam"
)

// Node is one stage instance of a built graph.
type Node struct {
	Kind  hw.StageKind
	Stage hw.Stage
}

// Edge is one directed connection of a built graph.
type Edge struct {
	Conn     hw.Connection
	Tunneled bool
}

// Built is the realized stage graph of one camera slot: the explicit
// node/edge structure replacing the reference system's parallel arrays.
// Nodes and edges are kept in construction order so teardown can run in
// exact reverse dependency order.
type Built struct {
	nodes []Node
	edges []Edge

	// Source is the fixed-function camera stage; nil on the raw path.
	Source hw.Stage
	// RawStage and Raw are the raw front-end; nil on the hardware path.
	RawStage hw.Stage
	Raw      hw.RawStreamer
	// Conv is the raw path's software conversion pipeline.
	Conv *rawcam.Converter

	// SplitterIn accepts software-injected frames on the raw path.
	SplitterIn hw.BufferSink
	// SplitterInFormat is the committed format of the splitter input.
	SplitterInFormat hw.PortFormat

	// Deliveries is the per-output processor→renderer connection the
	// capture driver waits on; index matches the fan-out index.
	Deliveries []hw.Connection
}

// Teardown disables connections, then stages, in reverse construction
// order, and destroys the stage instances. Used both for the rollback
// path during construction and for final subsystem teardown. Errors are
// logged and swallowed: teardown is best-effort by design.
func (bt *Built) Teardown(log *slog.Logger) {
	for i := len(bt.edges) - 1; i >= 0; i-- {
		if err := bt.edges[i].Conn.Disable(); err != nil {
			log.Warn("graph: disabling connection failed", "error", err)
		}
	}
	for i := len(bt.nodes) - 1; i >= 0; i-- {
		n := bt.nodes[i]
		if err := n.Stage.Disable(); err != nil {
			log.Warn("graph: disabling stage failed", "kind", n.Kind.String(), "error", err)
		}
		if err := n.Stage.Destroy(); err != nil {
			log.Warn("graph: destroying stage failed", "kind", n.Kind.String(), "error", err)
		}
	}
	bt.nodes = nil
	bt.edges = nil
}

// Builder constructs stage graphs against one driver.
type Builder struct {
	Driver hw.Driver
	Log    *slog.Logger
}

func (b *Builder) newStage(kind hw.StageKind, bt *Built) (hw.Stage, error) {
	st, err := b.Driver.NewStage(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStageCreation, kind, err)
	}
	bt.nodes = append(bt.nodes, Node{Kind: kind, Stage: st})
	return st, nil
}

func (b *Builder) connect(out, in hw.Port, flags hw.ConnFlags, bt *Built) (hw.Connection, error) {
	c, err := b.Driver.Connect(out, in, flags)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrStageCreation, err)
	}
	bt.edges = append(bt.edges, Edge{Conn: c, Tunneled: flags&hw.ConnTunneled != 0})
	return c, nil
}

// FinishSlot builds, connects and enables the slot's stage graph. Any
// stage-creation, port-configuration or connection failure aborts the
// whole operation; unlike the reference system, the partial graph is
// rolled back in reverse construction order before returning.
func (b *Builder) FinishSlot(s *Slot) (built *Built, err error) {
	bt := &Built{}
	defer func() {
		if err != nil {
			b.Log.Error("graph: build failed, rolling back partial graph",
				"camera", s.Camera, "error", err)
			bt.Teardown(b.Log)
		}
	}()

	n := s.Fanout.Next

	// The splitter and the sensor don't know about per-output sizes:
	// everything upstream runs at the elementwise maximum request.
	var workW, workH int32
	for j := 0; j < n; j++ {
		req := &s.Fanout.Outputs[j]
		workW = max(workW, req.Width)
		workH = max(workH, req.Height)
	}
	if s.Raw && s.Sensor.Width > 0 {
		// The raw path streams at the programmed sensor mode.
		workW, workH = s.Sensor.Width, s.Sensor.Height
	}
	s.WorkWidth, s.WorkHeight = workW, workH

	b.Log.Info("graph: building slot",
		"camera", s.Camera, "outputs", n,
		"working", fmt.Sprintf("%dx%d", workW, workH),
		"port", s.Port.String(), "raw", s.Raw)

	// Splitter input format: opaque on the hardware path (the payload
	// tunnels from the source), packed RGB on the raw path (software
	// injects converted frames).
	splitInPixel := hw.FormatOpaque
	if s.Raw {
		splitInPixel = hw.FormatRGB24
	}

	// --- Front end: camera source or raw front-end ---

	if s.Raw {
		if err := b.buildRawFrontEnd(s, workW, workH, bt); err != nil {
			return nil, err
		}
	} else {
		if err := b.buildSource(s, workW, workH, bt); err != nil {
			return nil, err
		}
	}

	// --- Splitter ---

	splitter, err := b.newStage(hw.KindSplitter, bt)
	if err != nil {
		return nil, err
	}
	splitIn, err := splitter.Input(0)
	if err != nil {
		return nil, fmt.Errorf("%w: splitter input: %v", ErrStageQuery, err)
	}
	if err := ConfigurePort(splitIn, splitInPixel, workW, workH); err != nil {
		return nil, err
	}
	if err := splitIn.SetZeroCopy(true); err != nil {
		return nil, fmt.Errorf("%w: splitter input zero-copy: %v", ErrStageCreation, err)
	}
	for j := 0; j < n; j++ {
		out, err := splitter.Output(j)
		if err != nil {
			return nil, fmt.Errorf("%w: splitter output %d: %v", ErrStageQuery, j, err)
		}
		if err := ConfigurePort(out, hw.FormatRGBA, workW, workH); err != nil {
			return nil, err
		}
		if err := out.SetZeroCopy(true); err != nil {
			return nil, fmt.Errorf("%w: splitter output %d zero-copy: %v", ErrStageCreation, j, err)
		}
	}
	if err := splitter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enabling splitter: %v", ErrStageCreation, err)
	}
	bt.SplitterInFormat = splitIn.Format()
	if sink, ok := splitIn.(hw.BufferSink); ok {
		bt.SplitterIn = sink
	}
	if s.Raw && bt.SplitterIn == nil {
		return nil, fmt.Errorf("%w: driver %s splitter input cannot accept software frames",
			ErrConfiguration, b.Driver.Name())
	}

	// --- AWB sink for the idle preview output ---

	var sinkStage hw.Stage
	if !s.Raw && s.Port == PortCapture {
		sinkStage, err = b.newStage(hw.KindSink, bt)
		if err != nil {
			return nil, err
		}
		in, err := sinkStage.Input(0)
		if err != nil {
			return nil, fmt.Errorf("%w: sink input: %v", ErrStageQuery, err)
		}
		if err := ConfigurePort(in, hw.FormatOpaque, workW, workH); err != nil {
			return nil, err
		}
		if err := sinkStage.Enable(); err != nil {
			return nil, fmt.Errorf("%w: enabling sink: %v", ErrStageCreation, err)
		}
	}

	// --- Per-output processor and renderer pairs ---

	procs := make([]hw.Stage, n)
	renders := make([]hw.Stage, n)
	for j := 0; j < n; j++ {
		req := &s.Fanout.Outputs[j]

		proc, err := b.newStage(hw.KindProcessor, bt)
		if err != nil {
			return nil, err
		}
		in, err := proc.Input(0)
		if err != nil {
			return nil, fmt.Errorf("%w: processor %d input: %v", ErrStageQuery, j, err)
		}
		if err := ConfigurePort(in, hw.FormatRGBA, workW, workH); err != nil {
			return nil, err
		}
		if err := in.SetZeroCopy(true); err != nil {
			return nil, fmt.Errorf("%w: processor %d input zero-copy: %v", ErrStageCreation, j, err)
		}
		out, err := proc.Output(0)
		if err != nil {
			return nil, fmt.Errorf("%w: processor %d output: %v", ErrStageQuery, j, err)
		}
		if err := ConfigurePort(out, req.Pixel, req.Width, req.Height); err != nil {
			return nil, err
		}
		if err := out.SetZeroCopy(req.ZeroCopy); err != nil {
			return nil, fmt.Errorf("%w: processor %d output zero-copy: %v", ErrStageCreation, j, err)
		}
		if err := proc.Enable(); err != nil {
			return nil, fmt.Errorf("%w: enabling processor %d: %v", ErrStageCreation, j, err)
		}
		procs[j] = proc

		render, err := b.newStage(hw.KindRenderer, bt)
		if err != nil {
			return nil, err
		}
		rin, err := render.Input(0)
		if err != nil {
			return nil, fmt.Errorf("%w: renderer %d input: %v", ErrStageQuery, j, err)
		}
		if err := ConfigurePort(rin, req.Pixel, req.Width, req.Height); err != nil {
			return nil, err
		}
		if err := rin.SetZeroCopy(req.ZeroCopy); err != nil {
			return nil, fmt.Errorf("%w: renderer %d input zero-copy: %v", ErrStageCreation, j, err)
		}
		region := s.Renders[j]
		if !region.Set {
			region = RenderRegion{Fullscreen: true}
		}
		if err := render.SetProperty("region", region); err != nil {
			return nil, fmt.Errorf("%w: renderer %d region: %v", ErrStageCreation, j, err)
		}
		if err := render.Enable(); err != nil {
			return nil, fmt.Errorf("%w: enabling renderer %d: %v", ErrStageCreation, j, err)
		}
		renders[j] = render
	}

	// --- Connections, in dependency order ---

	var camSplit, previewSink hw.Connection
	if !s.Raw {
		srcOut, err := bt.Source.Output(sourceOutputIndex(s.Port))
		if err != nil {
			return nil, fmt.Errorf("%w: source output: %v", ErrStageQuery, err)
		}
		camSplit, err = b.connect(srcOut, splitIn, hw.ConnTunneled, bt)
		if err != nil {
			return nil, err
		}
		if sinkStage != nil {
			// Keep the preview output flowing so AWB/AE stays alive.
			prevOut, err := bt.Source.Output(sourceOutputIndex(PortPreview))
			if err != nil {
				return nil, fmt.Errorf("%w: preview output: %v", ErrStageQuery, err)
			}
			sinkIn, err := sinkStage.Input(0)
			if err != nil {
				return nil, fmt.Errorf("%w: sink input: %v", ErrStageQuery, err)
			}
			previewSink, err = b.connect(prevOut, sinkIn, hw.ConnTunneled, bt)
			if err != nil {
				return nil, err
			}
		}
	}

	splitProc := make([]hw.Connection, n)
	bt.Deliveries = make([]hw.Connection, n)
	for j := 0; j < n; j++ {
		splitOut, err := splitter.Output(j)
		if err != nil {
			return nil, fmt.Errorf("%w: splitter output %d: %v", ErrStageQuery, j, err)
		}
		procIn, _ := procs[j].Input(0)
		splitProc[j], err = b.connect(splitOut, procIn, hw.ConnTunneled, bt)
		if err != nil {
			return nil, err
		}
		procOut, _ := procs[j].Output(0)
		renderIn, _ := renders[j].Input(0)
		bt.Deliveries[j], err = b.connect(procOut, renderIn, 0, bt)
		if err != nil {
			return nil, err
		}
	}

	// Enable leaf-first so every consumer is ready before its producer
	// starts pushing.
	for j := 0; j < n; j++ {
		if err := bt.Deliveries[j].Enable(); err != nil {
			return nil, fmt.Errorf("%w: enabling processor-renderer connection %d: %v",
				ErrStageCreation, j, err)
		}
		if err := splitProc[j].Enable(); err != nil {
			return nil, fmt.Errorf("%w: enabling splitter-processor connection %d: %v",
				ErrStageCreation, j, err)
		}
	}
	if previewSink != nil {
		if err := previewSink.Enable(); err != nil {
			return nil, fmt.Errorf("%w: enabling preview-sink connection: %v", ErrStageCreation, err)
		}
	}
	if camSplit != nil {
		if err := camSplit.Enable(); err != nil {
			return nil, fmt.Errorf("%w: enabling source-splitter connection: %v", ErrStageCreation, err)
		}
	}

	// Drain each delivery pool upstream so the pipeline has buffers to
	// fill from frame one.
	for j := 0; j < n; j++ {
		conn := bt.Deliveries[j]
		for buf := conn.TakeFree(); buf != nil; buf = conn.TakeFree() {
			if err := conn.SendUpstream(buf); err != nil {
				return nil, fmt.Errorf("%w: priming connection %d: %v", ErrStageCreation, j, err)
			}
		}
	}

	b.Log.Info("graph: slot built", "camera", s.Camera,
		"stages", len(bt.nodes), "connections", len(bt.edges))
	return bt, nil
}

// sourceOutputIndex maps the port selection to the source stage's
// physical output index.
func sourceOutputIndex(p PortSelection) int {
	if p == PortCapture {
		return 1
	}
	return 0
}

// buildSource creates, configures and enables the fixed-function camera
// source for the hardware path.
func (b *Builder) buildSource(s *Slot, workW, workH int32, bt *Built) error {
	src, err := b.newStage(hw.KindSource, bt)
	if err != nil {
		return err
	}
	if err := src.SetProperty("camera-index", s.Camera); err != nil {
		return fmt.Errorf("%w: source camera-index: %v", ErrStageCreation, err)
	}
	if s.Port == PortCapture {
		if err := src.SetProperty("use-capture-port", true); err != nil {
			return fmt.Errorf("%w: source port selection: %v", ErrStageCreation, err)
		}
	}
	// Configure the output feeding the splitter, and the preview output
	// as well when the capture output is selected: AWB/AE runs off the
	// preview side and needs it active.
	used := sourceOutputIndex(s.Port)
	for _, idx := range []int{0, 1} {
		if idx != used && s.Port != PortCapture {
			continue
		}
		out, err := src.Output(idx)
		if err != nil {
			return fmt.Errorf("%w: source output %d: %v", ErrStageQuery, idx, err)
		}
		if err := ConfigurePort(out, hw.FormatOpaque, workW, workH); err != nil {
			return err
		}
		if err := out.SetZeroCopy(true); err != nil {
			return fmt.Errorf("%w: source output %d zero-copy: %v", ErrStageCreation, idx, err)
		}
	}
	if err := src.Enable(); err != nil {
		return fmt.Errorf("%w: enabling source: %v", ErrStageCreation, err)
	}
	bt.Source = src
	return nil
}

// buildRawFrontEnd creates the raw path front end: negotiates the MIPI
// receiver configuration for the requested bit depth and ordering,
// programs the sensor for supported models, and prepares the software
// conversion pipeline.
func (b *Builder) buildRawFrontEnd(s *Slot, workW, workH int32, bt *Built) error {
	st, err := b.newStage(hw.KindRawFrontEnd, bt)
	if err != nil {
		return err
	}
	streamer, ok := st.(hw.RawStreamer)
	if !ok {
		return fmt.Errorf("%w: driver %s has no raw sensor support", ErrConfiguration, b.Driver.Name())
	}

	mipi, err := streamer.ReceiverConfig()
	if err != nil {
		return fmt.Errorf("%w: reading receiver config: %v", ErrStageQuery, err)
	}
	depth := s.Sensor.BitDepth
	if depth == 0 {
		depth = mipi.BitDepth
	}
	lineBytes, err := rawcam.PackedLineBytes(int(workW), depth)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	mipi.BitDepth = depth
	mipi.Order = s.Sensor.Order
	mipi.ImageID = csiImageID(depth)
	mipi.DataLen = lineBytes
	if err := streamer.ApplyReceiverConfig(mipi); err != nil {
		return fmt.Errorf("%w: applying receiver config: %v", ErrStageCreation, err)
	}

	gainCorrect := false
	if s.Sensor.Model != "" {
		regs, err := rawcam.TranslateSensorConfig(s.Sensor)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if err := st.SetProperty("sensor-registers", regs); err != nil {
			return fmt.Errorf("%w: programming sensor: %v", ErrStageCreation, err)
		}
		gainCorrect = true
	}

	out, err := st.Output(0)
	if err != nil {
		return fmt.Errorf("%w: raw front-end output: %v", ErrStageQuery, err)
	}
	if err := ConfigurePort(out, hw.FormatBayer, workW, workH); err != nil {
		return err
	}
	if err := st.Enable(); err != nil {
		return fmt.Errorf("%w: enabling raw front-end: %v", ErrStageCreation, err)
	}

	tuner := rawcam.NewAutoTuner(512, func(lines int32) {
		if err := st.SetProperty("sensor-exposure", lines); err != nil {
			b.Log.Warn("graph: applying exposure failed", "camera", s.Camera, "error", err)
		}
	})
	conv, err := rawcam.NewConverter(workW, workH, mipi, gainCorrect, 3, tuner)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	bt.RawStage = st
	bt.Raw = streamer
	bt.Conv = conv
	return nil
}

// csiImageID maps a packed Bayer bit depth to its CSI-2 data type.
func csiImageID(depth int) byte {
	switch depth {
	case 8:
		return 0x2a
	case 12:
		return 0x2c
	default:
		return 0x2b
	}
}
