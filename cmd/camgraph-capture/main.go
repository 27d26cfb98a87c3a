// camgraph-capture builds a camera pipeline from a YAML run
// configuration (or flags), captures a fixed number of frames per
// output, optionally dumping each as a plain-text PPM, and reports the
// capture statistics at the end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/e7canasta/camgraph"
	"github.com/e7canasta/camgraph/hw/sim"
	"github.com/e7canasta/camgraph/internal/config"
	"github.com/e7canasta/camgraph/ppm"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "", "YAML run configuration (optional)")
	camera := flag.Int("camera", -1, "Camera index (overrides config)")
	frames := flag.Int("frames", 0, "Frames to capture per output (overrides config)")
	outputDir := flag.String("output", "", "Directory to save frames as PPM (overrides config)")
	useSim := flag.Bool("sim", false, "Use the software simulation driver instead of GStreamer")
	noRender := flag.Bool("no-render", false, "Free frames instead of rendering them")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("camgraph-capture %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		cfg = loaded
	}
	if *camera >= 0 {
		cfg.Camera = *camera
	}
	if *frames > 0 {
		cfg.Run.Frames = *frames
	}
	if *outputDir != "" {
		cfg.Run.SaveDir = *outputDir
	}
	if *noRender {
		cfg.Run.Render = false
	}

	if cfg.Run.SaveDir != "" {
		if err := os.MkdirAll(cfg.Run.SaveDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	var opts []camgraph.Option
	opts = append(opts, camgraph.WithLogger(logger))
	if *useSim {
		opts = append(opts, camgraph.WithDriver(sim.New()))
	}
	if err := camgraph.Init(opts...); err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer camgraph.Finalize()

	if cfg.Camera >= camgraph.NumCameras() {
		log.Fatalf("Camera %d not present (%d cameras found)", cfg.Camera, camgraph.NumCameras())
	}
	if w, h, err := camgraph.ScreenSize(); err == nil {
		slog.Info("Display detected", "width", w, "height", h)
	}

	port, err := cfg.CameraPort()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := camgraph.ConfigCameraPort(cfg.Camera, port); err != nil {
		log.Fatalf("Failed to select camera port: %v", err)
	}
	if cfg.Raw != nil {
		sensor, err := cfg.Raw.Sensor()
		if err != nil {
			log.Fatalf("Invalid raw sensor configuration: %v", err)
		}
		if err := camgraph.ConfigRawSensor(cfg.Camera, sensor); err != nil {
			log.Fatalf("Failed to configure raw sensor: %v", err)
		}
	}

	handles := make([]*camgraph.FrameHandle, 0, len(cfg.Outputs))
	for i, out := range cfg.Outputs {
		pixel, err := out.PixelFormat()
		if err != nil {
			log.Fatalf("Output %d: %v", i, err)
		}
		fc, err := camgraph.ConfigCameraFrame(cfg.Camera, out.Width, out.Height, pixel, out.ZeroCopy)
		if err != nil {
			log.Fatalf("Failed to configure output %d: %v", i, err)
		}
		if out.Render != nil {
			rc := camgraph.RenderConfig{
				Fullscreen: out.Render.Fullscreen,
				X:          out.Render.X,
				Y:          out.Render.Y,
				Width:      out.Render.Width,
				Height:     out.Render.Height,
				Layer:      out.Render.Layer,
			}
			if err := camgraph.ConfigCameraFrameRender(fc, rc); err != nil {
				log.Fatalf("Failed to configure render for output %d: %v", i, err)
			}
		}
		handles = append(handles, fc)
	}

	if err := camgraph.FinishConfig(); err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	slog.Info("Pipeline built", "camera", cfg.Camera, "outputs", len(handles))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Interrupt received, stopping")
		cancel()
	}()

	interval := time.Duration(cfg.Run.IntervalMS) * time.Millisecond
	for n := 0; n < cfg.Run.Frames; n++ {
		for _, fc := range handles {
			if err := captureOne(ctx, cfg, fc, n); err != nil {
				if ctx.Err() != nil {
					goto done
				}
				log.Fatalf("Capture failed on output %d frame %d: %v", fc.Output(), n, err)
			}
		}
		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				goto done
			}
		}
	}

done:
	for _, fc := range handles {
		stats := fc.Stats()
		fmt.Printf("output %d: %d frames, %.2f fps, %d zero-length retries, elapsed %s\n",
			fc.Output(), stats.Frames, stats.FPS(), stats.ZeroLengthRetries,
			stats.Elapsed.Round(time.Millisecond))
	}
}

// captureOne runs one capture cycle for a single output: capture, dump,
// then render or free.
func captureOne(ctx context.Context, cfg *config.Config, fc *camgraph.FrameHandle, n int) error {
	if err := fc.CaptureNextFrame(ctx); err != nil {
		return err
	}
	if cfg.Run.SaveDir != "" {
		if err := saveFrame(cfg, fc, n); err != nil {
			slog.Error("Failed to save frame", "error", err, "output", fc.Output(), "frame", n)
		}
	}
	if cfg.Run.Render {
		return fc.Render()
	}
	return fc.Free()
}

// saveFrame dumps the captured frame as %08d.ppm in the save directory.
// RGBA frames are packed down to RGB for the dump.
func saveFrame(cfg *config.Config, fc *camgraph.FrameHandle, n int) error {
	data, err := fc.Frame()
	if err != nil {
		return err
	}
	out := cfg.Outputs[fc.Output()]
	w, h := int(out.Width), int(out.Height)

	pixel, _ := out.PixelFormat()
	rgb := data
	if pixel == camgraph.FormatRGBA {
		rgb = make([]byte, w*h*3)
		for i := 0; i < w*h; i++ {
			rgb[i*3+0] = data[i*4+0]
			rgb[i*3+1] = data[i*4+1]
			rgb[i*3+2] = data[i*4+2]
		}
	}

	name := filepath.Join(cfg.Run.SaveDir, fmt.Sprintf("%08d.ppm", n))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()
	return ppm.Encode(f, rgb, w, h)
}
