// Package config loads the YAML run configuration of the capture tool:
// which camera and source output to use, the frame outputs to request,
// their display destinations, and optionally the raw sensor setup.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/camgraph"
)

// Config is the complete run configuration.
type Config struct {
	Camera  int            `yaml:"camera"`
	Port    string         `yaml:"port"` // preview, capture
	Outputs []OutputConfig `yaml:"outputs"`
	Raw     *RawConfig     `yaml:"raw,omitempty"`
	Run     RunConfig      `yaml:"run"`
}

// OutputConfig requests one splitter output.
type OutputConfig struct {
	Width    int32         `yaml:"width"`
	Height   int32         `yaml:"height"`
	Format   string        `yaml:"format"` // rgb24, rgba
	ZeroCopy bool          `yaml:"zero_copy"`
	Render   *RenderConfig `yaml:"render,omitempty"`
}

// RenderConfig places one output on the display.
type RenderConfig struct {
	Fullscreen bool  `yaml:"fullscreen"`
	X          int32 `yaml:"x"`
	Y          int32 `yaml:"y"`
	Width      int32 `yaml:"width"`
	Height     int32 `yaml:"height"`
	Layer      int32 `yaml:"layer"`
}

// RawConfig switches the camera to the raw Bayer ingestion path.
type RawConfig struct {
	Model    string `yaml:"model"` // imx219
	Width    int32  `yaml:"width"`
	Height   int32  `yaml:"height"`
	BitDepth int    `yaml:"bit_depth"` // 8 or 10
	Order    string `yaml:"order"`     // rggb, bggr, gbrg, grbg
	HFlip    bool   `yaml:"hflip"`
	VFlip    bool   `yaml:"vflip"`
	Binning  int    `yaml:"binning"`
	ClockHz  uint32 `yaml:"clock_hz"`
}

// RunConfig drives the capture loop.
type RunConfig struct {
	Frames     int    `yaml:"frames"`
	IntervalMS int    `yaml:"interval_ms"`
	SaveDir    string `yaml:"save_dir"` // when set, frames are dumped as PPM
	Render     bool   `yaml:"render"`
}

// Default returns the configuration used when no file is given: one
// fullscreen VGA output from camera 0's preview port, five frames.
func Default() *Config {
	return &Config{
		Camera: 0,
		Port:   "preview",
		Outputs: []OutputConfig{{
			Width:  640,
			Height: 480,
			Format: "rgb24",
			Render: &RenderConfig{Fullscreen: true, Layer: 2},
		}},
		Run: RunConfig{Frames: 5, Render: true},
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Outputs = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the parts the library cannot check later with better
// context: enum spellings and obviously empty sections.
func Validate(cfg *Config) error {
	if cfg.Camera < 0 {
		return fmt.Errorf("camera index %d is negative", cfg.Camera)
	}
	if _, err := cfg.CameraPort(); err != nil {
		return err
	}
	if len(cfg.Outputs) == 0 {
		return fmt.Errorf("no outputs configured")
	}
	for i, out := range cfg.Outputs {
		if _, err := out.PixelFormat(); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	if cfg.Raw != nil {
		if _, err := cfg.Raw.Sensor(); err != nil {
			return err
		}
	}
	if cfg.Run.Frames <= 0 {
		return fmt.Errorf("run.frames must be positive, got %d", cfg.Run.Frames)
	}
	return nil
}

// CameraPort maps the port spelling to the library constant.
func (c *Config) CameraPort() (camgraph.CameraPort, error) {
	switch strings.ToLower(c.Port) {
	case "", "preview":
		return camgraph.CameraPortPreview, nil
	case "capture":
		return camgraph.CameraPortCapture, nil
	default:
		return 0, fmt.Errorf("unknown camera port %q (want preview or capture)", c.Port)
	}
}

// PixelFormat maps the format spelling to the library constant.
func (o *OutputConfig) PixelFormat() (camgraph.PixelFormat, error) {
	switch strings.ToLower(o.Format) {
	case "", "rgb24", "rgb":
		return camgraph.FormatRGB24, nil
	case "rgba":
		return camgraph.FormatRGBA, nil
	default:
		return 0, fmt.Errorf("unknown pixel format %q (want rgb24 or rgba)", o.Format)
	}
}

// Sensor translates the raw section into the library's sensor config.
func (r *RawConfig) Sensor() (camgraph.RawSensorConfig, error) {
	order, err := bayerOrder(r.Order)
	if err != nil {
		return camgraph.RawSensorConfig{}, err
	}
	return camgraph.RawSensorConfig{
		Model:    strings.ToLower(r.Model),
		Width:    r.Width,
		Height:   r.Height,
		BitDepth: r.BitDepth,
		Order:    order,
		HFlip:    r.HFlip,
		VFlip:    r.VFlip,
		Binning:  r.Binning,
		ClockHz:  r.ClockHz,
	}, nil
}

func bayerOrder(s string) (camgraph.BayerOrder, error) {
	switch strings.ToLower(s) {
	case "", "rggb":
		return camgraph.BayerRGGB, nil
	case "bggr":
		return camgraph.BayerBGGR, nil
	case "gbrg":
		return camgraph.BayerGBRG, nil
	case "grbg":
		return camgraph.BayerGRBG, nil
	default:
		return 0, fmt.Errorf("unknown bayer order %q", s)
	}
}
