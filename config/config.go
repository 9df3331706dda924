// Package config loads the particle engine settings from YAML and command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-particles/common/logger"
	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer"
	"github.com/Carmen-Shannon/oxy-particles/engine/stage"
	"github.com/Carmen-Shannon/oxy-particles/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Particles ParticlesConfig `yaml:"particles"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Window    WindowConfig    `yaml:"window"`
	Engine    EngineConfig    `yaml:"engine"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ParticlesConfig selects the simulation variant.
type ParticlesConfig struct {
	Count          uint32 `yaml:"count"`
	DoubleBuffered bool   `yaml:"double_buffered"`
	EmitBatch      uint32 `yaml:"emit_batch"`
	SwapPass       bool   `yaml:"swap_pass"`
	Seed           uint64 `yaml:"seed"`
	SeedWorkers    int    `yaml:"seed_workers"`
}

// RendererConfig controls the device and surface.
type RendererConfig struct {
	SampleCount         uint32     `yaml:"sample_count"`
	PresentMode         string     `yaml:"present_mode"`
	StorageBindingLimit uint64     `yaml:"storage_binding_limit"`
	ClearColor          [4]float64 `yaml:"clear_color"`
	Sprite              string     `yaml:"sprite"`
}

// WindowConfig is the initial window.
type WindowConfig struct {
	Title     string `yaml:"title"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Resizable bool   `yaml:"resizable"`
}

// EngineConfig controls the frame loop.
type EngineConfig struct {
	// FrameLimit caps the frame rate in frames per second, 0 leaves it uncapped.
	FrameLimit float64 `yaml:"frame_limit"`
	Profiling  bool    `yaml:"profiling"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when neither a file nor flags override a field.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	return Config{
		Particles: ParticlesConfig{
			Count:          particle.DefaultCapacity,
			DoubleBuffered: true,
			EmitBatch:      1024,
			Seed:           1,
		},
		Renderer: RendererConfig{
			SampleCount:         uint32(renderer.MSAA4x),
			PresentMode:         renderer.PresentModeUncapped.String(),
			StorageBindingLimit: renderer.DefaultStorageBindingLimit,
			ClearColor:          [4]float64{0, 0, 0, 1},
		},
		Window: WindowConfig{
			Title:     "Particles",
			Width:     1280,
			Height:    720,
			Resizable: true,
		},
		Log: LogConfig{
			Level:       "info",
			Environment: logger.EnvironmentDevelopment,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
//
// Parameters:
//   - path: the YAML file
//
// Returns:
//   - Config: the defaults overridden by the file
//   - error: an error if the file cannot be read or decoded
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r over the defaults.
//
// Parameters:
//   - r: the YAML document
//
// Returns:
//   - Config: the defaults overridden by the document
//   - error: a decode error
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Parse builds the configuration from command-line arguments. A -config file is loaded first and
// every flag given on the command line overrides it. The result is validated.
//
// Parameters:
//   - name: the program name used in usage output
//   - args: the arguments without the program name
//   - output: the destination of usage and parse errors
//
// Returns:
//   - Config: the merged configuration
//   - error: flag.ErrHelp for -h, or a parse, load or validation error
func Parse(name string, args []string, output io.Writer) (Config, error) {
	// The first pass only finds the config file.
	var scratch Config
	probe, path := newFlagSet(name, &scratch)
	probe.SetOutput(io.Discard)
	if err := probe.Parse(args); err != nil && !errors.Is(err, flag.ErrHelp) {
		// Report the error through the real flag set below.
		*path = ""
	}

	cfg := Default()
	if *path != "" {
		var err error
		if cfg, err = Load(*path); err != nil {
			return Config{}, err
		}
	}

	fs, _ := newFlagSet(name, &cfg)
	fs.SetOutput(output)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newFlagSet(name string, cfg *Config) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "path to a YAML config file")

	uint32Var(fs, &cfg.Particles.Count, "particles", "particle capacity")
	fs.BoolVar(&cfg.Particles.DoubleBuffered, "double-buffered", cfg.Particles.DoubleBuffered, "ping-pong particle buffers")
	uint32Var(fs, &cfg.Particles.EmitBatch, "emit-batch", "particles emitted per frame")
	fs.BoolVar(&cfg.Particles.SwapPass, "swap-pass", cfg.Particles.SwapPass, "record the metadata swap pass")
	fs.Uint64Var(&cfg.Particles.Seed, "seed", cfg.Particles.Seed, "seed of the initial population")
	fs.IntVar(&cfg.Particles.SeedWorkers, "seed-workers", cfg.Particles.SeedWorkers, "workers seeding the initial population, 0 for one per CPU")

	uint32Var(fs, &cfg.Renderer.SampleCount, "samples", "MSAA sample count (1, 4, 8 or 16)")
	fs.StringVar(&cfg.Renderer.PresentMode, "present-mode", cfg.Renderer.PresentMode, "surface present mode (immediate or vsync)")
	fs.Uint64Var(&cfg.Renderer.StorageBindingLimit, "storage-limit", cfg.Renderer.StorageBindingLimit, "requested max storage buffer binding size in bytes")
	fs.StringVar(&cfg.Renderer.Sprite, "sprite", cfg.Renderer.Sprite, "PNG or JPEG particle sprite")
	fs.Func("clear-color", "background as r,g,b,a in [0, 1]", func(s string) error {
		c, err := parseColor(s)
		if err == nil {
			cfg.Renderer.ClearColor = c
		}
		return err
	})

	fs.StringVar(&cfg.Window.Title, "title", cfg.Window.Title, "window title")
	fs.IntVar(&cfg.Window.Width, "width", cfg.Window.Width, "initial window width")
	fs.IntVar(&cfg.Window.Height, "height", cfg.Window.Height, "initial window height")
	fs.BoolVar(&cfg.Window.Resizable, "resizable", cfg.Window.Resizable, "allow resizing the window")

	fs.Float64Var(&cfg.Engine.FrameLimit, "frame-limit", cfg.Engine.FrameLimit, "frame rate cap, 0 for uncapped")
	fs.BoolVar(&cfg.Engine.Profiling, "profile", cfg.Engine.Profiling, "log frame rate and memory statistics")

	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Log.Environment, "log-env", cfg.Log.Environment, "development or production")
	fs.StringVar(&cfg.Metrics.Addr, "metrics-addr", cfg.Metrics.Addr, "serve Prometheus metrics on this address")
	return fs, path
}

func uint32Var(fs *flag.FlagSet, p *uint32, name, usage string) {
	fs.Func(name, fmt.Sprintf("%s (default %d)", usage, *p), func(s string) error {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return err
		}
		*p = uint32(v)
		return nil
	})
}

func parseColor(s string) ([4]float64, error) {
	var c [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return c, fmt.Errorf("want 4 components, got %d", len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return c, err
		}
		c[i] = v
	}
	return c, nil
}

// Validate reports every invalid field.
//
// Returns:
//   - error: the joined validation errors, or nil
func (c Config) Validate() error {
	var errs []error
	p, r := c.Particles, c.Renderer

	if p.Count == 0 {
		errs = append(errs, errors.New("particles.count must be positive"))
	}
	if p.EmitBatch > p.Count {
		errs = append(errs, fmt.Errorf("particles.emit_batch %d exceeds particles.count %d", p.EmitBatch, p.Count))
	}
	if p.SeedWorkers < 0 {
		errs = append(errs, errors.New("particles.seed_workers must not be negative"))
	}
	if !renderer.MSAASampleCount(r.SampleCount).Valid() {
		errs = append(errs, fmt.Errorf("renderer.sample_count %d is not one of 1, 4, 8, 16", r.SampleCount))
	}
	if _, err := renderer.ParsePresentMode(r.PresentMode); err != nil {
		errs = append(errs, fmt.Errorf("renderer.present_mode: %w", err))
	}
	if size := uint64(p.Count) * particle.DefaultStride; r.StorageBindingLimit > 0 && size > r.StorageBindingLimit {
		errs = append(errs, fmt.Errorf("particle buffer of %d bytes exceeds renderer.storage_binding_limit %d", size, r.StorageBindingLimit))
	}
	for i, v := range r.ClearColor {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("renderer.clear_color[%d] %g is outside [0, 1]", i, v))
		}
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height))
	}
	if c.Engine.FrameLimit < 0 {
		errs = append(errs, errors.New("engine.frame_limit must not be negative"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if env := c.Log.Environment; env != logger.EnvironmentDevelopment && env != logger.EnvironmentProduction {
		errs = append(errs, fmt.Errorf("log.environment %q is not development or production", env))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LoggerConfig returns the logger settings.
func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		Environment: c.Log.Environment,
		Level:       c.Log.Level,
		ServiceName: "particles",
	}
}

// WindowOptions returns the window builder options.
func (c Config) WindowOptions() []window.WindowBuilderOption {
	return []window.WindowBuilderOption{
		window.WithTitle(c.Window.Title),
		window.WithSize(c.Window.Width, c.Window.Height),
		window.WithResizable(c.Window.Resizable),
	}
}

// RendererOptions returns the renderer builder options. The config must be valid.
//
// Parameters:
//   - log: the renderer logger
//
// Returns:
//   - []renderer.RendererBuilderOption: the options
func (c Config) RendererOptions(log *zap.Logger) []renderer.RendererBuilderOption {
	mode, _ := renderer.ParsePresentMode(c.Renderer.PresentMode)
	cc := c.Renderer.ClearColor
	return []renderer.RendererBuilderOption{
		renderer.WithMSAA(renderer.MSAASampleCount(c.Renderer.SampleCount)),
		renderer.WithPresentMode(mode),
		renderer.WithStorageBindingLimit(c.Renderer.StorageBindingLimit),
		renderer.WithClearColor(wgpu.Color{R: cc[0], G: cc[1], B: cc[2], A: cc[3]}),
		renderer.WithLogger(log),
	}
}

// StoreOptions returns the particle store options, seeding the population with
// particle.ScatterSeeder.
//
// Parameters:
//   - log: the store logger
//
// Returns:
//   - []particle.StoreBuilderOption: the options
func (c Config) StoreOptions(log *zap.Logger) []particle.StoreBuilderOption {
	opts := []particle.StoreBuilderOption{
		particle.WithCapacity(c.Particles.Count),
		particle.WithDoubleBuffering(c.Particles.DoubleBuffered),
		particle.WithSeeder(particle.ScatterSeeder(c.Particles.Seed)),
		particle.WithLogger(log),
	}
	if c.Particles.SeedWorkers > 0 {
		opts = append(opts, particle.WithSeedWorkers(c.Particles.SeedWorkers))
	}
	return opts
}

// ComputeOptions returns the compute stage options.
func (c Config) ComputeOptions(log *zap.Logger) []stage.ComputeStageOption {
	return []stage.ComputeStageOption{
		stage.WithSwapPass(c.Particles.SwapPass),
		stage.WithComputeLogger(log),
	}
}
