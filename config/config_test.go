package config

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "particles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, particle.DefaultCapacity, cfg.Particles.Count)
	assert.True(t, cfg.Particles.DoubleBuffered)
	assert.Equal(t, uint32(4), cfg.Renderer.SampleCount)
	assert.Equal(t, "immediate", cfg.Renderer.PresentMode)
}

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
particles:
  count: 100
  double_buffered: false
  emit_batch: 10
  swap_pass: true
renderer:
  sample_count: 1
  present_mode: vsync
  clear_color: [0.1, 0.2, 0.3, 1]
window:
  title: demo
metrics:
  addr: ":9090"
`))
	require.NoError(t, err)
	assert.Equal(t, uint32(100), cfg.Particles.Count)
	assert.False(t, cfg.Particles.DoubleBuffered)
	assert.True(t, cfg.Particles.SwapPass)
	assert.Equal(t, "vsync", cfg.Renderer.PresentMode)
	assert.Equal(t, [4]float64{0.1, 0.2, 0.3, 1}, cfg.Renderer.ClearColor)
	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, 1280, cfg.Window.Width, "unset fields keep their defaults")
	assert.Equal(t, ":9090", cfg.Metrics.Addr)

	empty, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), empty)

	_, err = Decode(strings.NewReader("particles:\n  workgroup: 64\n"))
	assert.ErrorContains(t, err, "field workgroup not found")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "particles:\n  count: 1000\n  emit_batch: 100\nrenderer:\n  sample_count: 8\n")

	cfg, err := Parse("particles", []string{
		"-config", path,
		"-emit-batch", "50",
		"-samples", "1",
		"-present-mode", "vsync",
		"-clear-color", "0.5, 0.5, 0.5, 1",
		"-frame-limit", "144",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), cfg.Particles.Count, "from the file")
	assert.Equal(t, uint32(50), cfg.Particles.EmitBatch, "flag wins over the file")
	assert.Equal(t, uint32(1), cfg.Renderer.SampleCount)
	assert.Equal(t, "vsync", cfg.Renderer.PresentMode)
	assert.Equal(t, [4]float64{0.5, 0.5, 0.5, 1}, cfg.Renderer.ClearColor)
	assert.Equal(t, 144.0, cfg.Engine.FrameLimit)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad uint", []string{"-particles", "-1"}, "invalid value"},
		{"bad color", []string{"-clear-color", "1,1"}, "want 4 components"},
		{"unknown flag", []string{"-workgroup-size", "64"}, "flag provided but not defined"},
		{"invalid result", []string{"-samples", "3"}, "sample_count 3"},
		{"missing file", []string{"-config", "/nonexistent/particles.yaml"}, "config:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("particles", tt.args, &bytes.Buffer{})
			assert.ErrorContains(t, err, tt.want)
		})
	}

	var out bytes.Buffer
	_, err := Parse("particles", []string{"-h"}, &out)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, out.String(), "-present-mode")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"zero count", func(c *Config) { c.Particles.Count = 0 }, "count must be positive"},
		{"emit batch", func(c *Config) { c.Particles.Count, c.Particles.EmitBatch = 10, 11 }, "emit_batch 11 exceeds"},
		{"samples", func(c *Config) { c.Renderer.SampleCount = 2 }, "sample_count 2"},
		{"present mode", func(c *Config) { c.Renderer.PresentMode = "mailbox" }, "present_mode"},
		{"storage limit", func(c *Config) { c.Renderer.StorageBindingLimit = 1024 }, "exceeds renderer.storage_binding_limit"},
		{"clear color", func(c *Config) { c.Renderer.ClearColor[3] = 2 }, "clear_color[3]"},
		{"window", func(c *Config) { c.Window.Height = 0 }, "window size 1280x0"},
		{"frame limit", func(c *Config) { c.Engine.FrameLimit = -1 }, "frame_limit"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log environment", func(c *Config) { c.Log.Environment = "staging" }, "log.environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	cfg.Particles.Count = 0
	cfg.Window.Width = 0
	err := cfg.Validate()
	assert.ErrorContains(t, err, "count must be positive")
	assert.ErrorContains(t, err, "window size", "every problem is reported")
}

func TestOptionsApply(t *testing.T) {
	cfg := Default()
	cfg.Particles.Count = 128
	cfg.Particles.EmitBatch = 16
	cfg.Particles.SeedWorkers = 2
	cfg.Renderer.SampleCount = 1
	cfg.Renderer.PresentMode = "vsync"
	require.NoError(t, cfg.Validate())

	backend := gputest.NewBackend()
	r, err := renderer.NewRenderer(backend, fakeSurface{}, cfg.RendererOptions(zap.NewNop())...)
	require.NoError(t, err)
	defer r.Release()
	assert.Equal(t, renderer.PresentModeVSync, r.SurfaceState().PresentMode)
	assert.Equal(t, uint32(1), r.SurfaceState().SampleCount)

	store, err := particle.NewStore(r.Device(), cfg.StoreOptions(zap.NewNop())...)
	require.NoError(t, err)
	defer store.Release()
	assert.Equal(t, uint32(128), store.Capacity())
	assert.Equal(t, 2, store.Count())

	assert.Len(t, cfg.WindowOptions(), 3)
	assert.Len(t, cfg.ComputeOptions(zap.NewNop()), 2)
	assert.Equal(t, "particles", cfg.LoggerConfig().ServiceName)
}

type fakeSurface struct{}

func (fakeSurface) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return &wgpu.SurfaceDescriptor{} }
func (fakeSurface) Width() int                                 { return 640 }
func (fakeSurface) Height() int                                { return 480 }
