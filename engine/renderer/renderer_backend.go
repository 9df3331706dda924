package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency. This is the default.
	PresentModeUncapped
)

// String returns the configuration name of the present mode.
func (m PresentMode) String() string {
	switch m {
	case PresentModeVSync:
		return "vsync"
	case PresentModeUncapped:
		return "immediate"
	default:
		return fmt.Sprintf("PresentMode(%d)", int(m))
	}
}

// ParsePresentMode maps a configuration name onto a PresentMode.
//
// Parameters:
//   - name: "vsync" or "immediate"
//
// Returns:
//   - PresentMode: the matching mode
//   - error: an error for unknown names
func ParsePresentMode(name string) (PresentMode, error) {
	switch name {
	case "vsync", "fifo":
		return PresentModeVSync, nil
	case "immediate", "uncapped":
		return PresentModeUncapped, nil
	default:
		return PresentModeUncapped, fmt.Errorf("unknown present mode %q", name)
	}
}

func (m PresentMode) wgpu() wgpu.PresentMode {
	if m == PresentModeVSync {
		return wgpu.PresentModeFifo
	}
	return wgpu.PresentModeImmediate
}

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// Only specific power-of-two values are valid for GPU hardware. WebGPU guarantees support for
// 1 (off) and 4; higher values (8, 16) are adapter-dependent and may not be available.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA8x MSAASampleCount = 8

	// MSAA16x enables 16× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA16x MSAASampleCount = 16
)

// Valid reports whether the count is one of the supported sample counts.
func (c MSAASampleCount) Valid() bool {
	switch c {
	case MSAAOff, MSAA4x, MSAA8x, MSAA16x:
		return true
	}
	return false
}

// SurfaceSource is the window a Renderer presents into. window.Window satisfies it.
type SurfaceSource interface {
	// SurfaceDescriptor returns the platform surface description of the window.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Width returns the drawable width in pixels.
	Width() int

	// Height returns the drawable height in pixels.
	Height() int
}

// SurfaceState is the last configuration the surface accepted. The multisample target, when
// present, always has the same size as the surface and SampleCount samples.
type SurfaceState struct {
	Width       uint32
	Height      uint32
	Format      wgpu.TextureFormat
	PresentMode PresentMode
	SampleCount uint32

	// MSAATarget is nil when SampleCount is 1.
	MSAATarget gpu.TextureView
}

func (s SurfaceState) configuration() gpu.SurfaceConfiguration {
	return gpu.SurfaceConfiguration{
		Width:       s.Width,
		Height:      s.Height,
		Format:      s.Format,
		PresentMode: s.PresentMode.wgpu(),
	}
}
