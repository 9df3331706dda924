package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
// The default is PresentModeUncapped.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count for the renderer.
// When not specified, the default is MSAA4x. Use MSAAOff to disable MSAA entirely.
// Higher values (MSAA8x, MSAA16x) are adapter-dependent and may not be supported
// by all hardware.
//
// Parameters:
//   - count: the MSAASampleCount to use (MSAAOff, MSAA4x, MSAA8x, or MSAA16x)
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.sampleCount = count
	}
}

// WithStorageBindingLimit sets the maximum storage buffer binding size requested from the device.
// Zero keeps DefaultStorageBindingLimit.
//
// Parameters:
//   - bytes: the binding limit in bytes
//
// Returns:
//   - RendererBuilderOption: a function that applies the limit to a renderer
func WithStorageBindingLimit(bytes uint64) RendererBuilderOption {
	return func(r *renderer) {
		if bytes > 0 {
			r.storageBindingLimit = bytes
		}
	}
}

// WithClearColor sets the background the color attachment is cleared to. The default is opaque black.
//
// Parameters:
//   - c: the clear color
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear color to a renderer
func WithClearColor(c wgpu.Color) RendererBuilderOption {
	return func(r *renderer) {
		r.clearColor = c
	}
}

// WithLogger sets the logger used by the renderer. The default discards everything.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger to a renderer
func WithLogger(logger *zap.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConfigureObserver registers a function called after every successful surface configuration,
// including the initial one.
//
// Parameters:
//   - fn: the observer receiving the new surface state
//
// Returns:
//   - RendererBuilderOption: a function that applies the observer to a renderer
func WithConfigureObserver(fn func(SurfaceState)) RendererBuilderOption {
	return func(r *renderer) {
		r.onConfigure = fn
	}
}
