package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// DefaultStorageBindingLimit is the storage buffer binding size requested from the device when no
// other limit is configured. It fits a million 64 byte particle records with room to spare.
const DefaultStorageBindingLimit uint64 = 256 << 20

// ErrAcquireRetryFailed is returned when a frame could not be acquired even after the surface was
// reconfigured for an outdated swap chain. It is not recoverable.
var ErrAcquireRetryFailed = errors.New("renderer: acquire failed after reconfigure")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	logger *zap.Logger

	device  gpu.Device
	surface gpu.Surface

	// state is the last configuration the surface accepted.
	state SurfaceState

	// Pre-creation config collected from builder options
	presentMode         PresentMode
	sampleCount         MSAASampleCount
	storageBindingLimit uint64
	clearColor          wgpu.Color

	onConfigure func(SurfaceState)
}

// Renderer owns the device, its queue and the window surface, and hides the surface bookkeeping from
// the stages that record into it.
//
// The Renderer keeps the last surface configuration that succeeded. A degenerate resize leaves it
// untouched, an outdated surface is reconfigured with it, and the multisample target is always
// recreated to match it.
type Renderer interface {
	// Resize reconfigures the surface for a new drawable size and recreates the multisample target.
	// A zero width or height is ignored and the previous configuration stays in effect.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface rejects the configuration, which is not recoverable
	Resize(width, height int) error

	// AcquireFrame acquires the next presentation image.
	// An outdated surface is reconfigured with the last good configuration and acquisition is
	// retried exactly once. A timeout is returned as gpu.ErrSurfaceTimeout so the caller can skip
	// the frame. Every other failure is fatal.
	//
	// Returns:
	//   - gpu.Frame: the acquired image, which must be presented or released
	//   - error: gpu.ErrSurfaceTimeout, ErrAcquireRetryFailed or another fatal error
	AcquireFrame() (gpu.Frame, error)

	// ColorAttachment returns the attachment a render pass draws into for the given frame. With
	// multisampling the pass draws into the multisample target and resolves into the frame image,
	// otherwise it draws into the frame image directly. Both clear to the configured color.
	//
	// Parameters:
	//   - frame: the acquired image
	//
	// Returns:
	//   - gpu.ColorAttachment: the color attachment for the pass
	ColorAttachment(frame gpu.Frame) gpu.ColorAttachment

	// Submit submits the frame's command buffers in a single queue submission.
	//
	// Parameters:
	//   - cmds: the command buffers to execute
	Submit(cmds ...gpu.CommandBuffer)

	// Present queues the frame for display and releases it.
	//
	// Parameters:
	//   - frame: the frame acquired by AcquireFrame
	//
	// Returns:
	//   - error: an error if presentation fails
	Present(frame gpu.Frame) error

	// Device returns the device.
	//
	// Returns:
	//   - gpu.Device: the opened device
	Device() gpu.Device

	// Queue returns the device queue.
	//
	// Returns:
	//   - gpu.Queue: the submission queue
	Queue() gpu.Queue

	// SurfaceState returns the current surface configuration.
	//
	// Returns:
	//   - SurfaceState: the last configuration the surface accepted
	SurfaceState() SurfaceState

	// Release releases the multisample target, the surface and the device. Stages must be released first.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer opens a high-performance adapter compatible with the window surface, requests a device
// with a raised storage binding limit, configures the surface to the window size and creates the
// multisample target when multisampling is enabled. There is no software fallback: a missing adapter
// is returned as gpu.ErrNoAdapter.
//
// Parameters:
//   - backend: the GPU backend, gpu.NewWGPUBackend() in production
//   - window: the window the surface belongs to
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the initialized renderer
//   - error: an error if the device cannot be opened or the surface cannot be configured
func NewRenderer(backend gpu.Backend, window SurfaceSource, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:                  &sync.Mutex{},
		logger:              zap.NewNop(),
		presentMode:         PresentModeUncapped,
		sampleCount:         MSAA4x,
		storageBindingLimit: DefaultStorageBindingLimit,
		clearColor:          wgpu.Color{R: 0, G: 0, B: 0, A: 1},
	}

	// Apply options first so the limits are known before the device is requested.
	for _, opt := range options {
		opt(r)
	}
	if !r.sampleCount.Valid() {
		return nil, fmt.Errorf("renderer: unsupported sample count %d", r.sampleCount)
	}

	device, surface, err := backend.Open(gpu.OpenOptions{
		SurfaceDescriptor:   window.SurfaceDescriptor(),
		PowerPreference:     wgpu.PowerPreferenceHighPerformance,
		StorageBindingLimit: r.storageBindingLimit,
		Label:               "Particles Device",
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	r.device, r.surface = device, surface
	if granted := device.Limits().MaxStorageBufferBindingSize; granted < r.storageBindingLimit {
		r.logger.Warn("adapter storage binding limit below the requested size",
			zap.Uint64("requested", r.storageBindingLimit),
			zap.Uint64("granted", granted),
		)
	}

	r.state = SurfaceState{
		Format:      surface.PreferredFormat(),
		PresentMode: r.presentMode,
		SampleCount: uint32(r.sampleCount),
	}
	if err := r.configure(uint32(window.Width()), uint32(window.Height())); err != nil {
		r.Release()
		return nil, err
	}
	r.logger.Info("renderer initialized",
		zap.Uint32("width", r.state.Width),
		zap.Uint32("height", r.state.Height),
		zap.Stringer("present_mode", r.state.PresentMode),
		zap.Uint32("sample_count", r.state.SampleCount),
		zap.Uint64("max_storage_binding", device.Limits().MaxStorageBufferBindingSize),
	)
	return r, nil
}

// configure applies a new surface size and recreates the multisample target. The target is created
// before the surface is touched and state is only updated once both succeed, so a failure on either
// step keeps the surface and the target at the last good configuration.
func (r *renderer) configure(width, height uint32) error {
	next := r.state
	next.Width, next.Height = width, height

	var target gpu.TextureView
	if next.SampleCount > 1 {
		var err error
		target, err = r.device.CreateRenderTarget(gpu.RenderTargetDescriptor{
			Label:       "MSAA Texture",
			Width:       width,
			Height:      height,
			SampleCount: next.SampleCount,
			Format:      next.Format,
		})
		if err != nil {
			return fmt.Errorf("renderer: create multisample target %dx%d: %w", width, height, err)
		}
	}

	if err := r.surface.Configure(next.configuration()); err != nil {
		if target != nil {
			target.Release()
		}
		return fmt.Errorf("renderer: configure surface %dx%d: %w", width, height, err)
	}

	if target != nil {
		if r.state.MSAATarget != nil {
			r.state.MSAATarget.Release()
		}
		next.MSAATarget = target
	}
	r.state = next
	if r.onConfigure != nil {
		r.onConfigure(next)
	}
	return nil
}

func (r *renderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width <= 0 || height <= 0 {
		r.logger.Debug("ignoring degenerate resize", zap.Int("width", width), zap.Int("height", height))
		return nil
	}
	return r.configure(uint32(width), uint32(height))
}

func (r *renderer) AcquireFrame() (gpu.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame, err := r.surface.GetCurrentTexture()
	err = gpu.ClassifyAcquireError(err)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, gpu.ErrSurfaceTimeout):
		r.logger.Debug("surface acquire timed out")
		return nil, err
	case errors.Is(err, gpu.ErrSurfaceOutdated):
		r.logger.Debug("surface outdated, reconfiguring",
			zap.Uint32("width", r.state.Width),
			zap.Uint32("height", r.state.Height),
		)
		if err := r.configure(r.state.Width, r.state.Height); err != nil {
			return nil, err
		}
		frame, err = r.surface.GetCurrentTexture()
		if err = gpu.ClassifyAcquireError(err); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAcquireRetryFailed, err)
		}
		return frame, nil
	default:
		return nil, fmt.Errorf("renderer: acquire frame: %w", err)
	}
}

func (r *renderer) ColorAttachment(frame gpu.Frame) gpu.ColorAttachment {
	r.mu.Lock()
	defer r.mu.Unlock()

	attachment := gpu.ColorAttachment{
		View:       frame.View(),
		LoadOp:     wgpu.LoadOpClear,
		StoreOp:    wgpu.StoreOpStore,
		ClearValue: r.clearColor,
	}
	if r.state.MSAATarget != nil {
		// The multisample contents are only needed until they are resolved.
		attachment.View = r.state.MSAATarget
		attachment.ResolveTarget = frame.View()
		attachment.StoreOp = wgpu.StoreOpDiscard
	}
	return attachment
}

func (r *renderer) Submit(cmds ...gpu.CommandBuffer) {
	r.device.Queue().Submit(cmds...)
}

func (r *renderer) Present(frame gpu.Frame) error {
	defer frame.Release()
	if err := r.surface.Present(); err != nil {
		return fmt.Errorf("renderer: present: %w", err)
	}
	return nil
}

func (r *renderer) Device() gpu.Device {
	return r.device
}

func (r *renderer) Queue() gpu.Queue {
	return r.device.Queue()
}

func (r *renderer) SurfaceState() SurfaceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.MSAATarget != nil {
		r.state.MSAATarget.Release()
		r.state.MSAATarget = nil
	}
	if r.surface != nil {
		r.surface.Release()
		r.surface = nil
	}
	if r.device != nil {
		r.device.Release()
		r.device = nil
	}
}
