// Package gpu defines the narrow set of GPU objects the particle engine records work against.
// The interfaces mirror the WebGPU object model closely enough that the cogentcore/webgpu backend
// is a thin wrapper, while a recording fake (see gputest) can stand in for tests.
//
// Descriptor enums and flags are the wgpu types themselves, so callers never translate between
// two sets of constants.
package gpu

import "github.com/cogentcore/webgpu/wgpu"

// Buffer is a GPU buffer allocation.
type Buffer interface {
	// Label returns the debug label the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() wgpu.BufferUsage

	// Release frees the GPU allocation. The buffer must not be used afterwards.
	Release()
}

// TextureView is a view into a 2D texture, either a render target or a sampled image.
type TextureView interface {
	Label() string
	Width() uint32
	Height() uint32
	SampleCount() uint32
	Format() wgpu.TextureFormat
	Release()
}

// Sampler is a texture sampler.
type Sampler interface {
	Release()
}

// BindGroupLayout describes the shape of a bind group.
type BindGroupLayout interface {
	Label() string

	// Entries returns the layout entries the layout was created with, sorted by binding.
	Entries() []wgpu.BindGroupLayoutEntry

	Release()
}

// BindGroup is an immutable set of resources bound against a BindGroupLayout.
type BindGroup interface {
	Label() string
	Layout() BindGroupLayout
	Release()
}

// ShaderModule is a compiled shader program.
type ShaderModule interface {
	Label() string
	Release()
}

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline interface {
	Label() string
	Release()
}

// RenderPipeline is a compiled render pipeline.
type RenderPipeline interface {
	Label() string
	Release()
}

// CommandBuffer is a finished, submittable list of GPU commands.
type CommandBuffer interface {
	Release()
}

// ComputePass records compute dispatches.
type ComputePass interface {
	SetPipeline(p ComputePipeline)
	SetBindGroup(index uint32, bg BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	End() error
	Release()
}

// RenderPass records draw calls into a set of color attachments.
type RenderPass interface {
	SetPipeline(p RenderPipeline)
	SetBindGroup(index uint32, bg BindGroup)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	End() error
	Release()
}

// CommandEncoder records passes into a single command buffer.
type CommandEncoder interface {
	// BeginComputePass starts a compute pass. The pass must be ended before another pass begins.
	//
	// Parameters:
	//   - label: a debug label for the pass
	//
	// Returns:
	//   - ComputePass: the recording pass
	BeginComputePass(label string) ComputePass

	// BeginRenderPass starts a render pass against the given attachments.
	//
	// Parameters:
	//   - desc: the pass descriptor with its color attachments
	//
	// Returns:
	//   - RenderPass: the recording pass
	BeginRenderPass(desc RenderPassDescriptor) RenderPass

	// Finish closes the encoder and returns the recorded command buffer.
	//
	// Returns:
	//   - CommandBuffer: the submittable command buffer
	//   - error: an error if the recorded commands are invalid
	Finish() (CommandBuffer, error)

	Release()
}

// Queue is the device's submission queue. Buffer writes are ordered before any command buffer
// submitted after them.
type Queue interface {
	// WriteBuffer schedules a host-to-device write of data into buf at offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the byte offset within buf
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the write is out of range or rejected by the backend
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// Submit submits command buffers for execution in order.
	//
	// Parameters:
	//   - cmds: the command buffers to execute
	Submit(cmds ...CommandBuffer)
}

// Device creates GPU objects and owns the queue.
type Device interface {
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateBindGroupLayout(desc BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error)
	CreateShaderModule(desc ShaderModuleDescriptor) (ShaderModule, error)
	CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error)
	CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)

	// CreateRenderTarget creates a texture usable only as a render attachment and returns its view.
	CreateRenderTarget(desc RenderTargetDescriptor) (TextureView, error)

	// CreateSampledTexture creates a texture, uploads its RGBA pixels and returns its view.
	CreateSampledTexture(desc SampledTextureDescriptor) (TextureView, error)

	CreateSampler(desc SamplerDescriptor) (Sampler, error)
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Queue returns the device's submission queue.
	Queue() Queue

	// Limits returns the limits the device was created with.
	Limits() wgpu.Limits

	Release()
}

// Frame is one acquired presentation image. It must be presented or released exactly once.
type Frame interface {
	View() TextureView
	Release()
}

// Surface is the presentation target bound to a window.
type Surface interface {
	// PreferredFormat returns the first color format the surface supports for the opened adapter.
	PreferredFormat() wgpu.TextureFormat

	// Configure (re)configures the surface. Previously acquired frames become invalid.
	//
	// Parameters:
	//   - cfg: the width, height, format and present mode to configure
	//
	// Returns:
	//   - error: an error if the configuration is rejected
	Configure(cfg SurfaceConfiguration) error

	// GetCurrentTexture acquires the next presentation image. Failures are reported as
	// ErrSurfaceOutdated, ErrSurfaceTimeout or ErrSurfaceLost where the backend can classify them.
	//
	// Returns:
	//   - Frame: the acquired image
	//   - error: an acquisition failure
	GetCurrentTexture() (Frame, error)

	// Present queues the most recently acquired image for display.
	Present() error

	Release()
}

// OpenOptions control adapter and device selection in Backend.Open.
type OpenOptions struct {
	// SurfaceDescriptor is the platform surface description obtained from the window.
	SurfaceDescriptor *wgpu.SurfaceDescriptor

	// PowerPreference selects the adapter class.
	PowerPreference wgpu.PowerPreference

	// StorageBindingLimit is the requested maximum storage buffer binding size in bytes. It is capped
	// at the adapter's supported limit and Device.Limits reports the granted value. Zero keeps the
	// default limit.
	StorageBindingLimit uint64

	// Label is the device debug label.
	Label string
}

// Backend opens a device and surface pair for a window.
type Backend interface {
	// Open selects an adapter compatible with the window surface, requests a device with the
	// requested limits and returns both. A missing adapter is reported as ErrNoAdapter. It must be
	// called on the thread that created the window, which the window already keeps locked.
	//
	// Parameters:
	//   - opts: adapter and device options
	//
	// Returns:
	//   - Device: the opened device
	//   - Surface: the window surface
	//   - error: an error if no adapter or device could be obtained
	Open(opts OpenOptions) (Device, Surface, error)
}
