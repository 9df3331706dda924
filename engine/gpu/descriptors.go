package gpu

import "github.com/cogentcore/webgpu/wgpu"

// BufferDescriptor describes a buffer allocation. When Contents is non-empty the buffer is created
// initialized with it and Size is taken from len(Contents).
type BufferDescriptor struct {
	Label    string
	Size     uint64
	Usage    wgpu.BufferUsage
	Contents []byte
}

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []wgpu.BindGroupLayoutEntry
}

// BindGroupEntry binds exactly one resource to a binding slot. Buffers are always bound whole.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      Buffer
	TextureView TextureView
	Sampler     Sampler
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// ShaderModuleDescriptor describes a WGSL shader module.
type ShaderModuleDescriptor struct {
	Label string
	Code  string
}

// ComputePipelineDescriptor describes a compute pipeline. Layouts are indexed by group.
type ComputePipelineDescriptor struct {
	Label      string
	Layouts    []BindGroupLayout
	Module     ShaderModule
	EntryPoint string
}

// RenderPipelineDescriptor describes a render pipeline that pulls no vertex buffers and writes a
// single color target.
type RenderPipelineDescriptor struct {
	Label              string
	Layouts            []BindGroupLayout
	Module             ShaderModule
	VertexEntryPoint   string
	FragmentEntryPoint string
	TargetFormat       wgpu.TextureFormat
	Topology           wgpu.PrimitiveTopology
	FrontFace          wgpu.FrontFace
	CullMode           wgpu.CullMode
	WriteMask          wgpu.ColorWriteMask
	Blend              *wgpu.BlendState
	SampleCount        uint32
}

// RenderTargetDescriptor describes an offscreen color attachment.
type RenderTargetDescriptor struct {
	Label       string
	Width       uint32
	Height      uint32
	SampleCount uint32
	Format      wgpu.TextureFormat
}

// SampledTextureDescriptor describes a texture uploaded once from tightly packed RGBA8 pixels.
type SampledTextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format wgpu.TextureFormat
	Pixels []byte
}

// SamplerDescriptor describes a sampler.
type SamplerDescriptor struct {
	Label                                    string
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	MagFilter, MinFilter                     wgpu.FilterMode
	MipmapFilter                             wgpu.MipmapFilterMode
	LodMinClamp, LodMaxClamp                 float32
}

// ColorAttachment is one color output of a render pass. When ResolveTarget is set, View is a
// multisampled target that is resolved into ResolveTarget at the end of the pass.
type ColorAttachment struct {
	View          TextureView
	ResolveTarget TextureView
	LoadOp        wgpu.LoadOp
	StoreOp       wgpu.StoreOp
	ClearValue    wgpu.Color
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	Label            string
	ColorAttachments []ColorAttachment
}

// SurfaceConfiguration is the presentation configuration of a Surface.
type SurfaceConfiguration struct {
	Width       uint32
	Height      uint32
	Format      wgpu.TextureFormat
	PresentMode wgpu.PresentMode
}
