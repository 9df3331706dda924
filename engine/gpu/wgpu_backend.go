package gpu

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUBackend opens devices through the cogentcore/webgpu bindings.
type WGPUBackend struct{}

var _ Backend = WGPUBackend{}

// NewWGPUBackend returns the native WebGPU backend.
//
// Returns:
//   - WGPUBackend: the backend
func NewWGPUBackend() WGPUBackend {
	return WGPUBackend{}
}

func (WGPUBackend) Open(opts OpenOptions) (Device, Surface, error) {
	if opts.SurfaceDescriptor == nil {
		return nil, nil, errors.New("gpu: a surface descriptor is required")
	}

	instance := wgpu.CreateInstance(nil)
	surface := instance.CreateSurface(opts.SurfaceDescriptor)

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:      opts.PowerPreference,
		ForceFallbackAdapter: false,
		CompatibleSurface:    surface,
	})
	if err != nil || adapter == nil {
		surface.Release()
		instance.Release()
		return nil, nil, fmt.Errorf("%w: %v", ErrNoAdapter, err)
	}

	limits := wgpu.DefaultLimits()
	if opts.StorageBindingLimit > 0 {
		supported := adapter.GetLimits().Limits.MaxStorageBufferBindingSize
		limits.MaxStorageBufferBindingSize = storageBindingLimit(opts.StorageBindingLimit, supported)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: opts.Label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		adapter.Release()
		surface.Release()
		instance.Release()
		return nil, nil, fmt.Errorf("gpu: request device: %w", err)
	}

	d := &wgpuDevice{
		device: device,
		queue:  &wgpuQueue{queue: device.GetQueue()},
		limits: limits,
	}
	s := &wgpuSurface{
		instance: instance,
		adapter:  adapter,
		device:   device,
		surface:  surface,
	}
	return d, s, nil
}

// storageBindingLimit caps the requested storage binding size at what the adapter supports. An adapter
// reporting zero is treated as unlimited.
func storageBindingLimit(requested, supported uint64) uint64 {
	if supported == 0 {
		return requested
	}
	return min(requested, supported)
}

type wgpuDevice struct {
	device *wgpu.Device
	queue  *wgpuQueue
	limits wgpu.Limits
}

var _ Device = &wgpuDevice{}

func (d *wgpuDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if len(desc.Contents) > 0 {
		buf, err := d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: desc.Contents,
			Usage:    desc.Usage,
		})
		if err != nil {
			return nil, fmt.Errorf("gpu: create buffer %q: %w", desc.Label, err)
		}
		return &wgpuBuffer{buffer: buf, label: desc.Label, size: uint64(len(desc.Contents)), usage: desc.Usage}, nil
	}

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            desc.Usage,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q: %w", desc.Label, err)
	}
	return &wgpuBuffer{buffer: buf, label: desc.Label, size: desc.Size, usage: desc.Usage}, nil
}

func (d *wgpuDevice) CreateBindGroupLayout(desc BindGroupLayoutDescriptor) (BindGroupLayout, error) {
	entries := append([]wgpu.BindGroupLayoutEntry(nil), desc.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Binding < entries[j].Binding
	})
	layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group layout %q: %w", desc.Label, err)
	}
	return &wgpuBindGroupLayout{layout: layout, label: desc.Label, entries: entries}, nil
}

func (d *wgpuDevice) CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error) {
	layout, ok := desc.Layout.(*wgpuBindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("gpu: bind group %q: layout was not created by this backend", desc.Label)
	}

	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Buffer != nil:
			buf, ok := e.Buffer.(*wgpuBuffer)
			if !ok {
				return nil, fmt.Errorf("gpu: bind group %q binding %d: foreign buffer", desc.Label, e.Binding)
			}
			entry.Buffer = buf.buffer
			entry.Offset = 0
			entry.Size = wgpu.WholeSize
		case e.TextureView != nil:
			tv, ok := e.TextureView.(*wgpuTextureView)
			if !ok {
				return nil, fmt.Errorf("gpu: bind group %q binding %d: foreign texture view", desc.Label, e.Binding)
			}
			entry.TextureView = tv.view
		case e.Sampler != nil:
			s, ok := e.Sampler.(*wgpuSampler)
			if !ok {
				return nil, fmt.Errorf("gpu: bind group %q binding %d: foreign sampler", desc.Label, e.Binding)
			}
			entry.Sampler = s.sampler
		default:
			return nil, fmt.Errorf("gpu: bind group %q binding %d: no resource", desc.Label, e.Binding)
		}
		entries[i] = entry
	}

	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group %q: %w", desc.Label, err)
	}
	return &wgpuBindGroup{bindGroup: bg, label: desc.Label, layout: layout}, nil
}

func (d *wgpuDevice) CreateShaderModule(desc ShaderModuleDescriptor) (ShaderModule, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Code,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader module %q: %w", desc.Label, err)
	}
	return &wgpuShaderModule{module: module, label: desc.Label}, nil
}

func (d *wgpuDevice) pipelineLayout(label string, layouts []BindGroupLayout) (*wgpu.PipelineLayout, error) {
	native := make([]*wgpu.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		wl, ok := l.(*wgpuBindGroupLayout)
		if !ok {
			return nil, fmt.Errorf("gpu: pipeline %q group %d: foreign bind group layout", label, i)
		}
		native[i] = wl.layout
	}
	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: native,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create pipeline layout %q: %w", label, err)
	}
	return layout, nil
}

func (d *wgpuDevice) CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error) {
	module, ok := desc.Module.(*wgpuShaderModule)
	if !ok {
		return nil, fmt.Errorf("gpu: compute pipeline %q: foreign shader module", desc.Label)
	}
	layout, err := d.pipelineLayout(desc.Label, desc.Layouts)
	if err != nil {
		return nil, err
	}
	defer layout.Release()

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module.module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create compute pipeline %q: %w", desc.Label, err)
	}
	return &wgpuComputePipeline{pipeline: created, label: desc.Label}, nil
}

func (d *wgpuDevice) CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error) {
	module, ok := desc.Module.(*wgpuShaderModule)
	if !ok {
		return nil, fmt.Errorf("gpu: render pipeline %q: foreign shader module", desc.Label)
	}
	layout, err := d.pipelineLayout(desc.Label, desc.Layouts)
	if err != nil {
		return nil, err
	}
	defer layout.Release()

	target := wgpu.ColorTargetState{
		Format:    desc.TargetFormat,
		WriteMask: desc.WriteMask,
		Blend:     desc.Blend,
	}

	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module.module,
			EntryPoint: desc.VertexEntryPoint,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module.module,
			EntryPoint: desc.FragmentEntryPoint,
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  desc.Topology,
			FrontFace: desc.FrontFace,
			CullMode:  desc.CullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: desc.SampleCount,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create render pipeline %q: %w", desc.Label, err)
	}
	return &wgpuRenderPipeline{pipeline: created, label: desc.Label}, nil
}

func (d *wgpuDevice) CreateRenderTarget(desc RenderTargetDescriptor) (TextureView, error) {
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   desc.SampleCount,
		Dimension:     wgpu.TextureDimension2D,
		Format:        desc.Format,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create render target %q: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("gpu: create render target view %q: %w", desc.Label, err)
	}
	return &wgpuTextureView{
		texture:     tex,
		view:        view,
		label:       desc.Label,
		width:       desc.Width,
		height:      desc.Height,
		sampleCount: desc.SampleCount,
		format:      desc.Format,
	}, nil
}

func (d *wgpuDevice) CreateSampledTexture(desc SampledTextureDescriptor) (TextureView, error) {
	if uint64(len(desc.Pixels)) != uint64(desc.Width)*uint64(desc.Height)*4 {
		return nil, fmt.Errorf("gpu: texture %q: expected %dx%d RGBA pixels, got %d bytes", desc.Label, desc.Width, desc.Height, len(desc.Pixels))
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        desc.Format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create texture %q: %w", desc.Label, err)
	}

	d.queue.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		desc.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  desc.Width * 4,
			RowsPerImage: desc.Height,
		},
		&wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("gpu: create texture view %q: %w", desc.Label, err)
	}
	return &wgpuTextureView{
		texture:     tex,
		view:        view,
		label:       desc.Label,
		width:       desc.Width,
		height:      desc.Height,
		sampleCount: 1,
		format:      desc.Format,
	}, nil
}

func (d *wgpuDevice) CreateSampler(desc SamplerDescriptor) (Sampler, error) {
	s, err := d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  desc.AddressModeU,
		AddressModeV:  desc.AddressModeV,
		AddressModeW:  desc.AddressModeW,
		MagFilter:     desc.MagFilter,
		MinFilter:     desc.MinFilter,
		MipmapFilter:  desc.MipmapFilter,
		LodMinClamp:   desc.LodMinClamp,
		LodMaxClamp:   desc.LodMaxClamp,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create sampler %q: %w", desc.Label, err)
	}
	return &wgpuSampler{sampler: s}, nil
}

func (d *wgpuDevice) CreateCommandEncoder(label string) (CommandEncoder, error) {
	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	return &wgpuCommandEncoder{encoder: encoder}, nil
}

func (d *wgpuDevice) Queue() Queue {
	return d.queue
}

func (d *wgpuDevice) Limits() wgpu.Limits {
	return d.limits
}

func (d *wgpuDevice) Release() {
	d.device.Release()
}

type wgpuQueue struct {
	queue *wgpu.Queue
}

func (q *wgpuQueue) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*wgpuBuffer)
	if !ok {
		return errors.New("gpu: write to a buffer not created by this backend")
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("gpu: write of %d bytes at offset %d overflows buffer %q (%d bytes)", len(data), offset, b.label, b.size)
	}
	return q.queue.WriteBuffer(b.buffer, offset, data)
}

func (q *wgpuQueue) Submit(cmds ...CommandBuffer) {
	native := make([]*wgpu.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		if cb, ok := c.(*wgpuCommandBuffer); ok {
			native = append(native, cb.buffer)
		}
	}
	q.queue.Submit(native...)
}

type wgpuSurface struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	surface  *wgpu.Surface
	config   SurfaceConfiguration
}

func (s *wgpuSurface) PreferredFormat() wgpu.TextureFormat {
	capabilities := s.surface.GetCapabilities(s.adapter)
	if len(capabilities.Formats) == 0 {
		return wgpu.TextureFormatBGRA8Unorm
	}
	return capabilities.Formats[0]
}

func (s *wgpuSurface) Configure(cfg SurfaceConfiguration) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("gpu: cannot configure a %dx%d surface", cfg.Width, cfg.Height)
	}
	capabilities := s.surface.GetCapabilities(s.adapter)
	var alpha wgpu.CompositeAlphaMode
	if len(capabilities.AlphaModes) > 0 {
		alpha = capabilities.AlphaModes[0]
	}
	s.surface.Configure(s.adapter, s.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      cfg.Format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		PresentMode: cfg.PresentMode,
		AlphaMode:   alpha,
	})
	s.config = cfg
	return nil
}

func (s *wgpuSurface) GetCurrentTexture() (Frame, error) {
	tex, err := s.surface.GetCurrentTexture()
	if err != nil {
		return nil, ClassifyAcquireError(err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("gpu: create frame view: %w", err)
	}
	return &wgpuFrame{
		texture: tex,
		view: &wgpuTextureView{
			view:        view,
			label:       "Surface Frame",
			width:       s.config.Width,
			height:      s.config.Height,
			sampleCount: 1,
			format:      s.config.Format,
		},
	}, nil
}

func (s *wgpuSurface) Present() error {
	s.surface.Present()
	return nil
}

func (s *wgpuSurface) Release() {
	s.surface.Release()
	s.adapter.Release()
	s.instance.Release()
}

type wgpuFrame struct {
	texture *wgpu.Texture
	view    *wgpuTextureView
}

func (f *wgpuFrame) View() TextureView {
	return f.view
}

func (f *wgpuFrame) Release() {
	if f.view != nil {
		f.view.view.Release()
		f.view = nil
	}
	if f.texture != nil {
		f.texture.Release()
		f.texture = nil
	}
}

type wgpuBuffer struct {
	buffer *wgpu.Buffer
	label  string
	size   uint64
	usage  wgpu.BufferUsage
}

func (b *wgpuBuffer) Label() string           { return b.label }
func (b *wgpuBuffer) Size() uint64            { return b.size }
func (b *wgpuBuffer) Usage() wgpu.BufferUsage { return b.usage }
func (b *wgpuBuffer) Release()                { b.buffer.Release() }

type wgpuTextureView struct {
	texture     *wgpu.Texture
	view        *wgpu.TextureView
	label       string
	width       uint32
	height      uint32
	sampleCount uint32
	format      wgpu.TextureFormat
}

func (t *wgpuTextureView) Label() string              { return t.label }
func (t *wgpuTextureView) Width() uint32              { return t.width }
func (t *wgpuTextureView) Height() uint32             { return t.height }
func (t *wgpuTextureView) SampleCount() uint32        { return t.sampleCount }
func (t *wgpuTextureView) Format() wgpu.TextureFormat { return t.format }

func (t *wgpuTextureView) Release() {
	t.view.Release()
	if t.texture != nil {
		t.texture.Release()
	}
}

type wgpuSampler struct {
	sampler *wgpu.Sampler
}

func (s *wgpuSampler) Release() { s.sampler.Release() }

type wgpuBindGroupLayout struct {
	layout  *wgpu.BindGroupLayout
	label   string
	entries []wgpu.BindGroupLayoutEntry
}

func (l *wgpuBindGroupLayout) Label() string                        { return l.label }
func (l *wgpuBindGroupLayout) Entries() []wgpu.BindGroupLayoutEntry { return l.entries }
func (l *wgpuBindGroupLayout) Release()                             { l.layout.Release() }

type wgpuBindGroup struct {
	bindGroup *wgpu.BindGroup
	label     string
	layout    *wgpuBindGroupLayout
}

func (g *wgpuBindGroup) Label() string           { return g.label }
func (g *wgpuBindGroup) Layout() BindGroupLayout { return g.layout }
func (g *wgpuBindGroup) Release()                { g.bindGroup.Release() }

type wgpuShaderModule struct {
	module *wgpu.ShaderModule
	label  string
}

func (m *wgpuShaderModule) Label() string { return m.label }
func (m *wgpuShaderModule) Release()      { m.module.Release() }

type wgpuComputePipeline struct {
	pipeline *wgpu.ComputePipeline
	label    string
}

func (p *wgpuComputePipeline) Label() string { return p.label }
func (p *wgpuComputePipeline) Release()      { p.pipeline.Release() }

type wgpuRenderPipeline struct {
	pipeline *wgpu.RenderPipeline
	label    string
}

func (p *wgpuRenderPipeline) Label() string { return p.label }
func (p *wgpuRenderPipeline) Release()      { p.pipeline.Release() }

type wgpuCommandBuffer struct {
	buffer *wgpu.CommandBuffer
}

func (c *wgpuCommandBuffer) Release() { c.buffer.Release() }

type wgpuCommandEncoder struct {
	encoder *wgpu.CommandEncoder
}

func (e *wgpuCommandEncoder) BeginComputePass(label string) ComputePass {
	return &wgpuComputePass{pass: e.encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label})}
}

func (e *wgpuCommandEncoder) BeginRenderPass(desc RenderPassDescriptor) RenderPass {
	attachments := make([]wgpu.RenderPassColorAttachment, len(desc.ColorAttachments))
	for i, a := range desc.ColorAttachments {
		attachment := wgpu.RenderPassColorAttachment{
			LoadOp:     a.LoadOp,
			StoreOp:    a.StoreOp,
			ClearValue: a.ClearValue,
		}
		if v, ok := a.View.(*wgpuTextureView); ok {
			attachment.View = v.view
		}
		if r, ok := a.ResolveTarget.(*wgpuTextureView); ok {
			attachment.ResolveTarget = r.view
		}
		attachments[i] = attachment
	}
	return &wgpuRenderPass{pass: e.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: attachments,
	})}
}

func (e *wgpuCommandEncoder) Finish() (CommandBuffer, error) {
	cb, err := e.encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: finish command encoder: %w", err)
	}
	return &wgpuCommandBuffer{buffer: cb}, nil
}

func (e *wgpuCommandEncoder) Release() {
	e.encoder.Release()
}

type wgpuComputePass struct {
	pass *wgpu.ComputePassEncoder
}

func (p *wgpuComputePass) SetPipeline(cp ComputePipeline) {
	if native, ok := cp.(*wgpuComputePipeline); ok {
		p.pass.SetPipeline(native.pipeline)
	}
}

func (p *wgpuComputePass) SetBindGroup(index uint32, bg BindGroup) {
	if native, ok := bg.(*wgpuBindGroup); ok {
		p.pass.SetBindGroup(index, native.bindGroup, nil)
	}
}

func (p *wgpuComputePass) DispatchWorkgroups(x, y, z uint32) {
	p.pass.DispatchWorkgroups(x, y, z)
}

func (p *wgpuComputePass) End() error {
	return p.pass.End()
}

func (p *wgpuComputePass) Release() {
	p.pass.Release()
}

type wgpuRenderPass struct {
	pass *wgpu.RenderPassEncoder
}

func (p *wgpuRenderPass) SetPipeline(rp RenderPipeline) {
	if native, ok := rp.(*wgpuRenderPipeline); ok {
		p.pass.SetPipeline(native.pipeline)
	}
}

func (p *wgpuRenderPass) SetBindGroup(index uint32, bg BindGroup) {
	if native, ok := bg.(*wgpuBindGroup); ok {
		p.pass.SetBindGroup(index, native.bindGroup, nil)
	}
}

func (p *wgpuRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.pass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *wgpuRenderPass) End() error {
	return p.pass.End()
}

func (p *wgpuRenderPass) Release() {
	p.pass.Release()
}
