// Package gputest provides an in-memory gpu backend that records every call it receives.
// Buffers keep their contents so tests can assert on what the host uploaded, and surfaces can be
// scripted to fail acquisition with the backend sentinels.
package gputest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Call is one recorded backend call.
type Call struct {
	// Op names the call, e.g. "WriteBuffer", "Dispatch", "Draw", "Submit", "Present".
	Op string

	// Label is the label of the object the call acted on, if any.
	Label string

	// Args holds call specific values, documented per op on the recording method.
	Args []uint64
}

// Recorder is the shared, ordered call log of a fake device and surface.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) record(op, label string, args ...uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, Label: label, Args: args})
}

// Calls returns a copy of every recorded call in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the op names of every recorded call in order.
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Filter returns the recorded calls with the given op.
func (r *Recorder) Filter(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many calls with the given op were recorded.
func (r *Recorder) Count(op string) int {
	return len(r.Filter(op))
}

// Reset clears the call log.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Backend is a fake gpu.Backend. Open hands out the same Device and Surface every time.
type Backend struct {
	Recorder *Recorder
	Device   *Device
	Surface  *Surface

	// OpenErr, when set, is returned by Open.
	OpenErr error

	// SupportedStorageBindingLimit, when non-zero, caps the storage binding limit Open grants the way
	// an adapter with a lower limit would.
	SupportedStorageBindingLimit uint64

	// LastOptions holds the options of the most recent Open call.
	LastOptions gpu.OpenOptions
}

var _ gpu.Backend = &Backend{}

// NewBackend returns a fake backend with a fresh device and surface sharing one recorder.
func NewBackend() *Backend {
	rec := &Recorder{}
	return &Backend{
		Recorder: rec,
		Device:   NewDevice(rec),
		Surface:  NewSurface(rec),
	}
}

func (b *Backend) Open(opts gpu.OpenOptions) (gpu.Device, gpu.Surface, error) {
	b.LastOptions = opts
	if b.OpenErr != nil {
		return nil, nil, b.OpenErr
	}
	if opts.StorageBindingLimit > 0 {
		granted := opts.StorageBindingLimit
		if b.SupportedStorageBindingLimit > 0 {
			granted = min(granted, b.SupportedStorageBindingLimit)
		}
		b.Device.limits.MaxStorageBufferBindingSize = granted
	}
	return b.Device, b.Surface, nil
}

// Device is a fake gpu.Device.
type Device struct {
	rec    *Recorder
	queue  *Queue
	limits wgpu.Limits

	// Errors maps an op name such as "CreateComputePipeline" to the error that op should return.
	Errors map[string]error
}

var _ gpu.Device = &Device{}

// NewDevice returns a fake device recording into rec. A nil rec gets a private recorder.
func NewDevice(rec *Recorder) *Device {
	if rec == nil {
		rec = &Recorder{}
	}
	limits := wgpu.DefaultLimits()
	return &Device{
		rec:    rec,
		queue:  &Queue{rec: rec},
		limits: limits,
		Errors: map[string]error{},
	}
}

// Recorder returns the device's call log.
func (d *Device) Recorder() *Recorder {
	return d.rec
}

// SetMaxStorageBufferBindingSize overrides the reported storage binding limit.
func (d *Device) SetMaxStorageBufferBindingSize(n uint64) {
	d.limits.MaxStorageBufferBindingSize = n
}

// SetMaxWorkgroupsPerDimension overrides the reported compute dispatch limit.
func (d *Device) SetMaxWorkgroupsPerDimension(n uint32) {
	d.limits.MaxComputeWorkgroupsPerDimension = n
}

func (d *Device) fail(op string) error {
	return d.Errors[op]
}

// CreateBuffer records ("CreateBuffer", label, size, usage).
func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return nil, err
	}
	size := desc.Size
	if len(desc.Contents) > 0 {
		size = uint64(len(desc.Contents))
	}
	b := &Buffer{label: desc.Label, size: size, usage: desc.Usage, data: make([]byte, size)}
	copy(b.data, desc.Contents)
	d.rec.record("CreateBuffer", desc.Label, size, uint64(desc.Usage))
	return b, nil
}

// CreateBindGroupLayout records ("CreateBindGroupLayout", label, entry count).
func (d *Device) CreateBindGroupLayout(desc gpu.BindGroupLayoutDescriptor) (gpu.BindGroupLayout, error) {
	if err := d.fail("CreateBindGroupLayout"); err != nil {
		return nil, err
	}
	entries := append([]wgpu.BindGroupLayoutEntry(nil), desc.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Binding < entries[j].Binding
	})
	d.rec.record("CreateBindGroupLayout", desc.Label, uint64(len(entries)))
	return &BindGroupLayout{label: desc.Label, entries: entries}, nil
}

// CreateBindGroup records ("CreateBindGroup", label) and checks every entry against the layout.
func (d *Device) CreateBindGroup(desc gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	if err := d.fail("CreateBindGroup"); err != nil {
		return nil, err
	}
	if desc.Layout == nil {
		return nil, fmt.Errorf("gputest: bind group %q has no layout", desc.Label)
	}
	declared := map[uint32]wgpu.BindGroupLayoutEntry{}
	for _, e := range desc.Layout.Entries() {
		declared[e.Binding] = e
	}
	if len(desc.Entries) != len(declared) {
		return nil, fmt.Errorf("gputest: bind group %q has %d entries, layout %q declares %d", desc.Label, len(desc.Entries), desc.Layout.Label(), len(declared))
	}
	resources := make(map[uint32]gpu.BindGroupEntry, len(desc.Entries))
	for _, e := range desc.Entries {
		le, ok := declared[e.Binding]
		if !ok {
			return nil, fmt.Errorf("gputest: bind group %q binding %d is not in layout %q", desc.Label, e.Binding, desc.Layout.Label())
		}
		switch {
		case le.Buffer.Type != wgpu.BufferBindingTypeUndefined:
			if e.Buffer == nil {
				return nil, fmt.Errorf("gputest: bind group %q binding %d needs a buffer", desc.Label, e.Binding)
			}
			if le.Buffer.MinBindingSize > 0 && e.Buffer.Size() < le.Buffer.MinBindingSize {
				return nil, fmt.Errorf("gputest: bind group %q binding %d buffer smaller than %d bytes", desc.Label, e.Binding, le.Buffer.MinBindingSize)
			}
		case le.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
			if e.TextureView == nil {
				return nil, fmt.Errorf("gputest: bind group %q binding %d needs a texture view", desc.Label, e.Binding)
			}
		case le.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
			if e.Sampler == nil {
				return nil, fmt.Errorf("gputest: bind group %q binding %d needs a sampler", desc.Label, e.Binding)
			}
		}
		resources[e.Binding] = e
	}
	d.rec.record("CreateBindGroup", desc.Label)
	return &BindGroup{label: desc.Label, layout: desc.Layout, entries: resources}, nil
}

// CreateShaderModule records ("CreateShaderModule", label, code length).
func (d *Device) CreateShaderModule(desc gpu.ShaderModuleDescriptor) (gpu.ShaderModule, error) {
	if err := d.fail("CreateShaderModule"); err != nil {
		return nil, err
	}
	d.rec.record("CreateShaderModule", desc.Label, uint64(len(desc.Code)))
	return &handle{label: desc.Label}, nil
}

// CreateComputePipeline records ("CreateComputePipeline", label, group count).
func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	if err := d.fail("CreateComputePipeline"); err != nil {
		return nil, err
	}
	if desc.EntryPoint == "" {
		return nil, fmt.Errorf("gputest: compute pipeline %q has no entry point", desc.Label)
	}
	d.rec.record("CreateComputePipeline", desc.Label, uint64(len(desc.Layouts)))
	return &ComputePipeline{label: desc.Label, EntryPoint: desc.EntryPoint, Layouts: desc.Layouts}, nil
}

// CreateRenderPipeline records ("CreateRenderPipeline", label, group count, sample count).
func (d *Device) CreateRenderPipeline(desc gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	if err := d.fail("CreateRenderPipeline"); err != nil {
		return nil, err
	}
	d.rec.record("CreateRenderPipeline", desc.Label, uint64(len(desc.Layouts)), uint64(desc.SampleCount))
	return &RenderPipeline{label: desc.Label, Descriptor: desc}, nil
}

// CreateRenderTarget records ("CreateRenderTarget", label, width, height, sample count).
func (d *Device) CreateRenderTarget(desc gpu.RenderTargetDescriptor) (gpu.TextureView, error) {
	if err := d.fail("CreateRenderTarget"); err != nil {
		return nil, err
	}
	d.rec.record("CreateRenderTarget", desc.Label, uint64(desc.Width), uint64(desc.Height), uint64(desc.SampleCount))
	return &TextureView{label: desc.Label, width: desc.Width, height: desc.Height, sampleCount: desc.SampleCount, format: desc.Format, rec: d.rec}, nil
}

// CreateSampledTexture records ("CreateSampledTexture", label, width, height).
func (d *Device) CreateSampledTexture(desc gpu.SampledTextureDescriptor) (gpu.TextureView, error) {
	if err := d.fail("CreateSampledTexture"); err != nil {
		return nil, err
	}
	if uint64(len(desc.Pixels)) != uint64(desc.Width)*uint64(desc.Height)*4 {
		return nil, fmt.Errorf("gputest: texture %q pixel size mismatch", desc.Label)
	}
	d.rec.record("CreateSampledTexture", desc.Label, uint64(desc.Width), uint64(desc.Height))
	return &TextureView{label: desc.Label, width: desc.Width, height: desc.Height, sampleCount: 1, format: desc.Format, rec: d.rec}, nil
}

// CreateSampler records ("CreateSampler", label) and keeps the descriptor on the sampler.
func (d *Device) CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	if err := d.fail("CreateSampler"); err != nil {
		return nil, err
	}
	d.rec.record("CreateSampler", desc.Label)
	return &Sampler{Descriptor: desc}, nil
}

// CreateCommandEncoder records ("CreateCommandEncoder", label).
func (d *Device) CreateCommandEncoder(label string) (gpu.CommandEncoder, error) {
	if err := d.fail("CreateCommandEncoder"); err != nil {
		return nil, err
	}
	d.rec.record("CreateCommandEncoder", label)
	return &CommandEncoder{rec: d.rec, label: label}, nil
}

func (d *Device) Queue() gpu.Queue {
	return d.queue
}

func (d *Device) Limits() wgpu.Limits {
	return d.limits
}

// Release records ("ReleaseDevice").
func (d *Device) Release() {
	d.rec.record("ReleaseDevice", "")
}

// Queue is a fake gpu.Queue.
type Queue struct {
	rec *Recorder
}

// WriteBuffer copies data into the fake buffer and records ("WriteBuffer", label, offset, length).
func (q *Queue) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*Buffer)
	if !ok {
		return errors.New("gputest: foreign buffer")
	}
	if b.released {
		return fmt.Errorf("gputest: write to released buffer %q", b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("gputest: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.label, b.size)
	}
	copy(b.data[offset:], data)
	q.rec.record("WriteBuffer", b.label, offset, uint64(len(data)))
	return nil
}

// Submit records one ("Submit", "", command buffer count) call.
func (q *Queue) Submit(cmds ...gpu.CommandBuffer) {
	q.rec.record("Submit", "", uint64(len(cmds)))
}

// Buffer is a fake gpu.Buffer holding its contents in memory.
type Buffer struct {
	label    string
	size     uint64
	usage    wgpu.BufferUsage
	data     []byte
	released bool
}

func (b *Buffer) Label() string           { return b.label }
func (b *Buffer) Size() uint64            { return b.size }
func (b *Buffer) Usage() wgpu.BufferUsage { return b.usage }
func (b *Buffer) Release()                { b.released = true }

// Contents returns a copy of the buffer's bytes.
func (b *Buffer) Contents() []byte {
	return append([]byte(nil), b.data...)
}

// Released reports whether Release was called.
func (b *Buffer) Released() bool {
	return b.released
}

// TextureView is a fake gpu.TextureView.
type TextureView struct {
	label       string
	width       uint32
	height      uint32
	sampleCount uint32
	format      wgpu.TextureFormat
	released    bool
	rec         *Recorder
}

func (t *TextureView) Label() string              { return t.label }
func (t *TextureView) Width() uint32              { return t.width }
func (t *TextureView) Height() uint32             { return t.height }
func (t *TextureView) SampleCount() uint32        { return t.sampleCount }
func (t *TextureView) Format() wgpu.TextureFormat { return t.format }

// Release records ("ReleaseTexture", label).
func (t *TextureView) Release() {
	t.released = true
	if t.rec != nil {
		t.rec.record("ReleaseTexture", t.label)
	}
}

// Released reports whether Release was called.
func (t *TextureView) Released() bool {
	return t.released
}

// Sampler is a fake gpu.Sampler.
type Sampler struct {
	Descriptor gpu.SamplerDescriptor
}

func (s *Sampler) Release() {}

// BindGroupLayout is a fake gpu.BindGroupLayout.
type BindGroupLayout struct {
	label   string
	entries []wgpu.BindGroupLayoutEntry
}

func (l *BindGroupLayout) Label() string                        { return l.label }
func (l *BindGroupLayout) Entries() []wgpu.BindGroupLayoutEntry { return l.entries }
func (l *BindGroupLayout) Release()                             {}

// BindGroup is a fake gpu.BindGroup.
type BindGroup struct {
	label    string
	layout   gpu.BindGroupLayout
	entries  map[uint32]gpu.BindGroupEntry
	released bool
}

func (g *BindGroup) Label() string               { return g.label }
func (g *BindGroup) Layout() gpu.BindGroupLayout { return g.layout }
func (g *BindGroup) Release()                    { g.released = true }

// Entry returns the resource bound at binding.
func (g *BindGroup) Entry(binding uint32) gpu.BindGroupEntry {
	return g.entries[binding]
}

// Released reports whether Release was called.
func (g *BindGroup) Released() bool {
	return g.released
}

type handle struct {
	label string
}

func (h *handle) Label() string { return h.label }
func (h *handle) Release()      {}

// ComputePipeline is a fake gpu.ComputePipeline.
type ComputePipeline struct {
	label      string
	EntryPoint string
	Layouts    []gpu.BindGroupLayout
}

func (p *ComputePipeline) Label() string { return p.label }
func (p *ComputePipeline) Release()      {}

// RenderPipeline is a fake gpu.RenderPipeline.
type RenderPipeline struct {
	label      string
	Descriptor gpu.RenderPipelineDescriptor
}

func (p *RenderPipeline) Label() string { return p.label }
func (p *RenderPipeline) Release()      {}

type commandBuffer struct{}

func (commandBuffer) Release() {}

// CommandEncoder is a fake gpu.CommandEncoder.
type CommandEncoder struct {
	rec      *Recorder
	label    string
	finished bool
}

// BeginComputePass records ("BeginComputePass", label).
func (e *CommandEncoder) BeginComputePass(label string) gpu.ComputePass {
	e.rec.record("BeginComputePass", label)
	return &ComputePass{rec: e.rec}
}

// BeginRenderPass records ("BeginRenderPass", view label, resolve flag, store op).
func (e *CommandEncoder) BeginRenderPass(desc gpu.RenderPassDescriptor) gpu.RenderPass {
	var view string
	var resolve, store uint64
	if len(desc.ColorAttachments) > 0 {
		a := desc.ColorAttachments[0]
		if a.View != nil {
			view = a.View.Label()
		}
		if a.ResolveTarget != nil {
			resolve = 1
		}
		store = uint64(a.StoreOp)
	}
	e.rec.record("BeginRenderPass", view, resolve, store)
	return &RenderPass{rec: e.rec}
}

// Finish records ("Finish", label).
func (e *CommandEncoder) Finish() (gpu.CommandBuffer, error) {
	if e.finished {
		return nil, errors.New("gputest: encoder already finished")
	}
	e.finished = true
	e.rec.record("Finish", e.label)
	return commandBuffer{}, nil
}

// Release records ("ReleaseEncoder", label).
func (e *CommandEncoder) Release() {
	e.rec.record("ReleaseEncoder", e.label)
}

// ComputePass is a fake gpu.ComputePass. The pipeline label travels on each Dispatch call.
type ComputePass struct {
	rec      *Recorder
	pipeline string
	groups   map[uint32]string
}

// SetPipeline records ("SetComputePipeline", label).
func (p *ComputePass) SetPipeline(cp gpu.ComputePipeline) {
	p.pipeline = cp.Label()
	p.rec.record("SetComputePipeline", cp.Label())
}

// SetBindGroup records ("SetComputeBindGroup", label, index).
func (p *ComputePass) SetBindGroup(index uint32, bg gpu.BindGroup) {
	if p.groups == nil {
		p.groups = map[uint32]string{}
	}
	p.groups[index] = bg.Label()
	p.rec.record("SetComputeBindGroup", bg.Label(), uint64(index))
}

// DispatchWorkgroups records ("Dispatch", pipeline label, x, y, z).
func (p *ComputePass) DispatchWorkgroups(x, y, z uint32) {
	p.rec.record("Dispatch", p.pipeline, uint64(x), uint64(y), uint64(z))
}

// End records ("EndComputePass").
func (p *ComputePass) End() error {
	p.rec.record("EndComputePass", p.pipeline)
	return nil
}

func (p *ComputePass) Release() {}

// RenderPass is a fake gpu.RenderPass.
type RenderPass struct {
	rec      *Recorder
	pipeline string
}

// SetPipeline records ("SetRenderPipeline", label).
func (p *RenderPass) SetPipeline(rp gpu.RenderPipeline) {
	p.pipeline = rp.Label()
	p.rec.record("SetRenderPipeline", rp.Label())
}

// SetBindGroup records ("SetRenderBindGroup", label, index).
func (p *RenderPass) SetBindGroup(index uint32, bg gpu.BindGroup) {
	p.rec.record("SetRenderBindGroup", bg.Label(), uint64(index))
}

// Draw records ("Draw", pipeline label, vertex count, instance count, first vertex, first instance).
func (p *RenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.rec.record("Draw", p.pipeline, uint64(vertexCount), uint64(instanceCount), uint64(firstVertex), uint64(firstInstance))
}

// End records ("EndRenderPass").
func (p *RenderPass) End() error {
	p.rec.record("EndRenderPass", p.pipeline)
	return nil
}

func (p *RenderPass) Release() {}

// Surface is a fake gpu.Surface whose acquisitions can be scripted.
type Surface struct {
	rec    *Recorder
	format wgpu.TextureFormat
	config gpu.SurfaceConfiguration
	queue  []error

	// ConfigureErr, when set, is returned by every Configure call.
	ConfigureErr error

	frames int
}

var _ gpu.Surface = &Surface{}

// NewSurface returns a fake surface preferring BGRA8Unorm.
func NewSurface(rec *Recorder) *Surface {
	if rec == nil {
		rec = &Recorder{}
	}
	return &Surface{rec: rec, format: wgpu.TextureFormatBGRA8Unorm}
}

// QueueAcquireErrors scripts the results of the next GetCurrentTexture calls. A nil entry
// succeeds. Once the script is exhausted every acquisition succeeds.
func (s *Surface) QueueAcquireErrors(errs ...error) {
	s.queue = append(s.queue, errs...)
}

// Config returns the most recent successful configuration.
func (s *Surface) Config() gpu.SurfaceConfiguration {
	return s.config
}

func (s *Surface) PreferredFormat() wgpu.TextureFormat {
	return s.format
}

// Configure records ("Configure", "", width, height, present mode).
func (s *Surface) Configure(cfg gpu.SurfaceConfiguration) error {
	s.rec.record("Configure", "", uint64(cfg.Width), uint64(cfg.Height), uint64(cfg.PresentMode))
	if s.ConfigureErr != nil {
		return s.ConfigureErr
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("gputest: cannot configure a %dx%d surface", cfg.Width, cfg.Height)
	}
	s.config = cfg
	return nil
}

// GetCurrentTexture records ("GetCurrentTexture") and pops the next scripted result.
func (s *Surface) GetCurrentTexture() (gpu.Frame, error) {
	s.rec.record("GetCurrentTexture", "")
	if len(s.queue) > 0 {
		err := s.queue[0]
		s.queue = s.queue[1:]
		if err != nil {
			return nil, err
		}
	}
	s.frames++
	view := &TextureView{
		label:       fmt.Sprintf("Surface Frame %d", s.frames),
		width:       s.config.Width,
		height:      s.config.Height,
		sampleCount: 1,
		format:      s.config.Format,
	}
	return &Frame{view: view, rec: s.rec}, nil
}

// Present records ("Present").
func (s *Surface) Present() error {
	s.rec.record("Present", "")
	return nil
}

func (s *Surface) Release() {
	s.rec.record("ReleaseSurface", "")
}

// Frame is a fake gpu.Frame.
type Frame struct {
	view     *TextureView
	rec      *Recorder
	released bool
}

func (f *Frame) View() gpu.TextureView { return f.view }

// Release records ("ReleaseFrame", view label).
func (f *Frame) Release() {
	f.released = true
	f.rec.record("ReleaseFrame", f.view.label)
}
