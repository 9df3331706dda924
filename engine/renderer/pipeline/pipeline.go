package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment entry points.
	PipelineTypeRender
)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	program shader.Shader

	// entryPoint is used by compute pipelines, vertex/fragment entry points by render pipelines.
	entryPoint, vertexEntryPoint, fragmentEntryPoint string

	// layouts are indexed by group.
	layouts []gpu.BindGroupLayout

	renderPipeline  gpu.RenderPipeline
	computePipeline gpu.ComputePipeline

	// The following properties only apply to render pipelines.

	sampleCount  uint32
	blendEnabled bool
	cullMode     wgpu.CullMode
	topology     wgpu.PrimitiveTopology
	frontFace    wgpu.FrontFace
	writeMask    wgpu.ColorWriteMask
	blendState   *wgpu.BlendState
}

// Pipeline wraps either a compute pipeline (one compute entry point) or a render pipeline
// (a vertex and fragment entry point pair, no vertex buffers, one color target). It keeps the
// configuration required to build the GPU object and to rebuild it against a new device.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline. It is also the GPU label.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader returns the program the pipeline is built from.
	//
	// Returns:
	//   - shader.Shader: the program
	Shader() shader.Shader

	// EntryPoint returns the compute entry point name. Empty for render pipelines.
	//
	// Returns:
	//   - string: the compute function name
	EntryPoint() string

	// VertexEntryPoint returns the vertex entry point name. Empty for compute pipelines.
	//
	// Returns:
	//   - string: the vertex function name
	VertexEntryPoint() string

	// FragmentEntryPoint returns the fragment entry point name. Empty for compute pipelines.
	//
	// Returns:
	//   - string: the fragment function name
	FragmentEntryPoint() string

	// WorkgroupSize returns the declared workgroup size of the compute entry point.
	//
	// Returns:
	//   - [3]uint32: the workgroup size, zero for render pipelines
	WorkgroupSize() [3]uint32

	// Layouts returns the bind group layouts indexed by group.
	//
	// Returns:
	//   - []gpu.BindGroupLayout: the layouts
	Layouts() []gpu.BindGroupLayout

	// SampleCount returns the multisample count of a render pipeline.
	//
	// Returns:
	//   - uint32: the sample count, 1 when multisampling is off
	SampleCount() uint32

	// BlendEnabled returns whether blending is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if blending is enabled, false otherwise
	BlendEnabled() bool

	// CullMode returns the cull mode configured for this pipeline.
	//
	// Returns:
	//   - wgpu.CullMode: the cull mode for this pipeline
	CullMode() wgpu.CullMode

	// Topology returns the primitive topology configured for this pipeline.
	//
	// Returns:
	//   - wgpu.PrimitiveTopology: the primitive topology for this pipeline
	Topology() wgpu.PrimitiveTopology

	// FrontFace returns the front face winding order configured for this pipeline.
	//
	// Returns:
	//   - wgpu.FrontFace: the front face winding order for this pipeline
	FrontFace() wgpu.FrontFace

	// WriteMask returns the color write mask configured for this pipeline.
	//
	// Returns:
	//   - wgpu.ColorWriteMask: the color write mask for this pipeline
	WriteMask() wgpu.ColorWriteMask

	// BlendState returns the blend state configured for this pipeline.
	//
	// Returns:
	//   - *wgpu.BlendState: the blend state, or nil if blending is not enabled
	BlendState() *wgpu.BlendState

	// Build validates the program against the layouts and creates the GPU pipeline. The program
	// must declare the configured entry points for the right stages and every group it binds
	// must have a compatible layout. A previously built GPU pipeline is released first.
	//
	// Parameters:
	//   - device: the device to create the pipeline on
	//   - targetFormat: the color target format, ignored for compute pipelines
	//
	// Returns:
	//   - error: an error if validation or pipeline creation fails
	Build(device gpu.Device, targetFormat wgpu.TextureFormat) error

	// Compute returns the built compute pipeline, nil before Build or for render pipelines.
	//
	// Returns:
	//   - gpu.ComputePipeline: the GPU pipeline
	Compute() gpu.ComputePipeline

	// Render returns the built render pipeline, nil before Build or for compute pipelines.
	//
	// Returns:
	//   - gpu.RenderPipeline: the GPU pipeline
	Render() gpu.RenderPipeline

	// Release frees the GPU pipeline. Layouts are owned by the caller and are not released.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline. The GPU object is created by Build.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:        pipelineKey,
		pipelineType:       pipelineType,
		vertexEntryPoint:   "vs_main",
		fragmentEntryPoint: "fs_main",
		sampleCount:        1,
		blendEnabled:       true,
		cullMode:           wgpu.CullModeNone,
		topology:           wgpu.PrimitiveTopologyTriangleList,
		frontFace:          wgpu.FrontFaceCCW,
		writeMask:          wgpu.ColorWriteMaskAll,
		blendState: &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
		},
	}
	if pipelineType == PipelineTypeCompute {
		p.entryPoint = pipelineKey
		p.vertexEntryPoint, p.fragmentEntryPoint = "", ""
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.program
}

func (p *pipeline) EntryPoint() string {
	return p.entryPoint
}

func (p *pipeline) VertexEntryPoint() string {
	return p.vertexEntryPoint
}

func (p *pipeline) FragmentEntryPoint() string {
	return p.fragmentEntryPoint
}

func (p *pipeline) WorkgroupSize() [3]uint32 {
	if p.pipelineType != PipelineTypeCompute || p.program == nil {
		return [3]uint32{}
	}
	return p.program.WorkgroupSize(p.entryPoint)
}

func (p *pipeline) Layouts() []gpu.BindGroupLayout {
	return p.layouts
}

func (p *pipeline) SampleCount() uint32 {
	return p.sampleCount
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() wgpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) FrontFace() wgpu.FrontFace {
	return p.frontFace
}

func (p *pipeline) WriteMask() wgpu.ColorWriteMask {
	return p.writeMask
}

func (p *pipeline) BlendState() *wgpu.BlendState {
	if !p.blendEnabled {
		return nil
	}
	return p.blendState
}

func (p *pipeline) Build(device gpu.Device, targetFormat wgpu.TextureFormat) error {
	if p.program == nil {
		return fmt.Errorf("pipeline %s: no shader set", p.pipelineKey)
	}
	if err := p.validate(); err != nil {
		return fmt.Errorf("pipeline %s: %w", p.pipelineKey, err)
	}

	module, err := device.CreateShaderModule(p.program.Module())
	if err != nil {
		return fmt.Errorf("pipeline %s: failed to create shader module: %w", p.pipelineKey, err)
	}
	defer module.Release()

	p.Release()
	switch p.pipelineType {
	case PipelineTypeCompute:
		cp, err := device.CreateComputePipeline(gpu.ComputePipelineDescriptor{
			Label:      p.pipelineKey,
			Layouts:    p.layouts,
			Module:     module,
			EntryPoint: p.entryPoint,
		})
		if err != nil {
			return fmt.Errorf("pipeline %s: failed to create compute pipeline: %w", p.pipelineKey, err)
		}
		p.computePipeline = cp
	case PipelineTypeRender:
		rp, err := device.CreateRenderPipeline(gpu.RenderPipelineDescriptor{
			Label:              p.pipelineKey,
			Layouts:            p.layouts,
			Module:             module,
			VertexEntryPoint:   p.vertexEntryPoint,
			FragmentEntryPoint: p.fragmentEntryPoint,
			TargetFormat:       targetFormat,
			Topology:           p.topology,
			FrontFace:          p.frontFace,
			CullMode:           p.cullMode,
			WriteMask:          p.writeMask,
			Blend:              p.BlendState(),
			SampleCount:        p.sampleCount,
		})
		if err != nil {
			return fmt.Errorf("pipeline %s: failed to create render pipeline: %w", p.pipelineKey, err)
		}
		p.renderPipeline = rp
	default:
		return fmt.Errorf("pipeline %s: unknown pipeline type %d", p.pipelineKey, p.pipelineType)
	}
	return nil
}

// validate checks entry points and layouts against the program.
func (p *pipeline) validate() error {
	var err error
	switch p.pipelineType {
	case PipelineTypeCompute:
		err = p.program.RequireEntryPoints(shader.ShaderTypeCompute, p.entryPoint)
	case PipelineTypeRender:
		err = errors.Join(
			p.program.RequireEntryPoints(shader.ShaderTypeVertex, p.vertexEntryPoint),
			p.program.RequireEntryPoints(shader.ShaderTypeFragment, p.fragmentEntryPoint),
		)
		if p.sampleCount == 0 {
			err = errors.Join(err, errors.New("sample count must be at least 1"))
		}
	}
	if err != nil {
		return err
	}

	for group := range p.program.BindGroupLayoutDescriptors() {
		if group >= len(p.layouts) || p.layouts[group] == nil {
			return fmt.Errorf("group %d declared by shader %s has no layout", group, p.program.Key())
		}
	}
	for group, layout := range p.layouts {
		if layout == nil {
			return fmt.Errorf("group %d has no layout", group)
		}
		if err := p.program.ValidateLayout(group, layout.Entries()); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) Compute() gpu.ComputePipeline {
	return p.computePipeline
}

func (p *pipeline) Render() gpu.RenderPipeline {
	return p.renderPipeline
}

func (p *pipeline) Release() {
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
}
