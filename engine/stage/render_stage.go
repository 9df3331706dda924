package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-particles/engine/shared"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// VerticesPerParticle is the number of vertices the render pass emits for every record.
const VerticesPerParticle = 3

// RenderTarget describes the color attachment the render pipeline draws into.
type RenderTarget struct {
	Format      wgpu.TextureFormat
	SampleCount uint32
}

// renderStage is the implementation of the RenderStage interface.
type renderStage struct {
	device gpu.Device
	logger *zap.Logger

	program shader.Shader
	store   particle.Store
	shared  shared.SharedState
	target  RenderTarget

	vertexEntryPoint, fragmentEntryPoint string

	particleLayout gpu.BindGroupLayout
	particles      bind_group_provider.BindGroupProvider
	generation     uint64

	// The sprite group is only built when the program declares the sprite provider.
	spriteData    *common.TextureStagingData
	spriteTexture gpu.TextureView
	spriteSampler gpu.Sampler
	sprite        bind_group_provider.BindGroupProvider

	pipeline pipeline.Pipeline
}

// RenderStage records the frame's render pass. Every record is drawn as VerticesPerParticle vertices
// pulled from storage, with no vertex buffers.
//
// Group 0 binds one particle buffer read-only. One bind group is built per store buffer and the
// pass reads whichever buffer the compute stage wrote during the same frame. Group 1 binds the shared
// state and group 2 the sprite texture and sampler.
type RenderStage interface {
	// Record encodes the render pass into encoder.
	//
	// Parameters:
	//   - encoder: the frame's command encoder, after the compute passes
	//   - attachment: the color attachment from the renderer
	//   - frame: the index of the frame being recorded
	//
	// Returns:
	//   - error: an error if the bind groups are stale or the pass fails to end
	Record(encoder gpu.CommandEncoder, attachment gpu.ColorAttachment, frame uint64) error

	// Rebuild recreates the particle bind groups after the store replaced its buffers.
	//
	// Returns:
	//   - error: an error if bind group creation fails
	Rebuild() error

	// ReadIndex returns the index of the store buffer the pass reads during frame.
	//
	// Parameters:
	//   - frame: the frame index
	//
	// Returns:
	//   - int: the buffer index
	ReadIndex(frame uint64) int

	// VertexCount returns the vertex count of the draw call.
	//
	// Returns:
	//   - uint32: capacity * VerticesPerParticle
	VertexCount() uint32

	// Release releases the pipeline, bind groups, layouts and sprite resources owned by the stage.
	Release()
}

var _ RenderStage = &renderStage{}

// NewRenderStage builds the render pipeline for target and validates it against the program.
// When the program declares the sprite provider and no sprite was supplied, a 1x1 white sprite is used.
//
// Parameters:
//   - device: the device that creates the pipeline and bind groups
//   - program: the render program
//   - store: the particle store
//   - state: the shared uniform and metadata blocks
//   - target: the surface format and sample count the pipeline draws with
//   - options: functional options for entry points, the sprite and logging
//
// Returns:
//   - RenderStage: the ready stage
//   - error: an error if validation or resource creation fails
func NewRenderStage(device gpu.Device, program shader.Shader, store particle.Store, state shared.SharedState, target RenderTarget, options ...RenderStageOption) (RenderStage, error) {
	s := &renderStage{
		device:             device,
		logger:             zap.NewNop(),
		program:            program,
		store:              store,
		shared:             state,
		target:             target,
		vertexEntryPoint:   "vs_main",
		fragmentEntryPoint: "fs_main",
	}
	for _, opt := range options {
		opt(s)
	}
	if program == nil {
		return nil, fmt.Errorf("render stage: no program")
	}

	var err error
	s.particleLayout, err = device.CreateBindGroupLayout(gpu.BindGroupLayoutDescriptor{
		Label: "Particle Render Layout",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex,
			Buffer: wgpu.BufferBindingLayout{
				Type:           wgpu.BufferBindingTypeReadOnlyStorage,
				MinBindingSize: store.Stride(),
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("render stage: particle layout: %w", err)
	}

	layouts := []gpu.BindGroupLayout{s.particleLayout, state.RenderGroup().Layout()}
	if err := s.buildSprite(); err != nil {
		s.Release()
		return nil, err
	}
	if s.sprite != nil {
		layouts = append(layouts, s.sprite.Layout())
	}

	s.pipeline = pipeline.NewPipeline("Particle Render", pipeline.PipelineTypeRender,
		pipeline.WithShader(program),
		pipeline.WithRenderEntryPoints(s.vertexEntryPoint, s.fragmentEntryPoint),
		pipeline.WithBindGroupLayouts(layouts...),
		pipeline.WithSampleCount(target.SampleCount),
	)
	if err := s.pipeline.Build(device, target.Format); err != nil {
		s.Release()
		return nil, fmt.Errorf("render stage: %w", err)
	}

	if err := s.Rebuild(); err != nil {
		s.Release()
		return nil, err
	}
	s.logger.Info("render stage ready",
		zap.Uint32("vertex_count", s.VertexCount()),
		zap.Uint32("sample_count", target.SampleCount),
		zap.Bool("sprite", s.sprite != nil),
	)
	return s, nil
}

// buildSprite creates the sprite texture, sampler and group 2 bind group from the bindings the
// program declares for them.
func (s *renderStage) buildSprite() error {
	group, textureBinding, ok := s.program.Provider(shader.AnnotationArgSpriteTexture)
	if !ok {
		return nil
	}
	samplerGroup, samplerBinding, ok := s.program.Provider(shader.AnnotationArgSpriteSampler)
	if !ok || samplerGroup != group {
		return fmt.Errorf("render stage: program %s declares a sprite texture without a sampler in group %d", s.program.Key(), group)
	}
	if uint32(group) != GroupSprite {
		return fmt.Errorf("render stage: sprite declared in group %d, want %d", group, GroupSprite)
	}

	data := common.SolidTextureStagingData(255, 255, 255, 255)
	if s.spriteData != nil {
		data = *s.spriteData
	}

	var err error
	s.spriteTexture, err = s.device.CreateSampledTexture(gpu.SampledTextureDescriptor{
		Label:  "Sprite Texture",
		Width:  data.Width,
		Height: data.Height,
		Format: wgpu.TextureFormatRGBA8Unorm,
		Pixels: data.Pixels,
	})
	if err != nil {
		return fmt.Errorf("render stage: sprite texture: %w", err)
	}

	sd := common.NearestClampSampler
	s.spriteSampler, err = s.device.CreateSampler(gpu.SamplerDescriptor{
		Label:        "Sprite Sampler",
		AddressModeU: sd.AddressModeU,
		AddressModeV: sd.AddressModeV,
		AddressModeW: sd.AddressModeW,
		MagFilter:    sd.MagFilter,
		MinFilter:    sd.MinFilter,
		MipmapFilter: sd.MipmapFilter,
		LodMinClamp:  sd.LodMinClamp,
		LodMaxClamp:  sd.LodMaxClamp,
	})
	if err != nil {
		return fmt.Errorf("render stage: sprite sampler: %w", err)
	}

	texture := wgpu.BindGroupLayoutEntry{Binding: uint32(textureBinding), Visibility: wgpu.ShaderStageFragment}
	texture.Texture.SampleType = wgpu.TextureSampleTypeFloat
	texture.Texture.ViewDimension = wgpu.TextureViewDimension2D
	sampler := wgpu.BindGroupLayoutEntry{Binding: uint32(samplerBinding), Visibility: wgpu.ShaderStageFragment}
	sampler.Sampler.Type = wgpu.SamplerBindingTypeNonFiltering

	layout, err := s.device.CreateBindGroupLayout(gpu.BindGroupLayoutDescriptor{
		Label:   "Sprite Layout",
		Entries: []wgpu.BindGroupLayoutEntry{texture, sampler},
	})
	if err != nil {
		return fmt.Errorf("render stage: sprite layout: %w", err)
	}
	s.sprite, err = bind_group_provider.NewBindGroupProvider(s.device, "Sprite", layout,
		bind_group_provider.WithVariant(
			gpu.BindGroupEntry{Binding: uint32(textureBinding), TextureView: s.spriteTexture},
			gpu.BindGroupEntry{Binding: uint32(samplerBinding), Sampler: s.spriteSampler},
		),
		bind_group_provider.WithOwnedLayout(),
	)
	if err != nil {
		layout.Release()
		return fmt.Errorf("render stage: %w", err)
	}
	return nil
}

func (s *renderStage) Rebuild() error {
	variants := make([]bind_group_provider.BindGroupProviderOption, 0, s.store.Count())
	for i := range s.store.Count() {
		variants = append(variants, bind_group_provider.WithBufferVariant(s.store.Buffer(i)))
	}
	particles, err := bind_group_provider.NewBindGroupProvider(s.device, "Particle Render", s.particleLayout, variants...)
	if err != nil {
		return fmt.Errorf("render stage: %w", err)
	}
	if s.particles != nil {
		s.particles.Release()
	}
	s.particles = particles
	s.generation = s.store.Generation()
	return nil
}

// ReadIndex is the destination of the frame's compute passes, which holds the live population once
// they have run.
func (s *renderStage) ReadIndex(frame uint64) int {
	return s.store.DestinationIndex(frame)
}

func (s *renderStage) VertexCount() uint32 {
	return s.store.Capacity() * VerticesPerParticle
}

func (s *renderStage) Record(encoder gpu.CommandEncoder, attachment gpu.ColorAttachment, frame uint64) error {
	if s.generation != s.store.Generation() {
		return fmt.Errorf("render stage: particle bind groups are stale (generation %d, store %d)", s.generation, s.store.Generation())
	}

	pass := encoder.BeginRenderPass(gpu.RenderPassDescriptor{
		Label:            "Particle Render Pass",
		ColorAttachments: []gpu.ColorAttachment{attachment},
	})
	defer pass.Release()

	pass.SetPipeline(s.pipeline.Render())
	pass.SetBindGroup(GroupParticles, s.particles.BindGroup(uint64(s.ReadIndex(frame))))
	pass.SetBindGroup(GroupShared, s.shared.RenderGroup().BindGroup(0))
	if s.sprite != nil {
		pass.SetBindGroup(GroupSprite, s.sprite.BindGroup(0))
	}
	pass.Draw(s.VertexCount(), 1, 0, 0)
	if err := pass.End(); err != nil {
		return fmt.Errorf("render stage: %w", err)
	}
	return nil
}

func (s *renderStage) Release() {
	if s.pipeline != nil {
		s.pipeline.Release()
		s.pipeline = nil
	}
	if s.particles != nil {
		s.particles.Release()
		s.particles = nil
	}
	if s.particleLayout != nil {
		s.particleLayout.Release()
		s.particleLayout = nil
	}
	if s.sprite != nil {
		s.sprite.Release()
		s.sprite = nil
	}
	if s.spriteSampler != nil {
		s.spriteSampler.Release()
		s.spriteSampler = nil
	}
	if s.spriteTexture != nil {
		s.spriteTexture.Release()
		s.spriteTexture = nil
	}
}
