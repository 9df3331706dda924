package stage

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-particles/engine/shared"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Compute entry points the program must declare. EntryPointSwap is only required when the swap
// pass is enabled.
const (
	EntryPointSwap = "swap"
	EntryPointStep = "step_particles"
	EntryPointEmit = "emit"
)

// Bind group indices shared by the compute and render programs.
const (
	GroupParticles uint32 = 0
	GroupShared    uint32 = 1
	GroupSprite    uint32 = 2
)

// computeStage is the implementation of the ComputeStage interface.
type computeStage struct {
	device gpu.Device
	logger *zap.Logger

	program shader.Shader
	store   particle.Store
	shared  shared.SharedState

	swapEnabled bool

	particleLayout gpu.BindGroupLayout
	particles      bind_group_provider.BindGroupProvider

	// generation is the store generation the particle bind groups were built against.
	generation uint64

	swap, step, emit pipeline.Pipeline

	stepGrid, emitGrid [3]uint32
}

// ComputeStage records the compute passes of a frame: the optional swap pass, the step pass over every
// record and the emit pass over one batch, in that order.
//
// Group 0 binds particle storage. A single-buffer store binds its buffer read-write at slot 0. A
// double-buffered store binds the frame's source read-only at slot 0 and its destination read-write at
// slot 1, using one of two bind groups built up front and selected by frame parity.
// Group 1 binds the shared state.
type ComputeStage interface {
	// Record encodes the frame's compute passes into encoder.
	//
	// Parameters:
	//   - encoder: the frame's command encoder
	//   - frame: the index of the frame being recorded
	//
	// Returns:
	//   - error: an error if the particle bind groups are stale or a pass fails to end
	Record(encoder gpu.CommandEncoder, frame uint64) error

	// Rebuild recreates the particle bind groups and the dispatch grid after the store replaced its
	// buffers. The pipelines are kept since the layouts do not change.
	//
	// Returns:
	//   - error: an error if bind group creation fails
	Rebuild() error

	// Workgroups returns the grid of the step pass.
	//
	// Returns:
	//   - [3]uint32: the step workgroup counts
	Workgroups() [3]uint32

	// EmitWorkgroups returns the grid of the emit pass.
	//
	// Returns:
	//   - [3]uint32: the emit workgroup counts
	EmitWorkgroups() [3]uint32

	// SwapEnabled reports whether the swap pass is recorded.
	SwapEnabled() bool

	// Release releases the pipelines, bind groups and layout owned by the stage.
	Release()
}

var _ ComputeStage = &computeStage{}

// NewComputeStage builds the compute pipelines against the store and shared state and validates
// them against the program. A program that is missing an entry point, binds a group the stage does
// not provide, or disagrees with the store on buffering is rejected here.
//
// Parameters:
//   - device: the device that creates the pipelines and bind groups
//   - program: the compute program, preprocessed with shader.DefineDoubleBuffered for a ping-pong store
//   - store: the particle store
//   - state: the shared uniform and metadata blocks
//   - options: functional options for the swap pass and logging
//
// Returns:
//   - ComputeStage: the ready stage
//   - error: an error if validation or resource creation fails
func NewComputeStage(device gpu.Device, program shader.Shader, store particle.Store, state shared.SharedState, options ...ComputeStageOption) (ComputeStage, error) {
	s := &computeStage{
		device:  device,
		logger:  zap.NewNop(),
		program: program,
		store:   store,
		shared:  state,
	}
	for _, opt := range options {
		opt(s)
	}

	if program == nil {
		return nil, fmt.Errorf("compute stage: no program")
	}
	if programDoubleBuffered(program) != store.DoubleBuffered() {
		return nil, fmt.Errorf("compute stage: program %s double buffering (%t) does not match the store (%t)",
			program.Key(), programDoubleBuffered(program), store.DoubleBuffered())
	}

	var err error
	s.particleLayout, err = device.CreateBindGroupLayout(gpu.BindGroupLayoutDescriptor{
		Label:   "Particle Compute Layout",
		Entries: computeParticleEntries(store),
	})
	if err != nil {
		return nil, fmt.Errorf("compute stage: particle layout: %w", err)
	}

	if err := s.buildPipelines(); err != nil {
		s.Release()
		return nil, err
	}
	if err := s.Rebuild(); err != nil {
		s.Release()
		return nil, err
	}

	s.logger.Info("compute stage ready",
		zap.Uint32("capacity", store.Capacity()),
		zap.Bool("double_buffered", store.DoubleBuffered()),
		zap.Bool("swap_pass", s.swapEnabled),
		zap.Uint32s("step_workgroups", s.stepGrid[:]),
		zap.Uint32s("emit_workgroups", s.emitGrid[:]),
	)
	return s, nil
}

func programDoubleBuffered(program shader.Shader) bool {
	return slices.Contains(program.Defines(), shader.DefineDoubleBuffered)
}

// computeParticleEntries returns the group 0 layout for the store's buffering mode.
func computeParticleEntries(store particle.Store) []wgpu.BindGroupLayoutEntry {
	entry := func(binding uint32, typ wgpu.BufferBindingType) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageCompute,
			Buffer: wgpu.BufferBindingLayout{
				Type:           typ,
				MinBindingSize: store.Stride(),
			},
		}
	}
	if !store.DoubleBuffered() {
		return []wgpu.BindGroupLayoutEntry{entry(0, wgpu.BufferBindingTypeStorage)}
	}
	return []wgpu.BindGroupLayoutEntry{
		entry(0, wgpu.BufferBindingTypeReadOnlyStorage),
		entry(1, wgpu.BufferBindingTypeStorage),
	}
}

func (s *computeStage) buildPipelines() error {
	layouts := []gpu.BindGroupLayout{s.particleLayout, s.shared.ComputeGroup().Layout()}
	build := func(entry string) (pipeline.Pipeline, error) {
		p := pipeline.NewPipeline(entry, pipeline.PipelineTypeCompute,
			pipeline.WithShader(s.program),
			pipeline.WithBindGroupLayouts(layouts...),
		)
		if err := p.Build(s.device, wgpu.TextureFormatUndefined); err != nil {
			return nil, fmt.Errorf("compute stage: %w", err)
		}
		return p, nil
	}

	var err error
	if s.step, err = build(EntryPointStep); err != nil {
		return err
	}
	if s.emit, err = build(EntryPointEmit); err != nil {
		return err
	}
	if s.swapEnabled {
		if s.swap, err = build(EntryPointSwap); err != nil {
			return err
		}
	}
	return nil
}

func (s *computeStage) Rebuild() error {
	var variants []bind_group_provider.BindGroupProviderOption
	if s.store.DoubleBuffered() {
		// Variant i reads buffer i, so the variant index equals the source index of the frame.
		a, b := s.store.Buffer(0), s.store.Buffer(1)
		variants = append(variants,
			bind_group_provider.WithBufferVariant(a, b),
			bind_group_provider.WithBufferVariant(b, a),
		)
	} else {
		variants = append(variants, bind_group_provider.WithBufferVariant(s.store.Buffer(0)))
	}

	particles, err := bind_group_provider.NewBindGroupProvider(s.device, "Particle Compute", s.particleLayout, variants...)
	if err != nil {
		return fmt.Errorf("compute stage: %w", err)
	}
	if s.particles != nil {
		s.particles.Release()
	}
	s.particles = particles
	s.generation = s.store.Generation()

	limit := s.device.Limits().MaxComputeWorkgroupsPerDimension
	s.stepGrid = Dispatch(s.store.Capacity(), s.step.WorkgroupSize()[0], limit)
	s.emitGrid = EmitDispatch(s.shared.Uniforms().EmitBatch, s.emit.WorkgroupSize()[0])
	return nil
}

func (s *computeStage) Record(encoder gpu.CommandEncoder, frame uint64) error {
	if s.generation != s.store.Generation() {
		return fmt.Errorf("compute stage: particle bind groups are stale (generation %d, store %d)", s.generation, s.store.Generation())
	}

	particles := s.particles.BindGroup(uint64(s.store.SourceIndex(frame)))
	sharedGroup := s.shared.ComputeGroup().BindGroup(0)

	if s.swap != nil {
		if err := s.pass(encoder, "Swap Pass", s.swap, [3]uint32{1, 1, 1}, particles, sharedGroup); err != nil {
			return err
		}
	}
	if err := s.pass(encoder, "Step Pass", s.step, s.stepGrid, particles, sharedGroup); err != nil {
		return err
	}
	return s.pass(encoder, "Emit Pass", s.emit, s.emitGrid, particles, sharedGroup)
}

// pass records one compute pass dispatching grid. Empty grids record nothing.
func (s *computeStage) pass(encoder gpu.CommandEncoder, label string, p pipeline.Pipeline, grid [3]uint32, particles, sharedGroup gpu.BindGroup) error {
	if empty(grid) {
		return nil
	}
	pass := encoder.BeginComputePass(label)
	defer pass.Release()

	pass.SetPipeline(p.Compute())
	pass.SetBindGroup(GroupParticles, particles)
	pass.SetBindGroup(GroupShared, sharedGroup)
	pass.DispatchWorkgroups(grid[0], grid[1], grid[2])
	if err := pass.End(); err != nil {
		return fmt.Errorf("compute stage: %s: %w", label, err)
	}
	return nil
}

func (s *computeStage) Workgroups() [3]uint32 {
	return s.stepGrid
}

func (s *computeStage) EmitWorkgroups() [3]uint32 {
	return s.emitGrid
}

func (s *computeStage) SwapEnabled() bool {
	return s.swapEnabled
}

func (s *computeStage) Release() {
	for _, p := range []pipeline.Pipeline{s.swap, s.step, s.emit} {
		if p != nil {
			p.Release()
		}
	}
	s.swap, s.step, s.emit = nil, nil, nil
	if s.particles != nil {
		s.particles.Release()
		s.particles = nil
	}
	if s.particleLayout != nil {
		s.particleLayout.Release()
		s.particleLayout = nil
	}
}
