package shared

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
)

// Binding slots of the shared state group. Both the compute and the render layout use them.
const (
	BindingMetadata uint32 = 0
	BindingUniforms uint32 = 1
)

// sharedState is the implementation of the SharedState interface.
type sharedState struct {
	uniformBuffer  gpu.Buffer
	metadataBuffer gpu.Buffer

	uniforms GPUUniforms
	metadata GPUMetadata

	compute bind_group_provider.BindGroupProvider
	render  bind_group_provider.BindGroupProvider
}

// SharedState owns the uniform block and the metadata block that every pass of a frame reads.
// Both blocks are always written whole, and writes are queued before the frame's passes are
// recorded so that the submission carrying those passes observes the full record.
type SharedState interface {
	// Uniforms returns the uniform record most recently written.
	//
	// Returns:
	//   - GPUUniforms: the cached uniform record
	Uniforms() GPUUniforms

	// Metadata returns the metadata record most recently written.
	//
	// Returns:
	//   - GPUMetadata: the cached metadata record
	Metadata() GPUMetadata

	// UpdateUniforms replaces the whole uniform block.
	//
	// Parameters:
	//   - queue: the queue the write is issued on
	//   - u: the new uniform record
	//
	// Returns:
	//   - error: an error if the write fails
	UpdateUniforms(queue gpu.Queue, u GPUUniforms) error

	// UpdateMetadata replaces the whole metadata block.
	//
	// Parameters:
	//   - queue: the queue the write is issued on
	//   - m: the new metadata record
	//
	// Returns:
	//   - error: an error if the write fails
	UpdateMetadata(queue gpu.Queue, m GPUMetadata) error

	// Resize rewrites the capacity fields of both blocks after the particle store changed size.
	// The metadata source length is reset to the new capacity and the destination length to zero.
	//
	// Parameters:
	//   - queue: the queue the writes are issued on
	//   - capacity: the new particle capacity
	//
	// Returns:
	//   - error: an error if a write fails
	Resize(queue gpu.Queue, capacity uint32) error

	// UniformBuffer returns the uniform buffer.
	UniformBuffer() gpu.Buffer

	// MetadataBuffer returns the metadata storage buffer.
	MetadataBuffer() gpu.Buffer

	// ComputeGroup returns the provider for the compute passes (metadata read-write).
	ComputeGroup() bind_group_provider.BindGroupProvider

	// RenderGroup returns the provider for the render pass (metadata read-only).
	RenderGroup() bind_group_provider.BindGroupProvider

	// Release releases the buffers, bind groups and layouts.
	Release()
}

var _ SharedState = &sharedState{}

// NewSharedState allocates the uniform and metadata buffers and their compute and render bind groups.
// The uniform block starts zeroed except for capacity and emit batch. The metadata block starts with
// the whole capacity in the source buffer and nothing in the destination.
//
// Parameters:
//   - device: the device that allocates the resources
//   - capacity: the particle capacity
//   - emitBatch: the number of particles emitted per frame
//
// Returns:
//   - SharedState: the allocated shared state
//   - error: an error if any allocation fails
func NewSharedState(device gpu.Device, capacity, emitBatch uint32) (SharedState, error) {
	s := &sharedState{
		uniforms: GPUUniforms{Capacity: capacity, EmitBatch: emitBatch},
		metadata: GPUMetadata{Capacity: capacity, SrcLen: capacity},
	}

	var err error
	s.uniformBuffer, err = device.CreateBuffer(gpu.BufferDescriptor{
		Label:    "Shared Uniforms",
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Contents: s.uniforms.Marshal(),
	})
	if err != nil {
		return nil, fmt.Errorf("shared state: uniform buffer: %w", err)
	}
	s.metadataBuffer, err = device.CreateBuffer(gpu.BufferDescriptor{
		Label:    "Shared Metadata",
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
		Contents: s.metadata.Marshal(),
	})
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("shared state: metadata buffer: %w", err)
	}

	if s.compute, err = s.newGroup(device, "Shared Compute", wgpu.ShaderStageCompute, wgpu.BufferBindingTypeStorage); err != nil {
		s.Release()
		return nil, err
	}
	if s.render, err = s.newGroup(device, "Shared Render", wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, wgpu.BufferBindingTypeReadOnlyStorage); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

// newGroup creates a layout with the metadata and uniform bindings and a single variant bound to
// this state's buffers.
func (s *sharedState) newGroup(device gpu.Device, label string, visibility wgpu.ShaderStage, metadataType wgpu.BufferBindingType) (bind_group_provider.BindGroupProvider, error) {
	layout, err := device.CreateBindGroupLayout(gpu.BindGroupLayoutDescriptor{
		Label: label + " Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    BindingMetadata,
				Visibility: visibility,
				Buffer: wgpu.BufferBindingLayout{
					Type:           metadataType,
					MinBindingSize: uint64(s.metadata.Size()),
				},
			},
			{
				Binding:    BindingUniforms,
				Visibility: visibility,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: uint64(s.uniforms.Size()),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("shared state: %s layout: %w", label, err)
	}
	return bind_group_provider.NewBindGroupProvider(device, label, layout,
		bind_group_provider.WithVariant(
			gpu.BindGroupEntry{Binding: BindingMetadata, Buffer: s.metadataBuffer},
			gpu.BindGroupEntry{Binding: BindingUniforms, Buffer: s.uniformBuffer},
		),
		bind_group_provider.WithOwnedLayout(),
	)
}

func (s *sharedState) Uniforms() GPUUniforms {
	return s.uniforms
}

func (s *sharedState) Metadata() GPUMetadata {
	return s.metadata
}

func (s *sharedState) UpdateUniforms(queue gpu.Queue, u GPUUniforms) error {
	if err := bind_group_provider.WriteBuffers(queue, bind_group_provider.BufferWrite{Buffer: s.uniformBuffer, Data: u.Marshal()}); err != nil {
		return fmt.Errorf("shared state: %w", err)
	}
	s.uniforms = u
	return nil
}

func (s *sharedState) UpdateMetadata(queue gpu.Queue, m GPUMetadata) error {
	if err := bind_group_provider.WriteBuffers(queue, bind_group_provider.BufferWrite{Buffer: s.metadataBuffer, Data: m.Marshal()}); err != nil {
		return fmt.Errorf("shared state: %w", err)
	}
	s.metadata = m
	return nil
}

func (s *sharedState) Resize(queue gpu.Queue, capacity uint32) error {
	u := s.uniforms
	u.Capacity = capacity
	if u.EmitBatch > capacity {
		u.EmitBatch = capacity
	}
	m := GPUMetadata{Capacity: capacity, SrcLen: capacity, Frame: s.metadata.Frame}
	if err := bind_group_provider.WriteBuffers(queue,
		bind_group_provider.BufferWrite{Buffer: s.uniformBuffer, Data: u.Marshal()},
		bind_group_provider.BufferWrite{Buffer: s.metadataBuffer, Data: m.Marshal()},
	); err != nil {
		return fmt.Errorf("shared state: resize: %w", err)
	}
	s.uniforms, s.metadata = u, m
	return nil
}

func (s *sharedState) UniformBuffer() gpu.Buffer {
	return s.uniformBuffer
}

func (s *sharedState) MetadataBuffer() gpu.Buffer {
	return s.metadataBuffer
}

func (s *sharedState) ComputeGroup() bind_group_provider.BindGroupProvider {
	return s.compute
}

func (s *sharedState) RenderGroup() bind_group_provider.BindGroupProvider {
	return s.render
}

func (s *sharedState) Release() {
	if s.compute != nil {
		s.compute.Release()
		s.compute = nil
	}
	if s.render != nil {
		s.render.Release()
		s.render = nil
	}
	if s.uniformBuffer != nil {
		s.uniformBuffer.Release()
		s.uniformBuffer = nil
	}
	if s.metadataBuffer != nil {
		s.metadataBuffer.Release()
		s.metadataBuffer = nil
	}
}
