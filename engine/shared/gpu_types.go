package shared

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUUniformsSource is the canonical WGSL definition of the Uniforms struct.
// Matches GPUUniforms layout exactly (32 bytes).
//
//go:embed assets/uniforms.wgsl
var GPUUniformsSource string

// GPUMetadataSource is the canonical WGSL definition of the Metadata struct.
// Matches GPUMetadata layout exactly (16 bytes).
//
//go:embed assets/metadata.wgsl
var GPUMetadataSource string

// GPUUniforms is the GPU-aligned representation of the per-frame uniform block read by every pass.
// Matches the WGSL Uniforms struct layout exactly (see GPUUniformsSource).
// Size: 32 bytes.
type GPUUniforms struct {
	Capacity    uint32     // offset  0: live particle capacity
	Paused      uint32     // offset  4: 1 while the simulation is paused
	PointerDown uint32     // offset  8: 1 while the primary pointer button is held
	EmitBatch   uint32     // offset 12: particles emitted per frame
	Pointer     [2]float32 // offset 16: pointer position in clip space (vec2<f32>)
	_pad        [2]uint32  // offset 24: padding to 32 bytes
}

// Size returns the size of the GPUUniforms struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUUniforms) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUUniforms struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUUniforms) Marshal() []byte {
	buf := make([]byte, g.Size())
	binary.LittleEndian.PutUint32(buf[0:], g.Capacity)
	binary.LittleEndian.PutUint32(buf[4:], g.Paused)
	binary.LittleEndian.PutUint32(buf[8:], g.PointerDown)
	binary.LittleEndian.PutUint32(buf[12:], g.EmitBatch)
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(g.Pointer[0]))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(g.Pointer[1]))
	return buf
}

// GPUMetadata is the GPU-aligned helper block shared by the compute passes. The swap pass
// exchanges SrcLen and DstLen so variable population variants know how many records each
// buffer holds.
// Size: 16 bytes.
type GPUMetadata struct {
	Capacity uint32 // offset  0: allocated records per particle buffer
	SrcLen   uint32 // offset  4: live records in the source buffer
	DstLen   uint32 // offset  8: live records written to the destination buffer
	Frame    uint32 // offset 12: presented frame counter
}

// Size returns the size of the GPUMetadata struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUMetadata) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMetadata struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUMetadata) Marshal() []byte {
	buf := make([]byte, g.Size())
	binary.LittleEndian.PutUint32(buf[0:], g.Capacity)
	binary.LittleEndian.PutUint32(buf[4:], g.SrcLen)
	binary.LittleEndian.PutUint32(buf[8:], g.DstLen)
	binary.LittleEndian.PutUint32(buf[12:], g.Frame)
	return buf
}
