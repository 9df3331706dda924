package particle

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUParticleSource is the canonical WGSL definition of the Particle struct.
// Matches GPUParticle layout exactly (64 bytes).
//
//go:embed assets/particle.wgsl
var GPUParticleSource string

// GPUParticle is the GPU-aligned representation of one particle record.
// The host only writes it when seeding a store; afterwards the records belong to the compute passes.
// Size: 64 bytes.
type GPUParticle struct {
	Position [2]float32 // offset  0: clip-space position (vec2<f32>)
	Velocity [2]float32 // offset  8: clip-space units per tick (vec2<f32>)
	Color    [4]float32 // offset 16: linear RGBA (vec4<f32>)
	Age      float32    // offset 32: ticks since emission
	Lifetime float32    // offset 36: ticks until the particle dies
	Scale    float32    // offset 40: quad half-size in clip space
	Alive    uint32     // offset 44: 1 while the record holds a live particle
	Rotation float32    // offset 48: radians
	Spin     float32    // offset 52: radians per tick
	Seed     uint32     // offset 56: per-particle random seed
	_pad     uint32     // offset 60: padding to 64 bytes
}

// DefaultStride is the byte stride of a GPUParticle record.
const DefaultStride = uint64(unsafe.Sizeof(GPUParticle{}))

// Size returns the size of the GPUParticle struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPUParticle) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUParticle struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUParticle) Marshal() []byte {
	buf := make([]byte, g.Size())
	g.MarshalTo(buf)
	return buf
}

// MarshalTo serializes the record into the first 64 bytes of buf, which must be at least that long.
//
// Parameters:
//   - buf: the destination slice
func (g *GPUParticle) MarshalTo(buf []byte) {
	putF32 := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	putF32(0, g.Position[0])
	putF32(4, g.Position[1])
	putF32(8, g.Velocity[0])
	putF32(12, g.Velocity[1])
	for i := range 4 {
		putF32(16+i*4, g.Color[i])
	}
	putF32(32, g.Age)
	putF32(36, g.Lifetime)
	putF32(40, g.Scale)
	binary.LittleEndian.PutUint32(buf[44:], g.Alive)
	putF32(48, g.Rotation)
	putF32(52, g.Spin)
	binary.LittleEndian.PutUint32(buf[56:], g.Seed)
	binary.LittleEndian.PutUint32(buf[60:], 0) // _pad
}
