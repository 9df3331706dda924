package particle

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPUParticleSize(t *testing.T) {
	var p GPUParticle
	assert.Equal(t, 64, p.Size())
	assert.Equal(t, uint64(64), DefaultStride)
	assert.Len(t, p.Marshal(), 64)
}

func TestNewStoreBufferSizes(t *testing.T) {
	tests := []struct {
		name    string
		double  bool
		buffers int
	}{
		{"single", false, 1},
		{"ping-pong", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gputest.NewDevice(nil)
			s, err := NewStore(d, WithCapacity(100), WithDoubleBuffering(tt.double))
			require.NoError(t, err)

			assert.Equal(t, tt.buffers, s.Count())
			for i := range s.Count() {
				assert.Equal(t, uint64(100)*DefaultStride, s.Buffer(i).Size())
			}
			assert.Nil(t, s.Buffer(tt.buffers))
			assert.Equal(t, "Particle Buffer A", s.Buffer(0).Label())
		})
	}
}

func TestStoreRolesAlternateByParity(t *testing.T) {
	d := gputest.NewDevice(nil)
	s, err := NewStore(d, WithCapacity(100), WithDoubleBuffering(true))
	require.NoError(t, err)

	for frame := uint64(0); frame < 10; frame++ {
		src, dst := s.SourceIndex(frame), s.DestinationIndex(frame)
		assert.NotEqual(t, src, dst, "frame %d", frame)
		assert.Equal(t, int(frame%2), src)
		// The destination of frame N is the source of frame N+1.
		assert.Equal(t, dst, s.SourceIndex(frame+1))
		assert.Equal(t, dst, s.ReadableIndex(frame+1))
	}
	assert.Equal(t, 0, s.ReadableIndex(0))
	assert.Equal(t, 1, s.ReadableIndex(1))
	assert.Equal(t, 0, s.ReadableIndex(2))
}

func TestSingleStoreRolesShareBuffer(t *testing.T) {
	d := gputest.NewDevice(nil)
	s, err := NewStore(d, WithCapacity(10))
	require.NoError(t, err)

	for frame := uint64(0); frame < 4; frame++ {
		assert.Equal(t, 0, s.SourceIndex(frame))
		assert.Equal(t, 0, s.DestinationIndex(frame))
		assert.Equal(t, 0, s.ReadableIndex(frame))
	}
}

func TestNewStoreValidation(t *testing.T) {
	d := gputest.NewDevice(nil)

	_, err := NewStore(d, WithCapacity(0))
	assert.ErrorContains(t, err, "capacity")

	_, err = NewStore(d, WithCapacity(10), WithStride(30))
	assert.ErrorContains(t, err, "stride")

	_, err = NewStore(d, WithCapacity(10), WithStride(32), WithSeeder(ScatterSeeder(1)))
	assert.ErrorContains(t, err, "seeded")

	d.SetMaxStorageBufferBindingSize(1024)
	_, err = NewStore(d, WithCapacity(17))
	assert.ErrorContains(t, err, "storage binding limit")
}

func TestStoreSeedsBufferAInParallel(t *testing.T) {
	d := gputest.NewDevice(nil)
	const capacity = 40000 // spans several seed chunks
	s, err := NewStore(d,
		WithCapacity(capacity),
		WithDoubleBuffering(true),
		WithSeedWorkers(4),
		WithSeeder(func(index uint32, p *GPUParticle) {
			p.Seed = index
			p.Age = float32(index)
		}),
	)
	require.NoError(t, err)

	a := s.Buffer(0).(*gputest.Buffer).Contents()
	for _, i := range []uint32{0, 1, seedChunk - 1, seedChunk, capacity - 1} {
		off := uint64(i) * DefaultStride
		assert.Equal(t, i, binary.LittleEndian.Uint32(a[off+56:]), "seed of record %d", i)
		assert.Equal(t, float32(i), math.Float32frombits(binary.LittleEndian.Uint32(a[off+32:])))
	}

	b := s.Buffer(1).(*gputest.Buffer).Contents()
	assert.Equal(t, make([]byte, len(b)), b, "buffer B starts zeroed")
}

func TestScatterSeederIsDeterministic(t *testing.T) {
	var a, b GPUParticle
	ScatterSeeder(7)(42, &a)
	ScatterSeeder(7)(42, &b)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a.Position[0], float32(-1))
	assert.LessOrEqual(t, a.Position[0], float32(1))
	assert.Zero(t, a.Alive)
}

func TestStoreResize(t *testing.T) {
	d := gputest.NewDevice(nil)
	s, err := NewStore(d, WithCapacity(100), WithDoubleBuffering(true))
	require.NoError(t, err)
	gen := s.Generation()
	oldA := s.Buffer(0).(*gputest.Buffer)

	require.NoError(t, s.Resize(250, 0))
	assert.Equal(t, uint32(250), s.Capacity())
	assert.Greater(t, s.Generation(), gen)
	assert.True(t, oldA.Released())
	assert.Equal(t, uint64(250)*DefaultStride, s.Buffer(1).Size())

	assert.Error(t, s.Resize(0, 0))
	assert.Equal(t, uint32(250), s.Capacity(), "failed resize keeps the current buffers")
}

func TestStoreResizeSeedsFrameSource(t *testing.T) {
	d := gputest.NewDevice(nil)
	s, err := NewStore(d, WithCapacity(8), WithDoubleBuffering(true), WithSeeder(ScatterSeeder(1)))
	require.NoError(t, err)

	for frame, seededIndex := range []int{0, 1, 0} {
		require.NoError(t, s.Resize(16, uint64(frame)))
		require.Equal(t, seededIndex, s.SourceIndex(uint64(frame)))

		seeded := s.Buffer(seededIndex).(*gputest.Buffer).Contents()
		zeroed := s.Buffer(1 - seededIndex).(*gputest.Buffer).Contents()
		assert.NotEqual(t, make([]byte, len(seeded)), seeded, "frame %d source is seeded", frame)
		assert.Equal(t, make([]byte, len(zeroed)), zeroed, "frame %d destination starts zeroed", frame)
	}
}

func TestStoreRelease(t *testing.T) {
	d := gputest.NewDevice(nil)
	s, err := NewStore(d, WithCapacity(4), WithDoubleBuffering(true))
	require.NoError(t, err)
	a, b := s.Buffer(0).(*gputest.Buffer), s.Buffer(1).(*gputest.Buffer)

	s.Release()
	assert.True(t, a.Released())
	assert.True(t, b.Released())
	assert.Zero(t, s.Count())
}
