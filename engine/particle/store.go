package particle

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// store is the implementation of the Store interface.
type store struct {
	device gpu.Device
	logger *zap.Logger

	capacity       uint32
	stride         uint64
	doubleBuffered bool

	seeder      Seeder
	seedWorkers int

	// buffers holds one buffer for the single variant and the A/B pair for the ping-pong variant.
	buffers []gpu.Buffer

	// generation increases every time the buffers are replaced.
	generation uint64
}

// Store owns the GPU buffers holding particle records.
//
// A single-buffer store is mutated in place by the compute passes and read by the render pass in the
// same frame. A double-buffered store is a ping-pong pair: during frame N buffer N%2 is the read-only
// source and buffer (N+1)%2 the write destination, so after the frame the former destination holds the
// live population and becomes the next source. Roles are derived from the frame index alone and no
// buffer handle is ever exchanged.
type Store interface {
	// Capacity returns the number of records each buffer holds.
	//
	// Returns:
	//   - uint32: the capacity in records
	Capacity() uint32

	// Stride returns the byte size of one record.
	//
	// Returns:
	//   - uint64: the record stride in bytes
	Stride() uint64

	// DoubleBuffered reports whether the store is a ping-pong pair.
	//
	// Returns:
	//   - bool: true for the ping-pong variant
	DoubleBuffered() bool

	// Count returns the number of buffers, 1 or 2.
	//
	// Returns:
	//   - int: the buffer count
	Count() int

	// Buffer returns the buffer at index i. Index 0 is buffer A and index 1 is buffer B.
	//
	// Parameters:
	//   - i: the buffer index
	//
	// Returns:
	//   - gpu.Buffer: the buffer, or nil if i is out of range
	Buffer(i int) gpu.Buffer

	// SourceIndex returns the index of the buffer compute reads during the given frame.
	//
	// Parameters:
	//   - frame: the frame index
	//
	// Returns:
	//   - int: the source buffer index
	SourceIndex(frame uint64) int

	// DestinationIndex returns the index of the buffer compute writes during the given frame.
	// It equals SourceIndex for a single-buffer store.
	//
	// Parameters:
	//   - frame: the frame index
	//
	// Returns:
	//   - int: the destination buffer index
	DestinationIndex(frame uint64) int

	// ReadableIndex returns the index of the buffer holding the live population once the given number of
	// frames has completed.
	//
	// Parameters:
	//   - completed: the number of completed frames
	//
	// Returns:
	//   - int: the readable buffer index
	ReadableIndex(completed uint64) int

	// Generation returns a counter that increases whenever Resize replaces the buffers. Bind groups built
	// against an older generation reference released buffers and must be rebuilt.
	//
	// Returns:
	//   - uint64: the buffer generation
	Generation() uint64

	// Resize replaces every buffer with one holding capacity records. Existing contents are discarded.
	// When a seeder is configured the seeded records go into the source buffer of frame and the other
	// buffer starts zeroed, the same layout NewStore produces for frame 0.
	//
	// Parameters:
	//   - capacity: the new capacity in records
	//   - frame: the index of the next frame compute will run
	//
	// Returns:
	//   - error: an error if the capacity is invalid or allocation fails
	Resize(capacity uint32, frame uint64) error

	// Release releases every buffer.
	Release()
}

var _ Store = &store{}

// NewStore allocates the particle buffers. Buffer byte size is always capacity * stride.
//
// Parameters:
//   - device: the device that allocates the buffers
//   - options: functional options for capacity, stride, buffering and seeding
//
// Returns:
//   - Store: the allocated store
//   - error: an error if the configuration is invalid or allocation fails
func NewStore(device gpu.Device, options ...StoreBuilderOption) (Store, error) {
	s := &store{
		device:      device,
		logger:      zap.NewNop(),
		capacity:    DefaultCapacity,
		stride:      DefaultStride,
		seedWorkers: defaultSeedWorkers,
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.validate(s.capacity); err != nil {
		return nil, err
	}
	if err := s.allocate(0); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *store) validate(capacity uint32) error {
	if capacity == 0 {
		return fmt.Errorf("particle store: capacity must be positive")
	}
	if s.stride == 0 || s.stride%4 != 0 {
		return fmt.Errorf("particle store: stride %d is not a positive multiple of 4", s.stride)
	}
	if s.seeder != nil && s.stride < DefaultStride {
		return fmt.Errorf("particle store: stride %d cannot hold a seeded %d byte record", s.stride, DefaultStride)
	}
	size := uint64(capacity) * s.stride
	if limit := s.device.Limits().MaxStorageBufferBindingSize; limit > 0 && size > limit {
		return fmt.Errorf("particle store: %d bytes exceeds the storage binding limit of %d", size, limit)
	}
	return nil
}

// allocate creates the buffers for the current capacity. The buffer at seedIndex receives the seeded
// population and the other starts zeroed.
func (s *store) allocate(seedIndex int) error {
	count := 1
	if s.doubleBuffered {
		count = 2
	}
	size := uint64(s.capacity) * s.stride
	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

	var seeded []byte
	if s.seeder != nil {
		seeded = seedRecords(s.capacity, s.stride, s.seedWorkers, s.seeder)
		s.logger.Debug("seeded particle records",
			zap.Uint32("capacity", s.capacity),
			zap.Int("workers", s.seedWorkers),
		)
	}

	buffers := make([]gpu.Buffer, 0, count)
	for i := range count {
		desc := gpu.BufferDescriptor{
			Label: fmt.Sprintf("Particle Buffer %c", 'A'+i),
			Size:  size,
			Usage: usage,
		}
		if i == seedIndex && seeded != nil {
			desc.Contents = seeded
		}
		buf, err := s.device.CreateBuffer(desc)
		if err != nil {
			for _, b := range buffers {
				b.Release()
			}
			return fmt.Errorf("particle store: %s: %w", desc.Label, err)
		}
		buffers = append(buffers, buf)
	}

	s.buffers = buffers
	s.generation++
	s.logger.Info("allocated particle store",
		zap.Uint32("capacity", s.capacity),
		zap.Uint64("stride", s.stride),
		zap.Int("buffers", count),
		zap.Uint64("bytes_per_buffer", size),
	)
	return nil
}

func (s *store) Capacity() uint32 {
	return s.capacity
}

func (s *store) Stride() uint64 {
	return s.stride
}

func (s *store) DoubleBuffered() bool {
	return s.doubleBuffered
}

func (s *store) Count() int {
	return len(s.buffers)
}

func (s *store) Buffer(i int) gpu.Buffer {
	if i < 0 || i >= len(s.buffers) {
		return nil
	}
	return s.buffers[i]
}

func (s *store) SourceIndex(frame uint64) int {
	if !s.doubleBuffered {
		return 0
	}
	return int(frame % 2)
}

func (s *store) DestinationIndex(frame uint64) int {
	if !s.doubleBuffered {
		return 0
	}
	return int((frame + 1) % 2)
}

func (s *store) ReadableIndex(completed uint64) int {
	return s.SourceIndex(completed)
}

func (s *store) Generation() uint64 {
	return s.generation
}

func (s *store) Resize(capacity uint32, frame uint64) error {
	if err := s.validate(capacity); err != nil {
		return err
	}
	old := s.buffers
	prev := s.capacity
	s.capacity = capacity
	if err := s.allocate(s.SourceIndex(frame)); err != nil {
		s.capacity = prev
		return err
	}
	for _, b := range old {
		b.Release()
	}
	return nil
}

func (s *store) Release() {
	for _, b := range s.buffers {
		if b != nil {
			b.Release()
		}
	}
	s.buffers = nil
}
