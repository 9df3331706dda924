package particle

import "go.uber.org/zap"

// DefaultCapacity is the capacity used when WithCapacity is not given.
const DefaultCapacity uint32 = 1_000_000

// StoreBuilderOption is a functional option used to configure a Store during construction.
type StoreBuilderOption func(*store)

// WithCapacity sets the number of records each buffer holds.
//
// Parameters:
//   - capacity: the capacity in records, must be positive
//
// Returns:
//   - StoreBuilderOption: a function that sets the capacity
func WithCapacity(capacity uint32) StoreBuilderOption {
	return func(s *store) {
		s.capacity = capacity
	}
}

// WithStride overrides the record stride for programs whose particle struct differs from GPUParticle.
//
// Parameters:
//   - stride: the record stride in bytes, a positive multiple of 4
//
// Returns:
//   - StoreBuilderOption: a function that sets the stride
func WithStride(stride uint64) StoreBuilderOption {
	return func(s *store) {
		s.stride = stride
	}
}

// WithDoubleBuffering selects the ping-pong variant.
//
// Parameters:
//   - enabled: true for an A/B pair, false for a single buffer
//
// Returns:
//   - StoreBuilderOption: a function that sets the buffering variant
func WithDoubleBuffering(enabled bool) StoreBuilderOption {
	return func(s *store) {
		s.doubleBuffered = enabled
	}
}

// WithSeeder fills buffer A on the host before upload. Without a seeder all buffers start zeroed.
//
// Parameters:
//   - seeder: called once per record index
//
// Returns:
//   - StoreBuilderOption: a function that sets the seeder
func WithSeeder(seeder Seeder) StoreBuilderOption {
	return func(s *store) {
		s.seeder = seeder
	}
}

// WithSeedWorkers sets the number of pool workers that seed records in parallel.
//
// Parameters:
//   - workers: the worker count, values below 1 select 1
//
// Returns:
//   - StoreBuilderOption: a function that sets the worker count
func WithSeedWorkers(workers int) StoreBuilderOption {
	return func(s *store) {
		s.seedWorkers = max(workers, 1)
	}
}

// WithLogger sets the logger used for allocation messages.
//
// Parameters:
//   - logger: the logger, nil keeps the no-op default
//
// Returns:
//   - StoreBuilderOption: a function that sets the logger
func WithLogger(logger *zap.Logger) StoreBuilderOption {
	return func(s *store) {
		if logger != nil {
			s.logger = logger
		}
	}
}
