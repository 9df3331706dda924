package particle

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// Seeder fills the record at index. It is called concurrently from pool workers, each call with its own
// record, so it must not share mutable state without synchronization.
type Seeder func(index uint32, p *GPUParticle)

var defaultSeedWorkers = runtime.NumCPU()

// seedChunk is the number of records a single pool task seeds.
const seedChunk = 16384

// seedRecords builds the initial contents of a capacity*stride buffer. The index range is split into
// chunks seeded in parallel on a worker pool and joined before the bytes are returned.
func seedRecords(capacity uint32, stride uint64, workers int, seeder Seeder) []byte {
	data := make([]byte, uint64(capacity)*stride)
	pool := worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)

	// The WaitGroup is the barrier, pool.Wait() only returns once idle workers exit.
	var wg sync.WaitGroup
	taskID := 0
	for start := uint32(0); start < capacity; start += seedChunk {
		end := min(start+seedChunk, capacity)
		wg.Add(1)
		lo, hi := start, end
		id := taskID
		taskID++
		pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				var p GPUParticle
				for i := lo; i < hi; i++ {
					p = GPUParticle{}
					seeder(i, &p)
					off := uint64(i) * stride
					p.MarshalTo(data[off : off+stride])
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return data
}

// ScatterSeeder returns a Seeder that places dead particles at random clip-space positions with random
// lifetimes, so the first emitted batches do not all share one origin. The generator is derived from the
// record index, which keeps the output independent of how records are split across workers.
//
// Parameters:
//   - seed: the base seed
//
// Returns:
//   - Seeder: the scatter seeder
func ScatterSeeder(seed uint64) Seeder {
	return func(index uint32, p *GPUParticle) {
		r := rand.New(rand.NewPCG(seed, uint64(index)))
		p.Position = [2]float32{r.Float32()*2 - 1, r.Float32()*2 - 1}
		p.Color = [4]float32{1, 1, 1, 1}
		p.Lifetime = 60 + r.Float32()*240
		p.Scale = 0.004 + r.Float32()*0.004
		p.Seed = r.Uint32()
	}
}
