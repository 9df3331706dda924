package bind_group_provider

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
)

// BufferWrite describes a single GPU buffer write operation at a given byte offset.
type BufferWrite struct {
	Buffer gpu.Buffer
	Offset uint64
	Data   []byte
}

// WriteBuffers queues every write in order. It stops at the first failing write.
//
// Parameters:
//   - queue: the queue the writes are issued on
//   - writes: the writes to issue
//
// Returns:
//   - error: an error naming the buffer of the failing write
func WriteBuffers(queue gpu.Queue, writes ...BufferWrite) error {
	for _, w := range writes {
		if w.Buffer == nil {
			return fmt.Errorf("buffer write: nil buffer")
		}
		if err := queue.WriteBuffer(w.Buffer, w.Offset, w.Data); err != nil {
			return fmt.Errorf("buffer write %q: %w", w.Buffer.Label(), err)
		}
	}
	return nil
}
