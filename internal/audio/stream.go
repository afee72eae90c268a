package audio

import (
	"io"
	"sync"
	"sync/atomic"
)

// chunkFrames is the device buffer granularity in frames.
const chunkFrames = 2048

// stream feeds one PCM buffer to a device player. While the shared
// paused flag is set, Read emits silence without advancing the cursor.
// Setting stopped makes the next Read return EOF regardless of cursor
// position.
type stream struct {
	data    []byte
	pos     atomic.Int64
	paused  *atomic.Bool
	stopped atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
}

func newStream(data []byte, paused *atomic.Bool) *stream {
	return &stream{
		data:   data,
		paused: paused,
		done:   make(chan struct{}),
	}
}

// Read is called from the device's pull goroutine; it must not block
// and must not take locks shared with the coordinator.
func (s *stream) Read(p []byte) (int, error) {
	if s.stopped.Load() {
		s.finish()
		return 0, io.EOF
	}
	if s.paused.Load() {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	pos := int(s.pos.Load())
	if pos >= len(s.data) {
		s.finish()
		return 0, io.EOF
	}
	n := copy(p, s.data[pos:])
	s.pos.Store(int64(pos + n))
	return n, nil
}

// position reports how many bytes of the buffer have been consumed.
func (s *stream) position() int { return int(s.pos.Load()) }

// stop aborts the stream; the next Read returns EOF.
func (s *stream) stop() { s.stopped.Store(true) }

func (s *stream) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}
