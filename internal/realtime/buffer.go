package realtime

import "sync"

// frameBuffer retains the most recent raw frames for diagnostics and replay.
// Oldest frames are evicted first once the capacity is reached.
type frameBuffer struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
}

func newFrameBuffer(capacity int) *frameBuffer {
	return &frameBuffer{capacity: capacity}
}

func (b *frameBuffer) add(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	b.frames = append(b.frames, cp)
	if len(b.frames) > b.capacity {
		b.frames = b.frames[len(b.frames)-b.capacity:]
	}
}

func (b *frameBuffer) snapshot() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.frames))
	copy(out, b.frames)
	return out
}
