package app

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned by FrameBuffer.ReadFrame before the first frame.
var ErrNoFrame = errors.New("no frame yet")

// FrameBuffer holds the most recent frame of a stream. Readers get a clone,
// so the stream handlers and the pipeline never share a Mat.
type FrameBuffer struct {
	mu    sync.Mutex
	frame gocv.Mat
	set   bool
	seq   uint64
}

// Store copies frame into the buffer.
func (b *FrameBuffer) Store(frame gocv.Mat) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.set {
		b.frame = gocv.NewMat()
		b.set = true
	}
	frame.CopyTo(&b.frame)
	b.seq++
}

// ReadFrame returns a copy of the latest frame. The caller must Close it.
func (b *FrameBuffer) ReadFrame() (*gocv.Mat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.set || b.frame.Empty() {
		return nil, ErrNoFrame
	}
	frame := b.frame.Clone()
	return &frame, nil
}

// Seq counts stored frames. Stream handlers use it to skip frames they
// already sent.
func (b *FrameBuffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close releases the held frame.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.set {
		b.frame.Close()
		b.set = false
	}
}
