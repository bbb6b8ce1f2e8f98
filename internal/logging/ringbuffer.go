package logging

import (
	"os"
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer.
// It implements io.Writer and silently overwrites old data when full.
// Used as a crash-dump sink alongside the rotating log file.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	head  int // index of the oldest byte
	count int // number of valid bytes
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 4 * 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. Data wraps around when the buffer is full.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)
	if n >= size {
		// Keep only the trailing size bytes
		copy(rb.buf, p[n-size:])
		rb.head = 0
		rb.count = size
		return n, nil
	}

	tail := (rb.head + rb.count) % size
	first := copy(rb.buf[tail:], p)
	if first < n {
		copy(rb.buf, p[first:])
	}

	rb.count += n
	if rb.count > size {
		// Oldest bytes were overwritten; advance head past them.
		rb.head = (rb.head + rb.count - size) % size
		rb.count = size
	}
	return n, nil
}

// Bytes returns the buffer contents in chronological order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.count)
	first := copy(out, rb.buf[rb.head:min(rb.head+rb.count, len(rb.buf))])
	if first < rb.count {
		copy(out[first:], rb.buf[:rb.count-first])
	}
	return out
}

// DumpToFile writes the ring buffer contents to a file in chronological order.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}
