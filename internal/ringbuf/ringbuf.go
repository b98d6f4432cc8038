// Package ringbuf provides a fixed-capacity circular byte buffer used for
// terminal scrollback and the in-memory debug log mirror.
package ringbuf

import (
	"os"
	"sync"
)

// DefaultSize is used when a non-positive capacity is requested.
const DefaultSize = 256 * 1024

// RingBuffer is a thread-safe circular byte buffer.
// It implements io.Writer and silently overwrites old data when full.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	size    int
	pos     int
	full    bool
	written int64
}

// New creates a ring buffer with the given capacity in bytes.
func New(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &RingBuffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write implements io.Writer. Data wraps around when the buffer is full.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	rb.written += int64(n)
	if n >= rb.size {
		// Larger than the buffer: keep only the last rb.size bytes
		copy(rb.buf, p[n-rb.size:])
		rb.pos = 0
		rb.full = true
		return n, nil
	}

	space := rb.size - rb.pos
	if n <= space {
		copy(rb.buf[rb.pos:], p)
		rb.pos += n
		if rb.pos == rb.size {
			rb.pos = 0
			rb.full = true
		}
	} else {
		copy(rb.buf[rb.pos:], p[:space])
		copy(rb.buf, p[space:])
		rb.pos = n - space
		rb.full = true
	}

	return n, nil
}

// Len returns the number of bytes currently held.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.full {
		return rb.size
	}
	return rb.pos
}

// Cap returns the buffer capacity in bytes.
func (rb *RingBuffer) Cap() int {
	return rb.size
}

// Written returns the total number of bytes ever written, including
// bytes that have since been overwritten.
func (rb *RingBuffer) Written() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.written
}

// Bytes returns the buffer contents in chronological order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.tailLocked(rb.size)
}

// Tail returns at most the last n bytes in chronological order.
// The returned slice is a copy and may start in the middle of a
// multi-byte sequence.
func (rb *RingBuffer) Tail(n int) []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.tailLocked(n)
}

func (rb *RingBuffer) tailLocked(n int) []byte {
	held := rb.pos
	if rb.full {
		held = rb.size
	}
	if n <= 0 || held == 0 {
		return []byte{}
	}
	if n > held {
		n = held
	}

	out := make([]byte, n)
	start := rb.pos - n
	if start >= 0 {
		copy(out, rb.buf[start:rb.pos])
		return out
	}
	// Wrapped: [size+start..end] + [0..pos]
	head := -start
	copy(out, rb.buf[rb.size-head:])
	copy(out[head:], rb.buf[:rb.pos])
	return out
}

// Reset discards the buffer contents.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.pos = 0
	rb.full = false
}

// DumpToFile writes the ring buffer contents to a file in chronological order.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}
