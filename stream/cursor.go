package stream

import "sync"

// Cursor tracks the sequence state of one frame stream. It may be shared
// between goroutines.
type Cursor struct {
	mu      sync.RWMutex
	started bool
	lastSeq uint64
	final   bool
	frames  int
	bytes   int
}

// NewCursor returns a cursor that accepts any first sequence number.
func NewCursor() *Cursor {
	return &Cursor{}
}

// Observe records f. After the first frame every sequence number must be
// exactly one more than the previous, and nothing may follow a final
// frame.
func (c *Cursor) Observe(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.final {
		return &SequenceError{Got: f.Seq, AfterEnd: true}
	}
	if c.started && f.Seq != c.lastSeq+1 {
		return &SequenceError{Expected: c.lastSeq + 1, Got: f.Seq}
	}
	c.started = true
	c.lastSeq = f.Seq
	c.frames++
	c.bytes += len(f.Payload)
	if f.Final {
		c.final = true
	}
	return nil
}

// LastSeq returns the last accepted sequence number and whether any frame
// has been accepted.
func (c *Cursor) LastSeq() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeq, c.started
}

// Final reports whether the final frame has been seen.
func (c *Cursor) Final() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.final
}

// Stats returns the number of accepted frames and their payload bytes.
func (c *Cursor) Stats() (frames, bytes int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames, c.bytes
}
