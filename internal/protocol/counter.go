package protocol

import "sync/atomic"

// Counter allocates 32-bit correlation ids. It wraps to zero on overflow,
// which is benign: ids only pair short-lived requests with responses and
// are never persisted or compared across restarts.
//
// A Counter is owned by whoever constructs it and passed explicitly to
// the components that assign ids, keeping id sequences deterministic in
// tests.
type Counter struct {
	n atomic.Uint32
}

// NewCounter returns a counter whose first Next call yields zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Next returns the next id. Safe for concurrent use.
func (c *Counter) Next() uint32 {
	return c.n.Add(1) - 1
}
