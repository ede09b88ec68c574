// Package queue holds small concurrency-safe containers shared by the
// scanner and its feed.
package queue

import "sync"

// Ring keeps the last Cap items pushed. Pushing into a full ring
// overwrites the oldest item.
type Ring[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int // next write position
	n    int
}

// NewRing returns an empty ring holding at most size items. A size below
// one is treated as one.
func NewRing[T any](size int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(size, 1))}
}

// Push appends items in order.
func (r *Ring[T]) Push(items ...T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		r.buf[r.head] = it
		r.head = (r.head + 1) % len(r.buf)
		if r.n < len(r.buf) {
			r.n++
		}
	}
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the ring size.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Newest returns a copy of the items, most recent first.
func (r *Ring[T]) Newest() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.buf[(r.head-1-i+2*len(r.buf))%len(r.buf)]
	}
	return out
}

// Reset empties the ring.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.head, r.n = 0, 0
}
