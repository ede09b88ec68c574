package channel

import "sync"

// Chan is the Channel implementation. Close may be called more than once.
type Chan[T any] struct {
	ch   chan T
	once sync.Once
}

// NewBuffered returns a channel holding up to size pending values.
func NewBuffered[T any](size int) *Chan[T] {
	return &Chan[T]{ch: make(chan T, size)}
}

// NewUnbuffered returns a channel that only accepts a value when a reader is
// waiting for it.
func NewUnbuffered[T any]() *Chan[T] {
	return &Chan[T]{ch: make(chan T)}
}

func (c *Chan[T]) Send(v T) {
	c.ch <- v
}

func (c *Chan[T]) TrySend(v T) bool {
	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

func (c *Chan[T]) Offer(v T) bool {
	if c.TrySend(v) {
		return true
	}
	select {
	case <-c.ch:
	default:
	}
	c.TrySend(v)
	return false
}

func (c *Chan[T]) Receive() <-chan T {
	return c.ch
}

// Len returns the number of pending values.
func (c *Chan[T]) Len() int {
	return len(c.ch)
}

func (c *Chan[T]) Close() {
	c.once.Do(func() { close(c.ch) })
}
