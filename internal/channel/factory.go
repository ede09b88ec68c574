//go:build !debug

package channel

// New returns a subscriber channel with size slots.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
