//go:build debug

package channel

// New ignores size and returns an unbuffered channel, which makes every
// subscriber that falls behind lose values immediately.
func New[T any](_ int) Channel[T] {
	return NewUnbuffered[T]()
}
