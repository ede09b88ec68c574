// Package channel wraps Go channels for the snapshot hub. Production builds
// buffer each subscriber; debug builds are unbuffered so a subscriber that is
// not already waiting shows up as dropped sends.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	// Send blocks until v is accepted.
	Send(v T)
	// TrySend delivers v only if it would not block.
	TrySend(v T) bool
	// Offer delivers v, evicting the oldest pending value if the buffer is
	// full. It reports false when something was evicted or v was dropped.
	Offer(v T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
