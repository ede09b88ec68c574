package scanner

import (
	"sync"

	"github.com/buildingco2/tracker/internal/channel"
)

// Hub fans snapshots out to subscribers. It outlives individual sessions so
// feed clients stay connected across start and stop.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]channel.Channel[Snapshot]
	nextSub int
	last    Snapshot
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]channel.Channel[Snapshot])}
}

// Subscribe registers for snapshots. Sends never block: a reader that falls
// behind loses its oldest pending snapshots and always sees the newest. The
// returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := channel.New[Snapshot](buffer)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch.Receive(), func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				c.Close()
			}
		})
	}
}

// Publish records snap as the latest and offers it to every subscriber.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = snap
	for _, ch := range h.subs {
		ch.Offer(snap)
	}
}

// Last returns the most recently published snapshot.
func (h *Hub) Last() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
