package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/pkg/core"
)

// DefaultTTL is how long a cached building stays fresh.
const DefaultTTL = 10 * time.Minute

type entry struct {
	building core.Building
	storedAt time.Time
}

// BuildingCache caches building documents read from storage so repeated
// dashboard reads avoid a backend round trip. Entries expire after TTL and
// are dropped on every write to the same building.
//
// Readers that go to the backend on a miss take a Generation first and fill
// with FillBuilding or FillList. A fill is refused when an Invalidate or
// Reset happened since, so a read that raced a write never caches the
// document from before the write.
type BuildingCache struct {
	m         sync.Mutex
	clk       clock.Clock
	ttl       time.Duration
	gen       uint64
	buildings map[string]entry
	list      []string
	listAt    time.Time
	hasList   bool

	Hits   SafeCounter
	Misses SafeCounter
}

// NewBuildingCache creates a cache. A zero ttl uses DefaultTTL and a nil
// clock uses the wall clock.
func NewBuildingCache(ttl time.Duration, clk clock.Clock) *BuildingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &BuildingCache{
		clk:       clk,
		ttl:       ttl,
		buildings: make(map[string]entry),
	}
}

func (c *BuildingCache) fresh(at time.Time) bool {
	return c.clk.Now().Sub(at) < c.ttl
}

// Reset drops every entry.
func (c *BuildingCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.buildings = make(map[string]entry)
	c.list = nil
	c.hasList = false
	c.gen++
}

// Generation returns the current invalidation count.
func (c *BuildingCache) Generation() uint64 {
	c.m.Lock()
	defer c.m.Unlock()
	return c.gen
}

// GetBuilding returns a copy of a fresh cached building.
func (c *BuildingCache) GetBuilding(id string) (core.Building, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	e, ok := c.buildings[id]
	if !ok || !c.fresh(e.storedAt) {
		c.Misses.Inc()
		return core.Building{}, false
	}
	c.Hits.Inc()
	return e.building.Clone(), true
}

// AddBuilding stores a copy of b.
func (c *BuildingCache) AddBuilding(b core.Building) {
	c.m.Lock()
	defer c.m.Unlock()
	c.buildings[b.ID] = entry{building: b.Clone(), storedAt: c.clk.Now()}
}

// FillBuilding stores b if nothing was invalidated since gen was taken.
func (c *BuildingCache) FillBuilding(b core.Building, gen uint64) bool {
	c.m.Lock()
	defer c.m.Unlock()
	if c.gen != gen {
		return false
	}
	c.buildings[b.ID] = entry{building: b.Clone(), storedAt: c.clk.Now()}
	return true
}

// GetList returns the cached full listing if every member is still fresh.
func (c *BuildingCache) GetList() ([]core.Building, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.hasList || !c.fresh(c.listAt) {
		c.Misses.Inc()
		return nil, false
	}
	out := make([]core.Building, 0, len(c.list))
	for _, id := range c.list {
		e, ok := c.buildings[id]
		if !ok {
			c.Misses.Inc()
			return nil, false
		}
		out = append(out, e.building.Clone())
	}
	c.Hits.Inc()
	return out, true
}

// SetList caches a full listing, also refreshing each member.
func (c *BuildingCache) SetList(buildings []core.Building) {
	c.m.Lock()
	defer c.m.Unlock()
	c.setList(buildings)
}

// FillList caches a listing if nothing was invalidated since gen was taken.
func (c *BuildingCache) FillList(buildings []core.Building, gen uint64) bool {
	c.m.Lock()
	defer c.m.Unlock()
	if c.gen != gen {
		return false
	}
	c.setList(buildings)
	return true
}

func (c *BuildingCache) setList(buildings []core.Building) {
	now := c.clk.Now()
	c.list = make([]string, 0, len(buildings))
	for _, b := range buildings {
		c.buildings[b.ID] = entry{building: b.Clone(), storedAt: now}
		c.list = append(c.list, b.ID)
	}
	c.listAt = now
	c.hasList = true
}

// Invalidate drops one building and the listing.
func (c *BuildingCache) Invalidate(id string) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.buildings, id)
	c.hasList = false
	c.gen++
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
