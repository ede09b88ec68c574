package storage

import (
	"context"

	"github.com/buildingco2/tracker/internal/cache"
	"github.com/buildingco2/tracker/pkg/core"
)

// Cached serves reads from a BuildingCache and invalidates it on every write
// that reaches the wrapped backend.
type Cached struct {
	Backend
	cache *cache.BuildingCache
}

// NewCached wraps b with c.
func NewCached(b Backend, c *cache.BuildingCache) *Cached {
	return &Cached{Backend: b, cache: c}
}

// Unwrap returns the wrapped backend.
func (c *Cached) Unwrap() Backend { return c.Backend }

// Cache returns the underlying cache.
func (c *Cached) Cache() *cache.BuildingCache { return c.cache }

func (c *Cached) ListBuildings(ctx context.Context) ([]core.Building, error) {
	if list, ok := c.cache.GetList(); ok {
		return list, nil
	}
	gen := c.cache.Generation()
	list, err := c.Backend.ListBuildings(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.FillList(list, gen)
	return list, nil
}

func (c *Cached) GetBuilding(ctx context.Context, id string) (core.Building, error) {
	if b, ok := c.cache.GetBuilding(id); ok {
		return b, nil
	}
	gen := c.cache.Generation()
	b, err := c.Backend.GetBuilding(ctx, id)
	if err != nil {
		return core.Building{}, err
	}
	c.cache.FillBuilding(b, gen)
	return b, nil
}

func (c *Cached) PutBuilding(ctx context.Context, b core.Building) error {
	defer c.cache.Invalidate(b.ID)
	return c.Backend.PutBuilding(ctx, b)
}

func (c *Cached) UpdateBuilding(ctx context.Context, p core.BuildingPatch) (core.Building, error) {
	defer c.cache.Invalidate(p.ID)
	return c.Backend.UpdateBuilding(ctx, p)
}

func (c *Cached) AppendWaste(ctx context.Context, buildingID string, p core.WasteDataPoint) error {
	defer c.cache.Invalidate(buildingID)
	return c.Backend.AppendWaste(ctx, buildingID, p)
}

func (c *Cached) AppendElectricity(ctx context.Context, buildingID string, pts []core.ElectricityDataPoint) error {
	defer c.cache.Invalidate(buildingID)
	return c.Backend.AppendElectricity(ctx, buildingID, pts)
}

func (c *Cached) AppendGas(ctx context.Context, buildingID string, pts []core.NaturalGasDataPoint) error {
	defer c.cache.Invalidate(buildingID)
	return c.Backend.AppendGas(ctx, buildingID, pts)
}
