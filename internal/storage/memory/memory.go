// Package memory keeps building documents in maps and persists them as a
// JSON export on Close.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/pkg/core"
)

// Backend stores buildings in memory and exports to JSON
type Backend struct {
	cfg            config.MemoryConfig
	buildings      map[string]*core.Building
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:       cfg,
		buildings: make(map[string]*core.Building),
	}
}

// Init restores the previous export when one exists, otherwise loads the
// seed file if configured.
func (b *Backend) Init() error {
	path := b.exportPath()
	if _, err := os.Stat(path); err != nil || b.cfg.OutputDir == "" {
		path = b.cfg.SeedFile
	}
	if path == "" {
		return nil
	}

	buildings, err := ReadBuildings(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range buildings {
		bld := buildings[i].Clone()
		b.buildings[bld.ID] = &bld
	}
	return nil
}

// Close writes the export file
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exportJSON()
}

// ListBuildings returns every building ordered by ID
func (b *Backend) ListBuildings(ctx context.Context) ([]core.Building, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Building, 0, len(b.buildings))
	for _, bld := range b.buildings {
		out = append(out, bld.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetBuilding returns one building
func (b *Backend) GetBuilding(ctx context.Context, id string) (core.Building, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bld, ok := b.buildings[id]
	if !ok {
		return core.Building{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return bld.Clone(), nil
}

// PutBuilding stores a full document
func (b *Backend) PutBuilding(ctx context.Context, bld core.Building) error {
	if bld.ID == "" {
		return fmt.Errorf("building id is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := bld.Clone()
	b.buildings[c.ID] = &c
	return nil
}

// UpdateBuilding applies a patch
func (b *Backend) UpdateBuilding(ctx context.Context, p core.BuildingPatch) (core.Building, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	updated, err := storage.ApplyPatch(b.buildings[p.ID], p)
	if err != nil {
		return core.Building{}, err
	}
	b.buildings[updated.ID] = &updated
	return updated.Clone(), nil
}

// AppendWaste adds a disposal record
func (b *Backend) AppendWaste(ctx context.Context, buildingID string, p core.WasteDataPoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bld, ok := b.buildings[buildingID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, buildingID)
	}
	bld.WasteGeneration = append(bld.WasteGeneration, p)
	return nil
}

// AppendElectricity adds electricity readings
func (b *Backend) AppendElectricity(ctx context.Context, buildingID string, pts []core.ElectricityDataPoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bld, ok := b.buildings[buildingID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, buildingID)
	}
	bld.ElectricityUsage = append(bld.ElectricityUsage, pts...)
	return nil
}

// AppendGas adds natural gas readings
func (b *Backend) AppendGas(ctx context.Context, buildingID string, pts []core.NaturalGasDataPoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bld, ok := b.buildings[buildingID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, buildingID)
	}
	bld.NaturalGasUsage = append(bld.NaturalGasUsage, pts...)
	return nil
}
