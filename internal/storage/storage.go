// Package storage defines the persistence boundary for building documents.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildingco2/tracker/pkg/core"
)

// ErrNotFound is returned when no building has the requested ID.
var ErrNotFound = errors.New("building not found")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Reads
	ListBuildings(ctx context.Context) ([]core.Building, error)
	GetBuilding(ctx context.Context, id string) (core.Building, error)

	// PutBuilding replaces the whole document, creating it if needed.
	PutBuilding(ctx context.Context, b core.Building) error
	// UpdateBuilding applies a partial update. A merge patch for a missing
	// ID creates the building; an operation patch for a missing ID fails
	// with ErrNotFound.
	UpdateBuilding(ctx context.Context, p core.BuildingPatch) (core.Building, error)

	// Appends
	AppendWaste(ctx context.Context, buildingID string, p core.WasteDataPoint) error
	AppendElectricity(ctx context.Context, buildingID string, pts []core.ElectricityDataPoint) error
	AppendGas(ctx context.Context, buildingID string, pts []core.NaturalGasDataPoint) error
}

// Exportable is an optional interface for backends that can write their
// contents as a JSON document.
type Exportable interface {
	GetExportedFilePath() string
}

// ApplyPatch resolves p against existing, which is nil when the building
// does not exist yet. Backends call it inside their own locking.
func ApplyPatch(existing *core.Building, p core.BuildingPatch) (core.Building, error) {
	if p.ID == "" {
		return core.Building{}, fmt.Errorf("building id is required")
	}
	var b core.Building
	if existing == nil {
		if p.Operation != "" {
			return core.Building{}, fmt.Errorf("%w: %s", ErrNotFound, p.ID)
		}
		b = core.Building{ID: p.ID}
	} else {
		b = existing.Clone()
	}
	if err := b.Apply(p); err != nil {
		return core.Building{}, err
	}
	return b, nil
}
