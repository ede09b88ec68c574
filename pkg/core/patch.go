// pkg/core/patch.go
package core

import (
	"errors"
	"fmt"
)

// OpDeleteWasteEntry removes a single waste entry by index.
const OpDeleteWasteEntry = "deleteWasteEntry"

var (
	// ErrIndexOutOfRange is returned when a targeted deletion names a missing entry.
	ErrIndexOutOfRange = errors.New("waste entry index out of range")
	// ErrUnknownOperation is returned for an operation marker we do not handle.
	ErrUnknownOperation = errors.New("unknown operation")
)

// BuildingPatch is a partial building update. Nil fields are left alone.
// When Operation is set the field values are ignored and the operation is
// applied instead.
type BuildingPatch struct {
	ID        string `json:"id"`
	Operation string `json:"operation,omitempty"`
	Index     int    `json:"index,omitempty"`

	Name             *string                 `json:"name,omitempty"`
	Address          *string                 `json:"address,omitempty"`
	YearBuilt        *int                    `json:"yearBuilt,omitempty"`
	SquareFootage    *float64                `json:"squareFootage,omitempty"`
	ImageURL         *string                 `json:"imageURL,omitempty"`
	ElectricityUsage *[]ElectricityDataPoint `json:"electricityUsage,omitempty"`
	NaturalGasUsage  *[]NaturalGasDataPoint  `json:"naturalGasUsage,omitempty"`
	WasteGeneration  *[]WasteDataPoint       `json:"wasteGeneration,omitempty"`
}

// Apply merges the patch into b. Top-level fields are replaced wholesale,
// arrays included.
func (b *Building) Apply(p BuildingPatch) error {
	switch p.Operation {
	case "":
	case OpDeleteWasteEntry:
		if p.Index < 0 || p.Index >= len(b.WasteGeneration) {
			return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, p.Index, len(b.WasteGeneration))
		}
		b.WasteGeneration = append(b.WasteGeneration[:p.Index:p.Index], b.WasteGeneration[p.Index+1:]...)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperation, p.Operation)
	}

	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Address != nil {
		b.Address = *p.Address
	}
	if p.YearBuilt != nil {
		b.YearBuilt = *p.YearBuilt
	}
	if p.SquareFootage != nil {
		b.SquareFootage = *p.SquareFootage
	}
	if p.ImageURL != nil {
		b.ImageURL = *p.ImageURL
	}
	if p.ElectricityUsage != nil {
		b.ElectricityUsage = append([]ElectricityDataPoint(nil), (*p.ElectricityUsage)...)
	}
	if p.NaturalGasUsage != nil {
		b.NaturalGasUsage = append([]NaturalGasDataPoint(nil), (*p.NaturalGasUsage)...)
	}
	if p.WasteGeneration != nil {
		b.WasteGeneration = append([]WasteDataPoint(nil), (*p.WasteGeneration)...)
	}
	return nil
}
