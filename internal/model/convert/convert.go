// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/buildingco2/tracker/internal/model"
	"github.com/buildingco2/tracker/pkg/core"
	"gorm.io/datatypes"
)

// toJSON marshals a slice for a JSON column. Nil slices become "[]".
func toJSON[T any](items []T) (datatypes.JSON, error) {
	if len(items) == 0 {
		return datatypes.JSON("[]"), nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func fromJSON[T any](data datatypes.JSON) ([]T, error) {
	if len(data) == 0 {
		return []T{}, nil
	}
	out := []T{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CoreToBuilding converts a core.Building to its GORM row.
func CoreToBuilding(b core.Building) (model.Building, error) {
	elec, err := toJSON(b.ElectricityUsage)
	if err != nil {
		return model.Building{}, fmt.Errorf("electricity usage: %w", err)
	}
	gas, err := toJSON(b.NaturalGasUsage)
	if err != nil {
		return model.Building{}, fmt.Errorf("natural gas usage: %w", err)
	}
	waste, err := toJSON(b.WasteGeneration)
	if err != nil {
		return model.Building{}, fmt.Errorf("waste generation: %w", err)
	}
	return model.Building{
		ID:               b.ID,
		Name:             b.Name,
		Address:          b.Address,
		YearBuilt:        b.YearBuilt,
		SquareFootage:    b.SquareFootage,
		ImageURL:         b.ImageURL,
		ElectricityUsage: elec,
		NaturalGasUsage:  gas,
		WasteGeneration:  waste,
	}, nil
}

// BuildingToCore converts a GORM row back to a core.Building.
func BuildingToCore(m model.Building) (core.Building, error) {
	elec, err := fromJSON[core.ElectricityDataPoint](m.ElectricityUsage)
	if err != nil {
		return core.Building{}, fmt.Errorf("electricity usage: %w", err)
	}
	gas, err := fromJSON[core.NaturalGasDataPoint](m.NaturalGasUsage)
	if err != nil {
		return core.Building{}, fmt.Errorf("natural gas usage: %w", err)
	}
	waste, err := fromJSON[core.WasteDataPoint](m.WasteGeneration)
	if err != nil {
		return core.Building{}, fmt.Errorf("waste generation: %w", err)
	}
	return core.Building{
		ID:               m.ID,
		Name:             m.Name,
		Address:          m.Address,
		YearBuilt:        m.YearBuilt,
		SquareFootage:    m.SquareFootage,
		ImageURL:         m.ImageURL,
		ElectricityUsage: elec,
		NaturalGasUsage:  gas,
		WasteGeneration:  waste,
	}, nil
}
