// pkg/core/building.go
package core

import "time"

// Bin names a disposal bin category.
type Bin string

const (
	BinRecycling Bin = "Recycling"
	BinCompost   Bin = "Compost"
	BinLandfill  Bin = "Landfill"
)

// Bins lists the bin categories in left-to-right camera order.
var Bins = []Bin{BinRecycling, BinCompost, BinLandfill}

// Valid reports whether b is one of the known bins.
func (b Bin) Valid() bool {
	switch b {
	case BinRecycling, BinCompost, BinLandfill:
		return true
	}
	return false
}

// UsageType selects which utility a bill describes.
type UsageType string

const (
	UsageGas         UsageType = "gas"
	UsageElectricity UsageType = "electricity"
)

// Valid reports whether u is a supported usage type.
func (u UsageType) Valid() bool {
	return u == UsageGas || u == UsageElectricity
}

// Unit returns the billing unit used for the usage type.
func (u UsageType) Unit() string {
	if u == UsageGas {
		return "therms"
	}
	return "kWh"
}

// ElectricityDataPoint is one electricity reading.
type ElectricityDataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	KWh       float64   `json:"kwh"`
	Emissions float64   `json:"emissions"`
}

// NaturalGasDataPoint is one natural gas reading.
type NaturalGasDataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Therms    float64   `json:"therms"`
	Emissions float64   `json:"emissions"`
}

// WasteDataPoint is one recorded disposal. Entries are append-only; removal
// happens by index on the owning building.
type WasteDataPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	ItemType      string    `json:"type"`
	TrashcanID    string    `json:"trashcanID"`
	WasteCategory string    `json:"wasteCategory"`
	Emissions     float64   `json:"emissions"` // tons CO2e
}

// Building is the document stored per building.
type Building struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Address          string                 `json:"address"`
	YearBuilt        int                    `json:"yearBuilt"`
	SquareFootage    float64                `json:"squareFootage"`
	ImageURL         string                 `json:"imageURL"`
	ElectricityUsage []ElectricityDataPoint `json:"electricityUsage"`
	NaturalGasUsage  []NaturalGasDataPoint  `json:"naturalGasUsage"`
	WasteGeneration  []WasteDataPoint       `json:"wasteGeneration"`
}

// Clone returns a deep copy so callers can mutate freely.
func (b Building) Clone() Building {
	out := b
	out.ElectricityUsage = append([]ElectricityDataPoint(nil), b.ElectricityUsage...)
	out.NaturalGasUsage = append([]NaturalGasDataPoint(nil), b.NaturalGasUsage...)
	out.WasteGeneration = append([]WasteDataPoint(nil), b.WasteGeneration...)
	return out
}
