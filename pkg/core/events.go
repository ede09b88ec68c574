package core

// Dispatcher commands carrying writes to the persistence layer.
const (
	CommandRecordWaste       = "waste:record"
	CommandAppendElectricity = "usage:electricity"
	CommandAppendGas         = "usage:gas"
)

// WasteRecord is the payload of CommandRecordWaste.
type WasteRecord struct {
	BuildingID string         `json:"buildingId"`
	Point      WasteDataPoint `json:"point"`
}

// ElectricityBatch is the payload of CommandAppendElectricity.
type ElectricityBatch struct {
	BuildingID string                 `json:"buildingId"`
	Points     []ElectricityDataPoint `json:"points"`
}

// GasBatch is the payload of CommandAppendGas.
type GasBatch struct {
	BuildingID string                `json:"buildingId"`
	Points     []NaturalGasDataPoint `json:"points"`
}
