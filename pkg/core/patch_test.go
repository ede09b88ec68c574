package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wasteBuilding() Building {
	t0 := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	return Building{
		ID:   "b1",
		Name: "Fenwick Library",
		WasteGeneration: []WasteDataPoint{
			{Timestamp: t0, ItemType: "Plastic-Bottle", WasteCategory: "Recycling"},
			{Timestamp: t0.Add(time.Minute), ItemType: "Banana-Peel", WasteCategory: "Compost"},
			{Timestamp: t0.Add(2 * time.Minute), ItemType: "Chip-Bag", WasteCategory: "Landfill"},
		},
	}
}

func TestApply_MergesSetFieldsOnly(t *testing.T) {
	b := wasteBuilding()
	name := "Fenwick Library West"
	sq := 120000.0

	require.NoError(t, b.Apply(BuildingPatch{ID: "b1", Name: &name, SquareFootage: &sq}))

	assert.Equal(t, "Fenwick Library West", b.Name)
	assert.Equal(t, 120000.0, b.SquareFootage)
	assert.Len(t, b.WasteGeneration, 3, "arrays untouched when not in patch")
}

func TestApply_ReplacesArrays(t *testing.T) {
	b := wasteBuilding()
	waste := []WasteDataPoint{{ItemType: "Paper"}}

	require.NoError(t, b.Apply(BuildingPatch{WasteGeneration: &waste}))

	require.Len(t, b.WasteGeneration, 1)
	assert.Equal(t, "Paper", b.WasteGeneration[0].ItemType)

	waste[0].ItemType = "mutated"
	assert.Equal(t, "Paper", b.WasteGeneration[0].ItemType, "patch slice must be copied")
}

func TestApply_DeleteWasteEntry(t *testing.T) {
	b := wasteBuilding()
	orig := b.Clone()

	require.NoError(t, b.Apply(BuildingPatch{Operation: OpDeleteWasteEntry, Index: 1}))

	require.Len(t, b.WasteGeneration, 2)
	assert.Equal(t, "Plastic-Bottle", b.WasteGeneration[0].ItemType)
	assert.Equal(t, "Chip-Bag", b.WasteGeneration[1].ItemType)
	assert.Len(t, orig.WasteGeneration, 3, "clone must not share backing array")
	assert.Equal(t, "Banana-Peel", orig.WasteGeneration[1].ItemType)
}

func TestApply_DeleteWasteEntry_OutOfRange(t *testing.T) {
	for _, idx := range []int{-1, 3, 100} {
		b := wasteBuilding()
		err := b.Apply(BuildingPatch{Operation: OpDeleteWasteEntry, Index: idx})
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
		assert.Len(t, b.WasteGeneration, 3)
	}
}

func TestApply_UnknownOperation(t *testing.T) {
	b := wasteBuilding()
	err := b.Apply(BuildingPatch{Operation: "truncate"})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestBinAndUsageType(t *testing.T) {
	assert.True(t, BinCompost.Valid())
	assert.False(t, Bin("Hazardous").Valid())
	assert.True(t, UsageGas.Valid())
	assert.False(t, UsageType("water").Valid())
	assert.Equal(t, "therms", UsageGas.Unit())
	assert.Equal(t, "kWh", UsageElectricity.Unit())
}
