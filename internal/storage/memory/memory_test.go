package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Exportable = (*Backend)(nil)
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())
	return b
}

func strPtr(s string) *string { return &s }

func TestUpdateBuilding_UpsertThenMerge(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.UpdateBuilding(ctx, core.BuildingPatch{ID: "b1", Name: strPtr("Library"), Address: strPtr("1 Main St")})
	require.NoError(t, err)

	got, err := b.UpdateBuilding(ctx, core.BuildingPatch{ID: "b1", Name: strPtr("Main Library")})
	require.NoError(t, err)
	assert.Equal(t, "Main Library", got.Name)
	assert.Equal(t, "1 Main St", got.Address)
}

func TestGetBuilding_NotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.GetBuilding(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppendWaste_AndDeleteByIndex(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1"}))

	for _, item := range []string{"Paper", "Napkin", "Chip-Bag"} {
		require.NoError(t, b.AppendWaste(ctx, "b1", core.WasteDataPoint{ItemType: item}))
	}

	got, err := b.UpdateBuilding(ctx, core.BuildingPatch{ID: "b1", Operation: core.OpDeleteWasteEntry, Index: 1})
	require.NoError(t, err)
	require.Len(t, got.WasteGeneration, 2)
	assert.Equal(t, "Paper", got.WasteGeneration[0].ItemType)
	assert.Equal(t, "Chip-Bag", got.WasteGeneration[1].ItemType)

	_, err = b.UpdateBuilding(ctx, core.BuildingPatch{ID: "b1", Operation: core.OpDeleteWasteEntry, Index: 5})
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
}

func TestAppend_MissingBuilding(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	assert.ErrorIs(t, b.AppendWaste(ctx, "nope", core.WasteDataPoint{}), storage.ErrNotFound)
	assert.ErrorIs(t, b.AppendElectricity(ctx, "nope", nil), storage.ErrNotFound)
	assert.ErrorIs(t, b.AppendGas(ctx, "nope", nil), storage.ErrNotFound)
}

func TestAppendUsage(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1"}))

	require.NoError(t, b.AppendElectricity(ctx, "b1", []core.ElectricityDataPoint{{KWh: 10}, {KWh: 20}}))
	require.NoError(t, b.AppendGas(ctx, "b1", []core.NaturalGasDataPoint{{Therms: 3}}))

	got, err := b.GetBuilding(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, got.ElectricityUsage, 2)
	assert.Len(t, got.NaturalGasUsage, 1)
}

func TestReturnedBuildingsAreCopies(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1"}))
	require.NoError(t, b.AppendWaste(ctx, "b1", core.WasteDataPoint{ItemType: "Paper"}))

	got, _ := b.GetBuilding(ctx, "b1")
	got.WasteGeneration[0].ItemType = "changed"

	again, _ := b.GetBuilding(ctx, "b1")
	assert.Equal(t, "Paper", again.WasteGeneration[0].ItemType)
}

func TestListBuildings_Sorted(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "gym"}))
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "arts"}))

	list, err := b.ListBuildings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "arts", list[0].ID)
}

func TestCloseExportsAndInitRestores(t *testing.T) {
	for _, compress := range []bool{false, true} {
		dir := t.TempDir()
		cfg := config.MemoryConfig{OutputDir: dir, CompressOutput: compress}
		ctx := context.Background()

		b := New(cfg)
		require.NoError(t, b.Init())
		ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1", Name: "Library"}))
		require.NoError(t, b.AppendWaste(ctx, "b1", core.WasteDataPoint{Timestamp: ts, ItemType: "Paper", Emissions: 0.02}))
		require.NoError(t, b.Close())

		path := b.GetExportedFilePath()
		assert.FileExists(t, path)
		if compress {
			assert.Equal(t, ".gz", filepath.Ext(path))
		}

		restored := New(cfg)
		require.NoError(t, restored.Init())
		got, err := restored.GetBuilding(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, "Library", got.Name)
		require.Len(t, got.WasteGeneration, 1)
		assert.True(t, ts.Equal(got.WasteGeneration[0].Timestamp))
	}
}

func TestInit_SeedFile(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`[{"id":"b1","name":"Library","yearBuilt":1965}]`), 0644))

	b := New(config.MemoryConfig{SeedFile: seed})
	require.NoError(t, b.Init())

	got, err := b.GetBuilding(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 1965, got.YearBuilt)
}

func TestInit_BadSeed(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`[{"name":"no id"}]`), 0644))

	b := New(config.MemoryConfig{SeedFile: seed})
	assert.Error(t, b.Init())
}
