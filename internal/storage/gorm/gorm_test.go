package gormstorage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/buildingco2/tracker/internal/database"
	"github.com/buildingco2/tracker/internal/logging"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

// newTestBackend creates a Backend on a private in-memory SQLite database.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.GetSqliteDB(database.MemoryDSN(name), zerolog.Nop())
	require.NoError(t, err)

	b := New(Dependencies{DB: db, LogManager: logging.NewSlogManager(), Logger: zerolog.Nop()})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func strPtr(s string) *string { return &s }

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestPutAndGetBuilding(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	in := core.Building{
		ID:            "b1",
		Name:          "Library",
		Address:       "1 Main St",
		YearBuilt:     1965,
		SquareFootage: 42000,
		ElectricityUsage: []core.ElectricityDataPoint{
			{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), KWh: 1200, Emissions: 0.45},
		},
	}
	require.NoError(t, b.PutBuilding(ctx, in))

	got, err := b.GetBuilding(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Library", got.Name)
	assert.Equal(t, 42000.0, got.SquareFootage)
	require.Len(t, got.ElectricityUsage, 1)
	assert.Equal(t, 1200.0, got.ElectricityUsage[0].KWh)
	assert.Empty(t, got.WasteGeneration)
}

func TestGetBuilding_NotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.GetBuilding(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateBuilding_UpsertAndMerge(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.UpdateBuilding(ctx, core.BuildingPatch{ID: "b1", Name: strPtr("Gym")})
	require.NoError(t, err)

	got, err := b.UpdateBuilding(ctx, core.BuildingPatch{ID: "b1", Address: strPtr("2 Side St")})
	require.NoError(t, err)
	assert.Equal(t, "Gym", got.Name)
	assert.Equal(t, "2 Side St", got.Address)

	list, err := b.ListBuildings(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateBuilding_DeleteWasteEntry(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1"}))
	for _, item := range []string{"Paper", "Napkin", "Chip-Bag"} {
		require.NoError(t, b.AppendWaste(ctx, "b1", core.WasteDataPoint{ItemType: item, WasteCategory: "Landfill"}))
	}

	got, err := b.UpdateBuilding(ctx, core.BuildingPatch{ID: "b1", Operation: core.OpDeleteWasteEntry, Index: 0})
	require.NoError(t, err)
	require.Len(t, got.WasteGeneration, 2)
	assert.Equal(t, "Napkin", got.WasteGeneration[0].ItemType)

	_, err = b.UpdateBuilding(ctx, core.BuildingPatch{ID: "b1", Operation: core.OpDeleteWasteEntry, Index: 2})
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)

	// Failed patch leaves the row untouched.
	again, err := b.GetBuilding(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, again.WasteGeneration, 2)
}

func TestAppend_MissingBuilding(t *testing.T) {
	b := newTestBackend(t)
	err := b.AppendWaste(context.Background(), "nope", core.WasteDataPoint{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppendUsage(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1"}))

	require.NoError(t, b.AppendElectricity(ctx, "b1", []core.ElectricityDataPoint{{KWh: 1}, {KWh: 2}}))
	require.NoError(t, b.AppendGas(ctx, "b1", []core.NaturalGasDataPoint{{Therms: 5}}))

	got, err := b.GetBuilding(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, got.ElectricityUsage, 2)
	assert.Len(t, got.NaturalGasUsage, 1)
	assert.Greater(t, b.GetLastDBWriteDuration(), time.Duration(0))
}

func TestConcurrentAppends(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1"}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.AppendWaste(ctx, "b1", core.WasteDataPoint{ItemType: "Paper"}))
		}()
	}
	wg.Wait()

	got, err := b.GetBuilding(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, got.WasteGeneration, 20)
}
