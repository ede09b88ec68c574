package sqlitestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/database"
	"github.com/buildingco2/tracker/internal/logging"
	"github.com/buildingco2/tracker/internal/model"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Exportable = (*Backend)(nil)
)

func newBackend(t *testing.T, name string, cfg config.SQLiteConfig, clk clock.Clock) *Backend {
	t.Helper()
	b, err := New(Dependencies{
		Config:     cfg,
		Name:       name,
		Clock:      clk,
		LogManager: logging.NewSlogManager(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, b.Init())
	return b
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestDumpOnTickAfterWrite(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "co2tracker.db")
	mock := clock.NewMock()
	b := newBackend(t, "sqlite_tick_test", config.SQLiteConfig{DumpInterval: time.Minute, DumpPath: dumpPath}, mock)
	defer b.Close()

	require.NoError(t, b.PutBuilding(context.Background(), core.Building{ID: "b1", Name: "Library"}))
	mock.Add(time.Minute)

	assert.Eventually(t, func() bool { return fileExists(dumpPath) }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return !b.LastDump().IsZero() }, time.Second, 10*time.Millisecond)
	assert.Equal(t, dumpPath, b.GetExportedFilePath())
}

func TestCleanDatabaseIsNotDumped(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "co2tracker.db")
	mock := clock.NewMock()
	b := newBackend(t, "sqlite_clean_test", config.SQLiteConfig{DumpInterval: time.Minute, DumpPath: dumpPath}, mock)

	mock.Add(3 * time.Minute)
	assert.Never(t, func() bool { return fileExists(dumpPath) }, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, b.Close())
	assert.False(t, fileExists(dumpPath))
	assert.Empty(t, b.GetExportedFilePath())
}

func TestCloseWritesFinalDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "co2tracker.db")
	b := newBackend(t, "sqlite_final_test", config.SQLiteConfig{DumpInterval: time.Hour, DumpPath: dumpPath}, clock.NewMock())

	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1", Name: "Library"}))
	require.NoError(t, b.AppendWaste(ctx, "b1", core.WasteDataPoint{ItemType: "Paper"}))
	require.NoError(t, b.Close())

	onDisk, err := database.GetSqliteDB(dumpPath, zerolog.Nop())
	require.NoError(t, err)
	var row model.Building
	require.NoError(t, onDisk.First(&row, "id = ?", "b1").Error)
	assert.Contains(t, string(row.WasteGeneration), "Paper")
}

func TestInitRestoresSnapshot(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "co2tracker.db")
	cfg := config.SQLiteConfig{DumpPath: dumpPath}

	first := newBackend(t, "sqlite_restore_a", cfg, nil)
	require.NoError(t, first.PutBuilding(context.Background(), core.Building{ID: "b1", Name: "Library"}))
	require.NoError(t, first.Close())

	second := newBackend(t, "sqlite_restore_b", cfg, nil)
	defer second.Close()

	got, err := second.GetBuilding(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "Library", got.Name)
}

func TestFailedWriteLeavesDatabaseClean(t *testing.T) {
	b := newBackend(t, "sqlite_failed_write", config.SQLiteConfig{}, nil)
	defer b.Close()

	err := b.AppendWaste(context.Background(), "missing", core.WasteDataPoint{ItemType: "Paper"})
	require.Error(t, err)
	assert.False(t, b.dirty.Load())
}

func TestNoDumpPath(t *testing.T) {
	b := newBackend(t, "sqlite_nodump_test", config.SQLiteConfig{}, nil)
	require.NoError(t, b.PutBuilding(context.Background(), core.Building{ID: "b1"}))
	assert.NoError(t, b.Close())
	assert.Empty(t, b.GetExportedFilePath())
}
