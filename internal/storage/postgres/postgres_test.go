package postgres

import (
	"context"
	"testing"

	"github.com/buildingco2/tracker/internal/config"
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

func TestNew(t *testing.T) {
	b := New(Dependencies{LogManager: logging.NewSlogManager()})
	require.NotNil(t, b)
	assert.NoError(t, b.Close())
}

func TestInit_ConnectionRefused(t *testing.T) {
	b := New(Dependencies{
		Config: config.PostgresConfig{
			Host:     "127.0.0.1",
			Port:     "1",
			Username: "co2",
			Password: "co2",
			Database: "co2",
			SSLMode:  "disable",
		},
		LogManager: logging.NewSlogManager(),
		Logger:     zerolog.Nop(),
	})

	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to postgres")
	assert.NoError(t, b.Close())
}

func TestInitClose_InjectedDB(t *testing.T) {
	db, err := database.GetSqliteDB(database.MemoryDSN("postgres_injected"), zerolog.Nop())
	require.NoError(t, err)

	b := New(Dependencies{DB: db, LogManager: logging.NewSlogManager(), Logger: zerolog.Nop()})
	require.NoError(t, b.Init())

	ctx := context.Background()
	require.NoError(t, b.PutBuilding(ctx, core.Building{ID: "b1", Name: "Hall"}))
	got, err := b.GetBuilding(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Hall", got.Name)

	require.NoError(t, b.Close())
}
