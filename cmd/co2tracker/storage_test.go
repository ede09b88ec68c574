package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/buildingco2/tracker/internal/camera"
	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/logging"
	"github.com/buildingco2/tracker/internal/storage/memory"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	SlogManager = logging.NewSlogManager()
	Logger = slog.New(slog.DiscardHandler)
	ZLogger = zerolog.Nop()
}

func TestCreateStorageBackend(t *testing.T) {
	b, err := createStorageBackend(config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "cosmos"})
	assert.Error(t, err)
}

func TestOpenStorage_CachedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend, err := openStorage(config.StorageConfig{
		Type:   "memory",
		Memory: config.MemoryConfig{OutputDir: dir},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.PutBuilding(ctx, core.Building{ID: "b1", Name: "Hall"}))
	got, err := backend.GetBuilding(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Hall", got.Name)
	require.NoError(t, backend.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "*.json*"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestNewFrameSource(t *testing.T) {
	size := camera.Size{Width: 640, Height: 480}

	src, err := newFrameSource(config.CameraConfig{Type: "snapshot", URL: "http://127.0.0.1:1/snap.jpg"}, size)
	require.NoError(t, err)
	assert.IsType(t, &camera.HTTPSnapshot{}, src)
	require.NoError(t, src.Close())

	_, err = newFrameSource(config.CameraConfig{Type: "webrtc"}, size)
	assert.Error(t, err)
}
