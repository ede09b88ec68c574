package main

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/internal/cache"
	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/internal/storage/memory"
	pgstorage "github.com/buildingco2/tracker/internal/storage/postgres"
	sqlitestorage "github.com/buildingco2/tracker/internal/storage/sqlite"
)

// openStorage creates, initializes and wraps the configured backend with the
// read cache.
func openStorage(storageCfg config.StorageConfig) (*storage.Cached, error) {
	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return nil, err
	}

	ttl := storageCfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	Logger.Info("Storage ready", "type", storageCfg.Type, "cacheTTL", ttl.String())
	return storage.NewCached(backend, cache.NewBuildingCache(ttl, clock.New())), nil
}

func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			Config:     storageCfg.Postgres,
			LogManager: SlogManager,
			Logger:     ZLogger,
		}), nil

	case "sqlite":
		name := fmt.Sprintf("%s_%s", AppName, SessionStartTime.Format("20060102_150405"))
		backend, err := sqlitestorage.New(sqlitestorage.Dependencies{
			Config:     storageCfg.SQLite,
			Name:       name,
			LogManager: SlogManager,
			Logger:     ZLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath, "dumpInterval", storageCfg.SQLite.DumpInterval.String())
		return backend, nil

	case "memory", "":
		Logger.Info("Memory storage backend initialized")
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

