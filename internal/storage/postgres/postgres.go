// Package postgres implements the storage.Backend interface using GORM/PostgreSQL.
// Connection handling is the only postgres-specific concern; reads and writes
// go through the shared GORM backend.
package postgres

import (
	"fmt"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/database"
	"github.com/buildingco2/tracker/internal/logging"
	gormstorage "github.com/buildingco2/tracker/internal/storage/gorm"
	"github.com/rs/zerolog"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the postgres storage backend.
// DB may be left nil, in which case Init connects using Config.
type Dependencies struct {
	Config     config.PostgresConfig
	DB         *gorm.DB
	LogManager *logging.SlogManager
	Logger     zerolog.Logger
}

// Backend implements storage.Backend on top of a PostgreSQL connection.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects to the database if needed and migrates the schema.
func (b *Backend) Init() error {
	db := b.deps.DB
	if db == nil {
		var err error
		db, err = database.GetPostgresDB(b.deps.Config, b.deps.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: b.deps.LogManager,
		Logger:     b.deps.Logger,
	})
	return b.Backend.Init()
}

// Close closes the underlying connection. Safe to call before Init.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
