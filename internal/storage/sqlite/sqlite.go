// Package sqlitestorage keeps buildings in an in-memory SQLite database and
// snapshots it to a file on an interval. A snapshot left by a previous run
// is loaded back on Init.
package sqlitestorage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/database"
	"github.com/buildingco2/tracker/internal/logging"
	gormstorage "github.com/buildingco2/tracker/internal/storage/gorm"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dependencies holds everything the SQLite backend needs. Name selects the
// in-memory database; Clock defaults to the wall clock.
type Dependencies struct {
	Config     config.SQLiteConfig
	Name       string
	Clock      clock.Clock
	LogManager *logging.SlogManager
	Logger     zerolog.Logger
}

// Backend is the GORM backend plus snapshot bookkeeping. Writes mark the
// database dirty; the dump loop only snapshots a dirty database.
type Backend struct {
	*gormstorage.Backend
	db     *gorm.DB
	deps   Dependencies
	dirty  atomic.Bool
	last   atomic.Int64
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New opens the in-memory database. Nothing is read from disk until Init.
func New(deps Dependencies) (*Backend, error) {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	db, err := database.GetSqliteDB(database.MemoryDSN(deps.Name), deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:         db,
			LogManager: deps.LogManager,
			Logger:     deps.Logger,
		}),
		db:   db,
		deps: deps,
	}, nil
}

func (b *Backend) logger() *slog.Logger {
	if b.deps.LogManager == nil {
		return slog.Default().With("component", "sqlite")
	}
	return b.deps.LogManager.Logger().With("component", "sqlite")
}

// Init migrates the schema, restores the last snapshot and starts the dump
// loop when both a path and an interval are configured.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	cfg := b.deps.Config
	if cfg.DumpPath != "" {
		n, err := database.RestoreDump(b.db, cfg.DumpPath)
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", cfg.DumpPath, err)
		}
		if n > 0 {
			b.logger().Info("Restored buildings from snapshot", "path", cfg.DumpPath, "count", n)
		}
	}

	if cfg.DumpPath == "" || cfg.DumpInterval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	ticker := b.deps.Clock.Ticker(cfg.DumpInterval)
	go b.dumpLoop(ctx, ticker)
	return nil
}

// Close stops the dump loop, writes a final snapshot if anything changed and
// closes the database.
func (b *Backend) Close() error {
	b.once.Do(func() {
		if b.cancel != nil {
			b.cancel()
			<-b.done
		}
		if b.deps.Config.DumpPath != "" && b.dirty.Load() {
			if err := b.dump(); err != nil {
				b.logger().Error("Final snapshot failed", "error", err)
			}
		}
	})
	return b.Backend.Close()
}

// LastDump reports when the last snapshot was written. Zero if none.
func (b *Backend) LastDump() time.Time {
	ns := b.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GetExportedFilePath returns the snapshot path, empty until one is written.
func (b *Backend) GetExportedFilePath() string {
	if b.LastDump().IsZero() {
		return ""
	}
	return b.deps.Config.DumpPath
}

func (b *Backend) dumpLoop(ctx context.Context, ticker *clock.Ticker) {
	defer close(b.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.dirty.Load() {
				continue
			}
			start := b.deps.Clock.Now()
			if err := b.dump(); err != nil {
				b.logger().Error("Snapshot failed", "path", b.deps.Config.DumpPath, "error", err)
				continue
			}
			b.logger().Debug("Snapshot written", "took", b.deps.Clock.Since(start).String())
		}
	}
}

// dump clears the dirty flag before writing so that writes racing the
// snapshot are caught by the next one.
func (b *Backend) dump() error {
	b.dirty.Store(false)
	if err := database.DumpMemoryDBToDisk(b.db, b.deps.Config.DumpPath); err != nil {
		b.dirty.Store(true)
		return err
	}
	b.last.Store(b.deps.Clock.Now().UnixNano())
	return nil
}

func (b *Backend) touch(err error) error {
	if err == nil {
		b.dirty.Store(true)
	}
	return err
}

func (b *Backend) PutBuilding(ctx context.Context, bld core.Building) error {
	return b.touch(b.Backend.PutBuilding(ctx, bld))
}

func (b *Backend) UpdateBuilding(ctx context.Context, p core.BuildingPatch) (core.Building, error) {
	bld, err := b.Backend.UpdateBuilding(ctx, p)
	return bld, b.touch(err)
}

func (b *Backend) AppendWaste(ctx context.Context, buildingID string, p core.WasteDataPoint) error {
	return b.touch(b.Backend.AppendWaste(ctx, buildingID, p))
}

func (b *Backend) AppendElectricity(ctx context.Context, buildingID string, pts []core.ElectricityDataPoint) error {
	return b.touch(b.Backend.AppendElectricity(ctx, buildingID, pts))
}

func (b *Backend) AppendGas(ctx context.Context, buildingID string, pts []core.NaturalGasDataPoint) error {
	return b.touch(b.Backend.AppendGas(ctx, buildingID, pts))
}
