// Package gormstorage implements storage.Backend on top of GORM. Each
// building is one row with JSON history columns; every mutation is a
// read-modify-write inside a transaction.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildingco2/tracker/internal/database"
	"github.com/buildingco2/tracker/internal/logging"
	"github.com/buildingco2/tracker/internal/model"
	"github.com/buildingco2/tracker/internal/model/convert"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/rs/zerolog"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	Logger     zerolog.Logger
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps Dependencies

	// serializes read-modify-write cycles
	writeMu           sync.Mutex
	lastWriteDuration atomic.Int64
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("no database connection")
	}
	if err := database.Migrate(b.deps.DB, b.deps.Logger); err != nil {
		b.logf("ERROR", "Failed to migrate schema: %v", err)
		return err
	}
	return nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetLastDBWriteDuration returns how long the last mutation took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWriteDuration.Load())
}

func (b *Backend) logf(level, format string, args ...any) {
	if b.deps.LogManager != nil {
		b.deps.LogManager.WriteLog("gormstorage", fmt.Sprintf(format, args...), level)
	}
}

// ListBuildings returns every building ordered by ID.
func (b *Backend) ListBuildings(ctx context.Context) ([]core.Building, error) {
	var rows []model.Building
	if err := b.deps.DB.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list buildings: %w", err)
	}
	out := make([]core.Building, 0, len(rows))
	for _, row := range rows {
		bld, err := convert.BuildingToCore(row)
		if err != nil {
			return nil, fmt.Errorf("building %s: %w", row.ID, err)
		}
		out = append(out, bld)
	}
	return out, nil
}

// GetBuilding returns one building.
func (b *Backend) GetBuilding(ctx context.Context, id string) (core.Building, error) {
	row, err := load(b.deps.DB.WithContext(ctx), id)
	if err != nil {
		return core.Building{}, err
	}
	return convert.BuildingToCore(row)
}

// PutBuilding replaces a whole document.
func (b *Backend) PutBuilding(ctx context.Context, bld core.Building) error {
	if bld.ID == "" {
		return fmt.Errorf("building id is required")
	}
	return b.mutate(ctx, bld.ID, true, func(*core.Building) (core.Building, error) {
		return bld, nil
	})
}

// UpdateBuilding applies a patch.
func (b *Backend) UpdateBuilding(ctx context.Context, p core.BuildingPatch) (core.Building, error) {
	var result core.Building
	err := b.mutate(ctx, p.ID, true, func(existing *core.Building) (core.Building, error) {
		updated, err := storage.ApplyPatch(existing, p)
		result = updated
		return updated, err
	})
	if err != nil {
		return core.Building{}, err
	}
	return result, nil
}

// AppendWaste adds a disposal record.
func (b *Backend) AppendWaste(ctx context.Context, buildingID string, p core.WasteDataPoint) error {
	return b.mutate(ctx, buildingID, false, func(existing *core.Building) (core.Building, error) {
		existing.WasteGeneration = append(existing.WasteGeneration, p)
		return *existing, nil
	})
}

// AppendElectricity adds electricity readings.
func (b *Backend) AppendElectricity(ctx context.Context, buildingID string, pts []core.ElectricityDataPoint) error {
	return b.mutate(ctx, buildingID, false, func(existing *core.Building) (core.Building, error) {
		existing.ElectricityUsage = append(existing.ElectricityUsage, pts...)
		return *existing, nil
	})
}

// AppendGas adds natural gas readings.
func (b *Backend) AppendGas(ctx context.Context, buildingID string, pts []core.NaturalGasDataPoint) error {
	return b.mutate(ctx, buildingID, false, func(existing *core.Building) (core.Building, error) {
		existing.NaturalGasUsage = append(existing.NaturalGasUsage, pts...)
		return *existing, nil
	})
}

// mutate loads id, applies fn and saves the result in one transaction.
// fn receives nil for a missing row only when allowMissing is set.
func (b *Backend) mutate(ctx context.Context, id string, allowMissing bool, fn func(*core.Building) (core.Building, error)) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing *core.Building
		var createdAt time.Time

		row, err := load(tx, id)
		switch {
		case err == nil:
			bld, err := convert.BuildingToCore(row)
			if err != nil {
				return err
			}
			existing = &bld
			createdAt = row.CreatedAt
		case errors.Is(err, storage.ErrNotFound) && allowMissing:
		default:
			return err
		}

		updated, err := fn(existing)
		if err != nil {
			return err
		}

		next, err := convert.CoreToBuilding(updated)
		if err != nil {
			return err
		}
		next.CreatedAt = createdAt
		if existing == nil {
			return tx.Create(&next).Error
		}
		return tx.Save(&next).Error
	})
	b.lastWriteDuration.Store(int64(time.Since(start)))

	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, core.ErrIndexOutOfRange) {
		b.logf("ERROR", "Failed to write building %s: %v", id, err)
	}
	return err
}

func load(db *gorm.DB, id string) (model.Building, error) {
	var row model.Building
	err := db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Building{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return model.Building{}, fmt.Errorf("failed to load building %s: %w", id, err)
	}
	return row, nil
}
