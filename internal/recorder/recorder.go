// Package recorder turns confirmed disposals into waste data points and
// hands them to the dispatcher for persistence.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/internal/catalog"
	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/dispatcher"
	"github.com/buildingco2/tracker/pkg/core"
)

// DefaultEmissionsDivisor converts catalog CO2e values into stored emissions.
const DefaultEmissionsDivisor = 1000.0

var (
	ErrNoBuilding  = errors.New("no building selected for disposals")
	ErrUnknownItem = errors.New("item not in catalog")
)

// Dispatcher is the subset of dispatcher.Dispatcher the recorder needs.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Recorder builds waste data points from disposal events.
type Recorder struct {
	cfg    config.RecorderConfig
	d      Dispatcher
	clk    clock.Clock
	logger *slog.Logger
	lookup func(string) (catalog.Item, bool)
}

// New creates a Recorder. A nil clock uses the wall clock and a nil logger
// uses slog.Default.
func New(cfg config.RecorderConfig, d Dispatcher, clk clock.Clock, logger *slog.Logger) *Recorder {
	if cfg.EmissionsDivisor <= 0 {
		cfg.EmissionsDivisor = DefaultEmissionsDivisor
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{cfg: cfg, d: d, clk: clk, logger: logger, lookup: catalog.Lookup}
}

// ForBuilding returns a copy of r that records against buildingID.
func (r *Recorder) ForBuilding(buildingID string) *Recorder {
	cp := *r
	cp.cfg.BuildingID = buildingID
	return &cp
}

// BuildingID returns the building disposals are recorded against.
func (r *Recorder) BuildingID() string { return r.cfg.BuildingID }

// Point converts ev into the data point that Record would persist.
func (r *Recorder) Point(ev core.DisposalEvent) (core.WasteDataPoint, error) {
	item, ok := r.lookup(ev.ItemType)
	if !ok {
		return core.WasteDataPoint{}, fmt.Errorf("%w: %s", ErrUnknownItem, ev.ItemType)
	}
	return core.WasteDataPoint{
		Timestamp:     r.clk.Now().UTC(),
		ItemType:      ev.ItemType,
		TrashcanID:    r.cfg.TrashcanID,
		WasteCategory: string(ev.Bin),
		Emissions:     item.CO2e / r.cfg.EmissionsDivisor,
	}, nil
}

// Record queues the waste data point for ev. It returns once the point is
// queued; the write itself happens on the dispatcher's worker and its
// failure is only logged there.
func (r *Recorder) Record(ctx context.Context, ev core.DisposalEvent) (core.WasteDataPoint, error) {
	if r.cfg.BuildingID == "" {
		return core.WasteDataPoint{}, ErrNoBuilding
	}
	if err := ctx.Err(); err != nil {
		return core.WasteDataPoint{}, err
	}

	point, err := r.Point(ev)
	if err != nil {
		return core.WasteDataPoint{}, err
	}

	_, err = r.d.Dispatch(dispatcher.Event{
		Command:   core.CommandRecordWaste,
		Payload:   core.WasteRecord{BuildingID: r.cfg.BuildingID, Point: point},
		Timestamp: point.Timestamp,
	})
	if err != nil {
		r.logger.Error("failed to queue waste record",
			"building", r.cfg.BuildingID, "item", ev.ItemType, "error", err)
		return point, fmt.Errorf("failed to queue waste record: %w", err)
	}

	r.logger.Info("disposal recorded",
		"building", r.cfg.BuildingID, "item", point.ItemType, "bin", point.WasteCategory, "emissions", point.Emissions)
	return point, nil
}
