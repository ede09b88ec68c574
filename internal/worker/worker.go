package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/buildingco2/tracker/internal/logging"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/pkg/core"
)

// DefaultWriteTimeout bounds a single backend write.
const DefaultWriteTimeout = 10 * time.Second

// ErrBadPayload is returned when an event carries the wrong payload type.
var ErrBadPayload = fmt.Errorf("unexpected payload type")

// MetricsWriter mirrors persisted points to a time series store.
type MetricsWriter interface {
	WriteWaste(buildingID string, p core.WasteDataPoint) error
	WriteElectricity(buildingID string, pts []core.ElectricityDataPoint) error
	WriteGas(buildingID string, pts []core.NaturalGasDataPoint) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager   *logging.SlogManager
	Metrics      MetricsWriter
	WriteTimeout time.Duration
	// OnWaste is called after a waste point has been persisted.
	OnWaste func(buildingID string, p core.WasteDataPoint)
}

// Stats counts the writes handled by the manager.
type Stats struct {
	Persisted int64 `json:"persisted"`
	Failed    int64 `json:"failed"`
}

// Manager applies queued write events to the storage backend
type Manager struct {
	deps      Dependencies
	backend   storage.Backend
	persisted atomic.Int64
	failed    atomic.Int64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.WriteTimeout <= 0 {
		deps.WriteTimeout = DefaultWriteTimeout
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Stats returns the current write counters.
func (m *Manager) Stats() Stats {
	return Stats{Persisted: m.persisted.Load(), Failed: m.failed.Load()}
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

type unwrapper interface {
	Unwrap() storage.Backend
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	b := m.backend
	for b != nil {
		if p, ok := b.(DBWriteDurationProvider); ok {
			return p.GetLastDBWriteDuration()
		}
		u, ok := b.(unwrapper)
		if !ok {
			break
		}
		b = u.Unwrap()
	}
	return 0
}

func (m *Manager) writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.deps.WriteTimeout)
}
