package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/internal/cache"
	"github.com/buildingco2/tracker/internal/logging"
	"github.com/buildingco2/tracker/internal/scanner"
	"github.com/buildingco2/tracker/internal/worker"
	"github.com/buildingco2/tracker/pkg/core"
)

// DefaultInterval is how often the status file is rewritten.
const DefaultInterval = time.Second

// QueueLener reports dispatcher queue depth and drops.
type QueueLener interface {
	QueueLen(command string) int
	Dropped(command string) int64
}

// Dependencies holds all dependencies for the monitor service. Any of them
// may be nil; the matching section of the status is left empty.
type Dependencies struct {
	LogManager    *logging.SlogManager
	WorkerManager *worker.Manager
	Dispatcher    QueueLener
	Scanner       *scanner.Controller
	Cache         *cache.BuildingCache
	IsInfluxValid func() bool
	StatusFile    string
	Interval      time.Duration
	Clock         clock.Clock
}

// CacheStatus reports cache effectiveness.
type CacheStatus struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// Status is the program status served on /api/status.
type Status struct {
	Time                time.Time        `json:"time"`
	Scanner             *scanner.Status  `json:"scanner,omitempty"`
	Writes              worker.Stats     `json:"writes"`
	WriteQueueLengths   map[string]int   `json:"writeQueueLengths"`
	DroppedWrites       map[string]int64 `json:"droppedWrites"`
	LastWriteDurationMs float32          `json:"lastWriteDurationMs"`
	Cache               CacheStatus      `json:"cache"`
	InfluxValid         bool             `json:"influxValid"`
	LogLevel            string           `json:"logLevel"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current program status
func (s *Service) GetProgramStatus() Status {
	st := Status{
		Time:              s.deps.Clock.Now(),
		WriteQueueLengths: map[string]int{},
		DroppedWrites:     map[string]int64{},
		LogLevel:          s.deps.LogManager.Level().String(),
	}

	if s.deps.Scanner != nil {
		sc := s.deps.Scanner.Status()
		st.Scanner = &sc
	}
	if s.deps.WorkerManager != nil {
		st.Writes = s.deps.WorkerManager.Stats()
		st.LastWriteDurationMs = float32(s.deps.WorkerManager.GetLastDBWriteDuration().Milliseconds())
	}
	if s.deps.Dispatcher != nil {
		for _, cmd := range []string{core.CommandRecordWaste, core.CommandAppendElectricity, core.CommandAppendGas} {
			st.WriteQueueLengths[cmd] = s.deps.Dispatcher.QueueLen(cmd)
			st.DroppedWrites[cmd] = s.deps.Dispatcher.Dropped(cmd)
		}
	}
	if s.deps.IsInfluxValid != nil {
		st.InfluxValid = s.deps.IsInfluxValid()
	}
	if s.deps.Cache != nil {
		st.Cache = CacheStatus{Hits: s.deps.Cache.Hits.Value(), Misses: s.deps.Cache.Misses.Value()}
	}
	return st
}

// writeStatusFile replaces the status file atomically.
func (s *Service) writeStatusFile(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusFile)
}

// Start starts the status monitor goroutine. Without a status file there is
// nothing to do and Start returns immediately.
func (s *Service) Start() error {
	if s.deps.StatusFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.deps.StatusFile), 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	ticker := s.deps.Clock.Ticker(s.deps.Interval)
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer ticker.Stop()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "file", s.deps.StatusFile)

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.writeStatusFile(s.GetProgramStatus()); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
