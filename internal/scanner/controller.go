package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRunning is returned by Start while a session is active.
var ErrRunning = errors.New("scanner session already running")

// Factory builds the per-session dependencies for a building. It is called on
// every Start so each session gets a fresh camera source.
type Factory func(buildingID string) (Dependencies, error)

// Status describes the controller for the status endpoint.
type Status struct {
	Running    bool            `json:"running"`
	BuildingID string          `json:"buildingId,omitempty"`
	StartedAt  time.Time       `json:"startedAt,omitempty"`
	LastError  string          `json:"lastError,omitempty"`
	Metrics    MetricsSnapshot `json:"metrics"`
	Last       Snapshot        `json:"last"`
}

// Controller starts and stops trashcan mode. At most one session runs at a
// time; the hub and metrics are shared by all sessions.
type Controller struct {
	factory     Factory
	interval    time.Duration
	recentLimit int
	hub         *Hub
	metrics     *Metrics
	logger      *slog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	buildingID string
	startedAt  time.Time
	lastErr    error
}

// NewController creates a controller. A nil logger uses slog.Default.
func NewController(factory Factory, interval time.Duration, recentLimit int, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		factory:     factory,
		interval:    interval,
		recentLimit: recentLimit,
		hub:         NewHub(),
		metrics:     NewMetrics(),
		logger:      logger,
	}
}

// Hub returns the shared snapshot hub.
func (c *Controller) Hub() *Hub { return c.hub }

// Metrics returns the shared counters.
func (c *Controller) Metrics() *Metrics { return c.metrics }

// Start launches a session for buildingID. The session runs until Stop, the
// parent context ends or the camera fails.
func (c *Controller) Start(parent context.Context, buildingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return ErrRunning
	}

	deps, err := c.factory(buildingID)
	if err != nil {
		c.lastErr = err
		return fmt.Errorf("failed to prepare session: %w", err)
	}
	deps.Hub = c.hub
	deps.Metrics = c.metrics
	if deps.Logger == nil {
		deps.Logger = c.logger
	}
	deps.Logger = deps.Logger.With("building", buildingID)
	session := New(deps, c.interval, c.recentLimit)

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.buildingID = buildingID
	c.startedAt = time.Now()
	c.lastErr = nil

	go func() {
		defer close(done)
		err := session.Run(ctx)
		if cerr := deps.Source.Close(); cerr != nil {
			c.logger.Warn("failed to close camera", "error", cerr)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.lastErr = err
		if c.done == done {
			c.cancel()
			c.cancel = nil
			c.done = nil
		}
	}()

	return nil
}

// Stop cancels the running session and waits for it to exit. It is a no-op
// when nothing is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a session is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// Wait blocks until the current session exits and returns its error.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Status returns the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Running: c.done != nil,
		Metrics: c.metrics.Snapshot(),
		Last:    c.hub.Last(),
	}
	if st.Running {
		st.BuildingID = c.buildingID
		st.StartedAt = c.startedAt
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
