// Package scanner runs trashcan mode: one polling loop per session that
// captures a frame, detects items, advances the tracker and records disposals.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/internal/camera"
	"github.com/buildingco2/tracker/internal/catalog"
	"github.com/buildingco2/tracker/internal/detector"
	"github.com/buildingco2/tracker/internal/geo"
	"github.com/buildingco2/tracker/internal/queue"
	"github.com/buildingco2/tracker/internal/tracker"
	"github.com/buildingco2/tracker/pkg/core"
)

// Defaults for a session.
const (
	DefaultInterval    = 333 * time.Millisecond
	DefaultRecentLimit = 10
)

// ErrCapture wraps the camera error that ended a session.
var ErrCapture = errors.New("capture failed")

// Recorder persists a disposal without waiting for the write.
type Recorder interface {
	Record(ctx context.Context, ev core.DisposalEvent) (core.WasteDataPoint, error)
}

// Snapshot is what the presentation feed renders after each cycle.
type Snapshot struct {
	Seq       uint64               `json:"seq"`
	At        time.Time            `json:"at"`
	Running   bool                 `json:"running"`
	Displayed string               `json:"displayed"`
	Item      *catalog.Item        `json:"item,omitempty"`
	Active    []string             `json:"active"`
	Recent    []core.DisposalEvent `json:"recent"`
	// Disposals are the events produced by this cycle only.
	Disposals []core.DisposalEvent `json:"disposals,omitempty"`
}

// Dependencies wires a session.
type Dependencies struct {
	Source   camera.Source
	Detector *detector.Adapter
	Tracker  *tracker.Tracker
	Recorder Recorder
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  *Metrics
	Hub      *Hub
}

// Session owns one polling loop and its tracking state.
type Session struct {
	deps     Dependencies
	interval time.Duration
	recent   *queue.Ring[core.DisposalEvent]
}

// New creates a session. interval and recentLimit fall back to defaults when
// not positive.
func New(deps Dependencies, interval time.Duration, recentLimit int) *Session {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.New(tracker.DefaultConfig(), defaultLayout())
	}
	return &Session{
		deps:     deps,
		interval: interval,
		recent:   queue.NewRing[core.DisposalEvent](recentLimit),
	}
}

// Metrics returns the session counters.
func (s *Session) Metrics() *Metrics { return s.deps.Metrics }

// Subscribe registers for snapshots from this session's hub.
func (s *Session) Subscribe(buffer int) (<-chan Snapshot, func()) {
	return s.deps.Hub.Subscribe(buffer)
}

// Last returns the most recent snapshot.
func (s *Session) Last() Snapshot {
	return s.deps.Hub.Last()
}

// Run polls until ctx is cancelled or the camera fails. Cancellation returns
// nil; a camera failure returns an error wrapping ErrCapture. An exhausted
// frame directory also ends the session without error. A skipped frame
// only costs its cycle.
func (s *Session) Run(ctx context.Context) error {
	log := s.deps.Logger
	log.Info("scanner session started", "interval", s.interval)

	var state tracker.State
	var seq uint64
	var timer *clock.Timer

	defer func() {
		if timer != nil {
			timer.Stop()
		}
		final := s.Last()
		final.Running = false
		final.Disposals = nil
		s.deps.Hub.Publish(final)
		log.Info("scanner session stopped", "cycles", seq)
	}()

	for {
		next, snap, err := s.cycle(ctx, state)
		switch {
		case err == nil:
			state = next
			seq++
			snap.Seq = seq
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, camera.ErrFrameSkipped):
			log.Warn("camera frame skipped", "error", err)
		case errors.Is(err, io.EOF):
			log.Info("frame source exhausted")
			return nil
		default:
			s.deps.Metrics.CaptureErrors.Add(1)
			log.Error("camera capture failed, ending session", "error", err)
			return fmt.Errorf("%w: %w", ErrCapture, err)
		}

		// Re-arm before publishing so the period starts after the work is done.
		if timer == nil {
			timer = s.deps.Clock.Timer(s.interval)
		} else {
			timer.Reset(s.interval)
		}
		if err == nil {
			s.deps.Hub.Publish(snap)
		} else {
			s.deps.Metrics.SkippedFrames.Add(1)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// cycle runs capture, detect, step and record once. Only capture errors are
// returned; inference failures count as a cycle with no detections.
func (s *Session) cycle(ctx context.Context, state tracker.State) (tracker.State, Snapshot, error) {
	m := s.deps.Metrics

	frame, err := s.deps.Source.Frame(ctx)
	if err != nil {
		return state, Snapshot{}, err
	}

	var dets []core.Detection
	if s.deps.Detector != nil {
		var ok bool
		dets, ok = s.deps.Detector.DetectFrame(ctx, frame)
		if !ok {
			m.InferenceErrors.Add(1)
		}
	}
	m.Detections.Add(uint64(len(dets)))

	now := s.deps.Clock.Now()
	next, res := s.deps.Tracker.Step(state, now, dets)

	for _, ev := range res.Disposals {
		m.Disposals.Add(1)
		s.recent.Push(ev)
		if s.deps.Recorder == nil {
			continue
		}
		if _, err := s.deps.Recorder.Record(ctx, ev); err != nil {
			m.RecordErrors.Add(1)
			s.deps.Logger.Warn("disposal not recorded", "item", ev.ItemType, "error", err)
		}
	}
	for _, miss := range res.Misses {
		m.Misses.Add(1)
		s.deps.Logger.Debug("confirmed item left without disposal", "item", miss.Label, "reason", miss.Reason)
	}
	m.Cycles.Add(1)
	m.Tracked.Store(int64(next.Len()))

	return next, s.snapshot(now, next, res), nil
}

func (s *Session) snapshot(now time.Time, state tracker.State, res tracker.Result) Snapshot {
	snap := Snapshot{
		At:        now,
		Running:   true,
		Displayed: res.Displayed,
		Active:    []string{},
		Recent:    s.recent.Newest(),
		Disposals: res.Disposals,
	}
	if item, ok := catalog.Lookup(res.Displayed); ok {
		snap.Item = &item
	}
	for _, tc := range state.Active() {
		snap.Active = append(snap.Active, tc.Label)
	}
	return snap
}

func defaultLayout() geo.Layout {
	return geo.NewLayout(camera.DefaultWidth, camera.DefaultHeight)
}
