package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/internal/camera"
	"github.com/buildingco2/tracker/internal/detector"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const interval = 333 * time.Millisecond

// fakeSource hands out numbered frames until failAt, then returns err.
type fakeSource struct {
	mu     sync.Mutex
	seq    uint64
	failAt uint64
	err    error
	skipAt map[uint64]bool
	closed bool
}

func (s *fakeSource) Frame(ctx context.Context) (core.Frame, error) {
	if err := ctx.Err(); err != nil {
		return core.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.failAt > 0 && s.seq >= s.failAt {
		return core.Frame{}, s.err
	}
	if s.skipAt[s.seq] {
		return core.Frame{}, fmt.Errorf("%w: camera busy", camera.ErrFrameSkipped)
	}
	return core.Frame{Width: 640, Height: 480, Seq: s.seq}, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// scriptedDetector returns script[seq-1] for each frame, nothing afterwards.
type scriptedDetector struct {
	script [][]core.Detection
	errAt  map[uint64]bool
}

func (d *scriptedDetector) Detect(ctx context.Context, f core.Frame) ([]core.Detection, error) {
	if d.errAt[f.Seq] {
		return nil, errors.New("inference unavailable")
	}
	i := int(f.Seq) - 1
	if i < len(d.script) {
		return d.script[i], nil
	}
	return nil, nil
}

// captureRecorder records disposal events.
type captureRecorder struct {
	mu     sync.Mutex
	events []core.DisposalEvent
}

func (r *captureRecorder) Record(ctx context.Context, ev core.DisposalEvent) (core.WasteDataPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return core.WasteDataPoint{ItemType: ev.ItemType}, nil
}

func (r *captureRecorder) all() []core.DisposalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.DisposalEvent(nil), r.events...)
}

func bottleAt(x, y float64) []core.Detection {
	return []core.Detection{{
		Class:      "Plastic-Bottle",
		Confidence: 0.9,
		BBox:       core.BoundingBox{X: x, Y: y, Width: 40, Height: 80},
	}}
}

type harness struct {
	session  *Session
	mock     *clock.Mock
	source   *fakeSource
	recorder *captureRecorder
	snaps    <-chan Snapshot
	cancel   context.CancelFunc
	done     chan error
}

func newHarness(t *testing.T, src *fakeSource, det detector.Detector) *harness {
	t.Helper()
	mock := clock.NewMock()
	rec := &captureRecorder{}
	s := New(Dependencies{
		Source:   src,
		Detector: detector.NewAdapter(det, detector.DefaultMinConfidence, nil),
		Recorder: rec,
		Clock:    mock,
		Logger:   slog.New(slog.DiscardHandler),
	}, interval, 0)

	snaps, unsubscribe := s.Subscribe(64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	h := &harness{session: s, mock: mock, source: src, recorder: rec, snaps: snaps, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		<-done
		unsubscribe()
	})
	return h
}

// next waits for the next published snapshot.
func (h *harness) next(t *testing.T) Snapshot {
	t.Helper()
	select {
	case snap := <-h.snaps:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

// runCycles waits for n cycles, advancing the clock between them.
func (h *harness) runCycles(t *testing.T, n int) []Snapshot {
	t.Helper()
	out := make([]Snapshot, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			h.mock.Add(interval)
		}
		out = append(out, h.next(t))
	}
	return out
}

func TestRun_CorrectBinRecordsOnce(t *testing.T) {
	det := &scriptedDetector{script: [][]core.Detection{bottleAt(50, 300), bottleAt(50, 300), bottleAt(50, 300)}}
	h := newHarness(t, &fakeSource{}, det)

	snaps := h.runCycles(t, 8)

	// Confirmed on the third sighting.
	assert.Equal(t, []string{"Plastic-Bottle"}, snaps[2].Active)
	assert.Equal(t, "Plastic-Bottle", snaps[2].Displayed)
	require.NotNil(t, snaps[2].Item)
	assert.Equal(t, core.BinRecycling, snaps[2].Item.Bin)

	// Last seen at 666ms; still tracked at 1665ms, evicted at 1998ms.
	assert.Empty(t, snaps[5].Disposals)
	require.Len(t, snaps[6].Disposals, 1)
	assert.Equal(t, "Plastic-Bottle", snaps[6].Disposals[0].ItemType)
	assert.Equal(t, core.BinRecycling, snaps[6].Disposals[0].Bin)
	assert.Empty(t, snaps[7].Disposals)

	require.Len(t, h.recorder.all(), 1)
	assert.Len(t, snaps[7].Recent, 1)
	assert.Equal(t, uint64(1), h.session.Metrics().Disposals.Load())
	assert.Equal(t, uint64(8), snaps[7].Seq)
}

func TestRun_WrongBinRecordsNothing(t *testing.T) {
	det := &scriptedDetector{script: [][]core.Detection{bottleAt(500, 300), bottleAt(500, 300), bottleAt(500, 300)}}
	h := newHarness(t, &fakeSource{}, det)

	snaps := h.runCycles(t, 8)

	for _, snap := range snaps {
		assert.Empty(t, snap.Disposals)
	}
	assert.Empty(t, h.recorder.all())
	assert.Equal(t, uint64(1), h.session.Metrics().Misses.Load())
}

func TestRun_TwoSightingsNeverConfirm(t *testing.T) {
	det := &scriptedDetector{script: [][]core.Detection{bottleAt(50, 300), bottleAt(50, 300)}}
	h := newHarness(t, &fakeSource{}, det)

	snaps := h.runCycles(t, 8)

	for _, snap := range snaps {
		assert.Empty(t, snap.Active)
	}
	assert.Empty(t, h.recorder.all())
	assert.Equal(t, uint64(0), h.session.Metrics().Misses.Load())
}

func TestRun_InferenceErrorIsAnEmptyCycle(t *testing.T) {
	det := &scriptedDetector{
		script: [][]core.Detection{bottleAt(50, 300), nil, bottleAt(50, 300), bottleAt(50, 300)},
		errAt:  map[uint64]bool{2: true},
	}
	h := newHarness(t, &fakeSource{}, det)

	snaps := h.runCycles(t, 4)

	assert.Equal(t, uint64(1), h.session.Metrics().InferenceErrors.Load())
	// Sightings at cycles 1, 3 and 4 are within the staleness window.
	assert.Equal(t, []string{"Plastic-Bottle"}, snaps[3].Active)
	assert.True(t, snaps[3].Running)
}

func TestRun_CaptureErrorIsTerminal(t *testing.T) {
	src := &fakeSource{failAt: 1, err: errors.New("no camera")}
	mock := clock.NewMock()
	s := New(Dependencies{Source: src, Clock: mock, Logger: slog.New(slog.DiscardHandler)}, interval, 0)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapture)
	assert.Contains(t, err.Error(), "no camera")
	assert.Equal(t, uint64(1), s.Metrics().CaptureErrors.Load())
	assert.False(t, s.Last().Running)
}

func TestRun_SkippedFrameKeepsSessionAlive(t *testing.T) {
	h := newHarness(t, &fakeSource{skipAt: map[uint64]bool{2: true}}, &scriptedDetector{})

	first := h.next(t)
	h.mock.Add(interval)
	require.Eventually(t, func() bool {
		return h.session.Metrics().SkippedFrames.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	h.mock.Add(interval)
	second := h.next(t)

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.True(t, second.Running)
	assert.Equal(t, uint64(0), h.session.Metrics().CaptureErrors.Load())
}

func TestRun_ExhaustedSourceEndsQuietly(t *testing.T) {
	src := &fakeSource{failAt: 1, err: fmt.Errorf("frames exhausted: %w", io.EOF)}
	s := New(Dependencies{Source: src, Clock: clock.NewMock(), Logger: slog.New(slog.DiscardHandler)}, interval, 0)

	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, uint64(0), s.Metrics().CaptureErrors.Load())
}

func TestRun_CancelStopsLoop(t *testing.T) {
	h := newHarness(t, &fakeSource{}, &scriptedDetector{})
	h.runCycles(t, 2)

	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	final := h.next(t)
	assert.False(t, final.Running)
}

func TestRun_DoesNotCycleBeforeInterval(t *testing.T) {
	h := newHarness(t, &fakeSource{}, &scriptedDetector{})
	h.next(t)

	h.mock.Add(interval - time.Millisecond)
	select {
	case <-h.snaps:
		t.Fatal("cycle ran before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	h.mock.Add(time.Millisecond)
	snap := h.next(t)
	assert.Equal(t, uint64(2), snap.Seq)
}

func TestHub_SlowSubscriberKeepsNewest(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe(1)
	defer unsubscribe()

	hub.Publish(Snapshot{Seq: 1})
	hub.Publish(Snapshot{Seq: 2})

	got := <-ch
	assert.Equal(t, uint64(2), got.Seq)
	assert.Equal(t, uint64(2), hub.Last().Seq)
	assert.Equal(t, 1, hub.Subscribers())

	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())
}
