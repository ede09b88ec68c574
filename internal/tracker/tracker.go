// Package tracker turns per-frame detections into disposal events.
//
// The tracking table lives in an explicit State value. Step consumes one
// polling cycle of detections and returns the next State along with what
// happened during the cycle; it never mutates its input.
package tracker

import (
	"sort"
	"time"

	"github.com/buildingco2/tracker/internal/catalog"
	"github.com/buildingco2/tracker/internal/geo"
	"github.com/buildingco2/tracker/pkg/core"
)

// Config holds the debounce thresholds.
type Config struct {
	// ConfirmFrames is the number of sightings before a label is confirmed active.
	ConfirmFrames int
	// StaleAfter evicts a label unseen for longer than this.
	StaleAfter time.Duration
	// DisplayHold keeps the last displayed item on screen after it drops out.
	DisplayHold time.Duration
}

// DefaultConfig returns 3 frames, 1s staleness and 1s display hold.
func DefaultConfig() Config {
	return Config{
		ConfirmFrames: 3,
		StaleAfter:    1000 * time.Millisecond,
		DisplayHold:   1000 * time.Millisecond,
	}
}

// TrackedClass is the accumulated state for one class label.
type TrackedClass struct {
	Label                 string           `json:"label"`
	LastSeen              time.Time        `json:"lastSeen"`
	ConsecutiveFramesSeen int              `json:"consecutiveFramesSeen"`
	LastBoundingBox       core.BoundingBox `json:"lastBoundingBox"`
	ConfirmedActive       bool             `json:"confirmedActive"`
}

// State is the tracking table plus display memory. The zero value is an
// empty table.
type State struct {
	Tracked     map[string]TrackedClass
	Displayed   string
	DisplayedAt time.Time
}

// Len returns the number of labels being tracked.
func (s State) Len() int { return len(s.Tracked) }

// Active returns confirmed labels, most recently seen first.
func (s State) Active() []TrackedClass {
	var out []TrackedClass
	for _, tc := range s.Tracked {
		if tc.ConfirmedActive {
			out = append(out, tc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func (s State) clone() State {
	next := State{
		Tracked:     make(map[string]TrackedClass, len(s.Tracked)),
		Displayed:   s.Displayed,
		DisplayedAt: s.DisplayedAt,
	}
	for k, v := range s.Tracked {
		next.Tracked[k] = v
	}
	return next
}

// MissReason explains why a confirmed item produced no disposal.
type MissReason string

const (
	MissWrongBin    MissReason = "wrong_bin"
	MissUnknownItem MissReason = "unknown_item"
)

// Miss is an evicted confirmed label whose disposal determination failed.
type Miss struct {
	Label  string           `json:"label"`
	Reason MissReason       `json:"reason"`
	Box    core.BoundingBox `json:"box"`
}

// Result is what one Step observed.
type Result struct {
	Disposals []core.DisposalEvent
	Misses    []Miss
	// Confirmed lists labels that crossed the threshold this cycle.
	Confirmed []string
	// Evicted lists every label removed this cycle, confirmed or not.
	Evicted []string
	// Displayed is the label to show, empty for none.
	Displayed string
}

// Tracker applies Config and the bin layout to a State.
type Tracker struct {
	cfg    Config
	layout geo.Layout
	lookup func(string) (catalog.Item, bool)
}

// New returns a Tracker. Zero-valued Config fields fall back to defaults.
func New(cfg Config, layout geo.Layout) *Tracker {
	def := DefaultConfig()
	if cfg.ConfirmFrames <= 0 {
		cfg.ConfirmFrames = def.ConfirmFrames
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.DisplayHold <= 0 {
		cfg.DisplayHold = def.DisplayHold
	}
	return &Tracker{cfg: cfg, layout: layout, lookup: catalog.Lookup}
}

// Config returns the effective thresholds.
func (t *Tracker) Config() Config { return t.cfg }

// Layout returns the bin areas used for disposal determination.
func (t *Tracker) Layout() geo.Layout { return t.layout }

// Step advances the table by one polling cycle observed at now.
// All detections are applied before the staleness sweep.
func (t *Tracker) Step(prev State, now time.Time, dets []core.Detection) (State, Result) {
	s := prev.clone()
	var res Result

	for _, d := range dedupe(dets) {
		tc, ok := s.Tracked[d.Class]
		if !ok {
			tc = TrackedClass{Label: d.Class}
		}
		tc.LastSeen = now
		tc.ConsecutiveFramesSeen++
		tc.LastBoundingBox = d.BBox
		if !tc.ConfirmedActive && tc.ConsecutiveFramesSeen >= t.cfg.ConfirmFrames {
			tc.ConfirmedActive = true
			res.Confirmed = append(res.Confirmed, d.Class)
		}
		s.Tracked[d.Class] = tc
	}

	labels := make([]string, 0, len(s.Tracked))
	for l := range s.Tracked {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	for _, l := range labels {
		tc := s.Tracked[l]
		if now.Sub(tc.LastSeen) <= t.cfg.StaleAfter {
			continue
		}
		delete(s.Tracked, l)
		res.Evicted = append(res.Evicted, l)
		if !tc.ConfirmedActive {
			continue
		}
		ev, miss, ok := t.determine(tc, now)
		if ok {
			res.Disposals = append(res.Disposals, ev)
		} else {
			res.Misses = append(res.Misses, miss)
		}
	}

	if active := s.Active(); len(active) > 0 {
		s.Displayed = active[0].Label
		s.DisplayedAt = now
	} else if s.Displayed != "" && now.Sub(s.DisplayedAt) >= t.cfg.DisplayHold {
		s.Displayed = ""
		s.DisplayedAt = time.Time{}
	}
	res.Displayed = s.Displayed

	return s, res
}

// determine checks whether the last box center sits over the item's bin.
func (t *Tracker) determine(tc TrackedClass, now time.Time) (core.DisposalEvent, Miss, bool) {
	item, ok := t.lookup(tc.Label)
	if !ok {
		return core.DisposalEvent{}, Miss{Label: tc.Label, Reason: MissUnknownItem, Box: tc.LastBoundingBox}, false
	}
	if !t.layout.InBin(item.Bin, tc.LastBoundingBox) {
		return core.DisposalEvent{}, Miss{Label: tc.Label, Reason: MissWrongBin, Box: tc.LastBoundingBox}, false
	}
	return core.DisposalEvent{
		ItemType:  tc.Label,
		Bin:       item.Bin,
		Confirmed: true,
		LastBox:   tc.LastBoundingBox,
		At:        now,
	}, Miss{}, true
}

// dedupe keeps one detection per label, the most confident one, in first-seen order.
func dedupe(dets []core.Detection) []core.Detection {
	idx := make(map[string]int, len(dets))
	out := make([]core.Detection, 0, len(dets))
	for _, d := range dets {
		if i, ok := idx[d.Class]; ok {
			if d.Confidence > out[i].Confidence {
				out[i] = d
			}
			continue
		}
		idx[d.Class] = len(out)
		out = append(out, d)
	}
	return out
}
