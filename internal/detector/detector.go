// Package detector wraps the external object-detection service.
package detector

import (
	"context"
	"log/slog"

	"github.com/buildingco2/tracker/pkg/core"
)

// DefaultMinConfidence drops detections the model is unsure about.
const DefaultMinConfidence = 0.2

// Detector runs inference on one frame.
type Detector interface {
	Detect(ctx context.Context, frame core.Frame) ([]core.Detection, error)
}

// Postprocessor transforms a detection list.
type Postprocessor func([]core.Detection) []core.Detection

// NewScoreFilter keeps detections with confidence at or above conf.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []core.Detection) []core.Detection {
		out := make([]core.Detection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewLabelFilter keeps detections whose class is in labels.
// An empty set disables the filter.
func NewLabelFilter(labels map[string]struct{}) Postprocessor {
	return func(in []core.Detection) []core.Detection {
		if len(labels) == 0 {
			return in
		}
		out := make([]core.Detection, 0, len(in))
		for _, d := range in {
			if _, ok := labels[d.Class]; ok {
				out = append(out, d)
			}
		}
		return out
	}
}

// Filter applies the confidence threshold.
func Filter(dets []core.Detection, minConfidence float64) []core.Detection {
	return NewScoreFilter(minConfidence)(dets)
}

// Adapter turns detector failures into empty cycles.
type Adapter struct {
	det    Detector
	post   []Postprocessor
	logger *slog.Logger
}

// NewAdapter wraps det. The score filter at minConfidence always runs
// first, followed by any extra postprocessors.
func NewAdapter(det Detector, minConfidence float64, logger *slog.Logger, extra ...Postprocessor) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	post := append([]Postprocessor{NewScoreFilter(minConfidence)}, extra...)
	return &Adapter{det: det, post: post, logger: logger}
}

// DetectFrame returns the filtered detections for frame. Errors are logged
// and reported as an empty list along with ok=false.
func (a *Adapter) DetectFrame(ctx context.Context, frame core.Frame) ([]core.Detection, bool) {
	dets, err := a.det.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("detection failed", "seq", frame.Seq, "error", err)
		}
		return nil, false
	}
	for _, p := range a.post {
		dets = p(dets)
	}
	return dets, true
}
