package parser

import (
	"encoding/json"
	"fmt"

	"github.com/buildingco2/tracker/pkg/core"
)

// rawPrediction is one entry of the detector's "predictions" array.
type rawPrediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
	Color      string  `json:"color"`
}

type rawInference struct {
	Predictions *[]rawPrediction `json:"predictions"`
	Image       struct {
		Width  json.Number `json:"width"`
		Height json.Number `json:"height"`
	} `json:"image"`
}

// ParseDetections decodes a detector response body. Boxes are center-anchored
// in the pixel space of the submitted frame. Predictions without a class are
// skipped.
func (p *Parser) ParseDetections(body []byte) ([]core.Detection, error) {
	var raw rawInference
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Predictions == nil {
		return nil, fmt.Errorf("%w: missing predictions", ErrMalformedResponse)
	}

	out := make([]core.Detection, 0, len(*raw.Predictions))
	for i, pr := range *raw.Predictions {
		if pr.Class == "" {
			p.logger.Debug("skipping prediction without class", "index", i)
			continue
		}
		if pr.Confidence < 0 || pr.Confidence > 1 {
			p.logger.Debug("skipping prediction with invalid confidence", "class", pr.Class, "confidence", pr.Confidence)
			continue
		}
		out = append(out, core.Detection{
			Class:      pr.Class,
			Confidence: pr.Confidence,
			BBox: core.BoundingBox{
				X:      pr.X,
				Y:      pr.Y,
				Width:  pr.Width,
				Height: pr.Height,
			},
			Color: pr.Color,
		})
	}
	return out, nil
}
