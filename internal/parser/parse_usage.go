package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UsagePoint is one extracted billing period.
type UsagePoint struct {
	Date  time.Time `json:"date"`
	Usage float64   `json:"usage"`
}

var usageDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"01/02/2006",
}

// ParseUsageDate parses the date formats the extraction model produces.
func ParseUsageDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range usageDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// TrimToObject cuts raw down to the span between the first '{' and the last
// '}'. Models often wrap JSON in prose or code fences.
func TrimToObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// ParseUsageResponse extracts {"dataPoints":[{"date","usage"}]} from model
// output. Any deviation is reported as ErrMalformedResponse.
func (p *Parser) ParseUsageResponse(raw string) ([]UsagePoint, error) {
	obj, ok := TrimToObject(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}

	var doc struct {
		DataPoints *[]struct {
			Date  string          `json:"date"`
			Usage json.RawMessage `json:"usage"`
		} `json:"dataPoints"`
	}
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc.DataPoints == nil {
		return nil, fmt.Errorf("%w: missing dataPoints", ErrMalformedResponse)
	}

	points := make([]UsagePoint, 0, len(*doc.DataPoints))
	for i, dp := range *doc.DataPoints {
		date, err := ParseUsageDate(dp.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: dataPoints[%d]: %v", ErrMalformedResponse, i, err)
		}
		usage, err := parseNumber(dp.Usage)
		if err != nil {
			return nil, fmt.Errorf("%w: dataPoints[%d]: %v", ErrMalformedResponse, i, err)
		}
		if usage < 0 {
			return nil, fmt.Errorf("%w: dataPoints[%d]: negative usage", ErrMalformedResponse, i)
		}
		points = append(points, UsagePoint{Date: date, Usage: usage})
	}

	p.logger.Debug("parsed usage response", "points", len(points))
	return points, nil
}
