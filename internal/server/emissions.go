package server

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/buildingco2/tracker/pkg/core"
)

const dayLayout = "2006-01-02"

// EmissionsFilter narrows the emissions series. Empty bounds are open.
type EmissionsFilter struct {
	Start       string // inclusive day, 2006-01-02
	End         string // inclusive day, 2006-01-02
	Waste       bool
	Electricity bool
	Gas         bool
}

// DailyEmissions is the per-day sum of each source, in tons CO2e.
type DailyEmissions struct {
	Date        string  `json:"date"`
	Waste       float64 `json:"waste"`
	Electricity float64 `json:"electricity"`
	Gas         float64 `json:"gas"`
	Total       float64 `json:"total"`
}

func parseDay(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	if t, err := time.Parse(dayLayout, v); err == nil {
		return t.Format(dayLayout), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return "", fmt.Errorf("invalid date %q", v)
	}
	return t.UTC().Format(dayLayout), nil
}

func parseShow(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s flag %q", key, v)
	}
	return b, nil
}

func parseEmissionsFilter(q url.Values) (EmissionsFilter, error) {
	var f EmissionsFilter
	var err error
	if f.Start, err = parseDay(q.Get("start")); err != nil {
		return f, err
	}
	if f.End, err = parseDay(q.Get("end")); err != nil {
		return f, err
	}
	if f.Start != "" && f.End != "" && f.Start > f.End {
		return f, fmt.Errorf("start %s is after end %s", f.Start, f.End)
	}
	if f.Waste, err = parseShow(q, "waste"); err != nil {
		return f, err
	}
	if f.Electricity, err = parseShow(q, "electricity"); err != nil {
		return f, err
	}
	if f.Gas, err = parseShow(q, "gas"); err != nil {
		return f, err
	}
	return f, nil
}

func (f EmissionsFilter) includes(day string) bool {
	if f.Start != "" && day < f.Start {
		return false
	}
	if f.End != "" && day > f.End {
		return false
	}
	return true
}

// DailySeries buckets a building's emissions by UTC day, oldest first. Days
// with no selected source are left out.
func DailySeries(b core.Building, f EmissionsFilter) []DailyEmissions {
	days := make(map[string]*DailyEmissions)
	bucket := func(ts time.Time) *DailyEmissions {
		day := ts.UTC().Format(dayLayout)
		if !f.includes(day) {
			return nil
		}
		d, ok := days[day]
		if !ok {
			d = &DailyEmissions{Date: day}
			days[day] = d
		}
		return d
	}

	if f.Waste {
		for _, p := range b.WasteGeneration {
			if d := bucket(p.Timestamp); d != nil {
				d.Waste += p.Emissions
			}
		}
	}
	if f.Electricity {
		for _, p := range b.ElectricityUsage {
			if d := bucket(p.Timestamp); d != nil {
				d.Electricity += p.Emissions
			}
		}
	}
	if f.Gas {
		for _, p := range b.NaturalGasUsage {
			if d := bucket(p.Timestamp); d != nil {
				d.Gas += p.Emissions
			}
		}
	}

	out := make([]DailyEmissions, 0, len(days))
	for _, d := range days {
		d.Total = d.Waste + d.Electricity + d.Gas
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
