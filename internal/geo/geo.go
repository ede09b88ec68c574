// Package geo maps detector boxes onto the fixed screen regions that sit
// above each physical bin.
package geo

import (
	"fmt"

	"github.com/buildingco2/tracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Region fractions, left-to-right under the camera. All three share the
// bottom half of the frame; neighbouring regions overlap.
var regionFractions = map[core.Bin][2]float64{
	core.BinRecycling: {0.0, 0.4},
	core.BinCompost:   {0.3, 0.7},
	core.BinLandfill:  {0.6, 1.0},
}

// BinArea is a screen-space rectangle in frame pixels.
type BinArea struct {
	Bin  core.Bin `json:"bin"`
	MinX float64  `json:"minX"`
	MinY float64  `json:"minY"`
	MaxX float64  `json:"maxX"`
	MaxY float64  `json:"maxY"`

	env geom.Envelope
}

// Contains reports whether (x, y) lies in the area, edges included.
func (a BinArea) Contains(x, y float64) bool {
	return a.env.Contains(geom.XY{X: x, Y: y})
}

// Layout is the set of bin areas for one frame size.
type Layout struct {
	Width  int
	Height int
	areas  map[core.Bin]BinArea
}

// NewLayout builds the bin areas for a width x height frame.
func NewLayout(width, height int) Layout {
	w, h := float64(width), float64(height)
	l := Layout{Width: width, Height: height, areas: make(map[core.Bin]BinArea, len(regionFractions))}
	for bin, f := range regionFractions {
		a := BinArea{Bin: bin, MinX: f[0] * w, MinY: h / 2, MaxX: f[1] * w, MaxY: h}
		env, err := geom.NewEnvelope([]geom.XY{{X: a.MinX, Y: a.MinY}, {X: a.MaxX, Y: a.MaxY}})
		if err != nil {
			// Corners derive from integer frame sizes and are always finite.
			panic(fmt.Sprintf("geo: bin %s envelope: %v", bin, err))
		}
		a.env = env
		l.areas[bin] = a
	}
	return l
}

// Area returns the region for bin.
func (l Layout) Area(bin core.Bin) (BinArea, bool) {
	a, ok := l.areas[bin]
	return a, ok
}

// Areas returns all regions in left-to-right order.
func (l Layout) Areas() []BinArea {
	out := make([]BinArea, 0, len(core.Bins))
	for _, b := range core.Bins {
		out = append(out, l.areas[b])
	}
	return out
}

// InBin reports whether the center of box falls inside the region for bin.
// Unknown bins never match.
func (l Layout) InBin(bin core.Bin, box core.BoundingBox) bool {
	a, ok := l.areas[bin]
	if !ok {
		return false
	}
	x, y := box.Center()
	return a.Contains(x, y)
}

// BinsAt returns every bin whose region holds the point.
func (l Layout) BinsAt(x, y float64) []core.Bin {
	var out []core.Bin
	for _, b := range core.Bins {
		if l.areas[b].Contains(x, y) {
			out = append(out, b)
		}
	}
	return out
}
