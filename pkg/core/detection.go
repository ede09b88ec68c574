// pkg/core/detection.go
package core

import "time"

// BoundingBox is a detector box in frame pixels. X and Y are the box center.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box.
func (b BoundingBox) Center() (float64, float64) {
	return b.X, b.Y
}

// Detection is one object localized in one frame. Not persisted.
type Detection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Color      string      `json:"color,omitempty"`
}

// Frame is a single encoded camera frame.
type Frame struct {
	Data      []byte // JPEG
	Width     int
	Height    int
	Timestamp time.Time
	Seq       uint64
}

// DisposalEvent is the inferred moment an item went into its bin.
type DisposalEvent struct {
	ItemType  string      `json:"itemType"`
	Bin       Bin         `json:"bin"`
	Confirmed bool        `json:"confirmed"`
	LastBox   BoundingBox `json:"lastBox"`
	At        time.Time   `json:"at"`
}
