// Package face turns detector landmark frames into the geometric features
// the fusion pipeline consumes: eye aspect ratio, mouth aspect ratio, head
// pitch and expression state. The detector itself lives outside this module;
// frames arrive as NDJSON lines over one of the framemux sources.
package face

import (
	"encoding/json"
	"fmt"
	"time"
)

// Landmark index layout of the 68-point detector output. The indices are
// semantically fixed: consumers address eyes, mouth and nose by position.
const (
	// LandmarkCount is the minimum number of points a usable frame carries.
	LandmarkCount = 68

	leftEyeStart  = 36 // indices 36-41: left eye contour
	rightEyeStart = 42 // indices 42-47: right eye contour
	mouthStart    = 60 // indices 60-67: inner mouth contour
	noseTipIndex  = 30
)

// Point is a 2-D landmark position in image coordinates (y grows downward).
type Point struct {
	X float64
	Y float64
}

// Frame is one detector output: an ordered landmark set plus a per-category
// expression confidence map. Frames are immutable once received and are
// consumed by a single engine tick.
type Frame struct {
	Points      []Point
	Expressions map[string]float64
	Received    time.Time
}

// frameWire mirrors the NDJSON layout produced by the detector:
// {"points":[[x,y],...],"expressions":{"neutral":0.9,...}}
type frameWire struct {
	Points      [][]float64        `json:"points"`
	Expressions map[string]float64 `json:"expressions"`
}

// ParseFrame decodes one NDJSON line into a Frame stamped with the given
// arrival time. Points with fewer than two coordinates are an error; extra
// coordinates are ignored.
func ParseFrame(data []byte, received time.Time) (*Frame, error) {
	var wire frameWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse landmark frame: %w", err)
	}

	points := make([]Point, len(wire.Points))
	for i, p := range wire.Points {
		if len(p) < 2 {
			return nil, fmt.Errorf("landmark %d has %d coordinates, want 2", i, len(p))
		}
		points[i] = Point{X: p[0], Y: p[1]}
	}

	return &Frame{
		Points:      points,
		Expressions: wire.Expressions,
		Received:    received,
	}, nil
}

// HasFullLandmarks reports whether the frame carries enough points for
// feature extraction. Frames without a full landmark set are skipped by the
// caller rather than rejected with an error.
func (f *Frame) HasFullLandmarks() bool {
	return len(f.Points) >= LandmarkCount
}
