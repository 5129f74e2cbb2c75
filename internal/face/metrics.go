package face

import (
	"math"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/units"
)

// HeadPose carries the pitch estimate for one frame. Velocity is smoothed
// across frames; the extractor owns the state for that.
type HeadPose struct {
	PitchDeg               float64
	PitchVelocityDegPerSec float64
}

// Metrics is the geometric feature set derived from one landmark frame.
type Metrics struct {
	EAR  float64
	MAR  float64
	Head HeadPose
}

// ExtractorConfig holds the fixed geometry constants.
type ExtractorConfig struct {
	// MARDivisor normalizes the raw mouth ratio onto [0, 1]. A fully open
	// mouth sits near 0.55 on the raw scale.
	MARDivisor float64

	// NeutralNoseDrop is the nose-below-eye-midpoint distance of a frontal
	// face, as a fraction of the inter-eye-center span. Pitch is the angular
	// deviation of the observed drop from this baseline: positive when the
	// head tips forward, negative when the chin rises.
	NeutralNoseDrop float64

	// VelocitySmoothing is the EMA weight kept from the previous velocity.
	VelocitySmoothing float64
}

// DefaultExtractorConfig returns the production geometry constants.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MARDivisor:        0.55,
		NeutralNoseDrop:   1.1,
		VelocitySmoothing: 0.5,
	}
}

// Extractor derives Metrics from landmark frames. It keeps the previous
// pitch sample so velocity can be computed as a smoothed first difference.
// Not safe for concurrent use; the engine owns one per session.
type Extractor struct {
	cfg ExtractorConfig

	prevTime     time.Time
	prevPitch    float64
	prevVelocity float64
}

// NewExtractor returns an Extractor with zeroed velocity state.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Reset clears the cross-frame velocity state. Used when the frame source
// restarts or a replay rewinds.
func (e *Extractor) Reset() {
	e.prevTime = time.Time{}
	e.prevPitch = 0
	e.prevVelocity = 0
}

// Extract computes the metrics for one frame. The second return is false if
// the frame lacks a full landmark set; the caller skips the tick in that
// case and no state is mutated.
func (e *Extractor) Extract(frame *Frame, now time.Time) (Metrics, bool) {
	if frame == nil || !frame.HasFullLandmarks() {
		return Metrics{}, false
	}

	pts := frame.Points
	left := eyeAspectRatio(pts[leftEyeStart : leftEyeStart+6])
	right := eyeAspectRatio(pts[rightEyeStart : rightEyeStart+6])
	ear := (left + right) / 2

	mar := mouthAspectRatio(pts[mouthStart:mouthStart+8], e.cfg.MARDivisor)

	pitch := e.pitchDeg(pts)
	velocity := e.prevVelocity
	if !e.prevTime.IsZero() {
		elapsed := now.Sub(e.prevTime).Seconds()
		if elapsed > 0 {
			raw := (pitch - e.prevPitch) / elapsed
			velocity = e.prevVelocity*e.cfg.VelocitySmoothing + raw*(1-e.cfg.VelocitySmoothing)
		}
	}
	e.prevTime = now
	e.prevPitch = pitch
	e.prevVelocity = velocity

	return Metrics{
		EAR: ear,
		MAR: mar,
		Head: HeadPose{
			PitchDeg:               pitch,
			PitchVelocityDegPerSec: velocity,
		},
	}, true
}

// eyeAspectRatio computes the EAR of one eye contour (6 points): the average
// of the two vertical lid distances over the horizontal corner distance.
// Lower values mean a more closed eye.
func eyeAspectRatio(eye []Point) float64 {
	v1 := distance(eye[1], eye[5])
	v2 := distance(eye[2], eye[4])
	h := distance(eye[0], eye[3])
	if h < 1e-9 {
		return 0
	}
	return (v1 + v2) / 2 / h
}

// mouthAspectRatio computes the normalized MAR of the inner mouth contour
// (8 points): three vertical lip distances over twice the corner distance,
// scaled by the divisor and clamped to [0, 1].
func mouthAspectRatio(mouth []Point, divisor float64) float64 {
	v1 := distance(mouth[1], mouth[7])
	v2 := distance(mouth[2], mouth[6])
	v3 := distance(mouth[3], mouth[5])
	h := distance(mouth[0], mouth[4])
	if h < 1e-9 || divisor <= 0 {
		return 0
	}
	raw := (v1 + v2 + v3) / (2 * h)
	return units.Clamp01(raw / divisor)
}

// Pose label boundaries. Pitch is positive when the head tips forward.
const (
	poseDownDeg = 10.0
	poseUpDeg   = -10.0
)

// PoseLabel names the head attitude for telemetry: "nodding" while the
// transient head-drop condition holds, otherwise "down", "up" or "level"
// by pitch.
func PoseLabel(pitchDeg float64, nodding bool) string {
	switch {
	case nodding:
		return "nodding"
	case pitchDeg > poseDownDeg:
		return "down"
	case pitchDeg < poseUpDeg:
		return "up"
	default:
		return "level"
	}
}

// pitchDeg estimates head pitch from the vector between the eye-center
// midpoint and the nose tip. With a single 2-D view the usable signal is
// foreshortening: the vertical nose drop, normalized by the inter-eye span,
// shrinks as the head tips forward and grows as the chin rises.
func (e *Extractor) pitchDeg(pts []Point) float64 {
	cl := centroid(pts[leftEyeStart : leftEyeStart+6])
	cr := centroid(pts[rightEyeStart : rightEyeStart+6])
	span := distance(cl, cr)
	if span < 1e-9 {
		return e.prevPitch
	}

	mid := Point{X: (cl.X + cr.X) / 2, Y: (cl.Y + cr.Y) / 2}
	nose := pts[noseTipIndex]
	drop := (nose.Y - mid.Y) / span

	return units.Degrees(math.Atan2(e.cfg.NeutralNoseDrop-drop, e.cfg.NeutralNoseDrop))
}

func distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func centroid(pts []Point) Point {
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return Point{X: c.X / n, Y: c.Y / n}
}
