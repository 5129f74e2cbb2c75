// Package calibrate derives personalized eye-closure thresholds from a
// timed baseline collection of EAR samples.
package calibrate

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Config holds the calibration timing and threshold derivation constants.
type Config struct {
	// Duration is how long a session collects samples before auto-stopping.
	Duration time.Duration

	// MinClosed floors the derived closed threshold.
	MinClosed float64
	// ClosedFactor and OpenFactor scale the sample mean into thresholds.
	ClosedFactor float64
	OpenFactor   float64
	// OpenMargin is the minimum gap the open threshold keeps above the
	// closed one so hysteresis survives a low baseline.
	OpenMargin float64
}

// DefaultConfig returns the stock calibration parameters.
func DefaultConfig() Config {
	return Config{
		Duration:     10 * time.Second,
		MinClosed:    0.12,
		ClosedFactor: 0.6,
		OpenFactor:   0.75,
		OpenMargin:   0.04,
	}
}

// Result is the outcome of a finished session. Applied is false when no
// samples were collected; the caller preserves its prior thresholds then.
type Result struct {
	ClosedThreshold float64
	OpenThreshold   float64
	Applied         bool
	SampleCount     int
}

// Session accumulates EAR samples while active. Calibration never fails:
// stopping an empty session just reports completion without thresholds.
// Not safe for concurrent use.
type Session struct {
	cfg Config

	active    bool
	startedAt time.Time
	samples   []float64
	progress  float64
}

// NewSession returns an inactive session.
func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// Start begins a new collection, discarding any previous samples.
func (s *Session) Start(now time.Time) {
	s.active = true
	s.startedAt = now
	s.samples = s.samples[:0]
	s.progress = 0
}

// Active reports whether a session is collecting.
func (s *Session) Active() bool {
	return s.active
}

// Progress returns the completion fraction in [0, 1]. A stopped session
// reports 1 even when it collected nothing.
func (s *Session) Progress() float64 {
	return s.progress
}

// Observe appends one EAR sample to an active session. When the session
// duration has elapsed it auto-stops and returns its result with true;
// otherwise the returned Result is zero. Observing an inactive session is
// a no-op.
func (s *Session) Observe(ear float64, now time.Time) (Result, bool) {
	if !s.active {
		return Result{}, false
	}

	s.samples = append(s.samples, ear)

	elapsed := now.Sub(s.startedAt)
	progress := float64(elapsed) / float64(s.cfg.Duration)
	if progress > 1 {
		progress = 1
	}
	s.progress = progress

	if elapsed >= s.cfg.Duration {
		return s.finish(), true
	}
	return Result{}, false
}

// Stop ends an active session early and derives thresholds from whatever
// was collected. The second return is false if no session was active.
func (s *Session) Stop() (Result, bool) {
	if !s.active {
		return Result{}, false
	}
	return s.finish(), true
}

func (s *Session) finish() Result {
	s.active = false
	s.progress = 1

	if len(s.samples) == 0 {
		return Result{}
	}

	mean := stat.Mean(s.samples, nil)
	closed := math.Max(s.cfg.MinClosed, mean*s.cfg.ClosedFactor)
	open := math.Max(closed+s.cfg.OpenMargin, mean*s.cfg.OpenFactor)

	return Result{
		ClosedThreshold: closed,
		OpenThreshold:   open,
		Applied:         true,
		SampleCount:     len(s.samples),
	}
}
