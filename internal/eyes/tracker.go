// Package eyes tracks eye-closure state across ticks: hysteresis on the eye
// aspect ratio, blink classification, continuous-closure detection and the
// PERCLOS ratio over a sliding window.
package eyes

import "time"

// Config holds the closure-tracking parameters. Thresholds may be replaced
// mid-session by calibration.
type Config struct {
	// ClosedThreshold is the EAR below which open eyes become closed.
	ClosedThreshold float64
	// OpenThreshold is the EAR above which closed eyes become open. Must
	// exceed ClosedThreshold so the state does not chatter near one value.
	OpenThreshold float64

	// BlinkMin and BlinkMax bound the closed duration classified as a blink.
	// BlinkMax is exclusive: a closure that reaches it is a continuous-close
	// event, not a blink.
	BlinkMin time.Duration
	BlinkMax time.Duration

	// BlinkFlagHold is how long the transient blink indicator stays raised.
	BlinkFlagHold time.Duration

	// ContinuousClose is the closed duration after which the continuous
	// closure condition raises.
	ContinuousClose time.Duration

	// PerclosWindow is the sliding window for the closed-tick ratio.
	PerclosWindow time.Duration
}

// DefaultConfig returns the stock closure parameters.
func DefaultConfig() Config {
	return Config{
		ClosedThreshold: 0.26,
		OpenThreshold:   0.30,
		BlinkMin:        250 * time.Millisecond,
		BlinkMax:        500 * time.Millisecond,
		BlinkFlagHold:   300 * time.Millisecond,
		ContinuousClose: 500 * time.Millisecond,
		PerclosWindow:   30 * time.Second,
	}
}

// State is the closure summary published after each observation.
type State struct {
	Closed          bool
	BlinkCount      int
	BlinkDetected   bool
	ContinuousClose bool
	Perclos         float64
}

type closureSample struct {
	at     time.Time
	closed bool
}

// Tracker is the eye-closure state machine. Not safe for concurrent use;
// the engine observes from a single tick loop.
type Tracker struct {
	cfg Config

	started    bool
	closed     bool
	lastChange time.Time

	blinkCount int
	blinkAt    time.Time

	window []closureSample
}

// NewTracker returns an open-eyed tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// SetThresholds replaces the hysteresis pair, typically after calibration.
func (t *Tracker) SetThresholds(closed, open float64) {
	t.cfg.ClosedThreshold = closed
	t.cfg.OpenThreshold = open
}

// Thresholds returns the active hysteresis pair.
func (t *Tracker) Thresholds() (closed, open float64) {
	return t.cfg.ClosedThreshold, t.cfg.OpenThreshold
}

// Observe folds one EAR sample into the state machine and returns the
// resulting state. now must be monotonically non-decreasing across calls.
func (t *Tracker) Observe(ear float64, now time.Time) State {
	if !t.started {
		t.started = true
		t.lastChange = now
	}

	if t.closed {
		if ear > t.cfg.OpenThreshold {
			duration := now.Sub(t.lastChange)
			if duration >= t.cfg.BlinkMin && duration < t.cfg.BlinkMax {
				t.blinkCount++
				t.blinkAt = now
			}
			t.closed = false
			t.lastChange = now
		}
	} else {
		if ear < t.cfg.ClosedThreshold {
			t.closed = true
			t.lastChange = now
		}
	}

	t.window = append(t.window, closureSample{at: now, closed: t.closed})
	t.prune(now)

	return State{
		Closed:          t.closed,
		BlinkCount:      t.blinkCount,
		BlinkDetected:   !t.blinkAt.IsZero() && now.Sub(t.blinkAt) < t.cfg.BlinkFlagHold,
		ContinuousClose: t.closed && now.Sub(t.lastChange) >= t.cfg.ContinuousClose,
		Perclos:         t.perclos(),
	}
}

// BlinkVisible reports whether the transient blink indicator is still raised
// at now. Unlike Observe it does not advance the state machine, so ticks
// that carry no EAR sample can still refresh the published flag.
func (t *Tracker) BlinkVisible(now time.Time) bool {
	return !t.blinkAt.IsZero() && now.Sub(t.blinkAt) < t.cfg.BlinkFlagHold
}

func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-t.cfg.PerclosWindow)
	i := 0
	for i < len(t.window) && t.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.window = append(t.window[:0], t.window[i:]...)
	}
}

func (t *Tracker) perclos() float64 {
	total := len(t.window)
	if total == 0 {
		return 0
	}
	closed := 0
	for _, s := range t.window {
		if s.closed {
			closed++
		}
	}
	return float64(closed) / float64(total)
}
