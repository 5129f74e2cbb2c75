// Package alerts turns continuous pipeline state into one-shot alert
// events: four independent cause channels, each edge-triggered with its own
// cooldown.
package alerts

import (
	"time"

	"github.com/kestrel-sense/driverwatch/internal/units"
)

// Cause identifies which channel fired an alert.
type Cause string

const (
	CauseDrowsiness Cause = "drowsiness"
	CauseSound      Cause = "sound"
	CauseYawn       Cause = "yawn"
	CauseEyes       Cause = "eyes"
)

// Alert is one fired notification.
type Alert struct {
	Cause Cause
	At    time.Time
	// Score is the drowsiness score at firing time, carried on every cause
	// for context.
	Score float64
}

// Config holds the per-channel thresholds and cooldowns. Score and eye
// thresholds are mode-dependent: demo mode trips earlier and re-arms faster
// for bench demonstrations.
type Config struct {
	ScoreThresholdNormal float64
	ScoreThresholdDemo   float64
	ScoreCooldownNormal  time.Duration
	ScoreCooldownDemo    time.Duration

	SoundCooldown time.Duration

	YawnThreshold float64
	YawnCooldown  time.Duration

	EyesPerclosNormal float64
	EyesPerclosDemo   float64
	EyesEARFloor      float64
	EyesCooldown      time.Duration
}

// DefaultConfig returns the stock alert parameters.
func DefaultConfig() Config {
	return Config{
		ScoreThresholdNormal: 0.8,
		ScoreThresholdDemo:   0.6,
		ScoreCooldownNormal:  10 * time.Second,
		ScoreCooldownDemo:    3 * time.Second,
		SoundCooldown:        15 * time.Second,
		YawnThreshold:        0.7,
		YawnCooldown:         10 * time.Second,
		EyesPerclosNormal:    0.25,
		EyesPerclosDemo:      0.18,
		EyesEARFloor:         0.18,
		EyesCooldown:         8 * time.Second,
	}
}

// Inputs are the per-tick signals the detector watches.
type Inputs struct {
	Score           float64
	SoundPeriodic   bool
	MAR             float64
	ContinuousClose bool
	Perclos         float64
	EAR             float64
}

// channel is the edge + cooldown state of one cause.
type channel struct {
	active    bool
	lastFired time.Time
}

// fire reports whether a fresh rising edge escapes the cooldown. The edge
// state advances regardless, so a condition that re-triggers inside the
// cooldown does not fire again when the cooldown lapses.
func (c *channel) fire(condition bool, now time.Time, cooldown time.Duration) bool {
	fired := false
	if condition && !c.active {
		if c.lastFired.IsZero() || now.Sub(c.lastFired) >= cooldown {
			c.lastFired = now
			fired = true
		}
	}
	c.active = condition
	return fired
}

// Detector runs the four cause channels. Not safe for concurrent use.
type Detector struct {
	cfg  Config
	mode string

	score channel
	sound channel
	yawn  channel
	eyes  channel
}

// NewDetector returns a detector in the given mode.
func NewDetector(cfg Config, mode string) *Detector {
	return &Detector{cfg: cfg, mode: mode}
}

// SetMode switches the mode-dependent thresholds and cooldowns. Edge state
// carries over so a mode flip alone never fires an alert.
func (d *Detector) SetMode(mode string) {
	d.mode = mode
}

// Mode returns the active mode.
func (d *Detector) Mode() string {
	return d.mode
}

// Observe evaluates all channels for one tick. Multiple causes may fire on
// the same tick; the slice is ordered score, sound, yawn, eyes.
func (d *Detector) Observe(in Inputs, now time.Time) []Alert {
	var fired []Alert

	scoreThreshold := d.cfg.ScoreThresholdNormal
	scoreCooldown := d.cfg.ScoreCooldownNormal
	perclosThreshold := d.cfg.EyesPerclosNormal
	if d.mode == units.ModeDemo {
		scoreThreshold = d.cfg.ScoreThresholdDemo
		scoreCooldown = d.cfg.ScoreCooldownDemo
		perclosThreshold = d.cfg.EyesPerclosDemo
	}

	if d.score.fire(in.Score > scoreThreshold, now, scoreCooldown) {
		fired = append(fired, Alert{Cause: CauseDrowsiness, At: now, Score: in.Score})
	}
	if d.sound.fire(in.SoundPeriodic, now, d.cfg.SoundCooldown) {
		fired = append(fired, Alert{Cause: CauseSound, At: now, Score: in.Score})
	}
	if d.yawn.fire(in.MAR > d.cfg.YawnThreshold, now, d.cfg.YawnCooldown) {
		fired = append(fired, Alert{Cause: CauseYawn, At: now, Score: in.Score})
	}

	eyesBad := in.ContinuousClose || in.Perclos > perclosThreshold || in.EAR < d.cfg.EyesEARFloor
	if d.eyes.fire(eyesBad, now, d.cfg.EyesCooldown) {
		fired = append(fired, Alert{Cause: CauseEyes, At: now, Score: in.Score})
	}

	return fired
}
