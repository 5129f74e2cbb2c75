package engine

import (
	"math"
	"time"
)

// PublishEpsilon is the minimum movement of a gated float field that forces
// a snapshot publication. Smaller moves are suppressed so idle pipelines do
// not spam subscribers.
const PublishEpsilon = 0.005

// Snapshot is the observable pipeline state, published on change to event
// subscribers and served whole from the state endpoint. Field names are part
// of the client contract.
type Snapshot struct {
	Status              string  `json:"status"`
	DrowsyScore         float64 `json:"drowsyScore"`
	DrowsyHistory       []bool  `json:"drowsyHistory"`
	CalibrationProgress float64 `json:"calibrationProgress"`
	BlinkCount          int     `json:"blinkCount"`
	BlinkDetected       bool    `json:"blinkDetected"`
	DominantEmotion     string  `json:"dominantEmotion"`
	SoundWarning        bool    `json:"soundWarning"`
	ContinuousClose     bool    `json:"continuousClose"`
	Perclos             float64 `json:"perclos"`
	EAR                 float64 `json:"ear"`
	MAR                 float64 `json:"mar"`
	MicActive           bool    `json:"micActive"`
	Mode                string  `json:"mode"`
	DriverID            string  `json:"driverId"`
}

// changedFrom reports whether s moved enough from prev to publish: any
// discrete field differing, or any gated float moving at least eps. The
// verdict history is excluded; it grows on every tick and its visible
// changes already surface through the status and score fields.
func (s Snapshot) changedFrom(prev Snapshot, eps float64) bool {
	if s.Status != prev.Status ||
		s.BlinkCount != prev.BlinkCount ||
		s.BlinkDetected != prev.BlinkDetected ||
		s.DominantEmotion != prev.DominantEmotion ||
		s.SoundWarning != prev.SoundWarning ||
		s.ContinuousClose != prev.ContinuousClose ||
		s.MicActive != prev.MicActive ||
		s.Mode != prev.Mode ||
		s.DriverID != prev.DriverID {
		return true
	}
	return math.Abs(s.DrowsyScore-prev.DrowsyScore) >= eps ||
		math.Abs(s.CalibrationProgress-prev.CalibrationProgress) >= eps ||
		math.Abs(s.Perclos-prev.Perclos) >= eps ||
		math.Abs(s.EAR-prev.EAR) >= eps ||
		math.Abs(s.MAR-prev.MAR) >= eps
}

// Event kinds carried on the subscriber stream.
const (
	EventSnapshot = "snapshot"
	EventAlert    = "alert"
)

// AlertEvent is one fired alert as delivered to subscribers and notifiers.
type AlertEvent struct {
	Cause string    `json:"cause"`
	Score float64   `json:"score"`
	At    time.Time `json:"at"`
}

// Event is one entry on the subscriber stream: a change-gated snapshot or a
// fired alert.
type Event struct {
	Type     string      `json:"type"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
	Alert    *AlertEvent `json:"alert,omitempty"`
}

// Notifier receives fired alerts outside the event stream. Implementations
// must return promptly; the engine calls them from the tick path.
type Notifier interface {
	Notify(AlertEvent)
}
