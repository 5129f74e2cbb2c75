// Package fusion combines the per-tick eye, mouth, head and sound signals
// into one smoothed drowsiness score and the AWAKE/DROWSY verdict.
package fusion

import "github.com/kestrel-sense/driverwatch/internal/units"

// Status is the binary drowsiness verdict.
type Status string

const (
	StatusAwake  Status = "AWAKE"
	StatusDrowsy Status = "DROWSY"
)

// Weights are the linear component weights of the raw score.
type Weights struct {
	Eyes    float64
	Perclos float64
	MAR     float64
	Head    float64
	Sound   float64
}

// DefaultWeights returns the stock fusion weights.
func DefaultWeights() Weights {
	return Weights{
		Eyes:    0.8,
		Perclos: 0.5,
		MAR:     0.35,
		Head:    0.4,
		Sound:   0.25,
	}
}

// Config holds the fusion parameters.
type Config struct {
	Weights Weights

	// PrevWeight and RawWeight blend the previous score with the new raw
	// score. They sum to 1.
	PrevWeight float64
	RawWeight  float64

	// DrowsyThreshold is the score above which the verdict flips to DROWSY.
	DrowsyThreshold float64

	// HistoryLimit bounds the per-tick verdict history.
	HistoryLimit int

	// PerclosDivisor maps the raw PERCLOS ratio onto [0, 1].
	PerclosDivisor float64

	// NodPitchDeg and NodVelocity define a head nod: pitch beyond the angle
	// while moving faster than the velocity. A nod also fires at double the
	// velocity with half the angle.
	NodPitchDeg float64
	NodVelocity float64

	// PitchClampDeg scales non-nod pitch into the head component.
	PitchClampDeg float64

	// ClosedComponent is the eyes component while closed but not yet
	// continuously closed.
	ClosedComponent float64
}

// DefaultConfig returns the stock fusion parameters.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		PrevWeight:      0.4,
		RawWeight:       0.6,
		DrowsyThreshold: 0.5,
		HistoryLimit:    60,
		PerclosDivisor:  0.12,
		NodPitchDeg:     7,
		NodVelocity:     5,
		PitchClampDeg:   30,
		ClosedComponent: 0.9,
	}
}

// Inputs are the per-tick signals feeding one fusion update.
type Inputs struct {
	EyesClosed      bool
	ContinuousClose bool
	Perclos         float64 // raw window ratio
	MAR             float64 // already normalized to [0, 1]
	PitchDeg        float64
	PitchVelocity   float64
	Sound           float64 // from the periodicity detector
}

// Components are the weighted-score inputs after normalization, kept for
// observability.
type Components struct {
	Eyes    float64
	Perclos float64
	MAR     float64
	Head    float64
	Sound   float64
}

// Output is the result of one fusion update.
type Output struct {
	Raw    float64
	Score  float64
	Status Status
	Drowsy bool
	// Nod reports the transient head-drop condition that saturates the head
	// component this tick.
	Nod        bool
	Components Components
}

// Engine folds tick inputs into the smoothed score. Not safe for concurrent
// use; the tick loop owns it.
type Engine struct {
	cfg     Config
	score   float64
	status  Status
	history []bool
}

// NewEngine returns an awake engine with a zero score.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, status: StatusAwake}
}

// Update folds one tick of inputs into the score and returns the outcome.
func (e *Engine) Update(in Inputs) Output {
	head, nod := e.headComponent(in)
	c := Components{
		Eyes:    e.eyesComponent(in),
		Perclos: units.Clamp01(in.Perclos / e.cfg.PerclosDivisor),
		MAR:     units.Clamp01(in.MAR),
		Head:    head,
		Sound:   units.Clamp01(in.Sound),
	}

	w := e.cfg.Weights
	raw := units.Clamp01(w.Eyes*c.Eyes + w.Perclos*c.Perclos + w.MAR*c.MAR + w.Head*c.Head + w.Sound*c.Sound)

	e.score = e.score*e.cfg.PrevWeight + raw*e.cfg.RawWeight
	drowsy := e.score > e.cfg.DrowsyThreshold
	if drowsy {
		e.status = StatusDrowsy
	} else {
		e.status = StatusAwake
	}

	e.history = append(e.history, drowsy)
	if len(e.history) > e.cfg.HistoryLimit {
		e.history = e.history[len(e.history)-e.cfg.HistoryLimit:]
	}

	return Output{
		Raw:        raw,
		Score:      e.score,
		Status:     e.status,
		Drowsy:     drowsy,
		Nod:        nod,
		Components: c,
	}
}

func (e *Engine) eyesComponent(in Inputs) float64 {
	switch {
	case in.ContinuousClose:
		return 1.0
	case in.EyesClosed:
		return e.cfg.ClosedComponent
	default:
		return 0
	}
}

func (e *Engine) headComponent(in Inputs) (float64, bool) {
	nod := (in.PitchDeg > e.cfg.NodPitchDeg && in.PitchVelocity > e.cfg.NodVelocity) ||
		(in.PitchVelocity > 2*e.cfg.NodVelocity && in.PitchDeg > e.cfg.NodPitchDeg/2)
	if nod {
		return 1.0, true
	}
	return units.Clamp(in.PitchDeg/e.cfg.PitchClampDeg, 0, 1), false
}

// Score returns the current smoothed score.
func (e *Engine) Score() float64 {
	return e.score
}

// Status returns the current verdict.
func (e *Engine) Status() Status {
	return e.status
}

// History returns a copy of the bounded per-tick verdict history,
// oldest first.
func (e *Engine) History() []bool {
	out := make([]bool, len(e.history))
	copy(out, e.history)
	return out
}
