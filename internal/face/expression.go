package face

import (
	"math"
	"sort"
	"time"
)

// Micro-expression detection bounds. A non-dominant category that spikes
// above the rise threshold and falls back below the fall threshold within
// the max duration counts as a micro-expression; a spike that lingers
// longer is an ordinary expression change.
const (
	microRiseThreshold = 0.6
	microFallThreshold = 0.4
	microMaxDuration   = 500 * time.Millisecond
)

// ExpressionState is the per-tick expression summary.
type ExpressionState struct {
	// Dominant is the highest-confidence category, "" when the map is empty.
	Dominant      string
	DominantScore float64

	// Micro names a micro-expression that completed on this update, "" otherwise.
	Micro string
}

// Dominant returns the highest-confidence expression category. Ties are
// broken by category name so the result is deterministic.
func Dominant(expressions map[string]float64) (string, float64) {
	best := ""
	bestScore := math.Inf(-1)
	for name, conf := range expressions {
		if conf > bestScore || (conf == bestScore && name < best) {
			best = name
			bestScore = conf
		}
	}
	if best == "" {
		return "", 0
	}
	return best, bestScore
}

// ExpressionTracker watches expression confidences across frames and flags
// micro-expressions. Not safe for concurrent use.
type ExpressionTracker struct {
	rises map[string]time.Time
	prev  map[string]float64
}

// NewExpressionTracker returns an empty tracker.
func NewExpressionTracker() *ExpressionTracker {
	return &ExpressionTracker{
		rises: make(map[string]time.Time),
		prev:  make(map[string]float64),
	}
}

// Update folds one frame's expression map into the tracker and returns the
// resulting state. now is the frame arrival time.
func (t *ExpressionTracker) Update(expressions map[string]float64, now time.Time) ExpressionState {
	dom, score := Dominant(expressions)
	state := ExpressionState{Dominant: dom, DominantScore: score}

	// Candidates that outlived the window, became dominant or vanished from
	// the detector output are sustained expression changes, not
	// micro-expressions.
	for name, rise := range t.rises {
		if _, present := expressions[name]; !present || name == dom || now.Sub(rise) > microMaxDuration {
			delete(t.rises, name)
		}
	}

	var fired []string
	for name, conf := range expressions {
		if name == dom {
			continue
		}
		if rise, ok := t.rises[name]; ok {
			if conf < microFallThreshold {
				delete(t.rises, name)
				if now.Sub(rise) <= microMaxDuration {
					fired = append(fired, name)
				}
			}
			continue
		}
		// Arm only on an upward crossing. A confidence that is still high
		// after its candidate expired stays disarmed until it dips below the
		// rise threshold again.
		if conf > microRiseThreshold && t.prev[name] <= microRiseThreshold {
			t.rises[name] = now
		}
	}

	for name := range t.prev {
		delete(t.prev, name)
	}
	for name, conf := range expressions {
		t.prev[name] = conf
	}

	if len(fired) > 0 {
		sort.Strings(fired)
		state.Micro = fired[0]
	}
	return state
}
