// Package units provides shared numeric helpers and mode constants used
// across the fusion pipeline.
package units

import "math"

// Operating mode constants. Demo mode lowers alert thresholds for bench
// demonstrations; it never changes scoring itself.
const (
	ModeNormal = "normal"
	ModeDemo   = "demo"
)

// ValidModes contains all valid operating modes
var ValidModes = []string{ModeNormal, ModeDemo}

// IsValidMode checks if the given mode is in the list of valid modes
func IsValidMode(mode string) bool {
	for _, m := range ValidModes {
		if mode == m {
			return true
		}
	}
	return false
}

// GetValidModesString returns a comma-separated string of valid modes for error messages
func GetValidModesString() string {
	return "normal, demo"
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// DBFloor is the lowest loudness the analyzer reports. Silence and empty
// sample buffers both map to it.
const DBFloor = -120.0

// RMSToDB converts a linear RMS amplitude to decibels, floored at DBFloor.
func RMSToDB(rms float64) float64 {
	if rms <= 0 {
		return DBFloor
	}
	db := 20 * math.Log10(rms)
	if db < DBFloor {
		return DBFloor
	}
	return db
}

// NormalizeDB maps a decibel loudness onto [0, 1] with DBFloor at zero.
func NormalizeDB(db float64) float64 {
	return Clamp01((db - DBFloor) / -DBFloor)
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
