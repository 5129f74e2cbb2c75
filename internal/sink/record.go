// Package sink delivers telemetry records to the remote collector. Records
// are flushed by a Scheduler that debounces routine saves and short-circuits
// urgent ones; the Client owns the wire format and the retry policy.
package sink

import "time"

// timestampLayout is RFC 3339 with fixed millisecond precision, matching the
// collector's expected ISO-8601 form.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is one telemetry snapshot as sent to the collector. Pointer fields
// marshal to JSON null when the corresponding signal was unavailable at flush
// time, so the collector can tell "not measured" from zero.
type Record struct {
	DriverID         string   `json:"driverId"`
	Drowsiness       *float64 `json:"drowsiness"`
	Emotion          *string  `json:"emotion"`
	EyeAspectRatio   *float64 `json:"eyeAspectRatio"`
	MouthAspectRatio *float64 `json:"mouthAspectRatio"`
	HeadPose         *string  `json:"headPose"`
	BlinkDetected    *bool    `json:"blinkDetected"`
	MicroExpression  *string  `json:"microExpression"`
	SpeechVolume     *float64 `json:"speechVolume"`
	Timestamp        string   `json:"timestamp"`
}

// NewRecord returns a Record stamped for the given driver and instant. All
// measurement fields start null.
func NewRecord(driverID string, at time.Time) Record {
	return Record{
		DriverID:  driverID,
		Timestamp: at.UTC().Format(timestampLayout),
	}
}

// Float64 returns a pointer to v for optional Record fields.
func Float64(v float64) *float64 { return &v }

// String returns a pointer to s for optional Record fields.
func String(s string) *string { return &s }

// Bool returns a pointer to b for optional Record fields.
func Bool(b bool) *bool { return &b }
