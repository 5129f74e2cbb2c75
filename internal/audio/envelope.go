package audio

import "time"

// EnvelopeCapacity bounds the low-band energy history. At the stock 200ms
// sampling interval 512 entries cover roughly 100 seconds.
const EnvelopeCapacity = 512

// EnvelopeSample is one low-band energy observation, as a percentage.
type EnvelopeSample struct {
	At      time.Time
	Percent float64
}

// Envelope is a bounded ring of low-band energy samples. The periodicity
// detector reads it; the audio loop appends to it. Not safe for concurrent
// use.
type Envelope struct {
	samples []EnvelopeSample
	start   int
	count   int
}

// NewEnvelope returns an empty envelope with the stock capacity.
func NewEnvelope() *Envelope {
	return &Envelope{samples: make([]EnvelopeSample, EnvelopeCapacity)}
}

// Append records one sample, evicting the oldest when full.
func (e *Envelope) Append(at time.Time, percent float64) {
	idx := (e.start + e.count) % len(e.samples)
	e.samples[idx] = EnvelopeSample{At: at, Percent: percent}
	if e.count < len(e.samples) {
		e.count++
	} else {
		e.start = (e.start + 1) % len(e.samples)
	}
}

// Len returns the number of stored samples.
func (e *Envelope) Len() int {
	return e.count
}

// Samples returns the stored samples oldest-first as a fresh slice.
func (e *Envelope) Samples() []EnvelopeSample {
	out := make([]EnvelopeSample, e.count)
	for i := 0; i < e.count; i++ {
		out[i] = e.samples[(e.start+i)%len(e.samples)]
	}
	return out
}

// Reset drops all samples.
func (e *Envelope) Reset() {
	e.start = 0
	e.count = 0
}
