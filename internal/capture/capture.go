// Package capture acquires microphone PCM and assembles fixed-size analysis
// windows for the audio analyzer. A Capture owns a sliding sample window and
// an FFT; sources (microphone, synthetic) push samples in from their own
// threads and the engine pulls spectrum snapshots on its sampling tick.
package capture

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/audio"
)

// Config holds capture parameters.
type Config struct {
	// SampleRate is the capture rate in Hz.
	SampleRate int

	// WindowSize is the analysis window and FFT size in samples.
	WindowSize int
}

// DefaultConfig returns the standard capture parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		WindowSize: 2048,
	}
}

// Source produces PCM into a Capture. Implementations push from their own
// goroutine or device thread between Start and Stop.
type Source interface {
	Start() error
	Stop()
}

// Capture assembles the most recent WindowSize samples into analyzer frames.
// Write is safe to call from device callback threads.
type Capture struct {
	cfg  Config
	spec *Spectrum

	mu     sync.Mutex
	window []float64
	start  int
	count  int
}

// NewCapture creates a Capture. Zero config fields fall back to defaults.
func NewCapture(cfg Config) *Capture {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	return &Capture{
		cfg:    cfg,
		spec:   NewSpectrum(cfg.WindowSize, cfg.SampleRate),
		window: make([]float64, cfg.WindowSize),
	}
}

// Write appends samples to the sliding window, evicting the oldest.
func (c *Capture) Write(samples []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range samples {
		idx := (c.start + c.count) % len(c.window)
		if c.count < len(c.window) {
			c.count++
		} else {
			c.start = (c.start + 1) % len(c.window)
		}
		c.window[idx] = s
	}
}

// WritePCM16 decodes little-endian signed 16-bit PCM into the window.
func (c *Capture) WritePCM16(data []byte) {
	c.Write(DecodePCM16(data))
}

// Snapshot returns an analyzer frame over the current window, stamped with
// now. It reports false until a full window has accumulated.
func (c *Capture) Snapshot(now time.Time) (audio.Frame, bool) {
	c.mu.Lock()
	if c.count < len(c.window) {
		c.mu.Unlock()
		return audio.Frame{}, false
	}
	samples := make([]float64, len(c.window))
	for i := range samples {
		samples[i] = c.window[(c.start+i)%len(c.window)]
	}
	c.mu.Unlock()

	return audio.Frame{
		Samples:  samples,
		Spectrum: c.spec.Magnitudes(samples),
		BinHz:    c.spec.BinHz(),
		At:       now,
	}, true
}

// Reset drops accumulated samples so the next Snapshot waits for a fresh
// window.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = 0
	c.count = 0
}

// SampleRate returns the configured capture rate.
func (c *Capture) SampleRate() int {
	return c.cfg.SampleRate
}

// DecodePCM16 converts little-endian signed 16-bit PCM to samples in [-1, 1].
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		samples[i] = float64(v) / 32768
	}
	return samples
}
