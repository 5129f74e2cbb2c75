package capture

import (
	"math"
	"sync"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/timeutil"
)

// synthetic snore parameters: two low harmonics under a slow breathing
// envelope, all energy inside the 50-300Hz snore band.
const (
	snoreCarrierHz  = 90.0
	snoreOvertoneHz = 180.0
	snoreBreathHz   = 0.67
	snoreChunk      = 20 * time.Millisecond
)

// SnoreWave generates n samples of a synthetic snore starting at time offset
// t0 seconds. Deterministic, so tests and demo replays are repeatable.
func SnoreWave(t0 float64, n, rate int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		t := t0 + float64(i)/float64(rate)
		env := 0.55 + 0.45*math.Sin(2*math.Pi*snoreBreathHz*t)
		samples[i] = env * (0.3*math.Sin(2*math.Pi*snoreCarrierHz*t) +
			0.2*math.Sin(2*math.Pi*snoreOvertoneHz*t))
	}
	return samples
}

// SyntheticSource feeds a Capture with generated snore audio. It stands in
// for the microphone in demo mode and in tests.
type SyntheticSource struct {
	cap   *Capture
	clock timeutil.Clock

	mu     sync.Mutex
	active bool
	quit   chan struct{}
	done   chan struct{}
}

// NewSyntheticSource creates a synthetic source feeding c. A nil clk gets the
// real clock.
func NewSyntheticSource(c *Capture, clk timeutil.Clock) *SyntheticSource {
	if clk == nil {
		clk = timeutil.RealClock{}
	}
	return &SyntheticSource{cap: c, clock: clk}
}

// Start begins pushing generated audio in snoreChunk steps.
func (s *SyntheticSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}
	s.active = true
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.quit, s.done)
	return nil
}

// Stop ends generation and waits for the feeder to exit.
func (s *SyntheticSource) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	quit, done := s.quit, s.done
	s.mu.Unlock()

	close(quit)
	<-done
}

func (s *SyntheticSource) run(quit chan struct{}, done chan struct{}) {
	defer close(done)

	rate := s.cap.SampleRate()
	chunk := int(float64(rate) * snoreChunk.Seconds())
	ticker := s.clock.NewTicker(snoreChunk)
	defer ticker.Stop()

	var t0 float64
	for {
		select {
		case <-quit:
			return
		case <-ticker.C():
			s.cap.Write(SnoreWave(t0, chunk, rate))
			t0 += float64(chunk) / float64(rate)
		}
	}
}
