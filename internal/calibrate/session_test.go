package calibrate

import (
	"testing"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/testutil"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestThresholdDerivation(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start(testStart)

	// Ten samples averaging 0.30.
	samples := []float64{0.28, 0.32, 0.29, 0.31, 0.30, 0.30, 0.27, 0.33, 0.26, 0.34}
	for i, ear := range samples {
		s.Observe(ear, testStart.Add(time.Duration(i)*200*time.Millisecond))
	}

	res, ok := s.Stop()
	if !ok {
		t.Fatal("Stop returned ok=false for an active session")
	}
	if !res.Applied {
		t.Fatal("Expected thresholds applied with samples collected")
	}
	if res.SampleCount != 10 {
		t.Errorf("SampleCount = %d, want 10", res.SampleCount)
	}
	// mean 0.30: closed = max(0.12, 0.18), open = max(0.22, 0.225).
	testutil.AssertInDelta(t, res.ClosedThreshold, 0.18, 1e-9)
	testutil.AssertInDelta(t, res.OpenThreshold, 0.225, 1e-9)
}

func TestThresholdFloors(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start(testStart)

	// A very low baseline: both derivations hit their floors. mean 0.15
	// gives closed max(0.12, 0.09) = 0.12 and open max(0.16, 0.1125) = 0.16.
	s.Observe(0.15, testStart.Add(200*time.Millisecond))

	res, _ := s.Stop()
	testutil.AssertInDelta(t, res.ClosedThreshold, 0.12, 1e-9)
	testutil.AssertInDelta(t, res.OpenThreshold, 0.16, 1e-9)
}

func TestProgress(t *testing.T) {
	s := NewSession(DefaultConfig())

	if s.Active() {
		t.Fatal("New session must start inactive")
	}

	s.Start(testStart)
	testutil.AssertInDelta(t, s.Progress(), 0, 1e-9)

	s.Observe(0.3, testStart.Add(5*time.Second))
	testutil.AssertInDelta(t, s.Progress(), 0.5, 1e-9)

	s.Observe(0.3, testStart.Add(9*time.Second))
	testutil.AssertInDelta(t, s.Progress(), 0.9, 1e-9)
}

func TestAutoStop(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start(testStart)

	_, stopped := s.Observe(0.3, testStart.Add(9*time.Second))
	if stopped {
		t.Fatal("Auto-stopped before the duration elapsed")
	}

	res, stopped := s.Observe(0.3, testStart.Add(10*time.Second))
	if !stopped {
		t.Fatal("Expected auto-stop at the session duration")
	}
	if !res.Applied {
		t.Error("Auto-stop discarded the collected samples")
	}
	if s.Active() {
		t.Error("Session still active after auto-stop")
	}
	testutil.AssertInDelta(t, s.Progress(), 1, 1e-9)
}

func TestZeroSampleStop(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start(testStart)

	res, ok := s.Stop()
	if !ok {
		t.Fatal("Stop returned ok=false for an active session")
	}
	if res.Applied {
		t.Error("Zero-sample stop must not derive thresholds")
	}
	// Completion is still reported.
	testutil.AssertInDelta(t, s.Progress(), 1, 1e-9)
}

func TestStopInactive(t *testing.T) {
	s := NewSession(DefaultConfig())
	if _, ok := s.Stop(); ok {
		t.Error("Stop returned ok=true without an active session")
	}
	if _, stopped := s.Observe(0.3, testStart); stopped {
		t.Error("Observe acted on an inactive session")
	}
}

func TestRestartDiscardsSamples(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start(testStart)
	s.Observe(0.5, testStart.Add(time.Second))
	s.Stop()

	s.Start(testStart.Add(time.Minute))
	testutil.AssertInDelta(t, s.Progress(), 0, 1e-9)

	// Only the new sample shapes the result.
	s.Observe(0.3, testStart.Add(time.Minute).Add(time.Second))
	res, _ := s.Stop()
	if res.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1 after restart", res.SampleCount)
	}
	testutil.AssertInDelta(t, res.ClosedThreshold, 0.18, 1e-9)
}
