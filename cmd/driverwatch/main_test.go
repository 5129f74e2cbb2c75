package main

import (
	"testing"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/capture"
	"github.com/kestrel-sense/driverwatch/internal/config"
	"github.com/kestrel-sense/driverwatch/internal/sink"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
)

func TestOpenFeedMock(t *testing.T) {
	*source = "mock"
	t.Cleanup(func() { *source = "mock" })

	clk := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	feed, ingest, err := openFeed(clk)
	if err != nil {
		t.Fatalf("openFeed(mock): %v", err)
	}
	defer feed.Close()
	if ingest == nil {
		t.Fatal("mock source must still provide an ingest handler")
	}
}

func TestOpenFeedUnknownSource(t *testing.T) {
	*source = "carrier-pigeon"
	t.Cleanup(func() { *source = "mock" })

	if _, _, err := openFeed(timeutil.RealClock{}); err == nil {
		t.Fatal("unknown source must be rejected")
	}
}

func TestOpenFeedReplayRequiresFile(t *testing.T) {
	*source = "replay"
	*replayFile = ""
	t.Cleanup(func() { *source = "mock" })

	if _, _, err := openFeed(timeutil.RealClock{}); err == nil {
		t.Fatal("replay source without a file must be rejected")
	}
}

func TestCaptureConfigFromTuning(t *testing.T) {
	if got := captureConfig(nil); got != capture.DefaultConfig() {
		t.Errorf("captureConfig(nil) = %+v, want defaults", got)
	}

	size := 1024
	got := captureConfig(&config.TuningConfig{FFTWindowSize: &size})
	if got.WindowSize != 1024 {
		t.Errorf("WindowSize = %d, want 1024", got.WindowSize)
	}
	if got.SampleRate != capture.DefaultConfig().SampleRate {
		t.Errorf("SampleRate = %d, want default %d", got.SampleRate, capture.DefaultConfig().SampleRate)
	}
}

func TestSaveSettingsFromTuning(t *testing.T) {
	attempts, backoff, debounce := saveSettings(nil)
	if attempts != sink.DefaultAttempts || backoff != sink.DefaultBackoff || debounce != sink.DefaultDebounce {
		t.Errorf("saveSettings(nil) = (%d, %v, %v), want sink defaults", attempts, backoff, debounce)
	}

	n := 5
	backoffStr := "150ms"
	debounceStr := "2s"
	tuning := &config.TuningConfig{
		SaveAttempts: &n,
		SaveBackoff:  &backoffStr,
		SaveDebounce: &debounceStr,
	}
	attempts, backoff, debounce = saveSettings(tuning)
	if attempts != 5 {
		t.Errorf("attempts = %d, want 5", attempts)
	}
	if backoff != 150*time.Millisecond {
		t.Errorf("backoff = %v, want 150ms", backoff)
	}
	if debounce != 2*time.Second {
		t.Errorf("debounce = %v, want 2s", debounce)
	}
}
