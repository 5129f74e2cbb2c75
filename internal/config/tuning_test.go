package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/fsutil"
)

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetEARClosedThreshold() != 0.26 {
		t.Errorf("GetEARClosedThreshold() = %f, want 0.26", cfg.GetEARClosedThreshold())
	}
	if cfg.GetEAROpenThreshold() != 0.30 {
		t.Errorf("GetEAROpenThreshold() = %f, want 0.30", cfg.GetEAROpenThreshold())
	}
	if cfg.GetPerclosWindow() != 30*time.Second {
		t.Errorf("GetPerclosWindow() = %v, want 30s", cfg.GetPerclosWindow())
	}
	if cfg.GetContinuousClose() != 500*time.Millisecond {
		t.Errorf("GetContinuousClose() = %v, want 500ms", cfg.GetContinuousClose())
	}
	if cfg.GetSilenceDB() != -55 {
		t.Errorf("GetSilenceDB() = %f, want -55", cfg.GetSilenceDB())
	}
	if cfg.GetSilenceHold() != 5*time.Second {
		t.Errorf("GetSilenceHold() = %v, want 5s", cfg.GetSilenceHold())
	}
	if cfg.GetBandLowHz() != 50 {
		t.Errorf("GetBandLowHz() = %f, want 50", cfg.GetBandLowHz())
	}
	if cfg.GetBandHighHz() != 300 {
		t.Errorf("GetBandHighHz() = %f, want 300", cfg.GetBandHighHz())
	}
	if cfg.GetSampleInterval() != 200*time.Millisecond {
		t.Errorf("GetSampleInterval() = %v, want 200ms", cfg.GetSampleInterval())
	}
	if cfg.GetFFTWindowSize() != 2048 {
		t.Errorf("GetFFTWindowSize() = %d, want 2048", cfg.GetFFTWindowSize())
	}
	if cfg.GetPeakMinAmp() != 14 {
		t.Errorf("GetPeakMinAmp() = %f, want 14", cfg.GetPeakMinAmp())
	}
	if cfg.GetPeakProminenceStd() != 1.0 {
		t.Errorf("GetPeakProminenceStd() = %f, want 1.0", cfg.GetPeakProminenceStd())
	}
	if cfg.GetPeakMinSeparation() != 150*time.Millisecond {
		t.Errorf("GetPeakMinSeparation() = %v, want 150ms", cfg.GetPeakMinSeparation())
	}
	if cfg.GetHistoryLimit() != 60 {
		t.Errorf("GetHistoryLimit() = %d, want 60", cfg.GetHistoryLimit())
	}
	if cfg.GetDrowsyThreshold() != 0.5 {
		t.Errorf("GetDrowsyThreshold() = %f, want 0.5", cfg.GetDrowsyThreshold())
	}
	if cfg.GetMinTickInterval() != 180*time.Millisecond {
		t.Errorf("GetMinTickInterval() = %v, want 180ms", cfg.GetMinTickInterval())
	}
	if cfg.GetMode() != "normal" {
		t.Errorf("GetMode() = %q, want normal", cfg.GetMode())
	}
	if cfg.GetSaveDebounce() != 5*time.Second {
		t.Errorf("GetSaveDebounce() = %v, want 5s", cfg.GetSaveDebounce())
	}
	if cfg.GetSaveAttempts() != 3 {
		t.Errorf("GetSaveAttempts() = %d, want 3", cfg.GetSaveAttempts())
	}
	if cfg.GetSaveBackoff() != 300*time.Millisecond {
		t.Errorf("GetSaveBackoff() = %v, want 300ms", cfg.GetSaveBackoff())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	testJSON := `{
  "ear_closed_threshold": 0.22,
  "ear_open_threshold": 0.28,
  "perclos_window": "45s",
  "silence_db": -60,
  "band_low_hz": 40,
  "band_high_hz": 350,
  "sample_interval": "250ms",
  "history_limit": 120,
  "mode": "demo"
}`
	if err := fsys.WriteFile("tuning.json", []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(fsys, "tuning.json")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.EARClosedThreshold == nil || *cfg.EARClosedThreshold != 0.22 {
		t.Errorf("Expected EARClosedThreshold 0.22, got %v", cfg.EARClosedThreshold)
	}
	if cfg.EAROpenThreshold == nil || *cfg.EAROpenThreshold != 0.28 {
		t.Errorf("Expected EAROpenThreshold 0.28, got %v", cfg.EAROpenThreshold)
	}
	if cfg.GetPerclosWindow() != 45*time.Second {
		t.Errorf("GetPerclosWindow() = %v, want 45s", cfg.GetPerclosWindow())
	}
	if cfg.GetSilenceDB() != -60 {
		t.Errorf("GetSilenceDB() = %f, want -60", cfg.GetSilenceDB())
	}
	if cfg.GetBandLowHz() != 40 || cfg.GetBandHighHz() != 350 {
		t.Errorf("Band = [%f, %f], want [40, 350]", cfg.GetBandLowHz(), cfg.GetBandHighHz())
	}
	if cfg.GetSampleInterval() != 250*time.Millisecond {
		t.Errorf("GetSampleInterval() = %v, want 250ms", cfg.GetSampleInterval())
	}
	if cfg.GetHistoryLimit() != 120 {
		t.Errorf("GetHistoryLimit() = %d, want 120", cfg.GetHistoryLimit())
	}
	if cfg.GetMode() != "demo" {
		t.Errorf("GetMode() = %q, want demo", cfg.GetMode())
	}
}

func TestLoadTuningConfigOSFileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.json")

	if err := os.WriteFile(configPath, []byte(`{"history_limit": 90}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(fsutil.OSFileSystem{}, configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetHistoryLimit() != 90 {
		t.Errorf("GetHistoryLimit() = %d, want 90", cfg.GetHistoryLimit())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig(fsutil.NewMemoryFileSystem(), "nonexistent.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	invalidJSON := `{
  "ear_closed_threshold": "invalid"
`
	if err := fsys.WriteFile("invalid.json", []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(fsys, "invalid.json")
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override silence; everything else keeps defaults.
	fsys := fsutil.NewMemoryFileSystem()

	if err := fsys.WriteFile("partial.json", []byte(`{"silence_db": -50}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(fsys, "partial.json")
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	if cfg.GetSilenceDB() != -50 {
		t.Errorf("Expected overridden SilenceDB -50, got %f", cfg.GetSilenceDB())
	}
	if cfg.GetEARClosedThreshold() != 0.26 {
		t.Errorf("Expected default EARClosedThreshold 0.26, got %f", cfg.GetEARClosedThreshold())
	}
	if cfg.GetPerclosWindow() != 30*time.Second {
		t.Errorf("Expected default PerclosWindow 30s, got %v", cfg.GetPerclosWindow())
	}
	if cfg.GetMode() != "normal" {
		t.Errorf("Expected default mode normal, got %q", cfg.GetMode())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig(fsutil.NewMemoryFileSystem(), "/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := fsys.WriteFile("large.json", largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(fsys, "large.json")
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
	if err != nil && !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected size error, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "valid overrides",
			cfg: &TuningConfig{
				EARClosedThreshold: ptrFloat64(0.24),
				EAROpenThreshold:   ptrFloat64(0.32),
				Mode:               ptrString("demo"),
			},
			wantErr: false,
		},
		{
			name: "closed threshold out of range",
			cfg: &TuningConfig{
				EARClosedThreshold: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "closed threshold negative",
			cfg: &TuningConfig{
				EARClosedThreshold: ptrFloat64(-0.1),
			},
			wantErr: true,
		},
		{
			name: "open threshold below closed",
			cfg: &TuningConfig{
				EARClosedThreshold: ptrFloat64(0.30),
				EAROpenThreshold:   ptrFloat64(0.26),
			},
			wantErr: true,
		},
		{
			name: "band high below low",
			cfg: &TuningConfig{
				BandLowHz:  ptrFloat64(300),
				BandHighHz: ptrFloat64(50),
			},
			wantErr: true,
		},
		{
			name: "negative band low",
			cfg: &TuningConfig{
				BandLowHz: ptrFloat64(-10),
			},
			wantErr: true,
		},
		{
			name: "zero fft window",
			cfg: &TuningConfig{
				FFTWindowSize: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "negative history limit",
			cfg: &TuningConfig{
				HistoryLimit: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "drowsy threshold out of range",
			cfg: &TuningConfig{
				DrowsyThreshold: ptrFloat64(1.0),
			},
			wantErr: true,
		},
		{
			name: "zero save attempts",
			cfg: &TuningConfig{
				SaveAttempts: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "unknown mode",
			cfg: &TuningConfig{
				Mode: ptrString("turbo"),
			},
			wantErr: true,
		},
		{
			name: "invalid perclos window",
			cfg: &TuningConfig{
				PerclosWindow: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "invalid save debounce",
			cfg: &TuningConfig{
				SaveDebounce: ptrString("5 seconds"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetSampleInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{
			name: "200 milliseconds",
			cfg: &TuningConfig{
				SampleInterval: ptrString("200ms"),
			},
			want: 200 * time.Millisecond,
		},
		{
			name: "1 second",
			cfg: &TuningConfig{
				SampleInterval: ptrString("1s"),
			},
			want: 1 * time.Second,
		},
		{
			name: "nil pointer returns default",
			cfg:  &TuningConfig{},
			want: 200 * time.Millisecond,
		},
		{
			name: "empty string returns default",
			cfg: &TuningConfig{
				SampleInterval: ptrString(""),
			},
			want: 200 * time.Millisecond,
		},
		{
			name: "invalid duration returns default",
			cfg: &TuningConfig{
				SampleInterval: ptrString("invalid"),
			},
			want: 200 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetSampleInterval()
			if got != tt.want {
				t.Errorf("GetSampleInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}
