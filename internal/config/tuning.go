// Package config provides the optional JSON tuning overlay. Every numeric
// threshold in the pipeline has a code default declared next to the component
// that owns it; a tuning file overrides only the fields it names, so partial
// configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/fsutil"
	"github.com/kestrel-sense/driverwatch/internal/units"
)

// TuningConfig represents the root configuration for tuning parameters.
// Pointer fields distinguish "absent" from "explicit zero"; the Get* methods
// supply defaults for absent fields.
type TuningConfig struct {
	// Eye closure params
	EARClosedThreshold *float64 `json:"ear_closed_threshold,omitempty"`
	EAROpenThreshold   *float64 `json:"ear_open_threshold,omitempty"`
	PerclosWindow      *string  `json:"perclos_window,omitempty"` // duration string like "30s"
	ContinuousClose    *string  `json:"continuous_close,omitempty"`

	// Audio analyzer params
	SilenceDB      *float64 `json:"silence_db,omitempty"`
	SilenceHold    *string  `json:"silence_hold,omitempty"`
	BandLowHz      *float64 `json:"band_low_hz,omitempty"`
	BandHighHz     *float64 `json:"band_high_hz,omitempty"`
	SampleInterval *string  `json:"sample_interval,omitempty"`
	FFTWindowSize  *int     `json:"fft_window_size,omitempty"`

	// Snore periodicity params
	PeakMinAmp        *float64 `json:"peak_min_amp,omitempty"`
	PeakProminenceStd *float64 `json:"peak_prominence_std,omitempty"`
	PeakMinSeparation *string  `json:"peak_min_separation,omitempty"`

	// Fusion params
	HistoryLimit    *int     `json:"history_limit,omitempty"`
	DrowsyThreshold *float64 `json:"drowsy_threshold,omitempty"`

	// Engine params
	MinTickInterval *string `json:"min_tick_interval,omitempty"`
	Mode            *string `json:"mode,omitempty"`

	// Persistence params
	SaveDebounce *string `json:"save_debounce,omitempty"`
	SaveAttempts *int    `json:"save_attempts,omitempty"`
	SaveBackoff  *string `json:"save_backoff,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil, which
// resolves every Get* accessor to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size. Fields omitted from the
// JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(fsys fsutil.FileSystem, path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.EARClosedThreshold != nil {
		if *c.EARClosedThreshold <= 0 || *c.EARClosedThreshold >= 1 {
			return fmt.Errorf("ear_closed_threshold must be between 0 and 1, got %f", *c.EARClosedThreshold)
		}
	}
	if c.EAROpenThreshold != nil {
		if *c.EAROpenThreshold <= 0 || *c.EAROpenThreshold >= 1 {
			return fmt.Errorf("ear_open_threshold must be between 0 and 1, got %f", *c.EAROpenThreshold)
		}
	}
	// Hysteresis requires the open threshold strictly above the closed one.
	if c.EARClosedThreshold != nil && c.EAROpenThreshold != nil {
		if *c.EAROpenThreshold <= *c.EARClosedThreshold {
			return fmt.Errorf("ear_open_threshold (%f) must exceed ear_closed_threshold (%f)",
				*c.EAROpenThreshold, *c.EARClosedThreshold)
		}
	}

	if c.BandLowHz != nil && *c.BandLowHz < 0 {
		return fmt.Errorf("band_low_hz must be non-negative, got %f", *c.BandLowHz)
	}
	if c.BandLowHz != nil && c.BandHighHz != nil {
		if *c.BandHighHz <= *c.BandLowHz {
			return fmt.Errorf("band_high_hz (%f) must exceed band_low_hz (%f)", *c.BandHighHz, *c.BandLowHz)
		}
	}

	if c.FFTWindowSize != nil && *c.FFTWindowSize <= 0 {
		return fmt.Errorf("fft_window_size must be positive, got %d", *c.FFTWindowSize)
	}
	if c.HistoryLimit != nil && *c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", *c.HistoryLimit)
	}
	if c.DrowsyThreshold != nil {
		if *c.DrowsyThreshold <= 0 || *c.DrowsyThreshold >= 1 {
			return fmt.Errorf("drowsy_threshold must be between 0 and 1, got %f", *c.DrowsyThreshold)
		}
	}
	if c.SaveAttempts != nil && *c.SaveAttempts <= 0 {
		return fmt.Errorf("save_attempts must be positive, got %d", *c.SaveAttempts)
	}

	if c.Mode != nil && !units.IsValidMode(*c.Mode) {
		return fmt.Errorf("mode must be one of %s, got %q", units.GetValidModesString(), *c.Mode)
	}

	for name, field := range map[string]*string{
		"perclos_window":      c.PerclosWindow,
		"continuous_close":    c.ContinuousClose,
		"silence_hold":        c.SilenceHold,
		"sample_interval":     c.SampleInterval,
		"peak_min_separation": c.PeakMinSeparation,
		"min_tick_interval":   c.MinTickInterval,
		"save_debounce":       c.SaveDebounce,
		"save_backoff":        c.SaveBackoff,
	} {
		if field != nil && *field != "" {
			if _, err := time.ParseDuration(*field); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *field, err)
			}
		}
	}

	return nil
}

func (c *TuningConfig) duration(field *string, def time.Duration) time.Duration {
	if field == nil || *field == "" {
		return def
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return def
	}
	return d
}

// GetEARClosedThreshold returns the ear_closed_threshold value or the default.
func (c *TuningConfig) GetEARClosedThreshold() float64 {
	if c.EARClosedThreshold == nil {
		return 0.26
	}
	return *c.EARClosedThreshold
}

// GetEAROpenThreshold returns the ear_open_threshold value or the default.
func (c *TuningConfig) GetEAROpenThreshold() float64 {
	if c.EAROpenThreshold == nil {
		return 0.30
	}
	return *c.EAROpenThreshold
}

// GetPerclosWindow parses and returns the perclos_window as a time.Duration.
func (c *TuningConfig) GetPerclosWindow() time.Duration {
	return c.duration(c.PerclosWindow, 30*time.Second)
}

// GetContinuousClose parses and returns the continuous_close duration.
func (c *TuningConfig) GetContinuousClose() time.Duration {
	return c.duration(c.ContinuousClose, 500*time.Millisecond)
}

// GetSilenceDB returns the silence_db value or the default.
func (c *TuningConfig) GetSilenceDB() float64 {
	if c.SilenceDB == nil {
		return -55
	}
	return *c.SilenceDB
}

// GetSilenceHold parses and returns the silence_hold duration.
func (c *TuningConfig) GetSilenceHold() time.Duration {
	return c.duration(c.SilenceHold, 5*time.Second)
}

// GetBandLowHz returns the band_low_hz value or the default.
func (c *TuningConfig) GetBandLowHz() float64 {
	if c.BandLowHz == nil {
		return 50
	}
	return *c.BandLowHz
}

// GetBandHighHz returns the band_high_hz value or the default.
func (c *TuningConfig) GetBandHighHz() float64 {
	if c.BandHighHz == nil {
		return 300
	}
	return *c.BandHighHz
}

// GetSampleInterval parses and returns the sample_interval duration.
func (c *TuningConfig) GetSampleInterval() time.Duration {
	return c.duration(c.SampleInterval, 200*time.Millisecond)
}

// GetFFTWindowSize returns the fft_window_size value or the default.
func (c *TuningConfig) GetFFTWindowSize() int {
	if c.FFTWindowSize == nil {
		return 2048
	}
	return *c.FFTWindowSize
}

// GetPeakMinAmp returns the peak_min_amp value or the default.
func (c *TuningConfig) GetPeakMinAmp() float64 {
	if c.PeakMinAmp == nil {
		return 14
	}
	return *c.PeakMinAmp
}

// GetPeakProminenceStd returns the peak_prominence_std value or the default.
func (c *TuningConfig) GetPeakProminenceStd() float64 {
	if c.PeakProminenceStd == nil {
		return 1.0
	}
	return *c.PeakProminenceStd
}

// GetPeakMinSeparation parses and returns the peak_min_separation duration.
func (c *TuningConfig) GetPeakMinSeparation() time.Duration {
	return c.duration(c.PeakMinSeparation, 150*time.Millisecond)
}

// GetHistoryLimit returns the history_limit value or the default.
func (c *TuningConfig) GetHistoryLimit() int {
	if c.HistoryLimit == nil {
		return 60
	}
	return *c.HistoryLimit
}

// GetDrowsyThreshold returns the drowsy_threshold value or the default.
func (c *TuningConfig) GetDrowsyThreshold() float64 {
	if c.DrowsyThreshold == nil {
		return 0.5
	}
	return *c.DrowsyThreshold
}

// GetMinTickInterval parses and returns the min_tick_interval duration.
func (c *TuningConfig) GetMinTickInterval() time.Duration {
	return c.duration(c.MinTickInterval, 180*time.Millisecond)
}

// GetMode returns the mode value or the default.
func (c *TuningConfig) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return units.ModeNormal
	}
	return *c.Mode
}

// GetSaveDebounce parses and returns the save_debounce duration.
func (c *TuningConfig) GetSaveDebounce() time.Duration {
	return c.duration(c.SaveDebounce, 5*time.Second)
}

// GetSaveAttempts returns the save_attempts value or the default.
func (c *TuningConfig) GetSaveAttempts() int {
	if c.SaveAttempts == nil {
		return 3
	}
	return *c.SaveAttempts
}

// GetSaveBackoff parses and returns the save_backoff duration.
func (c *TuningConfig) GetSaveBackoff() time.Duration {
	return c.duration(c.SaveBackoff, 300*time.Millisecond)
}
