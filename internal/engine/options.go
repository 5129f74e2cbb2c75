package engine

import (
	"time"

	"github.com/kestrel-sense/driverwatch/internal/alerts"
	"github.com/kestrel-sense/driverwatch/internal/audio"
	"github.com/kestrel-sense/driverwatch/internal/calibrate"
	"github.com/kestrel-sense/driverwatch/internal/capture"
	"github.com/kestrel-sense/driverwatch/internal/config"
	"github.com/kestrel-sense/driverwatch/internal/eyes"
	"github.com/kestrel-sense/driverwatch/internal/face"
	"github.com/kestrel-sense/driverwatch/internal/fusion"
	"github.com/kestrel-sense/driverwatch/internal/sink"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
	"github.com/kestrel-sense/driverwatch/internal/units"
)

const (
	// DefaultMinVideoTick is the floor between accepted video ticks. Frames
	// arriving faster are dropped, bounding per-frame work at camera rates.
	DefaultMinVideoTick = 180 * time.Millisecond

	// DefaultAudioInterval is the audio sampling period.
	DefaultAudioInterval = 200 * time.Millisecond
)

// Options composes the per-component configurations and the injected
// dependencies of one engine. Start from DefaultOptions; component configs
// are taken as given and not re-defaulted.
type Options struct {
	// DriverID stamps snapshots and telemetry records.
	DriverID string

	// Mode is the initial alert mode, normal or demo.
	Mode string

	MinVideoTick  time.Duration
	AudioInterval time.Duration

	Extractor   face.ExtractorConfig
	Eyes        eyes.Config
	Audio       audio.AnalyzerConfig
	Periodicity audio.PeriodicityConfig
	Calibration calibrate.Config
	Fusion      fusion.Config
	Alerts      alerts.Config

	// Clock nil means the real clock.
	Clock timeutil.Clock

	// Capture and Mic wire the audio path; both nil disables it.
	Capture *capture.Capture
	Mic     capture.Source

	// Saver nil disables persistence.
	Saver *sink.Scheduler

	// Notifiers receive fired alerts in addition to the event stream.
	Notifiers []Notifier
}

// DefaultOptions returns the stock pipeline configuration for driverID.
// Dependencies start unset.
func DefaultOptions(driverID string) Options {
	return Options{
		DriverID:      driverID,
		Mode:          units.ModeNormal,
		MinVideoTick:  DefaultMinVideoTick,
		AudioInterval: DefaultAudioInterval,
		Extractor:     face.DefaultExtractorConfig(),
		Eyes:          eyes.DefaultConfig(),
		Audio:         audio.DefaultAnalyzerConfig(),
		Periodicity:   audio.DefaultPeriodicityConfig(),
		Calibration:   calibrate.DefaultConfig(),
		Fusion:        fusion.DefaultConfig(),
		Alerts:        alerts.DefaultConfig(),
	}
}

// ApplyTuning overlays the fields a tuning file names onto the options and
// returns the result. A nil tuning leaves the options unchanged.
func (o Options) ApplyTuning(t *config.TuningConfig) Options {
	if t == nil {
		return o
	}

	o.Mode = t.GetMode()
	o.MinVideoTick = t.GetMinTickInterval()
	o.AudioInterval = t.GetSampleInterval()

	o.Eyes.ClosedThreshold = t.GetEARClosedThreshold()
	o.Eyes.OpenThreshold = t.GetEAROpenThreshold()
	o.Eyes.PerclosWindow = t.GetPerclosWindow()
	o.Eyes.ContinuousClose = t.GetContinuousClose()

	o.Audio.SilenceDB = t.GetSilenceDB()
	o.Audio.SilenceHold = t.GetSilenceHold()
	o.Audio.BandLowHz = t.GetBandLowHz()
	o.Audio.BandHighHz = t.GetBandHighHz()

	o.Periodicity.MinAmp = t.GetPeakMinAmp()
	o.Periodicity.ProminenceStd = t.GetPeakProminenceStd()
	o.Periodicity.MinSeparation = t.GetPeakMinSeparation()

	o.Fusion.HistoryLimit = t.GetHistoryLimit()
	o.Fusion.DrowsyThreshold = t.GetDrowsyThreshold()

	return o
}
