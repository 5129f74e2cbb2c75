// Package audio analyzes microphone frames: loudness, spectral variance,
// silence debouncing, low-band energy and the snore periodicity detector
// feeding the fusion sound component.
package audio

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kestrel-sense/driverwatch/internal/units"
)

// Frame is one capture-side sample: a time-domain buffer plus its frequency
// magnitudes. BinHz is the frequency width of one spectrum bin so the
// analyzer does not need to know the FFT size.
type Frame struct {
	Samples  []float64
	Spectrum []float64
	BinHz    float64
	At       time.Time
}

// AnalyzerConfig holds the loudness and silence parameters.
type AnalyzerConfig struct {
	// SilenceDB and SilenceVariance together classify a frame as silent:
	// quiet AND spectrally flat. Variance alone rejects constant hum.
	SilenceDB       float64
	SilenceVariance float64

	// SilenceHold is how long the silent condition must hold before it is
	// surfaced. A single non-silent frame clears it immediately.
	SilenceHold time.Duration

	// BandLowHz and BandHighHz bound the low-frequency band whose energy
	// share drives the snore envelope.
	BandLowHz  float64
	BandHighHz float64

	// PublishEpsilon gates published volume and band values: smaller moves
	// are suppressed to keep downstream consumers quiet.
	PublishEpsilon float64
}

// DefaultAnalyzerConfig returns the stock analyzer parameters.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		SilenceDB:       -55,
		SilenceVariance: 1e-8,
		SilenceHold:     5 * time.Second,
		BandLowHz:       50,
		BandHighHz:      300,
		PublishEpsilon:  0.005,
	}
}

// Reading is the per-frame analyzer output. Volume and BandRatio are the
// published, change-gated values; RawBandRatio is the ungated ratio that
// feeds the envelope buffer and the fallback scoring path.
type Reading struct {
	DB               float64
	SpectralVariance float64
	Volume           float64
	BandRatio        float64
	RawBandRatio     float64
	Silent           bool
}

// Analyzer folds audio frames into debounced, change-gated readings. Not
// safe for concurrent use; the audio loop owns it.
type Analyzer struct {
	cfg AnalyzerConfig

	silentSince time.Time
	silent      bool

	published bool
	pubVolume float64
	pubBand   float64
}

// NewAnalyzer returns an Analyzer with no published state.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze processes one frame taken at the given time.
func (a *Analyzer) Analyze(frame Frame, now time.Time) Reading {
	db := units.RMSToDB(rms(frame.Samples))
	variance := spectralVariance(frame.Spectrum)
	volume := units.NormalizeDB(db)
	band := bandRatio(frame.Spectrum, frame.BinHz, a.cfg.BandLowHz, a.cfg.BandHighHz)

	// Silence needs the condition to hold for the full debounce window; any
	// loud frame resets it instantly.
	if db < a.cfg.SilenceDB && variance < a.cfg.SilenceVariance {
		if a.silentSince.IsZero() {
			a.silentSince = now
		}
		if now.Sub(a.silentSince) >= a.cfg.SilenceHold {
			a.silent = true
		}
	} else {
		a.silentSince = time.Time{}
		a.silent = false
	}

	if !a.published || math.Abs(volume-a.pubVolume) > a.cfg.PublishEpsilon {
		a.pubVolume = volume
	}
	if !a.published || math.Abs(band-a.pubBand) > a.cfg.PublishEpsilon {
		a.pubBand = band
	}
	a.published = true

	return Reading{
		DB:               db,
		SpectralVariance: variance,
		Volume:           a.pubVolume,
		BandRatio:        a.pubBand,
		RawBandRatio:     band,
		Silent:           a.silent,
	}
}

// rms computes the root-mean-square amplitude of a time-domain buffer.
func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// spectralVariance is the population variance across magnitude bins.
func spectralVariance(spectrum []float64) float64 {
	if len(spectrum) == 0 {
		return 0
	}
	return stat.PopVariance(spectrum, nil)
}

// bandRatio is the share of total linear magnitude that falls inside the
// [lowHz, highHz] band. Returns 0 when the spectrum carries no energy.
func bandRatio(spectrum []float64, binHz, lowHz, highHz float64) float64 {
	if len(spectrum) == 0 || binHz <= 0 {
		return 0
	}
	var total, band float64
	for i, mag := range spectrum {
		total += mag
		freq := float64(i) * binHz
		if freq >= lowHz && freq <= highHz {
			band += mag
		}
	}
	if total == 0 {
		return 0
	}
	return band / total
}
