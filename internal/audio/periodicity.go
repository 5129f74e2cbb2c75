package audio

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PeriodicityConfig holds the snore detection parameters.
type PeriodicityConfig struct {
	// MinSeparation is the minimum spacing between accepted peaks.
	MinSeparation time.Duration
	// MinAmp is the minimum smoothed envelope height for a peak, in percent.
	MinAmp float64
	// ProminenceStd scales the standard deviation added to the median to
	// form the prominence floor.
	ProminenceStd float64
	// MinPeaks is the number of accepted peaks required for a verdict.
	MinPeaks int
	// MaxIntervalStd bounds how irregular the inter-peak intervals may be.
	MaxIntervalStd time.Duration
	// MinMeanInterval and MaxMeanInterval bound the plausible snore rhythm.
	MinMeanInterval time.Duration
	MaxMeanInterval time.Duration

	// ScorePeakCount is the peak count that saturates the sound score.
	ScorePeakCount float64
	// FallbackRatio is the raw low-band ratio above which a non-periodic
	// signal still contributes.
	FallbackRatio float64
	// FallbackScoreFull and FallbackScoreThin are the fallback contributions
	// with sufficient and insufficient envelope history.
	FallbackScoreFull float64
	FallbackScoreThin float64
	// SufficientSamples is the envelope length that counts as sufficient.
	SufficientSamples int
}

// DefaultPeriodicityConfig returns the stock snore detection parameters.
func DefaultPeriodicityConfig() PeriodicityConfig {
	return PeriodicityConfig{
		MinSeparation:     150 * time.Millisecond,
		MinAmp:            14,
		ProminenceStd:     1.0,
		MinPeaks:          3,
		MaxIntervalStd:    500 * time.Millisecond,
		MinMeanInterval:   200 * time.Millisecond,
		MaxMeanInterval:   2 * time.Second,
		ScorePeakCount:    6,
		FallbackRatio:     0.25,
		FallbackScoreFull: 0.5,
		FallbackScoreThin: 0.4,
		SufficientSamples: 16,
	}
}

// PeriodicityResult is the detector verdict for one envelope snapshot.
type PeriodicityResult struct {
	Periodic  bool
	PeakCount int
}

// DetectPeriodicity scans an envelope snapshot for a regular peak rhythm.
// The series is smoothed with a trailing 3-sample moving average before
// peak picking; a peak must clear both the absolute amplitude floor and a
// prominence floor of median + ProminenceStd standard deviations.
func DetectPeriodicity(samples []EnvelopeSample, cfg PeriodicityConfig) PeriodicityResult {
	n := len(samples)
	if n < 3 {
		return PeriodicityResult{}
	}

	smoothed := make([]float64, n)
	for i := range samples {
		lo := i - 2
		if lo < 0 {
			lo = 0
		}
		var sum float64
		for j := lo; j <= i; j++ {
			sum += samples[j].Percent
		}
		smoothed[i] = sum / float64(i-lo+1)
	}

	sorted := append([]float64(nil), smoothed...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	floor := median + cfg.ProminenceStd*stat.PopStdDev(smoothed, nil)

	var peaks []time.Time
	for i := 1; i < n-1; i++ {
		if smoothed[i] <= smoothed[i-1] || smoothed[i] < smoothed[i+1] {
			continue
		}
		if smoothed[i] < cfg.MinAmp || smoothed[i] < floor {
			continue
		}
		if len(peaks) > 0 && samples[i].At.Sub(peaks[len(peaks)-1]) < cfg.MinSeparation {
			continue
		}
		peaks = append(peaks, samples[i].At)
	}

	result := PeriodicityResult{PeakCount: len(peaks)}
	if len(peaks) < cfg.MinPeaks {
		return result
	}

	intervals := make([]float64, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		intervals[i-1] = float64(peaks[i].Sub(peaks[i-1])) / float64(time.Millisecond)
	}
	mean := stat.Mean(intervals, nil)
	intervalStd := stat.PopStdDev(intervals, nil)

	result.Periodic = intervalStd <= float64(cfg.MaxIntervalStd)/float64(time.Millisecond) &&
		mean >= float64(cfg.MinMeanInterval)/float64(time.Millisecond) &&
		mean <= float64(cfg.MaxMeanInterval)/float64(time.Millisecond)
	return result
}

// SoundScore converts the envelope state into the fusion sound component.
// A periodic envelope scores with its peak count; a loud but aperiodic
// low band falls back to a fixed contribution sized by how much history
// backs the verdict.
func SoundScore(env *Envelope, rawBandRatio float64, cfg PeriodicityConfig) (float64, PeriodicityResult) {
	result := DetectPeriodicity(env.Samples(), cfg)
	if result.Periodic {
		score := float64(result.PeakCount) / cfg.ScorePeakCount
		if score > 1 {
			score = 1
		}
		return score, result
	}
	if rawBandRatio > cfg.FallbackRatio {
		if env.Len() >= cfg.SufficientSamples {
			return cfg.FallbackScoreFull, result
		}
		return cfg.FallbackScoreThin, result
	}
	return 0, result
}
