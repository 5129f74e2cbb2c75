package capture

import (
	"math"
	"testing"
)

func TestSpectrumDCComponent(t *testing.T) {
	s := NewSpectrum(256, 2560)

	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 0.25
	}
	mags := s.Magnitudes(samples)

	if math.Abs(mags[0]-0.25) > 1e-9 {
		t.Errorf("DC magnitude = %v, want 0.25", mags[0])
	}
	for i := 1; i < len(mags); i++ {
		if mags[i] > 1e-9 {
			t.Fatalf("Bin %d = %v, want ~0 for a DC signal", i, mags[i])
		}
	}
}

func TestSpectrumPureSine(t *testing.T) {
	const (
		n    = 256
		bin  = 8
		amp  = 0.8
		rate = 2560
	)
	s := NewSpectrum(n, rate)

	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*float64(bin)*float64(i)/float64(n))
	}
	mags := s.Magnitudes(samples)

	if math.Abs(mags[bin]-amp) > 1e-6 {
		t.Errorf("Bin %d = %v, want %v", bin, mags[bin], amp)
	}
	for i := range mags {
		if i == bin {
			continue
		}
		if mags[i] > 1e-6 {
			t.Fatalf("Bin %d = %v, want ~0 (leakage-free integer bin)", i, mags[i])
		}
	}
}

func TestSpectrumBinHz(t *testing.T) {
	s := NewSpectrum(2048, 16000)
	if math.Abs(s.BinHz()-7.8125) > 1e-12 {
		t.Errorf("BinHz = %v, want 7.8125", s.BinHz())
	}
}

func TestSpectrumBinCount(t *testing.T) {
	s := NewSpectrum(128, 1000)
	mags := s.Magnitudes(make([]float64, 128))
	if len(mags) != 65 {
		t.Errorf("len = %d, want 65", len(mags))
	}
}
