package capture

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum computes single-sided amplitude spectra over fixed-size windows.
type Spectrum struct {
	fft  *fourier.FFT
	n    int
	rate int
}

// NewSpectrum creates a Spectrum for windows of n samples at the given rate.
func NewSpectrum(n, rate int) *Spectrum {
	return &Spectrum{
		fft:  fourier.NewFFT(n),
		n:    n,
		rate: rate,
	}
}

// BinHz returns the frequency width of one spectrum bin.
func (s *Spectrum) BinHz() float64 {
	return float64(s.rate) / float64(s.n)
}

// Magnitudes returns the amplitude spectrum of samples, scaled so a pure sine
// of amplitude A lands at A in its bin. len(samples) must equal the window
// size; the result has n/2+1 bins.
func (s *Spectrum) Magnitudes(samples []float64) []float64 {
	coeffs := s.fft.Coefficients(nil, samples)
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		m := cmplx.Abs(c) / float64(s.n)
		if i != 0 && i != len(coeffs)-1 {
			m *= 2
		}
		mags[i] = m
	}
	return mags
}
