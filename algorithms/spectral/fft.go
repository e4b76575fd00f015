package spectral

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Analyser produces dB magnitude frames the way a streaming spectrum
// analyser does: Hann window, FFT via mjibson/go-dsp, time smoothing of the
// linear magnitudes, then conversion to decibels floored at MinDecibels.
type Analyser struct {
	FFTSize     int
	Smoothing   float64
	MinDecibels float64

	window   []float64
	smoothed []float64
}

// NewAnalyser creates an analyser. fftSize should be a power of two; the
// frames it returns have fftSize/2 bins.
func NewAnalyser(fftSize int, smoothing, minDecibels float64) *Analyser {
	if fftSize < 2 {
		fftSize = 2048
	}
	return &Analyser{
		FFTSize:     fftSize,
		Smoothing:   smoothing,
		MinDecibels: minDecibels,
		window:      window.Hann(fftSize),
		smoothed:    make([]float64, fftSize/2),
	}
}

// BinCount returns the number of bins in each frame
func (a *Analyser) BinCount() int {
	return a.FFTSize / 2
}

// Compute transforms the most recent FFTSize samples into a dB frame.
// Shorter input is zero padded at the front.
func (a *Analyser) Compute(samples []float64) []float64 {
	frame := make([]float64, a.FFTSize)
	if len(samples) >= a.FFTSize {
		copy(frame, samples[len(samples)-a.FFTSize:])
	} else {
		copy(frame[a.FFTSize-len(samples):], samples)
	}

	for i := range frame {
		frame[i] *= a.window[i]
	}

	spectrum := fft.FFTReal(frame)

	bins := a.BinCount()
	out := make([]float64, bins)
	scale := 1.0 / float64(a.FFTSize)
	for k := 0; k < bins; k++ {
		mag := cmplx.Abs(spectrum[k]) * scale
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			mag = 0
		}
		a.smoothed[k] = a.Smoothing*a.smoothed[k] + (1-a.Smoothing)*mag

		db := a.MinDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		out[k] = math.Max(db, a.MinDecibels)
	}

	return out
}

// Reset clears the smoothing history
func (a *Analyser) Reset() {
	clear(a.smoothed)
}
