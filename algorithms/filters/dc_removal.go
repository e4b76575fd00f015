package filters

import (
	"math"
)

// DCRemoval is a one-pole DC blocking filter:
//
//	y[n] = x[n] - x[n-1] + R * y[n-1]
//
// Decoded audio is passed through it before analysis so that a constant
// offset does not leak into the low spectral bins or the time envelope.
type DCRemoval struct {
	pole float64

	x1 float64
	y1 float64
}

// NewDCRemoval creates a filter with R = 0.995 (about 35 Hz at 44.1 kHz)
func NewDCRemoval() *DCRemoval {
	return &DCRemoval{pole: 0.995}
}

// NewDCRemovalWithCutoff derives R from the -3 dB cutoff using the small
// angle approximation R = 1 - 2*pi*fc/fs
func NewDCRemovalWithCutoff(sampleRate int, cutoffHz float64) *DCRemoval {
	dc := NewDCRemoval()
	if sampleRate <= 0 || cutoffHz <= 0 {
		return dc
	}

	pole := 1.0 - 2.0*math.Pi*cutoffHz/float64(sampleRate)
	switch {
	case pole >= 1.0:
		pole = 0.999
	case pole <= 0.0:
		pole = 0.001
	}
	dc.pole = pole
	return dc
}

// Process filters a single sample
func (dc *DCRemoval) Process(input float64) float64 {
	output := input - dc.x1 + dc.pole*dc.y1
	dc.x1 = input
	dc.y1 = output
	return output
}

// ProcessBuffer filters a buffer, continuing from the current state
func (dc *DCRemoval) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = dc.Process(sample)
	}
	return output
}

// Reset clears the filter state
func (dc *DCRemoval) Reset() {
	dc.x1 = 0.0
	dc.y1 = 0.0
}

// Pole returns R
func (dc *DCRemoval) Pole() float64 {
	return dc.pole
}

// CutoffFrequency returns the approximate -3 dB cutoff, (1-R)*fs/(2*pi)
func (dc *DCRemoval) CutoffFrequency(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0.0
	}
	return (1.0 - dc.pole) * float64(sampleRate) / (2.0 * math.Pi)
}
