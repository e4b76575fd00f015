package temporal

import (
	"math"
)

// Envelope provides amplitude envelope extraction
type Envelope struct{}

// NewEnvelope creates a new envelope extractor
func NewEnvelope() *Envelope {
	return &Envelope{}
}

// ComputeRMS computes RMS envelope with given frame and hop sizes
func (e *Envelope) ComputeRMS(signal []float64, frameSize, hopSize int) []float64 {
	if len(signal) < frameSize || frameSize <= 0 || hopSize <= 0 {
		return []float64{}
	}

	numFrames := (len(signal)-frameSize)/hopSize + 1
	envelope := make([]float64, numFrames)

	for i := range numFrames {
		startIdx := i * hopSize
		endIdx := startIdx + frameSize

		sumSquares := 0.0
		for j := startIdx; j < endIdx; j++ {
			sumSquares += signal[j] * signal[j]
		}
		envelope[i] = math.Sqrt(sumSquares / float64(frameSize))
	}

	return envelope
}

// Decimate reduces signal from sampleRate to roughly targetRate by taking
// the RMS of consecutive non-overlapping blocks. It returns the envelope and
// the rate actually achieved.
func (e *Envelope) Decimate(signal []float64, sampleRate, targetRate float64) ([]float64, float64) {
	if sampleRate <= 0 || targetRate <= 0 || len(signal) == 0 {
		return []float64{}, 0
	}

	block := int(math.Round(sampleRate / targetRate))
	if block <= 1 {
		out := make([]float64, len(signal))
		for i, s := range signal {
			out[i] = math.Abs(s)
		}
		return out, sampleRate
	}

	return e.ComputeRMS(signal, block, block), sampleRate / float64(block)
}
