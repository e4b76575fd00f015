package temporal

import (
	"github.com/mjibson/go-dsp/window"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
)

// Autocorrelation estimates tempo from the periodicity of a time-domain
// buffer, independently of onset detection
type Autocorrelation struct {
	MinStdDev      float64
	ThresholdRatio float64
	// SearchMinBPM and SearchMaxBPM bound the lag search
	SearchMinBPM float64
	SearchMaxBPM float64
	// MinBPM and MaxBPM bound the reported tempo
	MinBPM float64
	MaxBPM float64
}

// NewAutocorrelation creates an estimator with the default tuning
func NewAutocorrelation() *Autocorrelation {
	return &Autocorrelation{
		MinStdDev:      1e-4,
		ThresholdRatio: 0.15,
		SearchMinBPM:   40,
		SearchMaxBPM:   240,
		MinBPM:         50,
		MaxBPM:         200,
	}
}

// Estimate returns the tempo of the strongest periodicity in samples
func (ac *Autocorrelation) Estimate(samples []float64, sampleRate float64) (TempoCandidate, bool) {
	n := len(samples)
	if n < 4 || sampleRate <= 0 {
		return TempoCandidate{}, false
	}
	for _, s := range samples {
		if !common.IsFinite(s) {
			return TempoCandidate{}, false
		}
	}

	if common.StandardDeviation(samples) < ac.MinStdDev {
		return TempoCandidate{}, false
	}

	prepared := common.Normalize(samples)
	hann := window.Hann(n)
	for i := range prepared {
		prepared[i] *= hann[i]
	}
	prepared = common.CenteredMovingAverage(prepared, 3)

	minLag := max(int(60*sampleRate/ac.SearchMaxBPM), 1)
	maxLag := min(int(60*sampleRate/ac.SearchMinBPM), n/2)
	if minLag >= maxLag {
		return TempoCandidate{}, false
	}

	r0 := autocorrelationAt(prepared, 0)
	if r0 <= 0 {
		return TempoCandidate{}, false
	}
	threshold := ac.ThresholdRatio * r0

	// One lag of margin on each side for the local maximum test
	corr := make([]float64, maxLag+2)
	for lag := max(minLag-1, 1); lag <= maxLag+1 && lag < n; lag++ {
		corr[lag] = autocorrelationAt(prepared, lag)
	}

	bestLag := 0
	bestVal := threshold
	for lag := minLag; lag <= maxLag; lag++ {
		v := corr[lag]
		if v <= bestVal {
			continue
		}
		if v < corr[lag-1] || v < corr[lag+1] {
			continue
		}
		bestLag = lag
		bestVal = v
	}

	if bestLag == 0 {
		return TempoCandidate{}, false
	}

	bpm := FoldTempo(60*sampleRate/float64(bestLag), ac.MinBPM, ac.MaxBPM)
	return TempoCandidate{BPM: bpm, Score: bestVal / r0}, true
}

// autocorrelationAt is the mean lagged product over the overlapping region
func autocorrelationAt(x []float64, lag int) float64 {
	count := len(x) - lag
	if count <= 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < count; i++ {
		sum += x[i] * x[i+lag]
	}
	return sum / float64(count)
}

// FoldTempo moves bpm into [minBPM, maxBPM] by octave steps
func FoldTempo(bpm, minBPM, maxBPM float64) float64 {
	if bpm <= 0 || !common.IsFinite(bpm) || minBPM <= 0 || maxBPM < 2*minBPM {
		return bpm
	}
	for bpm > maxBPM {
		bpm /= 2
	}
	for bpm < minBPM {
		bpm *= 2
	}
	return bpm
}
