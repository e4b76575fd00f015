package temporal

import (
	"sort"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
	"github.com/RyanBlaney/sonido-tempo/algorithms/spectral"
)

// Onset is a detected rhythmic event
type Onset struct {
	TimeMs   float64
	Strength float64
	Band     spectral.Band
}

var onsetKernel = [5]float64{0.1, 0.2, 0.4, 0.2, 0.1}

// OnsetDetector picks onsets from flux series with an adaptive threshold
type OnsetDetector struct {
	// WindowRadius is the half-width, in samples, of the threshold window
	WindowRadius int
	// ThresholdK scales the local standard deviation
	ThresholdK    float64
	MinThreshold  float64
	MinIntervalMs float64
	// MergeToleranceMs collapses pooled onsets closer than this
	MergeToleranceMs float64
}

// NewOnsetDetection creates a detector with the default parameters
func NewOnsetDetection() *OnsetDetector {
	return &OnsetDetector{
		WindowRadius:     60,
		ThresholdK:       1.0,
		MinThreshold:     1e-3,
		MinIntervalMs:    60,
		MergeToleranceMs: 10,
	}
}

// DetectAll runs detection on every band of the series and returns the
// pooled, time-sorted, deduplicated onsets
func (od *OnsetDetector) DetectAll(series *spectral.FluxSeries) []Onset {
	if series == nil || series.Len() == 0 {
		return []Onset{}
	}

	var pooled []Onset
	for _, band := range spectral.AllBands {
		pooled = append(pooled, od.DetectBand(series.Band(band), series.TimesMs, band)...)
	}

	return MergeOnsets(pooled, od.MergeToleranceMs)
}

// DetectBand finds onsets in a single band. values and timesMs must have the
// same length; anything else yields no onsets.
func (od *OnsetDetector) DetectBand(values, timesMs []float64, band spectral.Band) []Onset {
	n := len(values)
	if n < 2 || len(timesMs) != n {
		return []Onset{}
	}

	smoothed := smoothKernel(values)

	diff := make([]float64, n)
	for i := 1; i < n; i++ {
		d := smoothed[i] - smoothed[i-1]
		if d > 0 && common.IsFinite(d) {
			diff[i] = d
		}
	}

	thresholds := od.AdaptiveThreshold(diff)

	var onsets []Onset
	lastOnset := -1.0
	for i := 1; i < n; i++ {
		if diff[i] <= thresholds[i] {
			continue
		}
		if diff[i] < diff[i-1] {
			continue
		}
		if i < n-1 && diff[i] <= diff[i+1] {
			continue
		}
		if lastOnset >= 0 && timesMs[i]-lastOnset < od.MinIntervalMs {
			continue
		}

		onsets = append(onsets, Onset{TimeMs: timesMs[i], Strength: diff[i], Band: band})
		lastOnset = timesMs[i]
	}

	return onsets
}

// AdaptiveThreshold computes mean + K·std over a sliding window around
// every sample, floored at MinThreshold
func (od *OnsetDetector) AdaptiveThreshold(diff []float64) []float64 {
	thresholds := make([]float64, len(diff))
	for i := range diff {
		start := max(i-od.WindowRadius, 0)
		end := min(i+od.WindowRadius+1, len(diff))

		mean, std := common.PopulationMeanStdDev(diff[start:end])
		t := mean + od.ThresholdK*std
		if !common.IsFinite(t) || t < od.MinThreshold {
			t = od.MinThreshold
		}
		thresholds[i] = t
	}
	return thresholds
}

// smoothKernel applies the 5-tap smoothing kernel, renormalizing the weights
// that fall inside the signal at the edges
func smoothKernel(values []float64) []float64 {
	out := make([]float64, len(values))
	half := len(onsetKernel) / 2
	for i := range values {
		sum, weight := 0.0, 0.0
		for k, w := range onsetKernel {
			j := i + k - half
			if j < 0 || j >= len(values) {
				continue
			}
			sum += values[j] * w
			weight += w
		}
		if weight > 0 {
			out[i] = sum / weight
		}
	}
	return out
}

// MergeOnsets sorts onsets by time and drops any onset that falls within
// toleranceMs of the previously kept one
func MergeOnsets(onsets []Onset, toleranceMs float64) []Onset {
	if len(onsets) == 0 {
		return []Onset{}
	}

	sorted := make([]Onset, len(onsets))
	copy(sorted, onsets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimeMs < sorted[j].TimeMs
	})

	unique := []Onset{sorted[0]}
	for _, onset := range sorted[1:] {
		if onset.TimeMs-unique[len(unique)-1].TimeMs <= toleranceMs {
			continue
		}
		unique = append(unique, onset)
	}

	return unique
}

// IntervalsMs returns the gaps between consecutive onsets
func IntervalsMs(onsets []Onset) []float64 {
	if len(onsets) < 2 {
		return []float64{}
	}
	intervals := make([]float64, 0, len(onsets)-1)
	for i := 1; i < len(onsets); i++ {
		intervals = append(intervals, onsets[i].TimeMs-onsets[i-1].TimeMs)
	}
	return intervals
}
