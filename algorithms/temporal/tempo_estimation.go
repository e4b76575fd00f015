package temporal

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-tempo/algorithms/spectral"
)

// TempoCandidate is a BPM estimate produced by one method
type TempoCandidate struct {
	BPM   float64
	Score float64
}

// TempoEstimation votes inter-onset intervals into a BPM histogram and
// corrects octave errors in the winner
type TempoEstimation struct {
	MinOnsets     int
	MinBPM        float64
	MaxBPM        float64
	BucketWidth   float64
	PreferredLow  float64
	PreferredHigh float64
	// PreferredWeight multiplies votes that fall in the preferred range
	PreferredWeight float64
	BandWeights     map[spectral.Band]float64
	// OctaveTolerance is the relative period tolerance when counting
	// intervals that agree with an octave candidate
	OctaveTolerance float64
}

// NewTempoEstimation creates a histogram estimator with the default tuning
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{
		MinOnsets:       10,
		MinBPM:          50,
		MaxBPM:          200,
		BucketWidth:     0.5,
		PreferredLow:    80,
		PreferredHigh:   140,
		PreferredWeight: 2.5,
		BandWeights: map[spectral.Band]float64{
			spectral.BandLow:      1.15,
			spectral.BandCombined: 1.0,
			spectral.BandMid:      0.95,
			spectral.BandHigh:     0.9,
		},
		OctaveTolerance: 0.01,
	}
}

type tempoBucket struct {
	weight float64
	bpmSum float64
	votes  int
}

// Estimate returns the histogram winner after octave correction. It reports
// false when there are too few onsets or no interval maps into range.
func (te *TempoEstimation) Estimate(onsets []Onset) (TempoCandidate, bool) {
	if len(onsets) < te.MinOnsets {
		return TempoCandidate{}, false
	}

	buckets := make(map[int]*tempoBucket)
	totalWeight := 0.0

	for i := 1; i < len(onsets); i++ {
		interval := onsets[i].TimeMs - onsets[i-1].TimeMs
		if interval <= 0 {
			continue
		}
		bpm := 60000.0 / interval
		if bpm < te.MinBPM || bpm > te.MaxBPM {
			continue
		}

		weight := 1.0
		if te.inPreferredRange(bpm) {
			weight = te.PreferredWeight
		}
		if bw, ok := te.BandWeights[onsets[i].Band]; ok {
			weight *= bw
		}

		key := int(math.Round(bpm / te.BucketWidth))
		b, ok := buckets[key]
		if !ok {
			b = &tempoBucket{}
			buckets[key] = b
		}
		b.weight += weight
		b.bpmSum += bpm
		b.votes++
		totalWeight += weight
	}

	if len(buckets) == 0 || totalWeight == 0 {
		return TempoCandidate{}, false
	}

	// Fixed iteration order keeps ties deterministic
	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var winner *tempoBucket
	for _, k := range keys {
		if winner == nil || buckets[k].weight > winner.weight {
			winner = buckets[k]
		}
	}

	bpm := winner.bpmSum / float64(winner.votes)
	bpm = te.ResolveOctave(bpm, IntervalsMs(onsets))

	return TempoCandidate{BPM: bpm, Score: winner.weight / totalWeight}, true
}

// ResolveOctave picks between bpm, its double and its half by counting the
// intervals consistent with each candidate's period. Ties go to a candidate
// inside the preferred range, then to bpm itself.
func (te *TempoEstimation) ResolveOctave(bpm float64, intervalsMs []float64) float64 {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return bpm
	}

	candidates := []float64{bpm}
	for _, c := range []float64{bpm * 2, bpm / 2} {
		if c >= te.MinBPM && c <= te.MaxBPM {
			candidates = append(candidates, c)
		}
	}

	best := bpm
	bestMatches := te.countMatches(bpm, intervalsMs)
	for _, c := range candidates[1:] {
		matches := te.countMatches(c, intervalsMs)
		switch {
		case matches > bestMatches:
			best, bestMatches = c, matches
		case matches == bestMatches && te.inPreferredRange(c) && !te.inPreferredRange(best):
			best = c
		}
	}

	return best
}

func (te *TempoEstimation) countMatches(bpm float64, intervalsMs []float64) int {
	period := 60000.0 / bpm
	count := 0
	for _, iv := range intervalsMs {
		if periodMatches(iv, period, te.OctaveTolerance) {
			count++
		}
	}
	return count
}

func (te *TempoEstimation) inPreferredRange(bpm float64) bool {
	return bpm >= te.PreferredLow && bpm <= te.PreferredHigh
}

// periodMatches reports whether interval lies within tol (relative) of the
// period, half the period, or double the period
func periodMatches(interval, period, tol float64) bool {
	for _, p := range [...]float64{period, period / 2, period * 2} {
		if math.Abs(interval-p) <= tol*p {
			return true
		}
	}
	return false
}
