package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
)

// ConfidenceScorer rates how well an onset sequence agrees with a tempo
type ConfidenceScorer struct {
	MinOnsets     int
	Floor         float64
	Ceiling       float64
	Tolerance     float64
	PreferredLow  float64
	PreferredHigh float64

	StabilityWeight float64
	EnergyWeight    float64
	BonusWeight     float64
}

// NewConfidenceScorer creates a scorer with the default weights
func NewConfidenceScorer() *ConfidenceScorer {
	return &ConfidenceScorer{
		MinOnsets:       10,
		Floor:           0.8,
		Ceiling:         0.98,
		Tolerance:       0.01,
		PreferredLow:    80,
		PreferredHigh:   140,
		StabilityWeight: 0.5,
		EnergyWeight:    0.2,
		BonusWeight:     0.3,
	}
}

// Score returns a confidence in [Floor, Ceiling]. Too few onsets or an
// unusable tempo score exactly Floor.
func (cs *ConfidenceScorer) Score(bpm float64, onsets []Onset) float64 {
	if len(onsets) < cs.MinOnsets || bpm <= 0 || !common.IsFinite(bpm) {
		return cs.Floor
	}

	period := 60000.0 / bpm
	intervals := IntervalsMs(onsets)

	stable := 0
	for _, iv := range intervals {
		if periodMatches(iv, period, cs.Tolerance) {
			stable++
		}
	}
	stability := float64(stable) / float64(len(intervals))

	span := onsets[len(onsets)-1].TimeMs - onsets[0].TimeMs
	expected := float64(len(onsets)-1) * period
	energy := 0.0
	if span > 0 && expected > 0 {
		ratio := span / expected
		energy = common.Clamp(math.Min(ratio, 1/ratio), 0, 1)
	}

	bonus := 0.0
	if bpm >= cs.PreferredLow && bpm <= cs.PreferredHigh {
		bonus = 1.0
	}

	score := cs.StabilityWeight*stability + cs.EnergyWeight*energy + cs.BonusWeight*bonus
	if math.IsNaN(score) {
		return cs.Floor
	}
	return common.Clamp(score, cs.Floor, cs.Ceiling)
}
