package analysis

import (
	"math"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
)

// TempoRatio is the factor by which playback speeds up the original tempo
func (t Transform) TempoRatio() float64 {
	rate := t.PlaybackRate
	if rate <= 0 || !common.IsFinite(rate) {
		rate = 1
	}
	if t.TransposeMode && common.IsFinite(t.PitchOffset) {
		rate *= math.Pow(2, t.PitchOffset/12)
	}
	return rate
}

// OriginalBPM converts a tempo measured on the transformed audio back to
// the tempo of the original recording
func (t Transform) OriginalBPM(detected float64) float64 {
	return detected / t.TempoRatio()
}

// KeyShift is the number of semitones the audio is pitched by
func (t Transform) KeyShift() float64 {
	return common.Finite(t.PitchOffset, 0)
}
