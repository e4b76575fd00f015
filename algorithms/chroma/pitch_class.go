package chroma

import (
	"math"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
)

// PitchClassNames are the pitch class names starting from C
var PitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClassName returns the name of pitch class pc (taken mod 12)
func PitchClassName(pc int) string {
	return PitchClassNames[common.PositiveMod(pc, 12)]
}

// FrequencyToMIDI converts a frequency in Hz to a fractional MIDI number
// with A4 = 440 Hz = 69
func FrequencyToMIDI(freq float64) float64 {
	return 12*math.Log2(freq/440.0) + 69
}

// FrequencyToPitchClass returns the pitch class (0 = C) nearest to freq
func FrequencyToPitchClass(freq float64) int {
	return common.PositiveMod(int(math.Round(FrequencyToMIDI(freq))), 12)
}
