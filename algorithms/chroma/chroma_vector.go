package chroma

import (
	"math"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
)

// ChromaVector holds one energy value per pitch class, C through B
type ChromaVector [12]float64

// Sum returns the total energy
func (cv ChromaVector) Sum() float64 {
	return common.Sum(cv[:])
}

// Peak returns the largest value and its pitch class
func (cv ChromaVector) Peak() (float64, int) {
	best, idx := cv[0], 0
	for i, v := range cv {
		if v > best {
			best, idx = v, i
		}
	}
	return best, idx
}

// Normalized returns the vector scaled to unit sum. A zero vector is
// returned unchanged.
func (cv ChromaVector) Normalized() ChromaVector {
	sum := cv.Sum()
	if sum <= 0 || !common.IsFinite(sum) {
		return cv
	}
	var out ChromaVector
	for i, v := range cv {
		out[i] = v / sum
	}
	return out
}

// Rotate shifts the vector up by k semitones
func (cv ChromaVector) Rotate(k int) ChromaVector {
	var out ChromaVector
	copy(out[:], common.CircularShift(cv[:], k))
	return out
}

// Smoothed applies circular neighbour smoothing with the given centre weight;
// the remainder is split between the two neighbours
func (cv ChromaVector) Smoothed(centre float64) ChromaVector {
	side := (1 - centre) / 2
	var out ChromaVector
	for i := range cv {
		out[i] = centre*cv[i] + side*(cv[(i+11)%12]+cv[(i+1)%12])
	}
	return out
}

// Accumulator keeps the most recent frequency frames and folds them into a
// chroma vector on demand
type Accumulator struct {
	Capacity      int
	MinFrequency  float64
	MaxFrequency  float64
	MinDecibels   float64
	HarmonicBoost float64
	// HarmonicTolerance is the relative distance to a reference multiple
	// within which HarmonicBoost applies
	HarmonicTolerance float64
	HarmonicRefs      []float64
	SmoothingCentre   float64
	MinPeak           float64

	frames     [][]float64
	next       int
	sampleRate float64
}

// NewAccumulator creates an accumulator holding up to capacity frames
func NewAccumulator(capacity int) *Accumulator {
	if capacity <= 0 {
		capacity = 100
	}
	return &Accumulator{
		Capacity:          capacity,
		MinFrequency:      60,
		MaxFrequency:      5000,
		MinDecibels:       -100,
		HarmonicBoost:     1.2,
		HarmonicTolerance: 0.015,
		HarmonicRefs:      []float64{440, 220, 110, 55},
		SmoothingCentre:   0.8,
		MinPeak:           1e-4,
	}
}

// Add stores a copy of frame, evicting the oldest once full. Frames are dB
// magnitudes of a signal sampled at sampleRate.
func (a *Accumulator) Add(frame []float64, sampleRate float64) {
	if len(frame) == 0 || sampleRate <= 0 {
		return
	}
	cp := make([]float64, len(frame))
	copy(cp, frame)
	a.sampleRate = sampleRate

	if len(a.frames) < a.Capacity {
		a.frames = append(a.frames, cp)
		return
	}
	a.frames[a.next] = cp
	a.next = (a.next + 1) % a.Capacity
}

// Len returns the number of stored frames
func (a *Accumulator) Len() int {
	return len(a.frames)
}

// Reset drops every stored frame
func (a *Accumulator) Reset() {
	a.frames = nil
	a.next = 0
	a.sampleRate = 0
}

// Compute averages the chroma of the stored frames, smooths it, and returns
// it normalized to unit sum. ok is false when the loudest pitch class has a
// mean per-bin amplitude below MinPeak, meaning there is not enough tonal
// energy to classify. The gate does not depend on the frame size.
func (a *Accumulator) Compute() (ChromaVector, bool) {
	var total ChromaVector
	if len(a.frames) == 0 {
		return total, false
	}

	minMIDI := FrequencyToMIDI(a.MinFrequency)
	maxMIDI := FrequencyToMIDI(a.MaxFrequency)
	centre := (minMIDI + maxMIDI) / 2
	halfWidth := (maxMIDI - minMIDI) / 2

	var level ChromaVector
	for _, frame := range a.frames {
		contribution, bins := a.frameChroma(frame, centre, halfWidth)
		for i := range total {
			total[i] += contribution[i]
			if bins[i] > 0 {
				level[i] += contribution[i] / float64(bins[i])
			}
		}
	}
	for i := range total {
		total[i] /= float64(len(a.frames))
		level[i] /= float64(len(a.frames))
	}

	smoothed := total.Smoothed(a.SmoothingCentre)
	peak, _ := level.Peak()
	if peak < a.MinPeak || !common.IsFinite(peak) {
		return smoothed, false
	}

	return smoothed.Normalized(), true
}

// frameChroma folds one frame into pitch classes. bins counts the in-range
// bins mapped to each class.
func (a *Accumulator) frameChroma(frame []float64, centre, halfWidth float64) (out ChromaVector, bins [12]int) {
	binHz := a.sampleRate / float64(2*len(frame))

	for i, db := range frame {
		freq := float64(i) * binHz
		if freq < a.MinFrequency || freq > a.MaxFrequency {
			continue
		}

		midi := FrequencyToMIDI(freq)
		pc := common.PositiveMod(int(math.Round(midi)), 12)
		bins[pc]++

		amplitude := common.DecibelsToAmplitude(db, a.MinDecibels)
		if amplitude == 0 {
			continue
		}

		weight := amplitude
		if a.isHarmonic(freq) {
			weight *= a.HarmonicBoost
		}
		if halfWidth > 0 {
			weight *= 1 - 0.5*math.Abs(midi-centre)/halfWidth
		}

		out[pc] += weight
	}

	return out, bins
}

func (a *Accumulator) isHarmonic(freq float64) bool {
	for _, ref := range a.HarmonicRefs {
		k := math.Round(freq / ref)
		if k < 1 {
			continue
		}
		if math.Abs(freq-k*ref) <= a.HarmonicTolerance*k*ref {
			return true
		}
	}
	return false
}
