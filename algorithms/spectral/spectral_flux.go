package spectral

import (
	"math"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
)

// Band identifies one of the flux sub-bands
type Band int

const (
	BandLow Band = iota
	BandMid
	BandHigh
	BandCombined
)

// AllBands lists every band in a fixed order
var AllBands = [...]Band{BandLow, BandMid, BandHigh, BandCombined}

func (b Band) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandMid:
		return "mid"
	case BandHigh:
		return "high"
	case BandCombined:
		return "combined"
	default:
		return "unknown"
	}
}

// FluxSeries holds the smoothed per-band flux energies of a session and the
// capture time of every entry. All bands always have len(TimesMs) entries.
type FluxSeries struct {
	Values  [4][]float64
	TimesMs []float64
}

// Len returns the number of captured entries
func (s *FluxSeries) Len() int {
	return len(s.TimesMs)
}

// Band returns the series for one band
func (s *FluxSeries) Band(b Band) []float64 {
	if b < BandLow || b > BandCombined {
		return nil
	}
	return s.Values[b]
}

// FluxTracker turns successive dB frames into band-split spectral flux.
//
// Only the lowest eighth of the spectrum is inspected, where rhythmic
// energy lives. That region is split into thirds for the low/mid/high bands.
type FluxTracker struct {
	BassBoost            float64
	VocalDiscount        float64
	BassCutoffHz         float64
	VocalCutoffHz        float64
	Smoothing            float64
	SmoothingMidDominant float64
	MinDecibels          float64

	prev       []float64
	cumulative [3]float64
	series     FluxSeries
}

// NewFluxTracker creates a tracker with the default weighting
func NewFluxTracker() *FluxTracker {
	return &FluxTracker{
		BassBoost:            1.5,
		VocalDiscount:        0.85,
		BassCutoffHz:         200,
		VocalCutoffHz:        2000,
		Smoothing:            0.6,
		SmoothingMidDominant: 0.4,
		MinDecibels:          -100,
	}
}

// Update consumes one frequency frame captured at timeMs. The frame is
// copied. sampleRate is the rate of the signal the frame was computed from.
func (ft *FluxTracker) Update(frame []float64, timeMs, sampleRate float64) {
	cur := make([]float64, len(frame))
	for i, v := range frame {
		if !common.IsFinite(v) || v < ft.MinDecibels {
			v = ft.MinDecibels
		}
		cur[i] = v
	}

	if ft.prev == nil || len(ft.prev) != len(cur) || len(cur) == 0 {
		ft.prev = cur
		ft.appendRaw([4]float64{}, timeMs)
		return
	}

	raw := ft.bandFlux(cur, sampleRate)
	ft.prev = cur

	ft.cumulative[BandLow] += raw[BandLow]
	ft.cumulative[BandMid] += raw[BandMid]
	ft.cumulative[BandHigh] += raw[BandHigh]

	ft.appendRaw(raw, timeMs)
}

func (ft *FluxTracker) bandFlux(cur []float64, sampleRate float64) [4]float64 {
	var raw [4]float64

	n := len(cur)
	limit := n / 8
	if limit == 0 {
		return raw
	}
	third := max(limit/3, 1)

	bassHeavy := ft.cumulative[BandLow] > ft.cumulative[BandMid]+ft.cumulative[BandHigh]
	binHz := 0.0
	if sampleRate > 0 {
		binHz = sampleRate / float64(2*n)
	}

	for i := 0; i < limit; i++ {
		diff := cur[i] - ft.prev[i]
		if diff <= 0 {
			continue
		}
		weighted := diff * diff * ft.frequencyWeight(float64(i)*binHz, bassHeavy)

		switch {
		case i < third:
			raw[BandLow] += weighted
		case i < 2*third:
			raw[BandMid] += weighted
		default:
			raw[BandHigh] += weighted
		}
		raw[BandCombined] += weighted
	}

	return raw
}

func (ft *FluxTracker) frequencyWeight(freq float64, bassHeavy bool) float64 {
	switch {
	case freq < ft.BassCutoffHz:
		if bassHeavy {
			return ft.BassBoost
		}
		return 1.0
	case freq <= ft.VocalCutoffHz:
		return ft.VocalDiscount
	default:
		return 1.0
	}
}

func (ft *FluxTracker) appendRaw(raw [4]float64, timeMs float64) {
	alpha := ft.Smoothing
	if ft.cumulative[BandMid] > ft.cumulative[BandLow] && ft.cumulative[BandMid] > ft.cumulative[BandHigh] {
		alpha = ft.SmoothingMidDominant
	}

	for _, b := range AllBands {
		values := ft.series.Values[b]
		smoothed := raw[b]
		if len(values) > 0 {
			smoothed = raw[b]*alpha + values[len(values)-1]*(1-alpha)
		}
		if math.IsNaN(smoothed) || math.IsInf(smoothed, 0) {
			smoothed = 0
		}
		ft.series.Values[b] = append(values, smoothed)
	}
	ft.series.TimesMs = append(ft.series.TimesMs, timeMs)
}

// Series returns the accumulated flux series. The slices are shared with the
// tracker and must not be modified.
func (ft *FluxTracker) Series() *FluxSeries {
	return &ft.series
}

// PrimaryBand returns the sub-band with the largest cumulative energy
func (ft *FluxTracker) PrimaryBand() Band {
	best := BandLow
	for _, b := range []Band{BandMid, BandHigh} {
		if ft.cumulative[b] > ft.cumulative[best] {
			best = b
		}
	}
	return best
}

// Reset clears all state
func (ft *FluxTracker) Reset() {
	ft.prev = nil
	ft.cumulative = [3]float64{}
	ft.series = FluxSeries{}
}
