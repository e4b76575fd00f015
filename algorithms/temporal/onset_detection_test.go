package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-tempo/algorithms/spectral"
)

// spikeSeries returns n flux values sampled every 50 ms with a spike of
// height every `every` samples starting at index every
func spikeSeries(n, every int, height float64) ([]float64, []float64) {
	values := make([]float64, n)
	times := make([]float64, n)
	for i := range n {
		times[i] = float64(i) * 50
		if i > 0 && i%every == 0 {
			values[i] = height
		}
	}
	return values, times
}

func TestDetectBandFindsRegularSpikes(t *testing.T) {
	values, times := spikeSeries(105, 10, 100)

	od := NewOnsetDetection()
	onsets := od.DetectBand(values, times, spectral.BandLow)

	require.Len(t, onsets, 10)
	for i, onset := range onsets {
		assert.InDelta(t, float64(i+1)*500, onset.TimeMs, 1e-9)
		assert.Equal(t, spectral.BandLow, onset.Band)
		assert.Greater(t, onset.Strength, 0.0)
	}
}

func TestDetectBandSilenceAndMalformedInput(t *testing.T) {
	od := NewOnsetDetection()

	flat := make([]float64, 80)
	times := make([]float64, 80)
	for i := range times {
		times[i] = float64(i) * 50
	}
	assert.Empty(t, od.DetectBand(flat, times, spectral.BandMid))
	assert.Empty(t, od.DetectBand([]float64{1, 2, 3}, []float64{0, 50}, spectral.BandMid))
	assert.Empty(t, od.DetectBand(nil, nil, spectral.BandMid))
	assert.Empty(t, od.DetectAll(nil))
	assert.Empty(t, od.DetectAll(&spectral.FluxSeries{}))
}

func TestDetectBandRespectsMinimumInterval(t *testing.T) {
	values, times := spikeSeries(60, 10, 100)
	od := NewOnsetDetection()
	od.MinIntervalMs = 600

	onsets := od.DetectBand(values, times, spectral.BandHigh)
	require.NotEmpty(t, onsets)
	for i := 1; i < len(onsets); i++ {
		assert.GreaterOrEqual(t, onsets[i].TimeMs-onsets[i-1].TimeMs, 600.0)
	}
}

func TestDetectAllPoolsBands(t *testing.T) {
	values, times := spikeSeries(105, 10, 100)
	series := &spectral.FluxSeries{TimesMs: times}
	for _, b := range spectral.AllBands {
		series.Values[b] = values
	}

	onsets := NewOnsetDetection().DetectAll(series)

	require.Len(t, onsets, 10)
	for _, onset := range onsets {
		assert.Equal(t, spectral.BandLow, onset.Band)
	}
}

func TestMergeOnsets(t *testing.T) {
	merged := MergeOnsets([]Onset{
		{TimeMs: 200, Band: spectral.BandHigh},
		{TimeMs: 105, Band: spectral.BandLow},
		{TimeMs: 100, Band: spectral.BandMid},
	}, 10)

	require.Len(t, merged, 2)
	assert.Equal(t, 100.0, merged[0].TimeMs)
	assert.Equal(t, spectral.BandMid, merged[0].Band)
	assert.Equal(t, 200.0, merged[1].TimeMs)

	assert.Empty(t, MergeOnsets(nil, 10))
}

func TestIntervalsMs(t *testing.T) {
	onsets := []Onset{{TimeMs: 0}, {TimeMs: 500}, {TimeMs: 1100}}
	assert.Equal(t, []float64{500, 600}, IntervalsMs(onsets))
	assert.Empty(t, IntervalsMs(onsets[:1]))
}
