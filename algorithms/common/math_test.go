package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanVariance(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.Equal(t, 5.0, Mean(data))
	assert.InDelta(t, 32.0/7.0, Variance(data), 1e-12)

	mean, std := PopulationMeanStdDev(data)
	assert.Equal(t, 5.0, mean)
	assert.InDelta(t, 2.0, std, 1e-12)

	assert.Zero(t, Mean(nil))
	assert.Zero(t, StandardDeviation([]float64{3}))
	assert.Equal(t, 40.0, Sum(data))
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{1, 2, 3})
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, out, 1e-12)

	constant := Normalize([]float64{4, 4, 4})
	assert.Equal(t, []float64{0, 0, 0}, constant)
}

func TestCenteredMovingAverage(t *testing.T) {
	out := CenteredMovingAverage([]float64{3, 0, 3, 0}, 3)
	assert.InDeltaSlice(t, []float64{1.5, 2, 1, 1.5}, out, 1e-12)

	in := []float64{1, 2}
	same := CenteredMovingAverage(in, 1)
	assert.Equal(t, in, same)
	same[0] = 9
	assert.Equal(t, 1.0, in[0], "input is not aliased")
}

func TestCircularShift(t *testing.T) {
	values := []float64{0, 1, 2, 3}
	assert.Equal(t, []float64{3, 0, 1, 2}, CircularShift(values, 1))
	assert.Equal(t, []float64{1, 2, 3, 0}, CircularShift(values, -1))
	assert.Equal(t, values, CircularShift(values, 8))
	assert.Empty(t, CircularShift(nil, 3))
}

func TestFiniteGuards(t *testing.T) {
	assert.True(t, IsFinite(1))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(-1)))
	assert.Equal(t, 0.8, Finite(math.NaN(), 0.8))
	assert.Equal(t, 0.5, Finite(0.5, 0.8))
	assert.Equal(t, 1.0, Clamp(3, 0, 1))
	assert.Equal(t, 0.0, Clamp(-3, 0, 1))
}

func TestDecibelsToAmplitude(t *testing.T) {
	assert.InDelta(t, 0.1, DecibelsToAmplitude(-20, -100), 1e-12)
	assert.Equal(t, 1.0, DecibelsToAmplitude(0, -100))
	assert.Zero(t, DecibelsToAmplitude(-100, -100))
	assert.Zero(t, DecibelsToAmplitude(math.Inf(-1), -100))
	assert.Zero(t, DecibelsToAmplitude(math.Inf(1), -100))
	assert.Zero(t, DecibelsToAmplitude(math.NaN(), -100))
}

func TestPositiveMod(t *testing.T) {
	assert.Equal(t, 11, PositiveMod(-1, 12))
	assert.Equal(t, 2, PositiveMod(14, 12))
	assert.Equal(t, 0, PositiveMod(5, 0))
}
