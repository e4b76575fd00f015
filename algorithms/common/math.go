package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the analysis algorithms, backed by gonum

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Variance calculates the sample variance of a slice using gonum
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.Variance(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return math.Sqrt(Variance(data))
}

// PopulationMeanStdDev returns the mean and the population (1/N) standard
// deviation of data. Used for sliding-window thresholds where the window is
// the whole population.
func PopulationMeanStdDev(data []float64) (mean, std float64) {
	if len(data) == 0 {
		return 0.0, 0.0
	}
	mean, variance := stat.PopMeanVariance(data, nil)
	if variance < 0 || !IsFinite(variance) {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// Sum adds up the values in data
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Sum(data)
}

// Normalize normalizes data to zero mean and unit variance
func Normalize(data []float64) []float64 {
	if len(data) == 0 {
		return data
	}

	mean := Mean(data)
	std := StandardDeviation(data)

	normalized := make([]float64, len(data))
	if std < 1e-10 {
		// Constant data: only remove the mean
		for i, val := range data {
			normalized[i] = val - mean
		}
		return normalized
	}

	for i, val := range data {
		normalized[i] = (val - mean) / std
	}

	return normalized
}

// CenteredMovingAverage smooths data with a centered window of the given
// (odd) width. The window shrinks at the edges instead of padding.
func CenteredMovingAverage(data []float64, width int) []float64 {
	if len(data) == 0 || width <= 1 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}

	half := width / 2
	result := make([]float64, len(data))
	for i := range data {
		start := max(i-half, 0)
		end := min(i+half+1, len(data))
		sum := 0.0
		for j := start; j < end; j++ {
			sum += data[j]
		}
		result[i] = sum / float64(end-start)
	}

	return result
}

// CircularShift rotates values right by shift positions, so that
// out[(i+shift) mod n] = values[i]
func CircularShift(values []float64, shift int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	shift = ((shift % n) + n) % n
	for i, v := range values {
		out[(i+shift)%n] = v
	}
	return out
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// IsFinite reports whether v is neither NaN nor ±Inf
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Finite returns v, or fallback when v is NaN or infinite
func Finite(v, fallback float64) float64 {
	if IsFinite(v) {
		return v
	}
	return fallback
}

// DecibelsToAmplitude converts a dB magnitude to linear amplitude. Values at
// or below floorDB (including -Inf and NaN) map to zero.
func DecibelsToAmplitude(db, floorDB float64) float64 {
	if math.IsNaN(db) || db <= floorDB {
		return 0.0
	}
	if math.IsInf(db, 1) {
		return 0.0
	}
	return math.Pow(10, db/20)
}

// PositiveMod returns a mod n in [0, n)
func PositiveMod(a, n int) int {
	if n == 0 {
		return 0
	}
	return ((a % n) + n) % n
}
