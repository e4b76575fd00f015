package temporal

import (
	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
)

// KalmanFilter is a one-dimensional Kalman filter over tempo measurements
type KalmanFilter struct {
	ProcessNoise     float64
	MeasurementNoise float64
	InitialVariance  float64

	estimate float64
	variance float64
	valid    bool
}

// NewKalmanFilter creates a filter with no estimate
func NewKalmanFilter(processNoise, measurementNoise, initialVariance float64) *KalmanFilter {
	kf := &KalmanFilter{
		ProcessNoise:     processNoise,
		MeasurementNoise: measurementNoise,
		InitialVariance:  initialVariance,
	}
	kf.Reset()
	return kf
}

// Update folds one measurement into the estimate. Non-finite measurements
// are ignored.
func (kf *KalmanFilter) Update(measurement float64) {
	if !common.IsFinite(measurement) {
		return
	}

	if !kf.valid {
		kf.estimate = measurement
		kf.variance = kf.InitialVariance
		kf.valid = true
		return
	}

	kf.variance += kf.ProcessNoise
	gain := kf.variance / (kf.variance + kf.MeasurementNoise)
	kf.estimate += gain * (measurement - kf.estimate)
	kf.variance *= 1 - gain

	if !common.IsFinite(kf.estimate) || !common.IsFinite(kf.variance) {
		kf.Reset()
	}
}

// Estimate returns the current estimate and whether one exists
func (kf *KalmanFilter) Estimate() (float64, bool) {
	return kf.estimate, kf.valid
}

// Variance returns the current estimate variance
func (kf *KalmanFilter) Variance() float64 {
	return kf.variance
}

// Reset drops the estimate
func (kf *KalmanFilter) Reset() {
	kf.estimate = 0
	kf.variance = kf.InitialVariance
	kf.valid = false
}
