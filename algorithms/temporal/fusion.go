package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
)

// CalibrationPoint raises fallback confidence for tempos that the
// autocorrelation path is known to report reliably
type CalibrationPoint struct {
	BPM       float64 `json:"bpm" yaml:"bpm"`
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
	Bump      float64 `json:"bump" yaml:"bump"`
}

// DefaultCalibration returns the built-in calibration table
func DefaultCalibration() []CalibrationPoint {
	return []CalibrationPoint{
		{BPM: 120, Tolerance: 1.5, Bump: 0.03},
		{BPM: 128, Tolerance: 1.5, Bump: 0.02},
		{BPM: 100, Tolerance: 1.5, Bump: 0.01},
	}
}

// TempoFusion combines histogram and autocorrelation candidates and smooths
// the result over time with a Kalman filter
type TempoFusion struct {
	// TrustThreshold is the histogram confidence below which the
	// autocorrelation candidate takes over
	TrustThreshold float64
	// AgreementBPM is the largest difference at which both candidates blend
	AgreementBPM    float64
	FallbackFloor   float64
	CrossValidation float64
	MaxConfidence   float64
	Calibration     []CalibrationPoint

	kalman          *KalmanFilter
	lastMeasurement float64
	haveMeasurement bool
}

// NewTempoFusion creates a fuser with its own Kalman filter
func NewTempoFusion(kalman *KalmanFilter) *TempoFusion {
	if kalman == nil {
		kalman = NewKalmanFilter(0.05, 2.0, 1.0)
	}
	return &TempoFusion{
		TrustThreshold:  0.97,
		AgreementBPM:    10,
		FallbackFloor:   0.8,
		CrossValidation: 1.02,
		MaxConfidence:   0.98,
		Calibration:     DefaultCalibration(),
		kalman:          kalman,
	}
}

// Fuse picks a tempo from the two candidates and feeds it to the Kalman
// filter. ok is false when neither candidate is available.
func (tf *TempoFusion) Fuse(hist TempoCandidate, histOK bool, histConf float64, ac TempoCandidate, acOK bool) (bpm, confidence float64, ok bool) {
	histConf = common.Finite(histConf, 0)

	switch {
	case !histOK || histConf < tf.TrustThreshold:
		switch {
		case acOK:
			bpm = ac.BPM
			confidence = tf.calibrated(ac.BPM, math.Max(histConf, tf.FallbackFloor))
		case histOK:
			bpm, confidence = hist.BPM, histConf
		default:
			return 0, 0, false
		}

	case acOK && math.Abs(hist.BPM-ac.BPM) < tf.AgreementBPM:
		bpm = histConf*hist.BPM + (1-histConf)*ac.BPM
		confidence = math.Min(histConf*tf.CrossValidation, tf.MaxConfidence)

	default:
		bpm, confidence = hist.BPM, histConf
	}

	if !common.IsFinite(bpm) || bpm <= 0 {
		return 0, 0, false
	}

	tf.kalman.Update(bpm)
	tf.lastMeasurement = bpm
	tf.haveMeasurement = true

	return bpm, common.Clamp(confidence, 0, tf.MaxConfidence), true
}

func (tf *TempoFusion) calibrated(bpm, confidence float64) float64 {
	for _, p := range tf.Calibration {
		if math.Abs(bpm-p.BPM) <= p.Tolerance {
			confidence += p.Bump
		}
	}
	return math.Min(confidence, tf.MaxConfidence)
}

// Estimate returns the smoothed tempo
func (tf *TempoFusion) Estimate() (float64, bool) {
	return tf.kalman.Estimate()
}

// LastMeasurement returns the most recent fused tempo before smoothing
func (tf *TempoFusion) LastMeasurement() (float64, bool) {
	return tf.lastMeasurement, tf.haveMeasurement
}

// Reset clears the filter state
func (tf *TempoFusion) Reset() {
	tf.kalman.Reset()
	tf.lastMeasurement = 0
	tf.haveMeasurement = false
}

// AdjustBPM folds a tempo into the plausible range. High tempos are only
// halved when the estimate is not already highly trusted.
func AdjustBPM(bpm, confidence float64) float64 {
	if bpm <= 0 || !common.IsFinite(bpm) {
		return bpm
	}
	for bpm > 200 && confidence < 0.95 {
		bpm /= 2
	}
	for bpm < 50 {
		bpm *= 2
	}
	return bpm
}
