package temporal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKalmanFilter(t *testing.T) {
	kf := NewKalmanFilter(0.05, 2.0, 1.0)

	_, ok := kf.Estimate()
	assert.False(t, ok)

	kf.Update(100)
	est, ok := kf.Estimate()
	require.True(t, ok)
	assert.Equal(t, 100.0, est)

	kf.Update(110)
	est, _ = kf.Estimate()
	gain := 1.05 / 3.05
	assert.InDelta(t, 100+gain*10, est, 1e-9)
	assert.InDelta(t, 1.05*(1-gain), kf.Variance(), 1e-9)

	kf.Update(math.NaN())
	kf.Update(math.Inf(1))
	after, _ := kf.Estimate()
	assert.Equal(t, est, after)

	kf.Reset()
	_, ok = kf.Estimate()
	assert.False(t, ok)
}

func TestFuse(t *testing.T) {
	tests := []struct {
		name     string
		hist     TempoCandidate
		histOK   bool
		histConf float64
		ac       TempoCandidate
		acOK     bool
		wantBPM  float64
		wantConf float64
		wantOK   bool
	}{
		{
			name:     "histogram missing falls back to autocorrelation with calibration",
			ac:       TempoCandidate{BPM: 120},
			acOK:     true,
			wantBPM:  120,
			wantConf: 0.83,
			wantOK:   true,
		},
		{
			name:     "weak histogram defers to autocorrelation",
			hist:     TempoCandidate{BPM: 90},
			histOK:   true,
			histConf: 0.9,
			ac:       TempoCandidate{BPM: 110},
			acOK:     true,
			wantBPM:  110,
			wantConf: 0.9,
			wantOK:   true,
		},
		{
			name:     "weak histogram alone",
			hist:     TempoCandidate{BPM: 90},
			histOK:   true,
			histConf: 0.85,
			wantBPM:  90,
			wantConf: 0.85,
			wantOK:   true,
		},
		{
			name:     "agreeing candidates blend",
			hist:     TempoCandidate{BPM: 120},
			histOK:   true,
			histConf: 0.98,
			ac:       TempoCandidate{BPM: 124},
			acOK:     true,
			wantBPM:  0.98*120 + 0.02*124,
			wantConf: 0.98,
			wantOK:   true,
		},
		{
			name:     "disagreeing candidates keep the histogram",
			hist:     TempoCandidate{BPM: 120},
			histOK:   true,
			histConf: 0.975,
			ac:       TempoCandidate{BPM: 160},
			acOK:     true,
			wantBPM:  120,
			wantConf: 0.975,
			wantOK:   true,
		},
		{
			name:     "nothing available",
			wantBPM:  0,
			wantConf: 0,
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tf := NewTempoFusion(nil)
			bpm, conf, ok := tf.Fuse(tt.hist, tt.histOK, tt.histConf, tt.ac, tt.acOK)

			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantBPM, bpm, 1e-9)
			assert.InDelta(t, tt.wantConf, conf, 1e-9)

			est, estOK := tf.Estimate()
			assert.Equal(t, tt.wantOK, estOK)
			if tt.wantOK {
				assert.InDelta(t, tt.wantBPM, est, 1e-9)
			}
		})
	}
}

func TestFuseFeedsKalman(t *testing.T) {
	tf := NewTempoFusion(nil)
	hist := TempoCandidate{BPM: 120}

	for range 20 {
		_, _, ok := tf.Fuse(hist, true, 0.98, TempoCandidate{}, false)
		require.True(t, ok)
	}
	_, _, _ = tf.Fuse(TempoCandidate{BPM: 130}, true, 0.98, TempoCandidate{}, false)

	est, ok := tf.Estimate()
	require.True(t, ok)
	assert.Greater(t, est, 120.0)
	assert.Less(t, est, 125.0)

	last, ok := tf.LastMeasurement()
	require.True(t, ok)
	assert.Equal(t, 130.0, last)

	tf.Reset()
	_, ok = tf.Estimate()
	assert.False(t, ok)
}

func TestAdjustBPM(t *testing.T) {
	tests := []struct {
		bpm, conf, want float64
	}{
		{240, 0.9, 120},
		{240, 0.96, 240},
		{420, 0.5, 105},
		{45, 0.9, 90},
		{20, 0.99, 80},
		{128, 0.5, 128},
		{0, 0.5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AdjustBPM(tt.bpm, tt.conf), "bpm=%v conf=%v", tt.bpm, tt.conf)
	}
}
