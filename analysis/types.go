package analysis

import (
	"context"
	"encoding/json"
	"errors"
)

// Error strings carried in Result.Error
const (
	ErrMsgPlaybackStopped   = "Playback stopped"
	ErrMsgAdvertisement     = "Advertisement playing"
	ErrMsgOutsideWindow     = "Outside analysis window"
	ErrMsgCancelled         = "Analysis cancelled"
	ErrMsgInProgress        = "Calculation in progress"
	ErrMsgSourceUnavailable = "Audio source unavailable"
)

// ErrSourceUnavailable wraps every error returned by a FrameSampler
var ErrSourceUnavailable = errors.New("audio source unavailable")

// Transform describes how playback alters the audio relative to the
// original recording
type Transform struct {
	// PitchOffset is the pitch shift in semitones
	PitchOffset float64 `json:"pitch_offset"`
	// TransposeMode means the pitch shift also changes tempo
	TransposeMode bool `json:"transpose_mode"`
	// PlaybackRate is the speed multiplier; 0 means 1
	PlaybackRate float64 `json:"playback_rate"`
}

// Tick is one snapshot of the audio source
type Tick struct {
	// Frequency holds dB magnitudes, one per FFT bin
	Frequency []float64
	// SampleRate is the rate of the audio the frequency frame was computed
	// from; 0 means 44.1 kHz
	SampleRate float64
	// Time is a time-domain buffer sampled at TimeSampleRate
	Time           []float64
	TimeSampleRate float64

	Transform   Transform
	Playing     bool
	AdShowing   bool
	PositionSec float64
	DurationSec float64
}

// FrameSampler supplies ticks. Sample blocks until the next snapshot is
// available or ctx is done.
type FrameSampler interface {
	Sample(ctx context.Context) (Tick, error)
}

// StatusReporter receives human readable progress messages
type StatusReporter interface {
	Report(msg string) error
}

// StatusFunc adapts a function to StatusReporter
type StatusFunc func(msg string) error

func (f StatusFunc) Report(msg string) error {
	return f(msg)
}

// Result is the outcome of an analysis session
type Result struct {
	BPM        *int    `json:"bpm"`
	Key        string  `json:"key"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

// MarshalJSON encodes an empty Error as null
func (r Result) MarshalJSON() ([]byte, error) {
	var errStr *string
	if r.Error != "" {
		errStr = &r.Error
	}
	return json.Marshal(struct {
		BPM        *int    `json:"bpm"`
		Key        string  `json:"key"`
		Confidence float64 `json:"confidence"`
		Error      *string `json:"error"`
	}{r.BPM, r.Key, r.Confidence, errStr})
}

// HasBPM reports whether a tempo was resolved
func (r Result) HasBPM() bool {
	return r.BPM != nil
}

func intPtr(v int) *int {
	return &v
}
