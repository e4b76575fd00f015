package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-tempo/algorithms/temporal"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid analysis config")

// Environment names accepted by ProfileForEnvironment
const (
	EnvironmentBrowser = "browser"
	EnvironmentDesktop = "desktop"
)

// AnalysisConfig holds every tuning knob of the engine
type AnalysisConfig struct {
	Environment string `json:"environment" yaml:"environment"`
	// MinDecibels is the dB floor; magnitudes at or below it are silence
	MinDecibels float64 `json:"min_decibels" yaml:"min_decibels"`

	Flux       FluxConfig       `json:"flux" yaml:"flux"`
	Onset      OnsetConfig      `json:"onset" yaml:"onset"`
	Histogram  HistogramConfig  `json:"histogram" yaml:"histogram"`
	Autocorr   AutocorrConfig   `json:"autocorr" yaml:"autocorr"`
	Fusion     FusionConfig     `json:"fusion" yaml:"fusion"`
	Confidence ConfidenceConfig `json:"confidence" yaml:"confidence"`
	Chroma     ChromaConfig     `json:"chroma" yaml:"chroma"`
	Session    SessionConfig    `json:"session" yaml:"session"`
	Sampler    SamplerConfig    `json:"sampler" yaml:"sampler"`
}

type FluxConfig struct {
	BassBoost            float64 `json:"bass_boost" yaml:"bass_boost"`
	VocalDiscount        float64 `json:"vocal_discount" yaml:"vocal_discount"`
	BassCutoffHz         float64 `json:"bass_cutoff_hz" yaml:"bass_cutoff_hz"`
	VocalCutoffHz        float64 `json:"vocal_cutoff_hz" yaml:"vocal_cutoff_hz"`
	Smoothing            float64 `json:"smoothing" yaml:"smoothing"`
	SmoothingMidDominant float64 `json:"smoothing_mid_dominant" yaml:"smoothing_mid_dominant"`
}

type OnsetConfig struct {
	WindowRadius     int     `json:"window_radius" yaml:"window_radius"` // samples each side
	ThresholdK       float64 `json:"threshold_k" yaml:"threshold_k"`
	MinThreshold     float64 `json:"min_threshold" yaml:"min_threshold"`
	MinIntervalMs    float64 `json:"min_interval_ms" yaml:"min_interval_ms"`
	MergeToleranceMs float64 `json:"merge_tolerance_ms" yaml:"merge_tolerance_ms"`
}

// BandWeights scale histogram votes by the band of the closing onset
type BandWeights struct {
	Low      float64 `json:"low" yaml:"low"`
	Mid      float64 `json:"mid" yaml:"mid"`
	High     float64 `json:"high" yaml:"high"`
	Combined float64 `json:"combined" yaml:"combined"`
}

type HistogramConfig struct {
	MinOnsets       int         `json:"min_onsets" yaml:"min_onsets"`
	MinBPM          float64     `json:"min_bpm" yaml:"min_bpm"`
	MaxBPM          float64     `json:"max_bpm" yaml:"max_bpm"`
	BucketWidth     float64     `json:"bucket_width" yaml:"bucket_width"`
	PreferredLow    float64     `json:"preferred_low" yaml:"preferred_low"`
	PreferredHigh   float64     `json:"preferred_high" yaml:"preferred_high"`
	PreferredWeight float64     `json:"preferred_weight" yaml:"preferred_weight"`
	BandWeights     BandWeights `json:"band_weights" yaml:"band_weights"`
	OctaveTolerance float64     `json:"octave_tolerance" yaml:"octave_tolerance"`
}

type AutocorrConfig struct {
	MinStdDev      float64 `json:"min_std_dev" yaml:"min_std_dev"`
	ThresholdRatio float64 `json:"threshold_ratio" yaml:"threshold_ratio"`
	SearchMinBPM   float64 `json:"search_min_bpm" yaml:"search_min_bpm"`
	SearchMaxBPM   float64 `json:"search_max_bpm" yaml:"search_max_bpm"`
}

type FusionConfig struct {
	TrustThreshold   float64                     `json:"trust_threshold" yaml:"trust_threshold"`
	AgreementBPM     float64                     `json:"agreement_bpm" yaml:"agreement_bpm"`
	FallbackFloor    float64                     `json:"fallback_floor" yaml:"fallback_floor"`
	CrossValidation  float64                     `json:"cross_validation" yaml:"cross_validation"`
	ProcessNoise     float64                     `json:"process_noise" yaml:"process_noise"`
	MeasurementNoise float64                     `json:"measurement_noise" yaml:"measurement_noise"`
	InitialVariance  float64                     `json:"initial_variance" yaml:"initial_variance"`
	Calibration      []temporal.CalibrationPoint `json:"calibration" yaml:"calibration"`
}

type ConfidenceConfig struct {
	Floor     float64 `json:"floor" yaml:"floor"`
	Ceiling   float64 `json:"ceiling" yaml:"ceiling"`
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
}

type ChromaConfig struct {
	WindowFrames      int     `json:"window_frames" yaml:"window_frames"`
	MinFrequency      float64 `json:"min_frequency" yaml:"min_frequency"`
	MaxFrequency      float64 `json:"max_frequency" yaml:"max_frequency"`
	HarmonicBoost     float64 `json:"harmonic_boost" yaml:"harmonic_boost"`
	HarmonicTolerance float64 `json:"harmonic_tolerance" yaml:"harmonic_tolerance"`
	SmoothingCentre   float64 `json:"smoothing_centre" yaml:"smoothing_centre"`
	MinPeak           float64 `json:"min_peak" yaml:"min_peak"`
}

type SessionConfig struct {
	TickInterval   time.Duration `json:"tick_interval" yaml:"tick_interval"`
	WarmupDuration time.Duration `json:"warmup_duration" yaml:"warmup_duration"`
	MaxDuration    time.Duration `json:"max_duration" yaml:"max_duration"`
	// EarlyExitConfidence ends sampling once exceeded; it is also the
	// confidence a result must exceed to be cached
	EarlyExitConfidence float64 `json:"early_exit_confidence" yaml:"early_exit_confidence"`
	LeadInSec           float64 `json:"lead_in_sec" yaml:"lead_in_sec"`
	LeadOutSec          float64 `json:"lead_out_sec" yaml:"lead_out_sec"`
}

// SamplerConfig configures the reference PCM sampler
type SamplerConfig struct {
	FFTSize        int           `json:"fft_size" yaml:"fft_size"`
	Smoothing      float64       `json:"smoothing" yaml:"smoothing"`
	TimeWindow     time.Duration `json:"time_window" yaml:"time_window"`
	TimeSampleRate float64       `json:"time_sample_rate" yaml:"time_sample_rate"`
}

// DefaultAnalysisConfig returns the browser profile
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		Environment: EnvironmentBrowser,
		MinDecibels: -100,
		Flux: FluxConfig{
			BassBoost:            1.5,
			VocalDiscount:        0.85,
			BassCutoffHz:         200,
			VocalCutoffHz:        2000,
			Smoothing:            0.6,
			SmoothingMidDominant: 0.4,
		},
		Onset: OnsetConfig{
			WindowRadius:     60,
			ThresholdK:       1.0,
			MinThreshold:     1e-3,
			MinIntervalMs:    60,
			MergeToleranceMs: 10,
		},
		Histogram: HistogramConfig{
			MinOnsets:       10,
			MinBPM:          50,
			MaxBPM:          200,
			BucketWidth:     0.5,
			PreferredLow:    80,
			PreferredHigh:   140,
			PreferredWeight: 2.5,
			BandWeights: BandWeights{
				Low:      1.15,
				Mid:      0.95,
				High:     0.9,
				Combined: 1.0,
			},
			OctaveTolerance: 0.01,
		},
		Autocorr: AutocorrConfig{
			MinStdDev:      1e-4,
			ThresholdRatio: 0.15,
			SearchMinBPM:   40,
			SearchMaxBPM:   240,
		},
		Fusion: FusionConfig{
			TrustThreshold:   0.97,
			AgreementBPM:     10,
			FallbackFloor:    0.8,
			CrossValidation:  1.02,
			ProcessNoise:     0.05,
			MeasurementNoise: 2.0,
			InitialVariance:  1.0,
			Calibration:      temporal.DefaultCalibration(),
		},
		Confidence: ConfidenceConfig{
			Floor:     0.8,
			Ceiling:   0.98,
			Tolerance: 0.01,
		},
		Chroma: ChromaConfig{
			WindowFrames:      100,
			MinFrequency:      60,
			MaxFrequency:      5000,
			HarmonicBoost:     1.2,
			HarmonicTolerance: 0.015,
			SmoothingCentre:   0.8,
			MinPeak:           1e-4,
		},
		Session: SessionConfig{
			TickInterval:        50 * time.Millisecond,
			WarmupDuration:      3 * time.Second,
			MaxDuration:         10 * time.Second,
			EarlyExitConfidence: 0.97,
			LeadInSec:           0,
			LeadOutSec:          0,
		},
		Sampler: SamplerConfig{
			FFTSize:        2048,
			Smoothing:      0.8,
			TimeWindow:     4 * time.Second,
			TimeSampleRate: 1000,
		},
	}
}

// ProfileForEnvironment returns the tuning used in the named environment.
// Unknown names fall back to the browser profile.
func ProfileForEnvironment(env string) *AnalysisConfig {
	cfg := DefaultAnalysisConfig()

	switch env {
	case EnvironmentDesktop:
		cfg.Environment = EnvironmentDesktop
		// Desktop players expose longer, higher resolution buffers
		cfg.Sampler.FFTSize = 4096
		cfg.Session.MaxDuration = 12 * time.Second
		cfg.Session.LeadInSec = 5
		cfg.Session.LeadOutSec = 5
	default:
		cfg.Environment = EnvironmentBrowser
	}

	return cfg
}

// LoadFile reads a YAML (or JSON) file over the defaults of the
// environment it names
func LoadFile(path string) (*AnalysisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var header struct {
		Environment string `yaml:"environment"`
	}
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := ProfileForEnvironment(header.Environment)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the values are usable
func (c *AnalysisConfig) Validate() error {
	switch {
	case c.Session.TickInterval <= 0:
		return fmt.Errorf("%w: session.tick_interval must be positive", ErrInvalidConfig)
	case c.Session.MaxDuration < c.Session.WarmupDuration:
		return fmt.Errorf("%w: session.max_duration %v is shorter than warmup %v",
			ErrInvalidConfig, c.Session.MaxDuration, c.Session.WarmupDuration)
	case c.Session.EarlyExitConfidence <= 0 || c.Session.EarlyExitConfidence > 1:
		return fmt.Errorf("%w: session.early_exit_confidence must be in (0, 1]", ErrInvalidConfig)
	case c.Histogram.MinBPM <= 0 || c.Histogram.MaxBPM < 2*c.Histogram.MinBPM:
		return fmt.Errorf("%w: histogram tempo range [%v, %v] must span an octave",
			ErrInvalidConfig, c.Histogram.MinBPM, c.Histogram.MaxBPM)
	case c.Histogram.BucketWidth <= 0:
		return fmt.Errorf("%w: histogram.bucket_width must be positive", ErrInvalidConfig)
	case c.Histogram.MinOnsets < 2:
		return fmt.Errorf("%w: histogram.min_onsets must be at least 2", ErrInvalidConfig)
	case c.Autocorr.SearchMinBPM <= 0 || c.Autocorr.SearchMaxBPM <= c.Autocorr.SearchMinBPM:
		return fmt.Errorf("%w: autocorr search range is empty", ErrInvalidConfig)
	case c.Flux.Smoothing <= 0 || c.Flux.Smoothing > 1 || c.Flux.SmoothingMidDominant <= 0 || c.Flux.SmoothingMidDominant > 1:
		return fmt.Errorf("%w: flux smoothing must be in (0, 1]", ErrInvalidConfig)
	case c.Fusion.MeasurementNoise <= 0 || c.Fusion.ProcessNoise < 0 || c.Fusion.InitialVariance <= 0:
		return fmt.Errorf("%w: kalman noise parameters must be positive", ErrInvalidConfig)
	case c.Confidence.Floor > c.Confidence.Ceiling:
		return fmt.Errorf("%w: confidence floor %v above ceiling %v",
			ErrInvalidConfig, c.Confidence.Floor, c.Confidence.Ceiling)
	case c.Chroma.WindowFrames <= 0:
		return fmt.Errorf("%w: chroma.window_frames must be positive", ErrInvalidConfig)
	case c.Chroma.MinFrequency <= 0 || c.Chroma.MaxFrequency <= c.Chroma.MinFrequency:
		return fmt.Errorf("%w: chroma frequency range is empty", ErrInvalidConfig)
	case c.Sampler.FFTSize < 32 || c.Sampler.FFTSize&(c.Sampler.FFTSize-1) != 0:
		return fmt.Errorf("%w: sampler.fft_size %d must be a power of two >= 32", ErrInvalidConfig, c.Sampler.FFTSize)
	case c.Sampler.TimeSampleRate <= 0 || c.Sampler.TimeWindow <= 0:
		return fmt.Errorf("%w: sampler time window and rate must be positive", ErrInvalidConfig)
	}
	return nil
}
