package analysis

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-tempo/algorithms/chroma"
	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
	"github.com/RyanBlaney/sonido-tempo/algorithms/spectral"
	"github.com/RyanBlaney/sonido-tempo/algorithms/temporal"
	"github.com/RyanBlaney/sonido-tempo/algorithms/tonal"
	"github.com/RyanBlaney/sonido-tempo/analysis/config"
	"github.com/RyanBlaney/sonido-tempo/logging"
)

const defaultSampleRate = 44100.0

// State is the lifecycle position of a session
type State int

const (
	StateIdle State = iota
	StateSampling
	StateEarlyCheck
	StateFinalizing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateEarlyCheck:
		return "early_check"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further steps change the session
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// SessionOptions carries the per-session collaborators
type SessionOptions struct {
	// ContentID identifies the audio source in logs
	ContentID string
	// FallbackKey is reported when the chroma is too weak to classify
	FallbackKey string
	Logger      logging.Logger
}

// Session is one tempo and key analysis. It owns all mutable analysis
// state and advances only through Step; it is not safe for concurrent use.
type Session struct {
	id     string
	cfg    *config.AnalysisConfig
	logger logging.Logger

	flux       *spectral.FluxTracker
	onsets     *temporal.OnsetDetector
	histogram  *temporal.TempoEstimation
	autocorr   *temporal.Autocorrelation
	fusion     *temporal.TempoFusion
	scorer     *temporal.ConfidenceScorer
	chroma     *chroma.Accumulator
	classifier *tonal.KeyClassifier

	state       State
	ticks       int
	captured    int
	elapsed     time.Duration
	confidence  float64
	transform   Transform
	timeBuffer  []float64
	timeRate    float64
	fallbackKey string
	result      Result
}

// NewSession creates a session in the Idle state. A nil cfg uses the
// defaults.
func NewSession(cfg *config.AnalysisConfig, opts SessionOptions) *Session {
	if cfg == nil {
		cfg = config.DefaultAnalysisConfig()
	}

	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithFields(logging.Fields{"component": "analysis_session"})
	}
	fields := logging.Fields{"session_id": id}
	if opts.ContentID != "" {
		fields["content_id"] = opts.ContentID
	}

	fallback := opts.FallbackKey
	if fallback == "" {
		fallback = tonal.UnknownKey
	}

	s := &Session{
		id:          id,
		cfg:         cfg,
		logger:      logger.WithFields(fields),
		state:       StateIdle,
		fallbackKey: fallback,
	}
	s.buildPipeline()
	return s
}

func (s *Session) buildPipeline() {
	cfg := s.cfg

	s.flux = spectral.NewFluxTracker()
	s.flux.BassBoost = cfg.Flux.BassBoost
	s.flux.VocalDiscount = cfg.Flux.VocalDiscount
	s.flux.BassCutoffHz = cfg.Flux.BassCutoffHz
	s.flux.VocalCutoffHz = cfg.Flux.VocalCutoffHz
	s.flux.Smoothing = cfg.Flux.Smoothing
	s.flux.SmoothingMidDominant = cfg.Flux.SmoothingMidDominant
	s.flux.MinDecibels = cfg.MinDecibels

	s.onsets = temporal.NewOnsetDetection()
	s.onsets.WindowRadius = cfg.Onset.WindowRadius
	s.onsets.ThresholdK = cfg.Onset.ThresholdK
	s.onsets.MinThreshold = cfg.Onset.MinThreshold
	s.onsets.MinIntervalMs = cfg.Onset.MinIntervalMs
	s.onsets.MergeToleranceMs = cfg.Onset.MergeToleranceMs

	h := cfg.Histogram
	s.histogram = temporal.NewTempoEstimation()
	s.histogram.MinOnsets = h.MinOnsets
	s.histogram.MinBPM = h.MinBPM
	s.histogram.MaxBPM = h.MaxBPM
	s.histogram.BucketWidth = h.BucketWidth
	s.histogram.PreferredLow = h.PreferredLow
	s.histogram.PreferredHigh = h.PreferredHigh
	s.histogram.PreferredWeight = h.PreferredWeight
	s.histogram.OctaveTolerance = h.OctaveTolerance
	s.histogram.BandWeights = map[spectral.Band]float64{
		spectral.BandLow:      h.BandWeights.Low,
		spectral.BandMid:      h.BandWeights.Mid,
		spectral.BandHigh:     h.BandWeights.High,
		spectral.BandCombined: h.BandWeights.Combined,
	}

	s.autocorr = temporal.NewAutocorrelation()
	s.autocorr.MinStdDev = cfg.Autocorr.MinStdDev
	s.autocorr.ThresholdRatio = cfg.Autocorr.ThresholdRatio
	s.autocorr.SearchMinBPM = cfg.Autocorr.SearchMinBPM
	s.autocorr.SearchMaxBPM = cfg.Autocorr.SearchMaxBPM
	s.autocorr.MinBPM = h.MinBPM
	s.autocorr.MaxBPM = h.MaxBPM

	f := cfg.Fusion
	s.fusion = temporal.NewTempoFusion(temporal.NewKalmanFilter(f.ProcessNoise, f.MeasurementNoise, f.InitialVariance))
	s.fusion.TrustThreshold = f.TrustThreshold
	s.fusion.AgreementBPM = f.AgreementBPM
	s.fusion.FallbackFloor = f.FallbackFloor
	s.fusion.CrossValidation = f.CrossValidation
	s.fusion.MaxConfidence = cfg.Confidence.Ceiling
	s.fusion.Calibration = append([]temporal.CalibrationPoint(nil), f.Calibration...)

	s.scorer = temporal.NewConfidenceScorer()
	s.scorer.MinOnsets = h.MinOnsets
	s.scorer.Floor = cfg.Confidence.Floor
	s.scorer.Ceiling = cfg.Confidence.Ceiling
	s.scorer.Tolerance = cfg.Confidence.Tolerance
	s.scorer.PreferredLow = h.PreferredLow
	s.scorer.PreferredHigh = h.PreferredHigh

	c := cfg.Chroma
	s.chroma = chroma.NewAccumulator(c.WindowFrames)
	s.chroma.MinFrequency = c.MinFrequency
	s.chroma.MaxFrequency = c.MaxFrequency
	s.chroma.MinDecibels = cfg.MinDecibels
	s.chroma.HarmonicBoost = c.HarmonicBoost
	s.chroma.HarmonicTolerance = c.HarmonicTolerance
	s.chroma.SmoothingCentre = c.SmoothingCentre
	s.chroma.MinPeak = c.MinPeak

	s.classifier = tonal.NewKeyClassifier()
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	return s.state
}

// Elapsed returns the analysis time covered so far
func (s *Session) Elapsed() time.Duration {
	return s.elapsed
}

// Step advances the session by one tick. It returns the final result and
// true once the session has finished; until then it returns the partial
// result and false.
func (s *Session) Step(tick Tick) (Result, bool) {
	if s.state.Terminal() {
		return s.result, true
	}
	if s.state == StateIdle {
		s.state = StateSampling
		s.logger.Debug("session started")
	}

	first := s.ticks == 0
	s.ticks++
	captureMs := float64(s.elapsed.Milliseconds())
	s.elapsed += s.cfg.Session.TickInterval

	if !tick.Playing {
		return s.Abort(ErrMsgPlaybackStopped), true
	}

	if reason, skip := s.skipReason(tick); skip {
		if first {
			return s.Abort(reason), true
		}
		s.logger.Debug("tick skipped", logging.Fields{"reason": reason})
		return s.afterTick()
	}

	s.capture(tick, captureMs)

	if s.elapsed >= s.cfg.Session.WarmupDuration {
		s.state = StateEarlyCheck
		if s.estimate() > s.cfg.Session.EarlyExitConfidence {
			s.logger.Debug("early exit", logging.Fields{
				"confidence": s.confidence,
				"elapsed_ms": s.elapsed.Milliseconds(),
			})
			return s.finalize(), true
		}
		s.state = StateSampling
	}

	return s.afterTick()
}

func (s *Session) afterTick() (Result, bool) {
	if s.elapsed >= s.cfg.Session.MaxDuration {
		return s.finalize(), true
	}
	return s.Partial(), false
}

func (s *Session) skipReason(tick Tick) (string, bool) {
	if tick.AdShowing {
		return ErrMsgAdvertisement, true
	}

	if tick.DurationSec > 0 {
		sc := s.cfg.Session
		if tick.PositionSec < sc.LeadInSec || tick.PositionSec > tick.DurationSec-sc.LeadOutSec {
			return ErrMsgOutsideWindow, true
		}
	}

	return "", false
}

func (s *Session) capture(tick Tick, captureMs float64) {
	sampleRate := tick.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	s.flux.Update(tick.Frequency, captureMs, sampleRate)
	s.chroma.Add(tick.Frequency, sampleRate)

	if len(tick.Time) > 0 && tick.TimeSampleRate > 0 {
		s.timeBuffer = append(s.timeBuffer[:0], tick.Time...)
		s.timeRate = tick.TimeSampleRate
	}

	s.transform = tick.Transform
	s.captured++
}

// estimate runs tempo estimation on everything captured so far and returns
// the current confidence
func (s *Session) estimate() float64 {
	onsets := s.onsets.DetectAll(s.flux.Series())

	hist, histOK := s.histogram.Estimate(onsets)
	histConf := 0.0
	if histOK {
		histConf = s.scorer.Score(hist.BPM, onsets)
	}

	ac, acOK := s.autocorr.Estimate(s.timeBuffer, s.timeRate)

	bpm, confidence, ok := s.fusion.Fuse(hist, histOK, histConf, ac, acOK)
	if !ok {
		return s.confidence
	}
	s.confidence = common.Finite(confidence, s.scorer.Floor)

	s.logger.Debug("tempo estimate", logging.Fields{
		"onsets":       len(onsets),
		"primary_band": s.flux.PrimaryBand().String(),
		"hist_bpm":     hist.BPM,
		"hist_ok":      histOK,
		"ac_bpm":       ac.BPM,
		"ac_ok":        acOK,
		"fused_bpm":    bpm,
		"confidence":   s.confidence,
	})

	return s.confidence
}

// currentBPM returns the back-corrected tempo the session would report now
func (s *Session) currentBPM() *int {
	est, ok := s.fusion.Estimate()
	if !ok {
		return nil
	}
	adjusted := temporal.AdjustBPM(est, s.confidence)
	original := s.transform.OriginalBPM(adjusted)
	if !common.IsFinite(original) || original <= 0 {
		return nil
	}
	return intPtr(int(math.Round(original)))
}

// Partial returns the best result known so far
func (s *Session) Partial() Result {
	if s.state.Terminal() {
		return s.result
	}
	bpm := s.currentBPM()
	confidence := 0.0
	if bpm != nil {
		confidence = s.confidence
	}
	return Result{BPM: bpm, Key: s.fallbackKey, Confidence: confidence}
}

// Abort ends the session with reason as the result error
func (s *Session) Abort(reason string) Result {
	if s.state.Terminal() {
		return s.result
	}
	s.state = StateAborted
	s.result = Result{Key: s.fallbackKey, Confidence: 0, Error: reason}
	s.logger.Info("session aborted", logging.Fields{"reason": reason, "elapsed_ms": s.elapsed.Milliseconds()})
	return s.result
}

// Finish finalizes the session with whatever has been captured
func (s *Session) Finish() Result {
	if s.state.Terminal() {
		return s.result
	}
	return s.finalize()
}

func (s *Session) finalize() Result {
	s.state = StateFinalizing

	result := Result{Key: s.fallbackKey}
	if bpm := s.currentBPM(); bpm != nil {
		result.BPM = bpm
		result.Confidence = s.confidence
	}

	if cv, ok := s.chroma.Compute(); ok {
		if key, ok := s.classifier.Classify(cv, s.transform.KeyShift()); ok {
			result.Key = key.Name
			relRoot, relMode := tonal.RelativeKey(key.Root, key.Mode)
			parRoot, parMode := tonal.ParallelKey(key.Root, key.Mode)
			s.logger.Debug("key classified", logging.Fields{
				"key":       key.Name,
				"score":     key.Score,
				"relative":  tonal.KeyName(relRoot, relMode),
				"parallel":  tonal.KeyName(parRoot, parMode),
				"runner_up": runnerUp(key),
			})
		}
	}

	s.state = StateDone
	s.result = result

	fields := logging.Fields{
		"key":        result.Key,
		"confidence": result.Confidence,
		"captured":   s.captured,
		"elapsed_ms": s.elapsed.Milliseconds(),
	}
	if result.BPM != nil {
		fields["bpm"] = *result.BPM
	}
	s.logger.Info("session finished", fields)

	return result
}

func runnerUp(key tonal.KeyResult) string {
	if len(key.Candidates) < 2 {
		return ""
	}
	return key.Candidates[1].Name
}

// Cacheable reports whether a finished result is trusted enough to store
func (s *Session) Cacheable() bool {
	r := s.result
	return s.state == StateDone &&
		r.Error == "" &&
		r.BPM != nil &&
		r.Confidence > s.cfg.Session.EarlyExitConfidence &&
		r.Key != tonal.UnknownKey
}
