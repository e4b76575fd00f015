package analysis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-tempo/algorithms/tonal"
	"github.com/RyanBlaney/sonido-tempo/analysis/config"
	"github.com/RyanBlaney/sonido-tempo/cache"
	"github.com/RyanBlaney/sonido-tempo/logging"
)

// AnalyzerOptions configures an Analyzer. Only Sampler is required.
type AnalyzerOptions struct {
	Config  *config.AnalysisConfig
	Sampler FrameSampler
	Cache   cache.Store
	Status  StatusReporter
	Logger  logging.Logger
	// Unpaced steps the session as fast as the sampler delivers ticks
	// instead of once per tick interval. Used for offline analysis.
	Unpaced bool
	// Now stamps cache entries; defaults to time.Now
	Now func() time.Time
}

// Analyzer drives analysis sessions for a single audio source. At most one
// session runs at a time; Analyze is safe to call concurrently.
type Analyzer struct {
	cfg     *config.AnalysisConfig
	sampler FrameSampler
	cache   cache.Store
	status  StatusReporter
	logger  logging.Logger
	unpaced bool
	now     func() time.Time

	inProgress atomic.Bool
	mu         sync.Mutex
	partial    Result
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(opts AnalyzerOptions) (*Analyzer, error) {
	if opts.Sampler == nil {
		return nil, fmt.Errorf("analyzer requires a frame sampler")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultAnalysisConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Analyzer{
		cfg:     cfg,
		sampler: opts.Sampler,
		cache:   opts.Cache,
		status:  opts.Status,
		logger:  logger.WithFields(logging.Fields{"component": "analyzer"}),
		unpaced: opts.Unpaced,
		now:     now,
		partial: Result{Key: tonal.UnknownKey},
	}, nil
}

// Analyze runs one session for contentID and returns its result. If a
// session is already running it returns that session's partial result
// with the in-progress error instead of starting another. fallbackKey is
// reported when no key can be resolved; it may be empty.
func (a *Analyzer) Analyze(ctx context.Context, contentID, fallbackKey string) Result {
	if !a.inProgress.CompareAndSwap(false, true) {
		p := a.Partial()
		p.Error = ErrMsgInProgress
		a.logger.Debug("analysis already running", logging.Fields{"content_id": contentID})
		return p
	}
	defer a.inProgress.Store(false)

	if contentID != "" {
		ctx = logging.ContextWithFields(ctx, logging.Fields{"content_id": contentID})
	}
	logger := a.logger.WithContext(ctx)

	if result, ok := a.cached(ctx, contentID, logger); ok {
		a.publish(result)
		return result
	}

	session := NewSession(a.cfg, SessionOptions{
		ContentID:   contentID,
		FallbackKey: fallbackKey,
		Logger:      a.logger,
	})
	a.publish(session.Partial())

	result := a.run(ctx, session, logger)
	a.publish(result)

	if session.Cacheable() {
		a.store(ctx, contentID, result, logger)
	}

	return result
}

// Running reports whether a session is in progress
func (a *Analyzer) Running() bool {
	return a.inProgress.Load()
}

// Partial returns the latest published result
func (a *Analyzer) Partial() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.partial
}

func (a *Analyzer) publish(r Result) {
	a.mu.Lock()
	a.partial = r
	a.mu.Unlock()
}

func (a *Analyzer) run(ctx context.Context, session *Session, logger logging.Logger) Result {
	var tickC <-chan time.Time
	if !a.unpaced {
		ticker := time.NewTicker(a.cfg.Session.TickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	reportedSec := int64(0)
	for {
		if tickC != nil {
			select {
			case <-ctx.Done():
				return session.Abort(ErrMsgCancelled)
			case <-tickC:
			}
		} else if ctx.Err() != nil {
			return session.Abort(ErrMsgCancelled)
		}

		tick, err := a.sampler.Sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return session.Abort(ErrMsgCancelled)
			}
			srcErr := fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
			logger.Error(srcErr, "frame sampling failed", logging.Fields{"session_id": session.ID()})
			return session.Abort(fmt.Sprintf("%s: %v", ErrMsgSourceUnavailable, err))
		}

		result, done := session.Step(tick)
		a.publish(result)
		if done {
			return result
		}

		if sec := int64(session.Elapsed() / time.Second); sec > reportedSec {
			reportedSec = sec
			a.report(fmt.Sprintf("Analyzing… %ds", sec), logger)
		}
	}
}

func (a *Analyzer) report(msg string, logger logging.Logger) {
	if a.status == nil {
		return
	}
	if err := a.status.Report(msg); err != nil {
		logger.Debug("status report failed", logging.Fields{"error": err.Error()})
	}
}

func (a *Analyzer) cached(ctx context.Context, contentID string, logger logging.Logger) (Result, bool) {
	if a.cache == nil || contentID == "" {
		return Result{}, false
	}

	entry, ok, err := a.cache.Get(ctx, contentID)
	if err != nil {
		logger.Warn("cache lookup failed", logging.Fields{"error": err.Error()})
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}

	logger.Debug("cache hit", logging.Fields{"bpm": entry.BPM, "key": entry.Key})
	return Result{
		BPM:        intPtr(entry.BPM),
		Key:        entry.Key,
		Confidence: entry.Confidence,
	}, true
}

func (a *Analyzer) store(ctx context.Context, contentID string, r Result, logger logging.Logger) {
	if a.cache == nil || contentID == "" || r.BPM == nil {
		return
	}

	entry := cache.Entry{
		BPM:        *r.BPM,
		Key:        r.Key,
		Confidence: r.Confidence,
		Timestamp:  a.now(),
	}
	if err := a.cache.Put(ctx, contentID, entry); err != nil {
		logger.Warn("cache write failed", logging.Fields{"error": err.Error()})
	}
}
