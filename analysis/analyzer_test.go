package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-tempo/algorithms/tonal"
	"github.com/RyanBlaney/sonido-tempo/analysis/config"
	"github.com/RyanBlaney/sonido-tempo/cache"
	"github.com/RyanBlaney/sonido-tempo/logging"
)

type errSampler struct {
	err error
}

func (e errSampler) Sample(ctx context.Context) (Tick, error) {
	return Tick{}, e.err
}

type recordingReporter struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (r *recordingReporter) Report(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.err
}

func (r *recordingReporter) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func newTestAnalyzer(t *testing.T, opts AnalyzerOptions) *Analyzer {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = &logging.NoOpLogger{}
	}
	opts.Unpaced = true
	a, err := NewAnalyzer(opts)
	require.NoError(t, err)
	return a
}

func TestNewAnalyzerValidation(t *testing.T) {
	_, err := NewAnalyzer(AnalyzerOptions{})
	assert.Error(t, err)

	cfg := config.DefaultAnalysisConfig()
	cfg.Session.TickInterval = 0
	_, err = NewAnalyzer(AnalyzerOptions{Config: cfg, Sampler: &sliceSampler{ticks: silentTicks(1)}})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestAnalyzeClickTrackIsCached(t *testing.T) {
	store := cache.NewMemoryStore()
	stamp := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	sampler := &sliceSampler{ticks: clickTicks(200, Transform{})}

	a := newTestAnalyzer(t, AnalyzerOptions{
		Sampler: sampler,
		Cache:   store,
		Now:     func() time.Time { return stamp },
	})

	result := a.Analyze(context.Background(), "track-7", "")
	require.NotNil(t, result.BPM)
	assert.Equal(t, 120, *result.BPM)
	assert.Empty(t, result.Error)
	assert.False(t, a.Running())
	assert.Equal(t, result, a.Partial())

	entry, ok, err := store.Get(context.Background(), "track-7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 120, entry.BPM)
	assert.Equal(t, result.Key, entry.Key)
	assert.Equal(t, result.Confidence, entry.Confidence)
	assert.Equal(t, stamp, entry.Timestamp)
}

func TestAnalyzeCacheHitSkipsSampling(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "song", cache.Entry{
		BPM:        128,
		Key:        "A Minor",
		Confidence: 0.98,
	}))
	sampler := &sliceSampler{ticks: silentTicks(1)}

	a := newTestAnalyzer(t, AnalyzerOptions{Sampler: sampler, Cache: store})
	result := a.Analyze(context.Background(), "song", "")

	require.NotNil(t, result.BPM)
	assert.Equal(t, 128, *result.BPM)
	assert.Equal(t, "A Minor", result.Key)
	assert.Equal(t, 0.98, result.Confidence)
	assert.Zero(t, sampler.Calls())
}

func TestAnalyzeLogsCarryContextFields(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "song", cache.Entry{BPM: 128, Key: "A Minor"}))
	logger := logging.NewBufferLogger()

	a := newTestAnalyzer(t, AnalyzerOptions{
		Sampler: &sliceSampler{ticks: silentTicks(1)},
		Cache:   store,
		Logger:  logger,
	})
	ctx := logging.ContextWithFields(context.Background(), logging.Fields{"request_id": "req-1"})
	a.Analyze(ctx, "song", "")

	var hit *logging.Entry
	for _, e := range logger.Entries() {
		if e.Message == "cache hit" {
			hit = &e
		}
	}
	require.NotNil(t, hit)
	assert.Equal(t, "song", hit.Fields["content_id"])
	assert.Equal(t, "req-1", hit.Fields["request_id"])
	assert.Equal(t, "analyzer", hit.Fields["component"])
}

func TestAnalyzeSilenceIsNotCached(t *testing.T) {
	store := cache.NewMemoryStore()
	a := newTestAnalyzer(t, AnalyzerOptions{
		Sampler: &sliceSampler{ticks: silentTicks(1)},
		Cache:   store,
	})

	result := a.Analyze(context.Background(), "quiet", "")
	assert.Nil(t, result.BPM)
	assert.Equal(t, tonal.UnknownKey, result.Key)
	assert.Zero(t, store.Len())
}

func TestAnalyzeSingleSession(t *testing.T) {
	sampler := newBlockingSampler()
	a := newTestAnalyzer(t, AnalyzerOptions{Sampler: sampler})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstDone := make(chan Result, 1)
	go func() {
		firstDone <- a.Analyze(ctx, "first", "")
	}()

	select {
	case <-sampler.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first session never sampled")
	}
	assert.True(t, a.Running())

	second := a.Analyze(context.Background(), "second", "G Major")
	assert.Equal(t, ErrMsgInProgress, second.Error)
	assert.Equal(t, tonal.UnknownKey, second.Key)
	assert.Nil(t, second.BPM)
	assert.Equal(t, 1, sampler.Calls())

	cancel()
	select {
	case first := <-firstDone:
		assert.Equal(t, ErrMsgCancelled, first.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("first session did not stop after cancel")
	}
	assert.False(t, a.Running())
}

func TestAnalyzeCancelledContext(t *testing.T) {
	sampler := &sliceSampler{ticks: clickTicks(1, Transform{})}
	a := newTestAnalyzer(t, AnalyzerOptions{Sampler: sampler})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := a.Analyze(ctx, "x", "")
	assert.Equal(t, ErrMsgCancelled, result.Error)
	assert.Zero(t, sampler.Calls())
}

func TestAnalyzeSamplerFailure(t *testing.T) {
	logger := logging.NewBufferLogger()
	a := newTestAnalyzer(t, AnalyzerOptions{
		Sampler: errSampler{err: errors.New("boom")},
		Logger:  logger,
	})

	result := a.Analyze(context.Background(), "broken", "C Major")
	assert.Equal(t, "Audio source unavailable: boom", result.Error)
	assert.Equal(t, "C Major", result.Key)
	assert.Equal(t, 0.0, result.Confidence)

	var found bool
	for _, e := range logger.Entries() {
		if e.Level == logging.ErrorLevel {
			found = true
			assert.ErrorIs(t, e.Err, ErrSourceUnavailable)
			assert.Equal(t, "broken", e.Fields["content_id"])
		}
	}
	assert.True(t, found, "sampling failure is logged")
}

func TestAnalyzeReportsProgress(t *testing.T) {
	reporter := &recordingReporter{err: fmt.Errorf("display closed")}
	a := newTestAnalyzer(t, AnalyzerOptions{
		Sampler: &sliceSampler{ticks: silentTicks(1)},
		Status:  reporter,
	})

	result := a.Analyze(context.Background(), "", "")
	assert.Empty(t, result.Error)

	messages := reporter.Messages()
	require.Len(t, messages, 9)
	assert.Equal(t, "Analyzing… 1s", messages[0])
	assert.Equal(t, "Analyzing… 9s", messages[8])
}

func TestAnalyzePaced(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	cfg.Session.TickInterval = time.Millisecond
	cfg.Session.WarmupDuration = 50 * time.Millisecond
	cfg.Session.MaxDuration = 100 * time.Millisecond

	a, err := NewAnalyzer(AnalyzerOptions{
		Config:  cfg,
		Sampler: &sliceSampler{ticks: silentTicks(1)},
		Logger:  &logging.NoOpLogger{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := a.Analyze(ctx, "", "")
	assert.Empty(t, result.Error)
	assert.Nil(t, result.BPM)
}
