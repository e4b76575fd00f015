package sampler

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/RyanBlaney/sonido-tempo/algorithms/spectral"
	"github.com/RyanBlaney/sonido-tempo/algorithms/temporal"
	"github.com/RyanBlaney/sonido-tempo/analysis"
	"github.com/RyanBlaney/sonido-tempo/analysis/config"
	"github.com/RyanBlaney/sonido-tempo/logging"
)

// Options configures a PCMSampler
type Options struct {
	// Config supplies the tick interval, FFT and time window settings and
	// the lead-in/lead-out window. Nil uses the defaults.
	Config *config.AnalysisConfig
	// Transform is reported unchanged on every tick
	Transform analysis.Transform
	// Loop restarts from the lead-in position instead of reporting that
	// playback stopped at the end of the input
	Loop   bool
	Logger logging.Logger
}

// PCMSampler plays decoded mono PCM through a spectrum analyser and hands
// out one tick per call, as if the audio were playing live. Each call
// advances playback by one tick interval.
type PCMSampler struct {
	pcm        []float64
	sampleRate float64
	hop        int
	start      int
	end        int
	timeWindow int
	timeRate   float64
	transform  analysis.Transform
	loop       bool
	windowed   bool
	logger     logging.Logger

	analyser *spectral.Analyser
	envelope *temporal.Envelope

	mu      sync.Mutex
	pos     int
	stopped bool
}

// NewPCMSampler creates a sampler over pcm. Playback starts after the
// configured lead-in and ends before the lead-out when the input is long
// enough to leave audio in between.
func NewPCMSampler(pcm []float64, sampleRate int, opts Options) (*PCMSampler, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("sampler requires audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
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
		logger = logging.WithFields(logging.Fields{"component": "pcm_sampler"})
	}

	sr := float64(sampleRate)
	hop := max(int(math.Round(cfg.Session.TickInterval.Seconds()*sr)), 1)

	start := int(cfg.Session.LeadInSec * sr)
	end := len(pcm) - int(cfg.Session.LeadOutSec*sr)
	windowed := true
	if start < 0 || end-start < hop {
		start, end = 0, len(pcm)
		windowed = false
	}

	p := &PCMSampler{
		pcm:        pcm,
		sampleRate: sr,
		hop:        hop,
		start:      start,
		end:        end,
		timeWindow: max(int(cfg.Sampler.TimeWindow.Seconds()*sr), 1),
		timeRate:   cfg.Sampler.TimeSampleRate,
		transform:  opts.Transform,
		loop:       opts.Loop,
		windowed:   windowed,
		logger:     logger,
		analyser:   spectral.NewAnalyser(cfg.Sampler.FFTSize, cfg.Sampler.Smoothing, cfg.MinDecibels),
		envelope:   temporal.NewEnvelope(),
		pos:        start,
	}

	logger.Debug("sampler ready", logging.Fields{
		"samples":      len(pcm),
		"sample_rate":  sampleRate,
		"hop":          hop,
		"start_sec":    float64(start) / sr,
		"end_sec":      float64(end) / sr,
		"fft_size":     cfg.Sampler.FFTSize,
		"time_rate_hz": cfg.Sampler.TimeSampleRate,
	})

	return p, nil
}

// Sample implements analysis.FrameSampler
func (p *PCMSampler) Sample(ctx context.Context) (analysis.Tick, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Tick{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pos >= p.end {
		if !p.loop {
			if !p.stopped {
				p.stopped = true
				p.logger.Debug("end of input")
			}
			return p.tick(nil, nil, 0, false), nil
		}
		p.pos = p.start
		p.analyser.Reset()
		p.logger.Debug("looping to start")
	}

	p.pos = min(p.pos+p.hop, p.end)
	played := p.pcm[:p.pos]

	frequency := p.analyser.Compute(played)

	from := max(p.pos-p.timeWindow, 0)
	envelope, rate := p.envelope.Decimate(p.pcm[from:p.pos], p.sampleRate, p.timeRate)

	return p.tick(frequency, envelope, rate, true), nil
}

func (p *PCMSampler) tick(frequency, envelope []float64, rate float64, playing bool) analysis.Tick {
	// duration is only known to the session when the window fits
	duration := 0.0
	if p.windowed {
		duration = float64(len(p.pcm)) / p.sampleRate
	}
	return analysis.Tick{
		Frequency:      frequency,
		SampleRate:     p.sampleRate,
		Time:           envelope,
		TimeSampleRate: rate,
		Transform:      p.transform,
		Playing:        playing,
		PositionSec:    float64(p.pos) / p.sampleRate,
		DurationSec:    duration,
	}
}

// Position returns the playback position in seconds
func (p *PCMSampler) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.pos) / p.sampleRate
}
