package analysis

import (
	"context"
	"math"
	"sync"

	"github.com/RyanBlaney/sonido-tempo/logging"
)

const testBins = 1024

// clickFrame returns a frequency frame for a click track: the lower part of
// the spectrum jumps by 40 dB on a beat and sits at a steady level between
// beats
func clickFrame(beat bool) []float64 {
	frame := make([]float64, testBins)
	for i := range frame {
		switch {
		case i >= 128:
			frame[i] = math.Inf(-1)
		case beat:
			frame[i] = -20
		default:
			frame[i] = -60
		}
	}
	return frame
}

func flatFrame(db float64) []float64 {
	frame := make([]float64, testBins)
	for i := range frame {
		frame[i] = db
	}
	return frame
}

// clickTicks returns n ticks with a beat every 10 ticks (500 ms at the
// default tick interval)
func clickTicks(n int, transform Transform) []Tick {
	ticks := make([]Tick, n)
	for i := range ticks {
		ticks[i] = Tick{
			Frequency:  clickFrame(i%10 == 0),
			SampleRate: 44100,
			Transform:  transform,
			Playing:    true,
		}
	}
	return ticks
}

func silentTicks(n int) []Tick {
	return flatTicks(n, math.Inf(-1))
}

// flatTicks returns n ticks whose frequency frames sit at db in every bin
func flatTicks(n int, db float64) []Tick {
	ticks := make([]Tick, n)
	for i := range ticks {
		ticks[i] = Tick{
			Frequency:      flatFrame(db),
			SampleRate:     44100,
			Time:           make([]float64, 4000),
			TimeSampleRate: 1000,
			Playing:        true,
		}
	}
	return ticks
}

// runTicks steps a session until it finishes or the ticks run out
func runTicks(s *Session, ticks []Tick) (Result, bool) {
	var (
		result Result
		done   bool
	)
	for _, tick := range ticks {
		result, done = s.Step(tick)
		if done {
			break
		}
	}
	return result, done
}

func quietSession() *Session {
	return NewSession(nil, SessionOptions{Logger: &logging.NoOpLogger{}})
}

// sliceSampler replays ticks and repeats the last one when exhausted
type sliceSampler struct {
	mu    sync.Mutex
	ticks []Tick
	calls int
}

func (s *sliceSampler) Sample(ctx context.Context) (Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Tick{}, err
	}
	idx := min(s.calls, len(s.ticks)-1)
	s.calls++
	return s.ticks[idx], nil
}

func (s *sliceSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blockingSampler blocks every Sample until released or cancelled
type blockingSampler struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	calls   int
}

func newBlockingSampler() *blockingSampler {
	return &blockingSampler{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingSampler) Sample(ctx context.Context) (Tick, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.once.Do(func() { close(b.started) })

	select {
	case <-b.release:
		return silentTicks(1)[0], nil
	case <-ctx.Done():
		return Tick{}, ctx.Err()
	}
}

func (b *blockingSampler) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}
