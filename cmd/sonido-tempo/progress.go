package main

import (
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progress shows analysis status messages on an mpb bar. One report
// arrives per analysed second, so the bar counts seconds up to the
// session's maximum duration.
type progress struct {
	p   *mpb.Progress
	bar *mpb.Bar

	mu  sync.Mutex
	msg string
}

func newProgress(w io.Writer, maxDuration time.Duration) *progress {
	pr := &progress{msg: "Analyzing…"}
	pr.p = mpb.New(mpb.WithWidth(64), mpb.WithOutput(w))

	total := max(int64(maxDuration/time.Second), 1)
	pr.bar = pr.p.AddBar(total,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string { return pr.message() }),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("%d / %d s"),
		),
	)
	return pr
}

func (pr *progress) message() string {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.msg
}

// Report implements analysis.StatusReporter
func (pr *progress) Report(msg string) error {
	pr.mu.Lock()
	pr.msg = msg
	pr.mu.Unlock()
	pr.bar.Increment()
	return nil
}

// Done stops the bar where it is and waits for the final render
func (pr *progress) Done() {
	pr.bar.Abort(false)
	pr.p.Wait()
}
