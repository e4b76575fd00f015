// Command sonido-tempo estimates the tempo and key of an audio file by
// playing it through the live analysis engine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/RyanBlaney/sonido-tempo/analysis"
	"github.com/RyanBlaney/sonido-tempo/analysis/config"
	"github.com/RyanBlaney/sonido-tempo/cache"
	"github.com/RyanBlaney/sonido-tempo/logging"
	"github.com/RyanBlaney/sonido-tempo/sampler"
	"github.com/RyanBlaney/sonido-tempo/transcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sonido-tempo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: sonido-tempo [flags] <audio file>")
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "YAML or JSON analysis config (overrides -env)")
	env := fs.String("env", config.EnvironmentBrowser, "tuning profile: browser | desktop")
	pitch := fs.Float64("pitch", 0, "pitch offset applied to the audio, in semitones")
	transpose := fs.Bool("transpose", false, "the pitch offset also changes tempo")
	rate := fs.Float64("rate", 1, "playback rate the audio was sped up by")
	realtime := fs.Bool("realtime", false, "analyse at playback speed instead of as fast as possible")
	loop := fs.Bool("loop", false, "restart short inputs instead of stopping at the end")
	cachePath := fs.String("cache", "", "JSON file caching confident results")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	showProgress := fs.Bool("progress", true, "show a progress bar on stderr")
	ffmpegPath := fs.String("ffmpeg", "ffmpeg", "ffmpeg binary for non-WAV input")
	debug := fs.Bool("debug", false, "log at debug level")
	logLevel := fs.String("log-level", "warn", "log level: debug | info | warn | error")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	path := fs.Arg(0)

	logger := logging.NewWriterLogger(stderr)
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if *debug {
		level = logging.DebugLevel
	}
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	cfg, err := loadConfig(*configPath, *env)
	if err != nil {
		logger.Error(err, "Failed to load config")
		return 1
	}

	decCfg := transcode.DefaultDecoderConfig()
	decCfg.FFmpegPath = *ffmpegPath
	audio, err := transcode.NewDecoder(decCfg).DecodeFile(ctx, path)
	if err != nil {
		logger.Error(err, "Failed to decode audio", logging.Fields{"path": path})
		return 1
	}

	pcm, err := sampler.NewPCMSampler(audio.PCM, audio.SampleRate, sampler.Options{
		Config: cfg,
		Transform: analysis.Transform{
			PitchOffset:   *pitch,
			TransposeMode: *transpose,
			PlaybackRate:  *rate,
		},
		Loop: *loop,
	})
	if err != nil {
		logger.Error(err, "Failed to create sampler")
		return 1
	}

	opts := analysis.AnalyzerOptions{
		Config:  cfg,
		Sampler: pcm,
		Unpaced: !*realtime,
	}
	if *cachePath != "" {
		opts.Cache = cache.NewFileStore(*cachePath)
	}
	var bar *progress
	if *showProgress {
		bar = newProgress(stderr, cfg.Session.MaxDuration)
		opts.Status = bar
	}

	analyzer, err := analysis.NewAnalyzer(opts)
	if err != nil {
		logger.Error(err, "Failed to create analyzer")
		return 1
	}

	started := time.Now()
	result := analyzer.Analyze(ctx, contentID(path), "")
	if bar != nil {
		bar.Done()
	}

	logger.Info("Analysis complete", logging.Fields{
		"path":     path,
		"duration": time.Since(started).Seconds(),
	})

	if err := printResult(stdout, result, *jsonOut); err != nil {
		logger.Error(err, "Failed to print result")
		return 1
	}
	if result.Error != "" {
		return 1
	}
	return 0
}

func loadConfig(path, env string) (*config.AnalysisConfig, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	switch env {
	case config.EnvironmentBrowser, config.EnvironmentDesktop:
		return config.ProfileForEnvironment(env), nil
	default:
		return nil, fmt.Errorf("%w: unknown environment %q", config.ErrInvalidConfig, env)
	}
}

// contentID keys the cache by absolute path
func contentID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func printResult(w io.Writer, r analysis.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		return enc.Encode(r)
	}

	bpm := "unknown"
	if r.BPM != nil {
		bpm = fmt.Sprintf("%d", *r.BPM)
	}
	if _, err := fmt.Fprintf(w, "BPM:        %s\nKey:        %s\nConfidence: %.2f\n", bpm, r.Key, r.Confidence); err != nil {
		return err
	}
	if r.Error != "" {
		_, err := fmt.Fprintf(w, "Error:      %s\n", r.Error)
		return err
	}
	return nil
}
