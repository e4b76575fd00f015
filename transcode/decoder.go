package transcode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zenwerk/go-wave"

	"github.com/RyanBlaney/sonido-tempo/algorithms/filters"
	"github.com/RyanBlaney/sonido-tempo/logging"
)

// ErrNoAudio is returned when a source decodes to zero samples
var ErrNoAudio = errors.New("no audio samples decoded")

// AudioData is decoded mono PCM
type AudioData struct {
	PCM        []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	Source     string        `json:"source"`
	Codec      string        `json:"codec"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	// TargetSampleRate is the rate ffmpeg resamples to. WAV files keep
	// their native rate.
	TargetSampleRate int           `json:"target_sample_rate" yaml:"target_sample_rate"`
	MaxDuration      time.Duration `json:"max_duration" yaml:"max_duration"` // 0 = no limit
	FFmpegPath       string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	RemoveDC         bool          `json:"remove_dc" yaml:"remove_dc"`
	DCCutoffHz       float64       `json:"dc_cutoff_hz" yaml:"dc_cutoff_hz"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 44100,
		MaxDuration:      0,
		FFmpegPath:       "ffmpeg", // Assume in PATH
		Timeout:          30 * time.Second,
		RemoveDC:         true,
		DCCutoffHz:       20,
	}
}

// Decoder turns audio files into mono PCM
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{"component": "audio_decoder"}),
	}
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}
	if d.config.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg path must not be empty")
	}
	if d.config.MaxDuration < 0 {
		return fmt.Errorf("max duration must not be negative: %v", d.config.MaxDuration)
	}
	return nil
}

// DecodeFile decodes filename to mono PCM. WAV files are read natively;
// anything else is handed to ffmpeg.
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "DecodeFile",
		"filename": filename,
	})

	if err := d.ValidateConfig(); err != nil {
		return nil, err
	}

	logger.Debug("Starting audio file decode")

	var (
		audio *AudioData
		err   error
	)
	if isWAV(filename) {
		audio, err = d.decodeWAV(filename)
	} else {
		audio, err = d.decodeWithFFmpeg(ctx, filename, logger)
	}
	if err != nil {
		logger.Error(err, "Failed to decode audio file")
		return nil, err
	}
	if len(audio.PCM) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAudio, filename)
	}

	d.finish(audio)

	logger.Debug("Audio decode completed", logging.Fields{
		"codec":       audio.Codec,
		"samples":     len(audio.PCM),
		"sample_rate": audio.SampleRate,
		"duration":    audio.Duration.Seconds(),
	})

	return audio, nil
}

func isWAV(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav", ".wave":
		return true
	}
	return false
}

// decodeWAV reads a PCM WAV file and downmixes every frame to mono
func (d *Decoder) decodeWAV(filename string) (*AudioData, error) {
	reader, err := wave.NewReader(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav %s: %w", filename, err)
	}

	sampleRate := int(reader.FmtChunk.Data.SamplesPerSec)
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav %s has invalid sample rate %d", filename, sampleRate)
	}
	limit := d.sampleLimit(sampleRate)

	pcm := make([]float64, 0, reader.NumSamples)
	for limit == 0 || len(pcm) < limit {
		frame, err := reader.ReadSample()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read wav %s: %w", filename, err)
		}
		if len(frame) == 0 {
			continue
		}

		sum := 0.0
		for _, v := range frame {
			// signed samples come back offset by 2
			if 1 < v {
				v -= 2.0
			}
			sum += v
		}
		pcm = append(pcm, sum/float64(len(frame)))
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   1,
		Source:     filename,
		Codec:      "pcm_wav",
	}, nil
}

func (d *Decoder) sampleLimit(sampleRate int) int {
	if d.config.MaxDuration <= 0 {
		return 0
	}
	return int(d.config.MaxDuration.Seconds() * float64(sampleRate))
}

// buildFFmpegArgs builds the ffmpeg arguments for a mono f64le stream on stdout
func (d *Decoder) buildFFmpegArgs(filename string) []string {
	args := []string{
		"-v", "error",
		"-i", filename,
	}
	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}
	args = append(args,
		"-map", "0:a:0?",
		"-vn",
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
		"pipe:1",
	)
	return args
}

func (d *Decoder) decodeWithFFmpeg(ctx context.Context, filename string, logger logging.Logger) (*AudioData, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	args := d.buildFFmpegArgs(filename)
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	startTime := time.Now()
	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_bytes": len(output),
		"decode_time":  time.Since(startTime).Seconds(),
	})

	return &AudioData{
		PCM:        bytesToFloat64(output),
		SampleRate: d.config.TargetSampleRate,
		Channels:   1,
		Source:     filename,
		Codec:      "ffmpeg_f64le",
	}, nil
}

// finish applies DC removal and fills in the duration
func (d *Decoder) finish(audio *AudioData) {
	if d.config.RemoveDC && len(audio.PCM) > 0 {
		dc := filters.NewDCRemovalWithCutoff(audio.SampleRate, d.config.DCCutoffHz)
		audio.PCM = dc.ProcessBuffer(audio.PCM)
	}
	audio.Duration = time.Duration(float64(len(audio.PCM)) / float64(audio.SampleRate) * float64(time.Second))
}

// bytesToFloat64 converts little-endian float64 bytes, dropping a trailing
// partial sample and any non-finite values
func bytesToFloat64(data []byte) []float64 {
	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		v := math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		samples[i] = v
	}

	return samples
}
