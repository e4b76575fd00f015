package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-tempo/analysis"
	"github.com/RyanBlaney/sonido-tempo/cache"
)

const testRate = 16000

// writeWAV writes samples in [-1, 1] as a 16-bit mono WAV file
func writeWAV(t *testing.T, path string, samples []float64) {
	t.Helper()

	pcm := make([]int16, len(samples))
	for i, v := range samples {
		pcm[i] = int16(math.Round(math.Max(-1, math.Min(1, v)) * 32767))
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	dataSize := uint32(len(pcm) * 2)
	buf.WriteString("RIFF")
	require.NoError(t, binary.Write(&buf, le, 36+dataSize))
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{uint32(16), uint16(1), uint16(1), uint32(testRate), uint32(testRate * 2), uint16(2), uint16(16)} {
		require.NoError(t, binary.Write(&buf, le, v))
	}
	buf.WriteString("data")
	require.NoError(t, binary.Write(&buf, le, dataSize))
	require.NoError(t, binary.Write(&buf, le, pcm))

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func clickTrack(seconds float64) []float64 {
	pcm := make([]float64, int(seconds*testRate))
	burst := int(0.03 * testRate)
	for t := 0.25; t < seconds; t += 0.5 {
		start := int(math.Round(t * testRate))
		for j := 0; j < burst && start+j < len(pcm); j++ {
			pcm[start+j] = 0.8 * math.Sin(2*math.Pi*100*float64(j)/testRate) * math.Exp(-float64(j)/(0.01*testRate))
		}
	}
	return pcm
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: sonido-tempo")

	code, _, _ = runCLI(t, "-log-level", "loud", "a.wav")
	assert.Equal(t, 2, code)
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()

	code, _, _ := runCLI(t, "-env", "toaster", filepath.Join(dir, "a.wav"))
	assert.Equal(t, 1, code)

	code, _, _ = runCLI(t, filepath.Join(dir, "missing.wav"))
	assert.Equal(t, 1, code)
}

func TestRunSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	writeWAV(t, path, make([]float64, 12*testRate))

	code, stdout, _ := runCLI(t, "-json", "-progress=false", path)
	assert.Equal(t, 0, code)
	assert.JSONEq(t, `{"bpm":null,"key":"Unknown","confidence":0,"error":null}`, stdout)
}

func TestRunClickTrackCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "click.wav")
	cachePath := filepath.Join(dir, "cache.json")
	writeWAV(t, path, clickTrack(12))

	code, stdout, _ := runCLI(t, "-json", "-progress=false", "-cache", cachePath, path)
	require.Equal(t, 0, code)

	var result struct {
		BPM        *int    `json:"bpm"`
		Key        string  `json:"key"`
		Confidence float64 `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	require.NotNil(t, result.BPM)
	assert.InDelta(t, 120, *result.BPM, 2)

	if result.Key != "Unknown" {
		entry, ok, err := cache.NewFileStore(cachePath).Get(context.Background(), contentID(path))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, *result.BPM, entry.BPM)
	}

	code, stdout, _ = runCLI(t, "-progress=false", "-transpose", "-pitch", "12", path)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "BPM:")
}

func TestPrintResult(t *testing.T) {
	bpm := 97
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, analysis.Result{BPM: &bpm, Key: "D Minor", Confidence: 0.912}, false))
	assert.Equal(t, "BPM:        97\nKey:        D Minor\nConfidence: 0.91\n", buf.String())

	buf.Reset()
	require.NoError(t, printResult(&buf, analysis.Result{Key: "Unknown", Error: analysis.ErrMsgPlaybackStopped}, false))
	assert.Contains(t, buf.String(), "BPM:        unknown\n")
	assert.Contains(t, buf.String(), "Error:      Playback stopped\n")
}

func TestProgressReporter(t *testing.T) {
	var buf bytes.Buffer
	pr := newProgress(&buf, 10*time.Second)

	for _, msg := range []string{"Analyzing… 1s", "Analyzing… 2s", "Analyzing… 3s"} {
		require.NoError(t, pr.Report(msg))
	}
	assert.Equal(t, "Analyzing… 3s", pr.message())
	assert.Equal(t, int64(3), pr.bar.Current())

	pr.Done()
}
