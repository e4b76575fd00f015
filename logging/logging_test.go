package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestWriterLoggerFormatsSortedFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf)
	logger.SetLevel(DebugLevel)

	logger.WithFields(Fields{"zeta": 1}).Debug("tick", Fields{"alpha": "x"})
	logger.Error(errors.New("boom"), "failed")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] tick alpha=x zeta=1")
	assert.Contains(t, out, "[ERROR] failed: boom")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf)
	logger.SetLevel(WarnLevel)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestBufferLoggerSharesEntries(t *testing.T) {
	root := NewBufferLogger()
	child := root.WithFields(Fields{"component": "session"})

	child.Info("started")
	root.Warn("careful")

	entries := root.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "session", entries[0].Fields["component"])
	assert.Equal(t, []string{"careful"}, root.Messages(WarnLevel))
}

func TestContextFields(t *testing.T) {
	ctx := ContextWithFields(context.Background(), Fields{"content_id": "abc"})
	ctx = ContextWithFields(ctx, Fields{"session_id": "s1"})

	logger := NewBufferLogger()
	logger.WithContext(ctx).Info("hello")

	entries := logger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0].Fields["content_id"])
	assert.Equal(t, "s1", entries[0].Fields["session_id"])
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
	Info("dropped")
}
