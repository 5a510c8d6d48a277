// File path: internal/common/log_test.go
package common

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturedEntriesCarryComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "debug", "json")

	log.With("component", "relay").Info("stream finished", "chunks", 3, "error", errors.New("boom"))
	log.Warn("api: request failed", "status", 404)

	entries := LogEntries()
	require.GreaterOrEqual(t, len(entries), 2)
	last := entries[len(entries)-1]
	prev := entries[len(entries)-2]

	assert.Equal(t, "relay", prev.Component)
	assert.Equal(t, "info", prev.Level)
	assert.EqualValues(t, 3, prev.Attributes["chunks"])
	assert.Equal(t, "boom", prev.Attributes["error"])

	assert.Equal(t, "api", last.Component)
	assert.Equal(t, "warn", last.Level)
	assert.Contains(t, buf.String(), `"msg":"api: request failed"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestLogSinkIsBounded(t *testing.T) {
	s := newLogSink(2)
	var buf bytes.Buffer
	log := slog.New(&capturingHandler{handler: slog.NewTextHandler(&buf, nil), sink: s})
	log.Info("one")
	log.Info("two")
	log.Info("three")

	entries := s.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)
}
