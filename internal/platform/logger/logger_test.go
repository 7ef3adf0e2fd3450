package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, Config{Level: "info", Format: "json"}, DefaultConfig())
}

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json"}, WithWriter(&buf))

	logger.Info("answer composed", "kind", "ai")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "answer composed", record["msg"])
	assert.Equal(t, "ai", record["kind"])
}

func TestNewWritesText(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "text"}, WithWriter(&buf))

	logger.Info("override matched")

	assert.Contains(t, buf.String(), "msg=\"override matched\"")
}

func TestNewFiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json"}, WithWriter(&buf))

	logger.Info("suppressed")
	assert.Empty(t, buf.Bytes())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
