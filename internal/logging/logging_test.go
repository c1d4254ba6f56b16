package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestInitDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		logger := Init("DEBUG", "node-a")
		assert.NotNil(t, logger)
	})
}

func TestForComponent(t *testing.T) {
	logger := Init("INFO", "node-a")
	scoped := ForComponent(logger, "watchdog")
	assert.NotNil(t, scoped)
}
