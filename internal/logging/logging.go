// Package logging configures the process-wide structured logger. Adapted
// from the teacher's internal/infra/logging package.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
)

// Init configures the global slog logger with a JSON handler and binds
// "node" to every record emitted through it.
func Init(logLevel, nodeName string) *slog.Logger {
	level := parseLogLevel(logLevel)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			if a.Key == slog.LevelKey {
				a.Key = "level"
			}
			if a.Key == slog.MessageKey {
				a.Key = "message"
			}
			return a
		},
	})

	logger := slog.New(handler).With(slog.String(constants.NodeLabel, nodeName))
	slog.SetDefault(logger)
	return logger
}

// ForComponent returns a logger scoped to a single component, e.g. "lift"
// or "watchdog", mirroring how the teacher tags its elevator/manager logs.
func ForComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// INFO for anything unrecognized.
func parseLogLevel(logLevel string) slog.Level {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
