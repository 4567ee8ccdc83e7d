// Package internal hosts small cross-cutting helpers shared by the
// binaries.
package internal

import (
	"log/slog"
	"os"
	"strings"
)

// GetLoggerFromString builds a text slog logger from a level name,
// falling back to info on anything unknown.
func GetLoggerFromString(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
