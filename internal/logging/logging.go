// Package logging builds slog loggers for the language server. The server
// owns stdout for the protocol stream, so every logger writes to stderr (or
// an explicit writer in tests).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the log output encoding.
type Format string

const (
	// JSONFormat emits one JSON object per record.
	JSONFormat Format = "json"
	// HumanFormat emits logfmt-style text.
	HumanFormat Format = "human"
)

// Config holds logger configuration.
type Config struct {
	Format Format
	Level  string
	Output io.Writer // defaults to stderr
}

// NewLogger creates a logger from the given configuration.
func NewLogger(cfg Config) *slog.Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: LevelFromString(cfg.Level)}
	if cfg.Format == JSONFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewDiscardLogger creates a logger that drops every record. Used in tests.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(100)}))
}

// LevelFromString converts a string to a slog.Level. Unrecognized strings
// map to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
