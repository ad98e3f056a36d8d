// Package logging configures the slog logger shared by cmd/streamctl and
// library defaults: a level-string switch and an optional JSON file sink,
// returning a *slog.Logger the caller threads through explicitly
// (stream.New takes one directly) rather than only mutating slog's global
// default.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Configure builds a logger for the given level string ("none", "error",
// "warn", "info", "debug") and optional output file. An empty logFile
// writes text-formatted records to stdout; a non-empty path writes
// JSON-formatted records to that file, truncating it first. The returned
// *os.File is non-nil only when a file was opened, so the caller can close
// it on shutdown.
func Configure(logLevel string, logFile string, opts slog.HandlerOptions) (*slog.Logger, *os.File, error) {
	if logLevel == "none" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil
	}

	switch logLevel {
	case "error":
		opts.Level = slog.LevelError
	case "warn":
		opts.Level = slog.LevelWarn
	case "info":
		opts.Level = slog.LevelInfo
	case "debug":
		opts.Level = slog.LevelDebug
	default:
		return nil, nil, errors.New("logging: unexpected log level " + logLevel)
	}

	if logFile == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, &opts)), nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(f, &opts)), f, nil
}
