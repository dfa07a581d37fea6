// Package logging configures structured logging for the Caelus tools.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Config holds logging configuration.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// LogFile, when set together with LogToFile, receives a copy of all
	// log records.
	LogFile   string
	LogToFile bool
}

// ParseLevel maps a level name onto a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the process logger and installs it as the slog default.
// The returned closer flushes the log file, if one was configured.
func Setup(cfg Config) (*slog.Logger, func() error, error) {
	var output io.Writer = os.Stderr
	closer := func() error { return nil }

	if cfg.LogToFile && cfg.LogFile != "" {
		fh, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		output = io.MultiWriter(os.Stderr, fh)
		closer = fh.Close
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))
	slog.SetDefault(logger)
	if cfg.LogToFile && cfg.LogFile != "" {
		logger.Info("Logging enabled to file", "file", cfg.LogFile)
	}
	return logger, closer, nil
}
