// Package logging provides the process-scoped logging service. It is
// constructed once in main and passed by reference to every component
// that logs; there is no package-level logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type Service struct {
	Logger *slog.Logger

	file *os.File
}

// New builds a logger writing to stderr and, when logPath is non-empty,
// to an append-only log file as well. Close flushes and releases the file.
func New(level, logPath string) (*Service, error) {
	var writers []io.Writer
	writers = append(writers, os.Stderr)

	svc := &Service{}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		svc.file = f
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	svc.Logger = slog.New(handler)
	return svc, nil
}

// Discard returns a logger that drops everything. Used by tests and as a
// fallback when a component is handed a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *Service) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func parseLevel(level string) slog.Level {
	switch level {
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
