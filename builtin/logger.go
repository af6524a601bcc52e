// Package builtin supplies the default service factories every Initializer
// can be constructed with: a slog-backed Logger, the root and per-plugin
// Lifecycle services, the protected pluginMetadata service, and an
// optional Prometheus-backed Metrics sink.
package builtin

import (
	"log/slog"

	"github.com/c360/corewire"
)

// SlogLogger adapts a *slog.Logger to the corewire.Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger, or slog.Default() if logger is nil.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Child(fields map[string]any) corewire.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &SlogLogger{logger: l.logger.With(args...)}
}

func (l *SlogLogger) Error(msg string, err error) {
	l.logger.Error(msg, "error", err)
}
