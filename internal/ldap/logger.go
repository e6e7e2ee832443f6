package ldap

import (
	"log/slog"
	"time"
)

// Logger is the logging surface used by the connection layer and the
// enrollment core. It mirrors the message/fields shape used throughout
// the codebase so callers can plug in their own sink.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a Logger backed by the given slog logger.
// A nil logger falls back to slog.Default().
func NewSlogLogger(log *slog.Logger) *SlogLogger {
	if log == nil {
		log = slog.Default()
	}
	return &SlogLogger{log: log}
}

func fieldsToArgs(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (l *SlogLogger) Debug(msg string, fields map[string]any) {
	l.log.Debug(msg, fieldsToArgs(fields)...)
}

func (l *SlogLogger) Info(msg string, fields map[string]any) {
	l.log.Info(msg, fieldsToArgs(fields)...)
}

func (l *SlogLogger) Warn(msg string, fields map[string]any) {
	l.log.Warn(msg, fieldsToArgs(fields)...)
}

func (l *SlogLogger) Error(msg string, fields map[string]any) {
	l.log.Error(msg, fieldsToArgs(fields)...)
}

// NopLogger discards all messages. Used in tests and as the fallback
// when no logger is configured.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Warn(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}

// LogOperation logs an operation with timing around fn.
func LogOperation(log Logger, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	log.Debug("Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		log.Error("Operation failed", fields)
	} else {
		log.Debug("Operation completed successfully", fields)
	}

	return err
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":    true,
		"passwd":      true,
		"secret":      true,
		"key":         true,
		"credential":  true,
		"credentials": true,
	}

	for k, v := range fields {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}

	return sanitized
}
