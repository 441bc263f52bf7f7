// Package log provides structured logging utilities for turtlego clients and services.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey string

// Context keys understood by WithContext.
const (
	RequestIDKey ctxKey = "request_id"
	TraceIDKey   ctxKey = "trace_id"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger writing to stdout
func New(service, version, level, format string) *Logger {
	return NewWithWriter(os.Stdout, service, version, level, format)
}

// NewWithWriter creates a new logger writing to w
func NewWithWriter(w io.Writer, service, version, level, format string) *Logger {
	logLevel := ParseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// Nop returns a logger that discards everything. Clients use it when no logger is configured.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if reqID := ctx.Value(RequestIDKey); reqID != nil {
		logger = logger.With("request_id", reqID)
	}

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		logger = logger.With("trace_id", traceID)
	}

	return &Logger{
		Logger:  logger,
		service: l.service,
		version: l.version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithEndpoint returns a logger tagged with the remote service address
func (l *Logger) WithEndpoint(baseURL string) *Logger {
	return l.WithFields("endpoint", baseURL)
}

// WithBlock returns a logger with block-specific fields
func (l *Logger) WithBlock(hash string, height uint64) *Logger {
	return l.WithFields("block_hash", hash, "block_height", height)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// LogRequest logs a single round trip to a remote service (debug level)
func (l *Logger) LogRequest(method, path string, status int, duration time.Duration, err error) {
	attrs := []any{
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", float64(duration.Nanoseconds()) / 1e6,
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	l.Debug("rpc request", attrs...)
}

// LogSubmission logs the outcome of a block or transaction submission
func (l *Logger) LogSubmission(kind, hash, status string, latency time.Duration) {
	l.Info("submission result",
		"kind", kind,
		"hash", hash,
		"status", status,
		"latency_ms", float64(latency.Nanoseconds())/1e6,
	)
}

// LogSyncProgress logs chain sync progress
func (l *Logger) LogSyncProgress(height, networkHeight uint64, blocks int, synced bool) {
	l.Info("sync progress",
		"height", height,
		"network_height", networkHeight,
		"blocks", blocks,
		"synced", synced,
	)
}
