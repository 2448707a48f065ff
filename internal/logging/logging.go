// Package logging provides structured logging for the SwiftRemit engine.
//
// Entry-point handlers thread the request id and remittance id through the
// context; L pulls both back out so every log line for one settlement
// correlates across the wrapper, the orchestrator, and the event sinks.
package logging

import (
	"context"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	remittanceIDKey contextKey = "remittance_id"
	loggerKey       contextKey = "logger"
)

// New creates a new structured logger. Every record carries the service
// attribute so engine lines are filterable in shared log streams.
func New(level string, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "swiftremit")
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID extracts the request ID from context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRemittanceID tags the context with the remittance an entry point is
// operating on.
func WithRemittanceID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, remittanceIDKey, id)
}

// RemittanceID extracts the remittance id from context; 0 means untagged.
func RemittanceID(ctx context.Context) uint64 {
	if id, ok := ctx.Value(remittanceIDKey).(uint64); ok {
		return id
	}
	return 0
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, or returns the default
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// L is a convenience function to get a logger with request context
func L(ctx context.Context) *slog.Logger {
	logger := FromContext(ctx)
	if reqID := RequestID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if remitID := RemittanceID(ctx); remitID != 0 {
		logger = logger.With("remittance_id", remitID)
	}
	return logger
}
