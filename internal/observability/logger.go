// Package observability holds the structured logger setup, log context
// plumbing, and the Prometheus metric registry shared by all components.
package observability

import (
	"context"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sessionIDKey contextKey = "session_id"
	userIDKey    contextKey = "user_id"
)

var logger *slog.Logger

// InitLogger installs the global structured logger. Format is "json" or
// "text"; the debug level also enables source locations.
func InitLogger(level, format string) {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: level == "debug",
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// FromContext returns the logger enriched with any request, session, and
// user identifiers carried on the context.
func FromContext(ctx context.Context) *slog.Logger {
	base := logger
	if base == nil {
		base = slog.Default()
	}

	attrs := make([]any, 0, 6)
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("request_id", v))
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("session_id", v))
	}
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("user_id", v))
	}

	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}

// WithRequestID attaches the request id for downstream log lines.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithSessionID attaches the resolved session id for downstream log lines.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithUserID attaches the authenticated user id for downstream log lines.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
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
