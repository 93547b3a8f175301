package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type correlationIDKey struct{}

// NewLogger builds the JSON logger shared by both binaries. app is stamped on
// every entry so API and console output can be told apart once collected.
func NewLogger(app string, level string) (*zap.Logger, error) {
	atomicLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if app = strings.TrimSpace(app); app != "" {
		cfg.InitialFields = map[string]any{"app": app}
	}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// parseLevel accepts debug, info, warn and error. Empty means info.
func parseLevel(level string) (zap.AtomicLevel, error) {
	value := strings.ToLower(strings.TrimSpace(level))
	if value == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}

	switch value {
	case "debug", "info", "warn", "error":
	default:
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: want debug, info, warn or error", level)
	}

	parsed, err := zapcore.ParseLevel(value)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zap.NewAtomicLevelAt(parsed), nil
}

// WithCorrelationID tags ctx with the id that follows one operator action
// across the console, the dispatch API and its logs.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey{}, strings.TrimSpace(correlationID))
}

// EnsureCorrelationID keeps an existing id or assigns a fresh one.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id, ok := CorrelationIDFromContext(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id, id != ""
}

// WithContextLogger adds the correlationId field when ctx carries one.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		return logger.With(zap.String("correlationId", id))
	}
	return logger
}
