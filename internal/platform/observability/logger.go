package observability

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds the JSON logger used by the API. LOG_LEVEL selects the level; an unset or
// unknown value falls back to info.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeLevel:   zapcore.CapitalLevelEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// EventLogger adapts zap to the func(ctx, event, fields) hook accepted by services. The
// request-scoped logger wins over base so events carry request and trace ids.
func EventLogger(base *zap.Logger, name string) func(ctx context.Context, event string, fields map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	base = base.Named(name)
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := base
		if scoped := requestctx.Logger(ctx); scoped != requestctx.NoopLogger() {
			logger = scoped.Named(name)
		}
		logger.Info(event, sortedFields(fields)...)
	}
}

func sortedFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
