package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/station-table-service/internal/config"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const serviceName = "station-table"

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT, writing to stdout.
func NewLogger(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	return slog.New(newHandler(w, level, format))
}

func newHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// NewOTLPLogger returns a logger that writes to stdout like NewLogger and also
// exports records to the OTLP/HTTP collector at cfg.OTLPEndpoint. Both sides
// honor LOG_LEVEL. The returned func flushes pending records.
func NewOTLPLogger(ctx context.Context, cfg *config.Config) (*slog.Logger, func(context.Context) error, error) {
	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(cfg.OTLPEndpoint),
		otlploghttp.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp log exporter: %w", err)
	}

	provider := newLoggerProvider(sdklog.NewBatchProcessor(exporter))
	logger := newFanoutLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat, provider)
	return logger, provider.Shutdown, nil
}

func newLoggerProvider(processor sdklog.Processor) *sdklog.LoggerProvider {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)
	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(res),
	)
}

func newFanoutLogger(w io.Writer, level, format string, provider *sdklog.LoggerProvider) *slog.Logger {
	minLevel := parseLevel(level)
	gate := slogmulti.NewEnabledInlineMiddleware(
		func(ctx context.Context, l slog.Level, next func(context.Context, slog.Level) bool) bool {
			return l >= minLevel && next(ctx, l)
		},
	)
	otlp := slogmulti.Pipe(gate).Handler(
		otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	)
	return slog.New(slogmulti.Fanout(newHandler(w, level, format), otlp))
}
