package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// InitLoggerProvider initializes the OpenTelemetry logger provider.
// It configures an OTLP gRPC exporter and returns a slog.Logger that
// bridges to OpenTelemetry for log-trace correlation. Records below level
// are dropped before they reach the exporter.
func InitLoggerProvider(ctx context.Context, serviceName, otlpEndpoint, environment string, level slog.Leveler) (*sdklog.LoggerProvider, *slog.Logger, error) {
	conn, err := grpc.NewClient(otlpEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	res, err := newResource(serviceName, environment)
	if err != nil {
		return nil, nil, err
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)

	global.SetLoggerProvider(lp)

	// Records carry the active span context, so logs line up with traces.
	handler := otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(lp))
	logger := slog.New(NewLevelHandler(level, handler))

	return lp, logger, nil
}

// NewJSONLogger returns a slog.Logger writing JSON lines to w. It is used
// before the OpenTelemetry providers exist and when telemetry is disabled.
func NewJSONLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// LevelHandler wraps a slog.Handler and drops records below a minimum level.
// The otelslog bridge has no level option of its own.
type LevelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

// NewLevelHandler returns a LevelHandler. A nil level means slog.LevelInfo.
// Wrapping another LevelHandler replaces its level.
func NewLevelHandler(level slog.Leveler, h slog.Handler) *LevelHandler {
	if lh, ok := h.(*LevelHandler); ok {
		h = lh.handler
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &LevelHandler{level: level, handler: h}
}

// Enabled reports whether both the minimum level and the wrapped handler accept level.
func (h *LevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.handler.Enabled(ctx, level)
}

// Handle forwards r to the wrapped handler.
func (h *LevelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

// WithAttrs keeps the level on the derived handler.
func (h *LevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewLevelHandler(h.level, h.handler.WithAttrs(attrs))
}

// WithGroup keeps the level on the derived handler.
func (h *LevelHandler) WithGroup(name string) slog.Handler {
	return NewLevelHandler(h.level, h.handler.WithGroup(name))
}
