package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hiroki-koketsu/go-otel-todo/internal/config"
	"github.com/hiroki-koketsu/go-otel-todo/internal/handler"
	"github.com/hiroki-koketsu/go-otel-todo/internal/repository"
	"github.com/hiroki-koketsu/go-otel-todo/internal/storage"
	"github.com/hiroki-koketsu/go-otel-todo/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Create a basic logger for startup (before OTel is initialized)
	startupLogger := telemetry.NewJSONLogger(os.Stdout, cfg.LogLevel)
	startupLogger.Info("starting application",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageBackend),
		slog.Bool("telemetry", cfg.TelemetryEnabled),
	)

	if err := cfg.Validate(); err != nil {
		startupLogger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	logger := startupLogger

	if cfg.TelemetryEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
		if err != nil {
			startupLogger.Error("failed to initialize tracer provider", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				startupLogger.Error("failed to shutdown tracer provider", slog.Any("error", err))
			}
		}()

		mp, err := telemetry.InitMeterProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
		if err != nil {
			startupLogger.Error("failed to initialize meter provider", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := mp.Shutdown(ctx); err != nil {
				startupLogger.Error("failed to shutdown meter provider", slog.Any("error", err))
			}
		}()

		// Initialize the logger provider last so log records can be correlated with traces
		lp, otelLogger, err := telemetry.InitLoggerProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment, cfg.LogLevel)
		if err != nil {
			startupLogger.Error("failed to initialize logger provider", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := lp.Shutdown(ctx); err != nil {
				startupLogger.Error("failed to shutdown logger provider", slog.Any("error", err))
			}
		}()
		logger = otelLogger
	}

	// Open the storage slot and load the persisted task collection
	slot, err := openSlot(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer slot.Close()

	// With telemetry disabled the global meter is a no-op
	metrics, err := telemetry.NewMetrics(otel.Meter(cfg.ServiceName), nil)
	if err != nil {
		logger.Error("failed to create metrics", slog.Any("error", err))
		os.Exit(1)
	}

	taskStorage := storage.NewTaskStorage(slot, cfg.StorageKey, logger)
	taskRepo := repository.NewTaskRepository(ctx, taskStorage, logger, repository.WithMetrics(metrics))
	metrics.SetStatsFunc(taskRepo.Stats)

	taskHandler := handler.NewTaskHandler(taskRepo, logger, metrics)

	r := handler.NewRouter(taskHandler, middleware.Logger)

	// Wrap router with OpenTelemetry HTTP instrumentation
	otelHandler := otelhttp.NewHandler(r, "http-server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// Skip tracing for health checks
			return r.URL.Path != "/health"
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      otelHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
	}

	logger.Info("server stopped")
}

func openSlot(ctx context.Context, cfg *config.Config) (storage.Slot, error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		return storage.NewFileSlot(cfg.StorageDir)
	case config.BackendMemory:
		return storage.NewMemorySlot(), nil
	case config.BackendMySQL:
		return storage.NewMySQLSlot(ctx, cfg.MySQLDSN)
	case config.BackendPostgres:
		return storage.NewPostgresSlot(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
