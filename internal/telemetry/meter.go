package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hiroki-koketsu/go-otel-todo/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Metrics holds the custom metrics instruments for the application.
type Metrics struct {
	RequestCounter  metric.Int64Counter
	RequestDuration metric.Float64Histogram
	MutationCounter metric.Int64Counter
	TasksGauge      metric.Int64ObservableGauge
	statsFunc       atomic.Pointer[StatsFunc]
}

// StatsFunc reports the current task counts.
type StatsFunc func(context.Context) model.Stats

// InitMeterProvider initializes the OpenTelemetry meter provider.
// It configures an OTLP gRPC exporter and sets up the global meter provider.
func InitMeterProvider(ctx context.Context, serviceName, otlpEndpoint, environment string) (*sdkmetric.MeterProvider, error) {
	conn, err := grpc.NewClient(otlpEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res, err := newResource(serviceName, environment)
	if err != nil {
		return nil, err
	}

	// Create meter provider with periodic reader (10 second interval)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second),
		)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}

// NewMetrics creates and registers custom metrics instruments.
// statsFunc is polled by the tasks gauge on every collection cycle.
func NewMetrics(meter metric.Meter, statsFunc StatsFunc) (*Metrics, error) {
	m := &Metrics{}
	m.SetStatsFunc(statsFunc)

	var err error

	m.RequestCounter, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	m.MutationCounter, err = meter.Int64Counter(
		"task_operations_total",
		metric.WithDescription("Task store operations, split by whether they changed state"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	m.TasksGauge, err = meter.Int64ObservableGauge(
		"tasks_total",
		metric.WithDescription("Current number of tasks by state"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			f := m.statsFunc.Load()
			if f == nil {
				return nil
			}
			s := (*f)(ctx)
			o.Observe(int64(s.Pending), metric.WithAttributes(attribute.String("task.state", "pending")))
			o.Observe(int64(s.Completed), metric.WithAttributes(attribute.String("task.state", "completed")))
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks gauge: %w", err)
	}

	return m, nil
}

// SetStatsFunc sets the source polled by the tasks gauge. It is safe to call
// while a reader is collecting.
func (m *Metrics) SetStatsFunc(f StatsFunc) {
	if f == nil {
		m.statsFunc.Store(nil)
		return
	}
	m.statsFunc.Store(&f)
}

// RecordMutation counts one store operation. It is a no-op on a nil Metrics.
func (m *Metrics) RecordMutation(ctx context.Context, operation string, applied bool) {
	if m == nil {
		return
	}
	m.MutationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task.operation", operation),
		attribute.Bool("task.applied", applied),
	))
}

// RecordRequest records the count and latency of one HTTP request.
// It is a no-op on a nil Metrics.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}
