package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hiroki-koketsu/go-otel-todo/internal/model"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_TasksGaugeByState(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	_, err := NewMetrics(mp.Meter("test"), func(context.Context) model.Stats {
		return model.Stats{Total: 5, Pending: 3, Completed: 2}
	})
	if err != nil {
		t.Fatal(err)
	}

	got := collect(t, reader)
	gauge, ok := got["tasks_total"].Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("tasks_total missing or wrong type: %+v", got["tasks_total"])
	}
	values := map[string]int64{}
	for _, dp := range gauge.DataPoints {
		state, _ := dp.Attributes.Value(attribute.Key("task.state"))
		values[state.AsString()] = dp.Value
	}
	if values["pending"] != 3 || values["completed"] != 2 {
		t.Fatalf("unexpected gauge values %v", values)
	}
}

func gaugeValues(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	values := map[string]int64{}
	gauge, ok := collect(t, reader)["tasks_total"].Data.(metricdata.Gauge[int64])
	if !ok {
		return values
	}
	for _, dp := range gauge.DataPoints {
		state, _ := dp.Attributes.Value(attribute.Key("task.state"))
		values[state.AsString()] = dp.Value
	}
	return values
}

func TestMetrics_SetStatsFuncAfterRegistration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp.Meter("test"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := gaugeValues(t, reader); len(got) != 0 {
		t.Fatalf("gauge observed %v before a source was set", got)
	}

	// Swap sources while collections run concurrently; go test -race covers the handoff.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}
	}()
	for i := 0; i < 50; i++ {
		n := i
		m.SetStatsFunc(func(context.Context) model.Stats {
			return model.Stats{Total: n, Pending: n}
		})
	}
	wg.Wait()

	m.SetStatsFunc(func(context.Context) model.Stats {
		return model.Stats{Total: 4, Pending: 1, Completed: 3}
	})
	got := gaugeValues(t, reader)
	if got["pending"] != 1 || got["completed"] != 3 {
		t.Fatalf("unexpected gauge values %v", got)
	}
}

func TestMetrics_RecordMutationAndRequest(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp.Meter("test"), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	m.RecordMutation(ctx, "add", true)
	m.RecordMutation(ctx, "add", false)
	m.RecordRequest(ctx, "GET", "/api/v1/tasks", 200, time.Now())

	got := collect(t, reader)
	ops, ok := got["task_operations_total"].Data.(metricdata.Sum[int64])
	if !ok || len(ops.DataPoints) != 2 {
		t.Fatalf("unexpected operations data %+v", got["task_operations_total"])
	}
	reqs, ok := got["http_requests_total"].Data.(metricdata.Sum[int64])
	if !ok || len(reqs.DataPoints) != 1 || reqs.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected request data %+v", got["http_requests_total"])
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordMutation(context.Background(), "add", true)
	m.RecordRequest(context.Background(), "GET", "/", 200, time.Now())
}
