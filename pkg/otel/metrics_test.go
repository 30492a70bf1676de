package otel_test

import (
	"context"
	"sync"
	"testing"

	"github.com/easyops/convref-go/pkg/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInMemoryMetrics_Counter(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	ctx := context.Background()

	metrics.Counter(otel.MetricAnswers).Add(ctx, 5)
	metrics.Counter(otel.MetricAnswers).Add(ctx, 3, otel.NewAttr("mode", "lax"))

	if got := metrics.CounterValue(otel.MetricAnswers); got != 8 {
		t.Fatalf("expected counter value 8, got %d", got)
	}
	if got := metrics.CounterValue("missing"); got != 0 {
		t.Fatalf("expected 0 for unknown counter, got %d", got)
	}
}

func TestInMemoryMetrics_HistogramAndGauge(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	ctx := context.Background()

	metrics.Histogram(otel.MetricAnswerDuration).Record(ctx, 12)
	metrics.Histogram(otel.MetricAnswerDuration).Record(ctx, 30)
	metrics.Gauge("queue").Set(ctx, 4)
	metrics.Gauge("queue").Set(ctx, 2)

	values := metrics.HistogramValues(otel.MetricAnswerDuration)
	if len(values) != 2 || values[0] != 12 || values[1] != 30 {
		t.Fatalf("unexpected histogram values %v", values)
	}
	if got := metrics.GaugeValue("queue"); got != 2 {
		t.Fatalf("expected gauge 2, got %v", got)
	}
}

func TestInMemoryMetrics_Concurrent(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.Counter(otel.MetricLLMRequests).Add(ctx, 1)
		}()
	}
	wg.Wait()

	if got := metrics.CounterValue(otel.MetricLLMRequests); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestOTelMetrics_ExportsThroughReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics := otel.NewOTelMetrics(mp.Meter("test"))
	ctx := context.Background()

	metrics.Counter(otel.MetricRelevant).Add(ctx, 2, otel.NewAttr("mode", "strict"))
	metrics.Histogram(otel.MetricAnswerDuration).Record(ctx, 42)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == otel.MetricRelevant {
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
					t.Errorf("unexpected counter data %+v", m.Data)
				}
			}
		}
	}
	if !found[otel.MetricRelevant] || !found[otel.MetricAnswerDuration] {
		t.Fatalf("expected both instruments exported, got %v", found)
	}
}

func TestNoopMetrics(t *testing.T) {
	metrics := otel.NewNoopMetrics()
	ctx := context.Background()

	metrics.Counter("c").Add(ctx, 1)
	metrics.Histogram("h").Record(ctx, 1)
	metrics.Gauge("g").Set(ctx, 1)
}
