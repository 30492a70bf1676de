package otel_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/easyops/convref-go/pkg/otel"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := otel.NewProvider(context.Background(), otel.Config{}, io.Discard)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := p.Tracer().(*otel.NoopTracer); !ok {
		t.Errorf("expected noop tracer, got %T", p.Tracer())
	}
	if _, ok := p.Logger().(*otel.SlogLogger); !ok {
		t.Errorf("expected slog logger even when disabled, got %T", p.Logger())
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewProvider_EnabledWithoutExporter(t *testing.T) {
	p, err := otel.NewProvider(context.Background(), otel.Config{Enabled: true}, io.Discard)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	if _, ok := p.Tracer().(*otel.OTelTracer); !ok {
		t.Errorf("expected otel tracer, got %T", p.Tracer())
	}
	if _, ok := p.Metrics().(*otel.InMemoryMetrics); !ok {
		t.Errorf("expected in-memory metrics, got %T", p.Metrics())
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := otel.NewProvider(context.Background(), otel.Config{SampleRate: 2}, io.Discard)
	if !errors.Is(err, otel.ErrInvalidSampleRate) {
		t.Fatalf("expected ErrInvalidSampleRate, got %v", err)
	}

	_, err = otel.NewProvider(context.Background(), otel.Config{
		Exporter: otel.ExporterConfig{Type: "zipkin"},
	}, io.Discard)
	if !errors.Is(err, otel.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestGlobalProvider(t *testing.T) {
	p, err := otel.NewProvider(context.Background(), otel.Config{}, io.Discard)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	otel.SetGlobal(p)
	t.Cleanup(func() { otel.SetGlobal(nil) })

	if otel.Global() != p {
		t.Fatal("expected global provider to be set")
	}
	if otel.GetLogger() != p.Logger() {
		t.Fatal("expected global logger from provider")
	}
}
