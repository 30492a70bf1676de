package otel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/easyops/convref-go/pkg/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*otel.OTelTracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return otel.NewTracer(tp.Tracer("test")), recorder
}

func TestNoopTracer(t *testing.T) {
	tracer := otel.NewNoopTracer()
	ctx, span := tracer.Start(context.Background(), "noop")
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}

	span.SetStatus(otel.StatusOK, "ok")
	span.AddEvent("event")
	span.RecordError(errors.New("test error"))
	span.End()

	if sc := span.SpanContext(); sc.TraceID != "" {
		t.Fatal("expected empty trace ID for noop span")
	}
}

func TestOTelTracer_RecordsSpans(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	ctx, parent := tracer.Start(context.Background(), "convref.answer",
		otel.WithAttributes(otel.SampleID("s-1")))
	_, child := tracer.Start(ctx, "convref.stage1", otel.WithSpanKind(otel.SpanKindClient))
	otel.Finish(child, nil)
	otel.Finish(parent, errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "convref.stage1" || spans[0].Status().Code != codes.Ok {
		t.Errorf("unexpected child span %s status %v", spans[0].Name(), spans[0].Status())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("expected stage span to be a child of the answer span")
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "boom" {
		t.Errorf("unexpected parent status %v", spans[1].Status())
	}
}

func TestOTelTracer_SpanContext(t *testing.T) {
	tracer, _ := newRecordingTracer(t)

	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()

	sc := tracer.SpanFromContext(ctx).SpanContext()
	if sc.TraceID == "" || sc.SpanID == "" {
		t.Fatalf("expected populated span context, got %+v", sc)
	}

	if empty := tracer.SpanFromContext(context.Background()).SpanContext(); empty.TraceID != "" {
		t.Fatalf("expected empty span context without span, got %+v", empty)
	}
}
