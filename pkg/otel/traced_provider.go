package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/easyops/convref-go/pkg/core/llm"
	"go.opentelemetry.io/otel/attribute"
)

// TracedProvider wraps an LLM provider with tracing and metrics
type TracedProvider struct {
	provider llm.Provider
	tracer   Tracer
	metrics  Metrics
}

// TracedProviderOption configures the traced provider
type TracedProviderOption func(*TracedProvider)

// WithTracedProviderTracer sets the tracer
func WithTracedProviderTracer(tracer Tracer) TracedProviderOption {
	return func(p *TracedProvider) {
		p.tracer = tracer
	}
}

// WithTracedProviderMetrics sets the metrics
func WithTracedProviderMetrics(metrics Metrics) TracedProviderOption {
	return func(p *TracedProvider) {
		p.metrics = metrics
	}
}

// NewTracedProvider creates a traced LLM provider wrapper
func NewTracedProvider(provider llm.Provider, opts ...TracedProviderOption) *TracedProvider {
	tp := &TracedProvider{
		provider: provider,
		tracer:   NewNoopTracer(),
		metrics:  NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(tp)
	}
	return tp
}

func (p *TracedProvider) attrs(extra ...Attr) []Attr {
	return append([]Attr{
		NewAttr("provider", p.provider.Name()),
		NewAttr("model", p.provider.Model()),
	}, extra...)
}

// Generate generates a response with tracing
func (p *TracedProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	spanAttrs := []attribute.KeyValue{
		LLMProvider(p.provider.Name()),
		LLMModel(p.provider.Model()),
	}
	if req.MaxTokens != nil {
		spanAttrs = append(spanAttrs, attribute.Int(AttrLLMMaxTokens, *req.MaxTokens))
	}
	ctx, span := p.tracer.Start(ctx, "llm.generate",
		WithSpanKind(SpanKindClient),
		WithAttributes(spanAttrs...),
	)

	start := time.Now()
	resp, err := p.provider.Generate(ctx, req)
	elapsed := time.Since(start)

	p.metrics.Histogram(MetricLLMRequestDuration).Record(ctx, float64(elapsed.Milliseconds()), p.attrs()...)

	if err != nil {
		p.metrics.Counter(MetricLLMRequests).Add(ctx, 1, p.attrs(NewAttr("status", "error"))...)
		p.metrics.Counter(MetricLLMErrors).Add(ctx, 1, p.attrs()...)
		Finish(span, err)
		return resp, err
	}

	p.metrics.Counter(MetricLLMRequests).Add(ctx, 1, p.attrs(NewAttr("status", "success"))...)
	p.metrics.Counter(MetricLLMTokensPrompt).Add(ctx, int64(resp.TokenUsage.PromptTokens), p.attrs()...)
	p.metrics.Counter(MetricLLMTokensCompletion).Add(ctx, int64(resp.TokenUsage.CompletionTokens), p.attrs()...)
	p.metrics.Counter(MetricLLMTokensTotal).Add(ctx, int64(resp.TokenUsage.TotalTokens), p.attrs()...)

	span.SetAttributes(LLMTokens(
		resp.TokenUsage.PromptTokens,
		resp.TokenUsage.CompletionTokens,
		resp.TokenUsage.TotalTokens,
	)...)
	span.AddEvent("llm.response", attribute.String("finish_reason", resp.FinishReason))
	Finish(span, nil)

	return resp, nil
}

// Embed generates embeddings with tracing
func (p *TracedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := p.tracer.Start(ctx, "llm.embed",
		WithSpanKind(SpanKindClient),
		WithAttributes(
			LLMProvider(p.provider.Name()),
			LLMModel(p.provider.Model()),
			attribute.Int(AttrLLMEmbedCount, len(texts)),
		),
	)

	start := time.Now()
	result, err := p.provider.Embed(ctx, texts)
	p.metrics.Histogram(MetricLLMRequestDuration).Record(ctx, float64(time.Since(start).Milliseconds()),
		p.attrs(NewAttr("operation", "embed"))...)

	if err != nil {
		p.metrics.Counter(MetricLLMErrors).Add(ctx, 1, p.attrs(NewAttr("operation", "embed"))...)
		Finish(span, err)
		return nil, err
	}

	p.metrics.Counter(MetricLLMEmbeddings).Add(ctx, int64(len(texts)), p.attrs()...)
	Finish(span, nil)
	return result, nil
}

// Name returns the provider name
func (p *TracedProvider) Name() string {
	return p.provider.Name()
}

// Model returns the model name
func (p *TracedProvider) Model() string {
	return p.provider.Model()
}

// Close closes the underlying provider
func (p *TracedProvider) Close() error {
	return p.provider.Close()
}

// PipelineTracer provides span and metric helpers for answering samples and building trees
type PipelineTracer struct {
	tracer  Tracer
	metrics Metrics
}

// NewPipelineTracer creates a pipeline tracer; nil arguments fall back to no-op implementations
func NewPipelineTracer(tracer Tracer, metrics Metrics) *PipelineTracer {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	return &PipelineTracer{tracer: tracer, metrics: metrics}
}

// StartAnswer starts the root span for answering one sample
func (pt *PipelineTracer) StartAnswer(ctx context.Context, sampleID, mode string, docCount, turnCount int) (context.Context, Span) {
	return pt.tracer.Start(ctx, "convref.answer",
		WithAttributes(
			SampleID(sampleID),
			PipelineMode(mode),
			attribute.Int(AttrDocumentCount, docCount),
			attribute.Int(AttrTurnCount, turnCount),
		),
	)
}

// StartStage starts a span for one pipeline stage (1: evidence, 2: relevance, 3: answer)
func (pt *PipelineTracer) StartStage(ctx context.Context, stage int) (context.Context, Span) {
	return pt.tracer.Start(ctx, fmt.Sprintf("convref.stage%d", stage))
}

// RecordAnswer records the outcome of one answered sample
func (pt *PipelineTracer) RecordAnswer(ctx context.Context, mode string, relevant bool, evidence int, elapsed time.Duration, err error) {
	attrs := []Attr{NewAttr("mode", mode)}
	if err != nil {
		pt.metrics.Counter(MetricAnswerErrors).Add(ctx, 1, attrs...)
		return
	}
	pt.metrics.Counter(MetricAnswers).Add(ctx, 1, attrs...)
	if relevant {
		pt.metrics.Counter(MetricRelevant).Add(ctx, 1, attrs...)
	}
	pt.metrics.Histogram(MetricEvidence).Record(ctx, float64(evidence), attrs...)
	pt.metrics.Histogram(MetricAnswerDuration).Record(ctx, float64(elapsed.Milliseconds()), attrs...)
}

// StartTreeBuild starts a span for building one document's summary tree
func (pt *PipelineTracer) StartTreeBuild(ctx context.Context, docID string, chunks int) (context.Context, Span) {
	return pt.tracer.Start(ctx, "summary_tree.build",
		WithAttributes(
			TreeDocumentID(docID),
			attribute.Int(AttrTreeChunkCount, chunks),
		),
	)
}

// RecordTreeBuild records a finished tree build
func (pt *PipelineTracer) RecordTreeBuild(ctx context.Context, clusters int, elapsed time.Duration) {
	pt.metrics.Counter(MetricTreesBuilt).Add(ctx, 1)
	pt.metrics.Counter(MetricTreeClusters).Add(ctx, int64(clusters))
	pt.metrics.Histogram(MetricTreeBuildTime).Record(ctx, float64(elapsed.Milliseconds()))
}

// RecordEvaluation records stored and resumed predictions of an evaluation run
func (pt *PipelineTracer) RecordEvaluation(ctx context.Context, dataset, split string, predicted, resumed int) {
	attrs := []Attr{NewAttr("dataset", dataset), NewAttr("split", split)}
	pt.metrics.Counter(MetricEvalPredictions).Add(ctx, int64(predicted), attrs...)
	pt.metrics.Counter(MetricEvalResumed).Add(ctx, int64(resumed), attrs...)
}

var _ llm.Provider = (*TracedProvider)(nil)
