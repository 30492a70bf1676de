package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/easyops/convref-go/pkg/convref"
	"github.com/easyops/convref-go/pkg/core/config"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/embedding"
	"github.com/easyops/convref-go/pkg/nlp"
	"github.com/easyops/convref-go/pkg/otel"
	"github.com/easyops/convref-go/pkg/summarytree"
)

// app holds the wired components shared by all commands
type app struct {
	cfg       *config.Config
	telemetry *otel.Provider
	logger    otel.Logger
	tracer    *otel.PipelineTracer
	provider  llm.Provider
	closers   []io.Closer
}

// newApp loads configuration and wires telemetry and the LM provider
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	telemetry, err := otel.NewProvider(ctx, telemetryConfig(cfg.Observability), os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	otel.SetGlobal(telemetry)

	a := &app{
		cfg:       cfg,
		telemetry: telemetry,
		logger:    telemetry.Logger(),
		tracer:    otel.NewPipelineTracer(telemetry.Tracer(), telemetry.Metrics()),
	}

	a.provider, err = a.newProvider(cfg.LLM, llm.WithEmbeddingModel(cfg.Embedding.Model))
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// newProvider creates an LM provider with optional Redis caching and tracing
func (a *app) newProvider(cfg config.LLMConfig, extra ...llm.Option) (llm.Provider, error) {
	base, err := llm.FromConfig(cfg, extra...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm provider: %w", err)
	}

	provider := base
	if a.cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.Addr,
			Password: a.cfg.Cache.Password,
			DB:       a.cfg.Cache.DB,
		})
		provider = llm.NewCachedProvider(base, client,
			llm.WithCacheTTL(a.cfg.Cache.TTL),
			llm.WithCachePrefix(a.cfg.Cache.KeyPrefix),
			llm.OnCacheError(func(err error) {
				a.logger.Warn("response cache unavailable", "error", err)
			}),
		)
	}
	a.closers = append(a.closers, provider)

	return otel.NewTracedProvider(provider,
		otel.WithTracedProviderTracer(a.telemetry.Tracer()),
		otel.WithTracedProviderMetrics(a.telemetry.Metrics()),
	), nil
}

// newEncoder creates the embedding encoder used for clustering
func (a *app) newEncoder() (embedding.Encoder, error) {
	encoder, err := embedding.FromConfig(a.cfg.Embedding, a.provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding encoder: %w", err)
	}
	if c, ok := encoder.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return encoder, nil
}

// newTreeStore opens the configured summary tree store
func (a *app) newTreeStore(ctx context.Context) (summarytree.Store, error) {
	store, err := summarytree.NewStore(ctx, a.cfg.SummaryTree)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary tree store: %w", err)
	}
	a.closers = append(a.closers, store)
	return store, nil
}

// newPipeline creates the answering pipeline from the pipeline config
func (a *app) newPipeline(ctx context.Context, pc config.PipelineConfig) (*convref.Pipeline, error) {
	opts := []convref.Option{
		convref.WithLogger(a.logger),
		convref.WithPipelineTracer(a.tracer),
	}
	if !pc.DisableEntities {
		opts = append(opts, convref.WithEntityRecognizer(nlp.NewProseRecognizer()))
	}
	if pc.UseSummaryTrees {
		store, err := a.newTreeStore(ctx)
		if err != nil {
			return nil, err
		}
		forest, err := summarytree.Load(ctx, store)
		if err != nil {
			return nil, fmt.Errorf("failed to load summary trees: %w", err)
		}
		a.logger.Info("summary trees loaded", "trees", len(forest))
		opts = append(opts, convref.WithSummaryTrees(forest))
	}

	return convref.New(a.provider, convref.FromPipelineConfig(pc), opts...)
}

// Close releases providers, stores and flushes telemetry
func (a *app) Close(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// telemetryConfig maps the observability section onto the otel provider config
func telemetryConfig(obs config.ObservabilityConfig) otel.Config {
	cfg := otel.DefaultConfig()
	cfg.Enabled = obs.Enabled
	cfg.ServiceName = obs.ServiceName
	cfg.SampleRate = obs.SampleRate
	cfg.Exporter.Type = otel.ExporterType(obs.Exporter)
	if obs.TracerEndpoint != "" {
		cfg.Exporter.Endpoint = obs.TracerEndpoint
	}
	cfg.Logging = otel.LoggingConfig{Level: obs.LogLevel, Format: obs.LogFormat}
	return cfg
}
