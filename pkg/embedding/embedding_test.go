package embedding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/easyops/convref-go/pkg/core/config"
	coreerrors "github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/embedding"
)

type embedProvider struct {
	embedFn func(texts []string) ([][]float32, error)
}

func (p *embedProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{}, nil
}

func (p *embedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedFn(texts)
}

func (p *embedProvider) Name() string  { return "embed" }
func (p *embedProvider) Model() string { return "embed-model" }
func (p *embedProvider) Close() error  { return nil }

func TestProviderEncoder_Encode(t *testing.T) {
	enc := embedding.NewProviderEncoder(&embedProvider{embedFn: func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i), 1}
		}
		return out, nil
	}})

	vectors, err := enc.Encode(context.Background(), []string{"a", "b"}, embedding.TaskSeparation)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(vectors) != 2 || vectors[1][0] != 1 {
		t.Fatalf("unexpected vectors %v", vectors)
	}

	empty, err := enc.Encode(context.Background(), nil, embedding.TaskSeparation)
	if err != nil || empty != nil {
		t.Fatalf("expected nil for empty input, got %v, %v", empty, err)
	}
}

func TestProviderEncoder_ShapeErrors(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
	}{
		{"count", [][]float32{{1, 2}}},
		{"dimension", [][]float32{{1, 2}, {1}}},
		{"empty vector", [][]float32{{}, {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := embedding.NewProviderEncoder(&embedProvider{embedFn: func(texts []string) ([][]float32, error) {
				return tt.vectors, nil
			}})
			_, err := enc.Encode(context.Background(), []string{"a", "b"}, embedding.TaskSeparation)
			if !errors.Is(err, coreerrors.ErrEmbeddingMismatch) {
				t.Fatalf("expected ErrEmbeddingMismatch, got %v", err)
			}
		})
	}
}

func TestProviderEncoder_WrapsProviderError(t *testing.T) {
	wantErr := errors.New("quota")
	enc := embedding.NewProviderEncoder(&embedProvider{embedFn: func(texts []string) ([][]float32, error) {
		return nil, wantErr
	}})

	_, err := enc.Encode(context.Background(), []string{"a"}, embedding.TaskSeparation)
	if !errors.Is(err, wantErr) || !errors.Is(err, coreerrors.ErrEmbeddingFailed) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	p := &embedProvider{}
	enc, err := embedding.FromConfig(config.EmbeddingConfig{Provider: "openai"}, p)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := enc.(*embedding.ProviderEncoder); !ok {
		t.Fatalf("expected ProviderEncoder, got %T", enc)
	}

	if _, err := embedding.FromConfig(config.EmbeddingConfig{Provider: "openai"}, nil); !errors.Is(err, coreerrors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without provider, got %v", err)
	}
	if _, err := embedding.FromConfig(config.EmbeddingConfig{Provider: "word2vec"}, p); !errors.Is(err, coreerrors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown provider, got %v", err)
	}
}
