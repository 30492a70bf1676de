// Package embedding 提供摘要树聚类所需的文本嵌入能力
package embedding

import (
	"context"
	"fmt"

	"github.com/easyops/convref-go/pkg/core/config"
	"github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/core/llm"
)

// 任务提示
const (
	// TaskSeparation 用于区分/聚类文本的嵌入
	TaskSeparation = "separation"
	// TaskQuery 查询侧嵌入
	TaskQuery = "query"
	// TaskPassage 文档侧嵌入
	TaskPassage = "passage"
)

// Encoder 文本嵌入接口
type Encoder interface {
	// Encode 返回与 texts 一一对应、等长的向量；task 为任务提示，实现可忽略
	Encode(ctx context.Context, texts []string, task string) ([][]float32, error)
}

// ProviderEncoder 使用 LLM Provider 的嵌入接口
type ProviderEncoder struct {
	provider llm.Provider
}

// NewProviderEncoder 创建 ProviderEncoder
func NewProviderEncoder(provider llm.Provider) *ProviderEncoder {
	return &ProviderEncoder{provider: provider}
}

// Encode 调用 Provider.Embed，任务提示被忽略
func (e *ProviderEncoder) Encode(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrEmbeddingFailed, err)
	}
	if err := checkShape(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

// checkShape 校验向量数量与维度
func checkShape(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", errors.ErrEmbeddingMismatch, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 || len(v) != len(vectors[0]) {
			return fmt.Errorf("%w: vector %d has dimension %d", errors.ErrEmbeddingMismatch, i, len(v))
		}
	}
	return nil
}

// FromConfig 根据嵌入配置创建 Encoder
//
// provider 为 openai 时复用传入的 LLM Provider；fastembed 使用本地 ONNX 模型。
func FromConfig(cfg config.EmbeddingConfig, provider llm.Provider) (Encoder, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Provider {
	case "openai":
		if provider == nil {
			return nil, fmt.Errorf("embedding provider openai: %w", errors.ErrInvalidConfig)
		}
		return NewProviderEncoder(provider), nil
	case "fastembed":
		return NewFastEmbedEncoder(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			MaxLength: cfg.MaxLength,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: %w", cfg.Provider, errors.ErrInvalidConfig)
	}
}

var _ Encoder = (*ProviderEncoder)(nil)
