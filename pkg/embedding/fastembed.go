//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/easyops/convref-go/pkg/core/errors"
)

// FastEmbedConfig 本地嵌入模型配置
type FastEmbedConfig struct {
	// Model 模型名称，默认 BAAI/bge-small-en-v1.5
	Model string
	// CacheDir 模型缓存目录
	CacheDir string
	// MaxLength 最大输入序列长度
	MaxLength int
}

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// FastEmbedEncoder 基于 fastembed ONNX 模型的本地 Encoder
type FastEmbedEncoder struct {
	model *fastembed.FlagEmbedding
	mu    sync.Mutex
}

// NewFastEmbedEncoder 创建本地 Encoder，首次使用会下载模型文件
func NewFastEmbedEncoder(cfg FastEmbedConfig) (*FastEmbedEncoder, error) {
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-small-en-v1.5"
	}
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("unsupported fastembed model %q: %w", cfg.Model, errors.ErrInvalidConfig)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}

	showProgress := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}
	return &FastEmbedEncoder{model: flag}, nil
}

// Encode 查询任务使用 query 前缀，其余任务按文档段落嵌入
func (e *FastEmbedEncoder) Encode(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		vectors [][]float32
		err     error
	)
	if task == TaskQuery {
		vectors = make([][]float32, 0, len(texts))
		for _, text := range texts {
			var v []float32
			v, err = e.model.QueryEmbed(text)
			if err != nil {
				break
			}
			vectors = append(vectors, v)
		}
	} else {
		vectors, err = e.model.PassageEmbed(texts, 256)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrEmbeddingFailed, err)
	}
	if err := checkShape(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Close 释放模型资源
func (e *FastEmbedEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	return err
}

var _ Encoder = (*FastEmbedEncoder)(nil)
