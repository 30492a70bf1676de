//go:build !cgo

package embedding

import (
	"context"
	stderrors "errors"
)

// ErrFastEmbedNotAvailable 未启用 CGO 构建时 fastembed 不可用
var ErrFastEmbedNotAvailable = stderrors.New("fastembed: not available (binary built without CGO support, use the openai embedding provider instead)")

// FastEmbedConfig 本地嵌入模型配置
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedEncoder 非 CGO 构建下的占位实现
type FastEmbedEncoder struct{}

// NewFastEmbedEncoder 总是返回 ErrFastEmbedNotAvailable
func NewFastEmbedEncoder(_ FastEmbedConfig) (*FastEmbedEncoder, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Encode 总是返回 ErrFastEmbedNotAvailable
func (e *FastEmbedEncoder) Encode(_ context.Context, _ []string, _ string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Close 无操作
func (e *FastEmbedEncoder) Close() error {
	return nil
}
