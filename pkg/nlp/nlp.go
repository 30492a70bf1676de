// Package nlp 提供查询文本的命名实体识别
package nlp

import (
	"context"
	"fmt"

	"github.com/easyops/convref-go/pkg/core/errors"
	"github.com/jdkato/prose/v2"
)

// EntityRecognizer 命名实体识别接口
type EntityRecognizer interface {
	// Entities 返回文本中实体的表面字符串，按出现顺序
	Entities(ctx context.Context, text string) ([]string, error)
}

// ProseRecognizer 基于 prose 内置英文模型的实体识别
type ProseRecognizer struct{}

// NewProseRecognizer 创建 ProseRecognizer
func NewProseRecognizer() *ProseRecognizer {
	return &ProseRecognizer{}
}

// Entities 返回文本中的命名实体
func (r *ProseRecognizer) Entities(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrEntityRecognition, err)
	}

	ents := doc.Entities()
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.Text)
	}
	return out, nil
}

// NoopRecognizer 不识别任何实体
type NoopRecognizer struct{}

// Entities 总是返回空
func (NoopRecognizer) Entities(ctx context.Context, text string) ([]string, error) {
	return nil, nil
}

var (
	_ EntityRecognizer = (*ProseRecognizer)(nil)
	_ EntityRecognizer = NoopRecognizer{}
)
