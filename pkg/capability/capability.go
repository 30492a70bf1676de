// Package capability 在 LLM Provider 之上提供管道使用的三种派生调用：
// 是/否判断、逗号分隔词表提取与自由生成。
package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/core/message"
)

const (
	// affirmativeSuffix 追加到最后一条消息，要求严格的 YES/NO 回复
	affirmativeSuffix = ` Answer "YES" or "NO" only.`
	// listWordsSuffix 追加到最后一条消息，要求逗号分隔的回复
	listWordsSuffix = ` Answer with a comma-separated list only.`

	// AffirmativeMaxTokens 是/否判断的输出预算
	AffirmativeMaxTokens = 10
	// ListWordsMaxTokens 词表提取的输出预算
	ListWordsMaxTokens = 100
)

// Adapter 包装 LLM Provider 的派生调用
//
// Adapter 不持有可变状态，可在多个样本间共享。调用方传入的消息切片不会被修改。
type Adapter struct {
	provider llm.Provider
}

// New 创建 Adapter
func New(provider llm.Provider) *Adapter {
	return &Adapter{provider: provider}
}

// Provider 返回底层 Provider
func (a *Adapter) Provider() llm.Provider {
	return a.provider
}

// withSuffix 复制对话并在最后一条消息后追加指令
func withSuffix(prefix []message.Message, suffix string) ([]message.Message, error) {
	if len(prefix) == 0 {
		return nil, errors.ErrEmptyConversation
	}
	msgs := message.Clone(prefix)
	msgs[len(msgs)-1].Content += suffix
	return msgs, nil
}

// AffirmativeResponse 询问一个是/否问题
//
// 回复（忽略大小写）包含 "YES" 且不包含 "NO" 时返回 true；模糊回复一律视为 false。
func (a *Adapter) AffirmativeResponse(ctx context.Context, prefix []message.Message) (bool, error) {
	msgs, err := withSuffix(prefix, affirmativeSuffix)
	if err != nil {
		return false, err
	}

	reply, err := a.Generate(ctx, msgs, AffirmativeMaxTokens)
	if err != nil {
		return false, err
	}
	return IsAffirmative(reply), nil
}

// ListWords 请求逗号分隔的词表，返回小写、去空白、去空项后的结果
func (a *Adapter) ListWords(ctx context.Context, prefix []message.Message) ([]string, error) {
	msgs, err := withSuffix(prefix, listWordsSuffix)
	if err != nil {
		return nil, err
	}

	reply, err := a.Generate(ctx, msgs, ListWordsMaxTokens)
	if err != nil {
		return nil, err
	}
	return ParseWordList(reply), nil
}

// Generate 直接调用 Provider 并返回回复文本
func (a *Adapter) Generate(ctx context.Context, conversation []message.Message, maxTokens int) (string, error) {
	if len(conversation) == 0 {
		return "", errors.ErrEmptyConversation
	}

	resp, err := a.provider.Generate(ctx, llm.NewRequest(conversation, llm.WithRequestMaxTokens(maxTokens)))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return resp.Content, nil
}

// IsAffirmative 判断回复是否为肯定回答
func IsAffirmative(reply string) bool {
	upper := strings.ToUpper(reply)
	return strings.Contains(upper, "YES") && !strings.Contains(upper, "NO")
}

// ParseWordList 将逗号分隔的回复解析为小写词表
func ParseWordList(reply string) []string {
	parts := strings.Split(strings.ToLower(reply), ",")
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if w := strings.TrimSpace(p); w != "" {
			words = append(words, w)
		}
	}
	return words
}
