package llm

import (
	"github.com/easyops/convref-go/pkg/core/message"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 定义 Token 计数接口
type TokenCounter interface {
	// Count 返回给定文本的 Token 数量
	Count(text string) int

	// Truncate 将文本截断到最多 maxTokens 个 Token
	Truncate(text string, maxTokens int) string
}

// TiktokenCounter 使用 tiktoken 实现精确的 Token 计数
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewTiktokenCounter 创建 TiktokenCounter
// 未知模型降级到 cl100k_base 编码。
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	if model == "" {
		model = "gpt-4o"
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	return &TiktokenCounter{encoding: encoding, model: model}, nil
}

// Count 返回给定文本的 Token 数量
func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// Truncate 将文本截断到最多 maxTokens 个 Token
func (c *TiktokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[:maxTokens])
}

// CountMessages 返回消息列表的总 Token 数量，包含消息格式开销
func (c *TiktokenCounter) CountMessages(msgs []message.Message) int {
	const tokensPerMessage = 3

	total := 0
	for _, msg := range msgs {
		total += tokensPerMessage
		total += c.Count(string(msg.Role))
		total += c.Count(msg.Content)
	}
	return total + 3
}

// EstimatedCounter 使用字符估算实现 Token 计数
// 这是 tiktoken 编码不可用时的降级方案。
type EstimatedCounter struct {
	// CharsPerToken 每个 Token 的平均字符数，默认 4
	CharsPerToken int
}

// NewEstimatedCounter 创建 EstimatedCounter
func NewEstimatedCounter() *EstimatedCounter {
	return &EstimatedCounter{CharsPerToken: 4}
}

func (c *EstimatedCounter) ratio() int {
	if c.CharsPerToken <= 0 {
		return 4
	}
	return c.CharsPerToken
}

// Count 返回估算的 Token 数量
func (c *EstimatedCounter) Count(text string) int {
	return len(text) / c.ratio()
}

// Truncate 按估算字符数截断文本
func (c *EstimatedCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	limit := maxTokens * c.ratio()
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// NewTokenCounter 返回模型对应的计数器，tiktoken 不可用时降级为估算
func NewTokenCounter(model string) TokenCounter {
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		return NewEstimatedCounter()
	}
	return counter
}
