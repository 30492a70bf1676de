// Package llm 提供 LLM 服务的统一接口
package llm

import (
	"context"

	"github.com/easyops/convref-go/pkg/core/message"
)

// Provider 定义 LLM 提供商接口
//
// 统一不同 LLM 服务的调用方式，支持 OpenAI 以及 DeepSeek、Ollama、vLLM 等 OpenAI 兼容服务。
type Provider interface {
	// Generate 生成响应
	//
	// 参数:
	//   - ctx: 上下文
	//   - req: 请求参数
	//
	// 返回:
	//   - Response: 响应结果
	//   - error: 调用错误
	Generate(ctx context.Context, req Request) (Response, error)

	// Embed 生成文本嵌入向量
	//
	// 参数:
	//   - ctx: 上下文
	//   - texts: 待嵌入的文本列表
	//
	// 返回:
	//   - [][]float32: 嵌入向量列表，与 texts 一一对应
	//   - error: 调用错误
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Name 返回提供商名称
	Name() string

	// Model 返回当前模型名称
	Model() string

	// Close 关闭客户端连接
	Close() error
}

// Request LLM 请求
type Request struct {
	// Messages 消息历史
	Messages []message.Message
	// Temperature 温度参数（可选）
	Temperature *float64
	// MaxTokens 最大输出 token（可选）
	MaxTokens *int
	// TopP 核采样参数（可选）
	TopP *float64
	// Stop 停止序列（可选）
	Stop []string
}

// NewRequest 根据消息和请求选项构建请求
func NewRequest(msgs []message.Message, opts ...RequestOption) Request {
	req := Request{Messages: msgs}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Response LLM 响应
type Response struct {
	// ID 响应标识
	ID string `json:"id"`
	// Content 响应文本内容
	Content string `json:"content"`
	// TokenUsage Token 使用统计
	TokenUsage message.TokenUsage `json:"token_usage"`
	// FinishReason 结束原因
	// 值: "stop", "length", "content_filter"
	FinishReason string `json:"finish_reason"`
}
