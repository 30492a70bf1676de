package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/core/message"
	openai "github.com/sashabaranov/go-openai"
)

// 自托管服务不校验密钥，但 go-openai 需要非空令牌
const placeholderAPIKey = "EMPTY"

// OpenAIClient OpenAI 及 OpenAI 兼容接口的 LLM 客户端
type OpenAIClient struct {
	client  *openai.Client
	options *Options
}

// NewOpenAI 创建 OpenAI 客户端
//
// 未设置 BaseURL 时要求提供 APIKey；设置了 BaseURL 的兼容服务（vLLM、Ollama）可不提供。
func NewOpenAI(opts ...Option) (*OpenAIClient, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	apiKey := options.APIKey
	if apiKey == "" {
		if options.BaseURL == "" {
			return nil, errors.ErrInvalidAPIKey
		}
		apiKey = placeholderAPIKey
	}
	if options.Model == "" {
		options.Model = "gpt-4o-mini"
	}
	if options.EmbeddingModel == "" {
		options.EmbeddingModel = "text-embedding-3-small"
	}

	config := openai.DefaultConfig(apiKey)
	if options.BaseURL != "" {
		config.BaseURL = options.BaseURL
	}
	if options.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: options.Timeout}
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		options: options,
	}, nil
}

// Name 返回提供商名称
func (c *OpenAIClient) Name() string {
	return c.options.Provider
}

// Model 返回当前模型名称
func (c *OpenAIClient) Model() string {
	return c.options.Model
}

// Close 关闭客户端连接
func (c *OpenAIClient) Close() error {
	return nil
}

// Generate 生成响应
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	chatReq := c.buildChatRequest(req)

	var resp openai.ChatCompletionResponse
	err := retry(ctx, c.options.MaxRetries, c.options.RetryDelay, func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, chatReq)
		return mapOpenAIError(callErr)
	})
	if err != nil {
		return Response{}, err
	}

	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices returned", errors.ErrInvalidResponse)
	}
	return parseResponse(resp), nil
}

// buildChatRequest 构建 OpenAI 请求
func (c *OpenAIClient) buildChatRequest(req Request) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.options.Model,
		Messages: convertMessages(req.Messages),
	}

	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	} else {
		chatReq.Temperature = float32(c.options.Temperature)
	}

	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	} else {
		chatReq.MaxTokens = c.options.MaxTokens
	}

	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}

	if len(req.Stop) > 0 {
		chatReq.Stop = req.Stop
	}

	return chatReq
}

// convertMessages 转换消息格式
func convertMessages(msgs []message.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

// parseResponse 解析响应
func parseResponse(resp openai.ChatCompletionResponse) Response {
	choice := resp.Choices[0]
	return Response{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		TokenUsage: message.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// Embed 生成文本嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.options.EmbeddingModel),
	}

	var resp openai.EmbeddingResponse
	err := retry(ctx, c.options.MaxRetries, c.options.RetryDelay, func() error {
		var callErr error
		resp, callErr = c.client.CreateEmbeddings(ctx, req)
		return mapOpenAIError(callErr)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts",
			errors.ErrEmbeddingMismatch, len(resp.Data), len(texts))
	}

	// 响应按 Index 对齐输入顺序
	result := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		result[idx] = data.Embedding
	}

	return result, nil
}

// mapOpenAIError 映射 OpenAI 错误到框架错误
func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrTimeout
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.ErrContextCanceled
	}

	var apiErr *openai.APIError
	if !stderrors.As(err, &apiErr) {
		return errors.WrapError(err, "openai request failed")
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusUnauthorized:
		return errors.ErrInvalidAPIKey
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", errors.ErrModelNotFound, apiErr.Message)
	case http.StatusTooManyRequests:
		return errors.ErrRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return errors.ErrProviderUnavailable
	default:
		return fmt.Errorf("openai error (code=%d): %w", apiErr.HTTPStatusCode, err)
	}
}
