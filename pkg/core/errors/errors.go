// Package errors 定义框架的通用错误类型
package errors

import (
	"errors"
	"fmt"
)

// 通用错误
var (
	// ErrNotImplemented 功能未实现
	ErrNotImplemented = errors.New("not implemented")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrContextCanceled 上下文被取消
	ErrContextCanceled = errors.New("context canceled")
)

// LLM 相关错误
var (
	// ErrRateLimited 请求被限速
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout 请求超时
	ErrTimeout = errors.New("request timeout")
	// ErrInvalidAPIKey API 密钥无效
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrModelNotFound 模型未找到
	ErrModelNotFound = errors.New("model not found")
	// ErrProviderUnavailable 提供商不可用
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrInvalidResponse LLM 响应无效
	ErrInvalidResponse = errors.New("invalid LLM response")
	// ErrEmbeddingUnsupported 提供商不支持嵌入
	ErrEmbeddingUnsupported = errors.New("embedding not supported by provider")
)

// 嵌入与实体识别相关错误
var (
	// ErrEmbeddingFailed 嵌入失败
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrEmbeddingMismatch 嵌入数量与输入数量不一致
	ErrEmbeddingMismatch = errors.New("embedding count does not match input count")
	// ErrEntityRecognition 实体识别失败
	ErrEntityRecognition = errors.New("entity recognition failed")
)

// 管道相关错误
var (
	// ErrEmptyConversation 对话为空
	ErrEmptyConversation = errors.New("conversation has no turns")
	// ErrDocumentNotFound 文档未找到
	ErrDocumentNotFound = errors.New("document not found")
	// ErrMissingGroundTruth 消融模式需要真实标签
	ErrMissingGroundTruth = errors.New("ground-truth label required by ablation")
)

// 摘要树相关错误
var (
	// ErrTreeNotFound 摘要树未找到
	ErrTreeNotFound = errors.New("summary tree not found")
	// ErrInvalidPersistedTree 持久化的摘要树格式无效
	ErrInvalidPersistedTree = errors.New("invalid persisted summary tree")
)

// WrapError 包装错误并添加上下文信息
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderUnavailable)
}

// IsFatal 判断错误是否为致命错误（不可恢复）
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidAPIKey) ||
		errors.Is(err, ErrModelNotFound) ||
		errors.Is(err, ErrInvalidConfig)
}
