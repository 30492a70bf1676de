package otel

import "errors"

// 可观测性相关错误
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid observability config")
	// ErrInvalidSampleRate 采样率无效
	ErrInvalidSampleRate = errors.New("sample rate must be between 0 and 1")
	// ErrUnknownExporter 未知导出器类型
	ErrUnknownExporter = errors.New("unknown exporter type")
)
