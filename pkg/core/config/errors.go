package config

import "errors"

// 配置验证相关错误
var (
	// ErrModelRequired 模型名称必填
	ErrModelRequired = errors.New("model name is required")
	// ErrUnknownProvider 未知的提供商
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrInvalidTimeout 超时时间无效
	ErrInvalidTimeout = errors.New("invalid timeout value")
	// ErrInvalidMaxRetries 重试次数无效
	ErrInvalidMaxRetries = errors.New("invalid max retries value")
	// ErrInvalidTemperature 温度值无效
	ErrInvalidTemperature = errors.New("temperature must be between 0 and 2")
	// ErrInvalidMaxTokens Token 数无效
	ErrInvalidMaxTokens = errors.New("max tokens must be positive")
	// ErrInvalidThreshold 相似度阈值无效
	ErrInvalidThreshold = errors.New("similarity threshold must be in (0, 1]")
	// ErrInvalidFanout 扇出上限无效
	ErrInvalidFanout = errors.New("max nodes per level must be at least 2")
	// ErrInvalidSampleRate 采样率无效
	ErrInvalidSampleRate = errors.New("sample rate must be between 0 and 1")
)
