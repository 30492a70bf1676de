package llm

import (
	"fmt"

	"github.com/easyops/convref-go/pkg/core/config"
	"github.com/easyops/convref-go/pkg/core/errors"
)

// 兼容服务的默认端点
var defaultBaseURLs = map[config.Provider]string{
	config.ProviderDeepSeek: "https://api.deepseek.com/v1",
	config.ProviderOllama:   "http://localhost:11434/v1",
	config.ProviderVLLM:     "http://localhost:8000/v1",
}

// FromConfig 从配置创建 LLM Provider
//
// 所有提供商都通过 OpenAI 兼容接口访问，extra 可追加嵌入模型等选项。
func FromConfig(cfg config.LLMConfig, extra ...Option) (Provider, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !cfg.Provider.IsValid() {
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if cfg.Provider.RequiresAPIKey() && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, errors.ErrInvalidAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.Provider]
	}

	opts := []Option{
		WithProviderName(string(cfg.Provider)),
		WithModel(cfg.Model),
		WithTemperature(cfg.Temperature),
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithRetryDelay(cfg.RetryDelay),
	}
	if cfg.APIKey != "" {
		opts = append(opts, WithAPIKey(cfg.APIKey))
	}
	if baseURL != "" {
		opts = append(opts, WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	return NewOpenAI(opts...)
}

// MustFromConfig 从配置创建 Provider，失败时 panic
func MustFromConfig(cfg config.LLMConfig, extra ...Option) Provider {
	provider, err := FromConfig(cfg, extra...)
	if err != nil {
		panic(fmt.Sprintf("failed to create provider from config: %v", err))
	}
	return provider
}
