// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "CONVREF_"

// maxConfigFileSize 配置文件大小上限
const maxConfigFileSize = 1024 * 1024

// sections 配置段名称，按长度降序以便优先匹配带下划线的段名
var sections = []string{"observability", "summary_tree", "evaluation", "embedding", "pipeline", "cache", "judge", "llm"}

// Config 全局配置结构
type Config struct {
	// LLM 回答模型配置
	LLM LLMConfig `koanf:"llm"`
	// Judge 评分模型配置（为空时复用 LLM）
	Judge LLMConfig `koanf:"judge"`
	// Embedding 嵌入模型配置
	Embedding EmbeddingConfig `koanf:"embedding"`
	// Pipeline 管道配置
	Pipeline PipelineConfig `koanf:"pipeline"`
	// SummaryTree 摘要树配置
	SummaryTree SummaryTreeConfig `koanf:"summary_tree"`
	// Cache 响应缓存配置
	Cache CacheConfig `koanf:"cache"`
	// Evaluation 评估配置
	Evaluation EvaluationConfig `koanf:"evaluation"`
	// Observability 可观测性配置
	Observability ObservabilityConfig `koanf:"observability"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	// Enabled 是否启用
	Enabled bool `koanf:"enabled"`
	// ServiceName 服务名称
	ServiceName string `koanf:"service_name"`
	// Exporter 追踪导出器 (otlp-grpc, otlp-http, stdout, none)
	Exporter string `koanf:"exporter"`
	// TracerEndpoint 追踪端点
	TracerEndpoint string `koanf:"tracer_endpoint"`
	// SampleRate 采样率 [0, 1]
	SampleRate float64 `koanf:"sample_rate"`
	// LogLevel 日志级别 (debug, info, warn, error)
	LogLevel string `koanf:"log_level"`
	// LogFormat 日志格式 (text, json)
	LogFormat string `koanf:"log_format"`
}

// Loader 配置加载器
type Loader struct {
	k *koanf.Koanf
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New("."),
	}
}

// LoadFile 从 YAML 文件加载配置
//
// 文件不存在时不报错，使用默认值。
func (l *Loader) LoadFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
		return fmt.Errorf("unsupported config format: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return l.LoadBytes(content)
}

// LoadBytes 从 YAML 内容加载配置
func (l *Loader) LoadBytes(content []byte) error {
	if err := l.k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// LoadEnv 从环境变量加载配置
func (l *Loader) LoadEnv(prefix string) error {
	return l.k.Load(env.Provider(prefix, ".", func(s string) string {
		return envKey(prefix, s)
	}), nil)
}

// envKey 转换环境变量名: CONVREF_LLM_API_KEY -> llm.api_key
//
// 只在段名之后切分一次，字段名中的下划线保留。
func envKey(prefix, name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, prefix))
	for _, section := range sections {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + strings.TrimPrefix(s, section+"_")
		}
	}
	return s
}

// Unmarshal 解析配置到结构体
func (l *Loader) Unmarshal(cfg *Config) error {
	return l.k.Unmarshal("", cfg)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetDuration 获取时间间隔配置值
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// Load 加载完整配置（文件 + 环境变量）
func Load(configPath string) (*Config, error) {
	loader := NewLoader()

	// 加载配置文件
	if configPath != "" {
		if err := loader.LoadFile(configPath); err != nil {
			return nil, err
		}
	}

	// 加载环境变量（优先级更高）
	if err := loader.LoadEnv(EnvPrefix); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 验证全部配置段
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.SummaryTree.Validate(); err != nil {
		return fmt.Errorf("summary_tree: %w", err)
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability: %w", ErrInvalidSampleRate)
	}
	return nil
}

// applyDefaults 应用默认配置值
func applyDefaults(cfg *Config) {
	cfg.LLM = cfg.LLM.WithDefaults()
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}

	// 评分模型未配置时复用回答模型
	if cfg.Judge.Model == "" {
		cfg.Judge = cfg.LLM
	} else {
		cfg.Judge = cfg.Judge.WithDefaults()
	}

	cfg.Embedding = cfg.Embedding.WithDefaults()
	cfg.Pipeline = cfg.Pipeline.WithDefaults()
	cfg.SummaryTree = cfg.SummaryTree.WithDefaults()
	cfg.Cache = cfg.Cache.WithDefaults()
	cfg.Evaluation = cfg.Evaluation.WithDefaults()

	// Observability 默认值
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "convref"
	}
	if cfg.Observability.Exporter == "" {
		cfg.Observability.Exporter = "none"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "text"
	}
}
