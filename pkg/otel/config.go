package otel

import "time"

// Config 可观测性配置
type Config struct {
	// Enabled 是否启用追踪与指标导出
	Enabled bool `koanf:"enabled"`

	// ServiceName 服务名称
	ServiceName string `koanf:"service_name"`
	// ServiceVersion 服务版本
	ServiceVersion string `koanf:"service_version"`
	// Environment 环境（dev, staging, prod）
	Environment string `koanf:"environment"`

	// Exporter 导出器配置
	Exporter ExporterConfig `koanf:"exporter"`
	// SampleRate 采样率 (0.0-1.0)
	SampleRate float64 `koanf:"sample_rate"`
	// MetricInterval 指标导出间隔
	MetricInterval time.Duration `koanf:"metric_interval"`

	// Logging 日志配置
	Logging LoggingConfig `koanf:"logging"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	// Level 日志级别 (debug, info, warn, error)
	Level string `koanf:"level"`
	// Format 日志格式 (text, json)
	Format string `koanf:"format"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "convref",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Exporter:       DefaultExporterConfig(),
		SampleRate:     1.0,
		MetricInterval: 60 * time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	switch c.Exporter.Type {
	case ExporterOTLPGRPC, ExporterOTLPHTTP, ExporterStdout, ExporterNone:
	default:
		return ErrInvalidConfig
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.ServiceName == "" {
		c.ServiceName = defaults.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = defaults.ServiceVersion
	}
	if c.Environment == "" {
		c.Environment = defaults.Environment
	}
	if c.Exporter.Type == "" {
		c.Exporter.Type = ExporterNone
	}
	if c.Exporter.Endpoint == "" {
		c.Exporter.Endpoint = defaults.Exporter.Endpoint
	}
	if c.Exporter.Timeout == 0 {
		c.Exporter.Timeout = defaults.Exporter.Timeout
	}
	if c.SampleRate == 0 {
		c.SampleRate = defaults.SampleRate
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = defaults.MetricInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}

	return c
}
