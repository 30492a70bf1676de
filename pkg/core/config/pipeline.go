package config

import "time"

// EmbeddingConfig 嵌入模型配置
type EmbeddingConfig struct {
	// Provider 嵌入提供商 (openai, fastembed)
	Provider string `koanf:"provider"`
	// Model 嵌入模型名称
	Model string `koanf:"model"`
	// CacheDir 本地模型缓存目录（fastembed）
	CacheDir string `koanf:"cache_dir"`
	// MaxLength 最大输入序列长度（fastembed）
	MaxLength int `koanf:"max_length"`
}

// WithDefaults 返回带默认值的配置
func (c EmbeddingConfig) WithDefaults() EmbeddingConfig {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		switch c.Provider {
		case "fastembed":
			c.Model = "BAAI/bge-small-en-v1.5"
		default:
			c.Model = "text-embedding-3-small"
		}
	}
	if c.MaxLength == 0 {
		c.MaxLength = 512
	}
	return c
}

// PipelineConfig 检索与回答管道配置
type PipelineConfig struct {
	// Strict 严格模式：由 LLM 确认摘录是否相关
	Strict bool `koanf:"strict"`
	// LLMOnly 仅 LLM 基线模式，跳过三阶段管道
	LLMOnly bool `koanf:"llm_only"`
	// UseGroundTruthSegments 阶段一消融：使用真实证据片段
	UseGroundTruthSegments bool `koanf:"use_ground_truth_segments"`
	// UseGroundTruthDocRelevancy 阶段二消融：使用真实相关性
	UseGroundTruthDocRelevancy bool `koanf:"use_ground_truth_doc_relevancy"`
	// SimilarityThreshold 近似重复过滤阈值
	// 默认: 0.9
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	// MaxContextTokens 关键词提示中文档上下文的 Token 上限，0 表示不限制
	MaxContextTokens int `koanf:"max_context_tokens"`
	// UseSummaryTrees 在关键词提示中附带摘要树主题
	UseSummaryTrees bool `koanf:"use_summary_trees"`
	// UseDialogueEntities 将之前轮次出现的实体加入关键词
	UseDialogueEntities bool `koanf:"use_dialogue_entities"`
	// DisableEntities 关闭查询实体识别
	DisableEntities bool `koanf:"disable_entities"`
}

// Validate 验证管道配置
func (c *PipelineConfig) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return ErrInvalidThreshold
	}
	if c.MaxContextTokens < 0 {
		return ErrInvalidMaxTokens
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c PipelineConfig) WithDefaults() PipelineConfig {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.9
	}
	return c
}

// SummaryTreeConfig 摘要树配置
type SummaryTreeConfig struct {
	// MaxNodesPerLevel 每个节点允许的最大子节点数
	// 默认: 5
	MaxNodesPerLevel int `koanf:"max_nodes_per_level"`
	// Seed k-means 随机种子
	// 默认: 42
	Seed int64 `koanf:"seed"`
	// Store 持久化方式 (json, neo4j)
	Store string `koanf:"store"`
	// Path JSON 持久化文件路径
	Path string `koanf:"path"`
	// Neo4jURI Neo4j 连接地址
	Neo4jURI string `koanf:"neo4j_uri"`
	// Neo4jUsername Neo4j 用户名
	Neo4jUsername string `koanf:"neo4j_username"`
	// Neo4jPassword Neo4j 密码
	Neo4jPassword string `koanf:"neo4j_password"`
}

// Validate 验证摘要树配置
func (c *SummaryTreeConfig) Validate() error {
	if c.MaxNodesPerLevel < 2 {
		return ErrInvalidFanout
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c SummaryTreeConfig) WithDefaults() SummaryTreeConfig {
	if c.MaxNodesPerLevel == 0 {
		c.MaxNodesPerLevel = 5
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.Store == "" {
		c.Store = "json"
	}
	if c.Path == "" {
		c.Path = "summary_trees.json"
	}
	if c.Neo4jURI == "" {
		c.Neo4jURI = "bolt://localhost:7687"
	}
	return c
}

// CacheConfig LLM 响应缓存配置
type CacheConfig struct {
	// Enabled 是否启用 Redis 缓存
	Enabled bool `koanf:"enabled"`
	// Addr Redis 地址
	Addr string `koanf:"addr"`
	// Password Redis 密码
	Password string `koanf:"password"`
	// DB Redis 数据库编号
	DB int `koanf:"db"`
	// TTL 缓存过期时间，0 表示永不过期
	TTL time.Duration `koanf:"ttl"`
	// KeyPrefix 缓存键前缀
	KeyPrefix string `koanf:"key_prefix"`
}

// WithDefaults 返回带默认值的配置
func (c CacheConfig) WithDefaults() CacheConfig {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "convref:llm:"
	}
	return c
}

// EvaluationConfig 评估配置
type EvaluationConfig struct {
	// DatasetPath 预处理数据集目录
	DatasetPath string `koanf:"dataset_path"`
	// OutputDir 结果输出目录
	OutputDir string `koanf:"output_dir"`
	// ExperimentName 实验名称（输出子目录）
	ExperimentName string `koanf:"experiment_name"`
	// ResultStore 预测结果存储 (json, sqlite)
	ResultStore string `koanf:"result_store"`
	// MaxSamples 每个划分的最大样本数，0 表示全部
	MaxSamples int `koanf:"max_samples"`
}

// WithDefaults 返回带默认值的配置
func (c EvaluationConfig) WithDefaults() EvaluationConfig {
	if c.OutputDir == "" {
		c.OutputDir = "results"
	}
	if c.ResultStore == "" {
		c.ResultStore = "json"
	}
	return c
}
