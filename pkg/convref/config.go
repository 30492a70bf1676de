package convref

import (
	"fmt"

	"github.com/easyops/convref-go/pkg/core/config"
	"github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/textctx"
)

// Variant 管道变体
type Variant string

const (
	// VariantLax 宽松模式：有证据即视为相关
	VariantLax Variant = "lax"
	// VariantStrict 严格模式：由 LLM 确认证据相关
	VariantStrict Variant = "strict"
	// VariantLLMOnly 仅 LLM 基线，不做关键词检索
	VariantLLMOnly Variant = "llm_only"
)

// IsValid 检查变体是否有效
func (v Variant) IsValid() bool {
	switch v {
	case VariantLax, VariantStrict, VariantLLMOnly:
		return true
	default:
		return false
	}
}

// Ablation 消融开关，使用真实标签替换某一阶段
type Ablation uint8

const (
	// AblateSegments 阶段一使用真实证据片段
	AblateSegments Ablation = 1 << iota
	// AblateRelevancy 阶段二使用真实相关性
	AblateRelevancy
)

// Has 是否包含某个开关
func (a Ablation) Has(flag Ablation) bool {
	return a&flag != 0
}

// String 返回可读形式
func (a Ablation) String() string {
	switch a {
	case 0:
		return "none"
	case AblateSegments:
		return "gt_segments"
	case AblateRelevancy:
		return "gt_relevancy"
	default:
		return "gt_segments+gt_relevancy"
	}
}

// Config 管道配置
type Config struct {
	// Variant 管道变体
	Variant Variant
	// Ablations 消融开关，仅对三阶段变体生效
	Ablations Ablation
	// SimilarityThreshold 证据近似重复阈值
	SimilarityThreshold float64
	// MaxContextTokens 关键词提示中文档上下文的 Token 上限，0 表示不限制
	MaxContextTokens int
	// UseEntities 将查询中的命名实体加入关键词
	UseEntities bool
	// UseDialogueEntities 将之前轮次的实体加入关键词
	UseDialogueEntities bool
	// UseSummaryTrees 在关键词提示中附带摘要树主题
	UseSummaryTrees bool
}

// DefaultConfig 返回默认配置（宽松模式、启用实体）
func DefaultConfig() Config {
	return Config{
		Variant:             VariantLax,
		SimilarityThreshold: textctx.DefaultSimilarityThreshold,
		UseEntities:         true,
	}
}

// FromPipelineConfig 将配置文件中的管道配置转换为 Config
func FromPipelineConfig(pc config.PipelineConfig) Config {
	pc = pc.WithDefaults()
	cfg := Config{
		Variant:             VariantLax,
		SimilarityThreshold: pc.SimilarityThreshold,
		MaxContextTokens:    pc.MaxContextTokens,
		UseEntities:         !pc.DisableEntities,
		UseDialogueEntities: pc.UseDialogueEntities,
		UseSummaryTrees:     pc.UseSummaryTrees,
	}
	switch {
	case pc.LLMOnly:
		cfg.Variant = VariantLLMOnly
	case pc.Strict:
		cfg.Variant = VariantStrict
	}
	if pc.UseGroundTruthSegments {
		cfg.Ablations |= AblateSegments
	}
	if pc.UseGroundTruthDocRelevancy {
		cfg.Ablations |= AblateRelevancy
	}
	return cfg
}

// Validate 验证配置
func (c Config) Validate() error {
	if !c.Variant.IsValid() {
		return fmt.Errorf("unknown variant %q: %w", c.Variant, errors.ErrInvalidConfig)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold %v: %w", c.SimilarityThreshold, errors.ErrInvalidConfig)
	}
	if c.MaxContextTokens < 0 {
		return fmt.Errorf("max context tokens %d: %w", c.MaxContextTokens, errors.ErrInvalidConfig)
	}
	return nil
}

// Mode 返回用于日志与指标的模式名
func (c Config) Mode() string {
	if c.Variant == VariantLLMOnly || c.Ablations == 0 {
		return string(c.Variant)
	}
	return string(c.Variant) + "/" + c.Ablations.String()
}
