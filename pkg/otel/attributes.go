package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
// 遵循 OpenTelemetry 语义约定
const (
	// LLM 相关属性
	AttrLLMProvider         = "llm.provider"
	AttrLLMModel            = "llm.model"
	AttrLLMTemperature      = "llm.temperature"
	AttrLLMMaxTokens        = "llm.max_tokens"
	AttrLLMPromptTokens     = "llm.prompt_tokens"
	AttrLLMCompletionTokens = "llm.completion_tokens"
	AttrLLMTotalTokens      = "llm.total_tokens"
	AttrLLMEmbedCount       = "llm.embed.count"

	// 管道相关属性
	AttrPipelineMode     = "convref.mode"
	AttrSampleID         = "convref.sample_id"
	AttrDocumentCount    = "convref.document_count"
	AttrTurnCount        = "convref.turn_count"
	AttrKeywordCount     = "convref.keyword_count"
	AttrEvidenceCount    = "convref.evidence_count"
	AttrDocumentRelevant = "convref.document_relevant"
	AttrAnswerVerbatim   = "convref.answer_verbatim"

	// 摘要树相关属性
	AttrTreeDocumentID = "summary_tree.document_id"
	AttrTreeChunkCount = "summary_tree.chunk_count"
	AttrTreeClusterK   = "summary_tree.k"
	AttrTreeDepth      = "summary_tree.depth"

	// 评估相关属性
	AttrEvalDataset = "evaluation.dataset"
	AttrEvalSplit   = "evaluation.split"

	// Error 相关属性
	AttrErrorType      = "error.type"
	AttrErrorMessage   = "error.message"
	AttrErrorRetryable = "error.retryable"
)

// LLMProvider 创建 LLM 提供商属性
func LLMProvider(provider string) attribute.KeyValue {
	return attribute.String(AttrLLMProvider, provider)
}

// LLMModel 创建 LLM 模型属性
func LLMModel(model string) attribute.KeyValue {
	return attribute.String(AttrLLMModel, model)
}

// LLMTokens 创建 LLM Token 使用属性
func LLMTokens(prompt, completion, total int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLLMPromptTokens, prompt),
		attribute.Int(AttrLLMCompletionTokens, completion),
		attribute.Int(AttrLLMTotalTokens, total),
	}
}

// PipelineMode 创建管道模式属性
func PipelineMode(mode string) attribute.KeyValue {
	return attribute.String(AttrPipelineMode, mode)
}

// SampleID 创建样本 ID 属性
func SampleID(id string) attribute.KeyValue {
	return attribute.String(AttrSampleID, id)
}

// DocumentRelevant 创建文档相关性属性
func DocumentRelevant(relevant bool) attribute.KeyValue {
	return attribute.Bool(AttrDocumentRelevant, relevant)
}

// TreeDocumentID 创建摘要树文档 ID 属性
func TreeDocumentID(id string) attribute.KeyValue {
	return attribute.String(AttrTreeDocumentID, id)
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string, retryable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
		attribute.Bool(AttrErrorRetryable, retryable),
	}
}
