package otel

// 预定义的指标名称
// 遵循 OpenTelemetry 语义约定
const (
	// LLM 指标
	MetricLLMRequests         = "llm.requests"          // 计数器: LLM 请求次数
	MetricLLMRequestDuration  = "llm.request.duration"  // 直方图: LLM 请求时间(ms)
	MetricLLMTokensPrompt     = "llm.tokens.prompt"     // 计数器: Prompt Token 总数
	MetricLLMTokensCompletion = "llm.tokens.completion" // 计数器: Completion Token 总数
	MetricLLMTokensTotal      = "llm.tokens.total"      // 计数器: 总 Token 数
	MetricLLMErrors           = "llm.errors"            // 计数器: LLM 错误次数
	MetricLLMEmbeddings       = "llm.embeddings"        // 计数器: 嵌入文本数

	// 管道指标
	MetricAnswers        = "convref.answers"         // 计数器: 回答的样本数
	MetricRelevant       = "convref.relevant"        // 计数器: 判定为相关的样本数
	MetricAnswerDuration = "convref.answer.duration" // 直方图: 单个样本耗时(ms)
	MetricEvidence       = "convref.evidence"        // 直方图: 每个样本的证据片段数
	MetricAnswerErrors   = "convref.errors"          // 计数器: 管道错误次数

	// 摘要树指标
	MetricTreesBuilt    = "summary_tree.built"    // 计数器: 构建的摘要树数
	MetricTreeBuildTime = "summary_tree.duration" // 直方图: 单棵树构建时间(ms)
	MetricTreeClusters  = "summary_tree.clusters" // 计数器: 生成的中间节点数

	// 评估指标
	MetricEvalPredictions = "evaluation.predictions" // 计数器: 新增预测数
	MetricEvalResumed     = "evaluation.resumed"     // 计数器: 续跑跳过的样本数
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitSeconds      MetricUnit = "s"
	UnitBytes        MetricUnit = "By"
	UnitCount        MetricUnit = "1"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricLLMRequests, "Number of LLM requests", UnitCount, "counter"},
	{MetricLLMRequestDuration, "Duration of LLM requests", UnitMilliseconds, "histogram"},
	{MetricLLMTokensPrompt, "Number of prompt tokens", UnitCount, "counter"},
	{MetricLLMTokensCompletion, "Number of completion tokens", UnitCount, "counter"},
	{MetricLLMTokensTotal, "Total number of tokens", UnitCount, "counter"},
	{MetricLLMErrors, "Number of LLM errors", UnitCount, "counter"},
	{MetricLLMEmbeddings, "Number of texts embedded", UnitCount, "counter"},

	{MetricAnswers, "Number of samples answered", UnitCount, "counter"},
	{MetricRelevant, "Number of samples judged relevant", UnitCount, "counter"},
	{MetricAnswerDuration, "Duration of answering one sample", UnitMilliseconds, "histogram"},
	{MetricEvidence, "Number of evidence segments per sample", UnitCount, "histogram"},
	{MetricAnswerErrors, "Number of pipeline errors", UnitCount, "counter"},

	{MetricTreesBuilt, "Number of summary trees built", UnitCount, "counter"},
	{MetricTreeBuildTime, "Duration of building one summary tree", UnitMilliseconds, "histogram"},
	{MetricTreeClusters, "Number of intermediate nodes created", UnitCount, "counter"},

	{MetricEvalPredictions, "Number of new predictions stored", UnitCount, "counter"},
	{MetricEvalResumed, "Number of samples skipped on resume", UnitCount, "counter"},
}
