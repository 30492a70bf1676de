package convref

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/easyops/convref-go/pkg/capability"
	"github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/nlp"
	"github.com/easyops/convref-go/pkg/otel"
	"github.com/easyops/convref-go/pkg/summarytree"
	"github.com/easyops/convref-go/pkg/textctx"
	"go.opentelemetry.io/otel/attribute"
)

// Pipeline 对话式检索与回答管道
//
// Pipeline 本身不保存跨样本的可变状态，多轮信息通过 DialogueState 显式传递。
type Pipeline struct {
	cfg      Config
	lm       *capability.Adapter
	entities nlp.EntityRecognizer
	trees    summarytree.Forest
	counter  llm.TokenCounter
	logger   otel.Logger
	tracer   *otel.PipelineTracer
	now      func() time.Time
}

// Option 管道选项
type Option func(*Pipeline)

// WithEntityRecognizer 设置实体识别器
func WithEntityRecognizer(r nlp.EntityRecognizer) Option {
	return func(p *Pipeline) {
		p.entities = r
	}
}

// WithSummaryTrees 设置已加载的摘要树
func WithSummaryTrees(forest summarytree.Forest) Option {
	return func(p *Pipeline) {
		p.trees = forest
	}
}

// WithTokenCounter 设置用于上下文截断的 Token 计数器
func WithTokenCounter(counter llm.TokenCounter) Option {
	return func(p *Pipeline) {
		p.counter = counter
	}
}

// WithLogger 设置日志器
func WithLogger(logger otel.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPipelineTracer 设置追踪与指标
func WithPipelineTracer(tracer *otel.PipelineTracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// WithClock 设置计时使用的时钟
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New 创建管道
func New(provider llm.Provider, cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		lm:       capability.New(provider),
		entities: nlp.NoopRecognizer{},
		logger:   otel.NewNoopLogger(),
		tracer:   otel.NewPipelineTracer(nil, nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.counter == nil {
		p.counter = llm.NewTokenCounter(provider.Model())
	}
	return p, nil
}

// Config 返回管道配置
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Answer 回答一个样本
//
// groundTruth 仅在启用消融开关时需要。返回的标签满足不相关即无证据与回答。
func (p *Pipeline) Answer(ctx context.Context, sample Sample, docs map[string]string, groundTruth *Label) (Label, error) {
	label, _, err := p.AnswerWithState(ctx, sample, docs, groundTruth, DialogueState{})
	return label, err
}

// run 一次调用的只读上下文
type run struct {
	sample   Sample
	docs     []string
	query    string
	entities []string
	state    DialogueState
	gt       *Label
}

type evidenceStage func(ctx context.Context, r *run) ([]string, error)

type relevanceStage func(ctx context.Context, r *run, evidence []string) (bool, error)

// AnswerWithState 回答一个样本，并返回合并了本轮实体的对话状态
func (p *Pipeline) AnswerWithState(ctx context.Context, sample Sample, docs map[string]string, groundTruth *Label, state DialogueState) (_ Label, _ DialogueState, err error) {
	start := p.now()
	mode := p.cfg.Mode()

	ctx, span := p.tracer.StartAnswer(ctx, sample.ID, mode, len(sample.DocumentIDs), len(sample.Conversation))
	var label Label
	defer func() {
		p.tracer.RecordAnswer(ctx, mode, label.DocumentRelevant, len(label.Segments), p.now().Sub(start), err)
		if err == nil {
			span.SetAttributes(otel.DocumentRelevant(label.DocumentRelevant))
		}
		otel.Finish(span, err)
	}()

	r, err := p.prepare(ctx, sample, docs, groundTruth, state)
	if err != nil {
		return Label{}, state, err
	}

	if p.cfg.Variant == VariantLLMOnly {
		label, err = p.answerLLMOnly(ctx, r)
	} else {
		evidence := p.keywordEvidence
		if p.cfg.Ablations.Has(AblateSegments) {
			evidence = groundTruthEvidence
		}
		relevance := p.laxRelevance
		switch {
		case p.cfg.Ablations.Has(AblateRelevancy):
			relevance = groundTruthRelevance
		case p.cfg.Variant == VariantStrict:
			relevance = p.strictRelevance
		}
		label, err = p.answerStaged(ctx, r, evidence, relevance)
	}
	if err != nil {
		return Label{}, state, err
	}

	label = label.Normalize()
	elapsed := p.now().Sub(start).Seconds()
	label.TimeTaken = &elapsed

	p.logger.WithContext(ctx).Debug("sample answered",
		"sample_id", sample.ID,
		"mode", mode,
		"document_relevant", label.DocumentRelevant,
		"segments", len(label.Segments),
		"time_taken", elapsed,
	)
	return label, state.WithEntities(r.entities), nil
}

// prepare 校验输入并解析查询、文档与实体
func (p *Pipeline) prepare(ctx context.Context, sample Sample, docs map[string]string, gt *Label, state DialogueState) (*run, error) {
	query, err := sample.Query()
	if err != nil {
		return nil, err
	}
	if p.cfg.Variant != VariantLLMOnly && p.cfg.Ablations != 0 && gt == nil {
		return nil, errors.ErrMissingGroundTruth
	}

	texts := make([]string, len(sample.DocumentIDs))
	for i, id := range sample.DocumentIDs {
		text, ok := docs[id]
		if !ok {
			return nil, errors.WrapError(errors.ErrDocumentNotFound, id)
		}
		texts[i] = text
	}

	r := &run{sample: sample, docs: texts, query: query, state: state, gt: gt}
	if p.cfg.Variant != VariantLLMOnly && p.cfg.UseEntities {
		ents, err := p.entities.Entities(ctx, query)
		if err != nil {
			return nil, err
		}
		r.entities = lowerUnique(ents)
	}
	return r, nil
}

func (p *Pipeline) answerStaged(ctx context.Context, r *run, evidenceFn evidenceStage, relevanceFn relevanceStage) (Label, error) {
	stageCtx, span := p.tracer.StartStage(ctx, 1)
	evidence, err := evidenceFn(stageCtx, r)
	span.SetAttributes(attribute.Int(otel.AttrEvidenceCount, len(evidence)))
	otel.Finish(span, err)
	if err != nil {
		return Label{}, err
	}

	stageCtx, span = p.tracer.StartStage(ctx, 2)
	relevant := false
	// 无证据时直接判为不相关，优先于真实相关性消融
	if len(evidence) > 0 {
		relevant, err = relevanceFn(stageCtx, r, evidence)
	}
	span.SetAttributes(otel.DocumentRelevant(relevant))
	otel.Finish(span, err)
	if err != nil {
		return Label{}, err
	}
	if !relevant {
		return Label{DocumentRelevant: false}, nil
	}

	stageCtx, span = p.tracer.StartStage(ctx, 3)
	reply, err := p.lm.Generate(stageCtx, excerptAnswerMessages(evidence, r.sample.Conversation), AnswerMaxTokens)
	verbatim := err == nil && inAnyDocument(reply, r.docs)
	span.SetAttributes(attribute.Bool(otel.AttrAnswerVerbatim, verbatim))
	otel.Finish(span, err)
	if err != nil {
		return Label{}, err
	}

	segments := evidence
	if verbatim {
		segments = []string{reply}
	}
	return Label{DocumentRelevant: true, Segments: segments, Answer: StringPtr(reply)}, nil
}

// keywordEvidence 关键词提取与窗口检索
func (p *Pipeline) keywordEvidence(ctx context.Context, r *run) ([]string, error) {
	words, err := p.lm.ListWords(ctx, keywordMessages(p.documentContext(r.docs), p.topicContext(r.sample.DocumentIDs), r.query))
	if err != nil {
		return nil, err
	}

	keywords := lowerUnique(words)
	keywords = appendUnique(keywords, r.entities...)
	if p.cfg.UseDialogueEntities {
		keywords = appendUnique(keywords, r.state.Entities...)
	}

	var windows []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		for _, doc := range r.docs {
			if strings.Contains(strings.ToLower(doc), kw) {
				windows = append(windows, textctx.ExtractKeywordWindows(doc, kw)...)
			}
		}
	}
	evidence := textctx.DedupeNearDuplicates(windows, p.cfg.SimilarityThreshold)

	p.logger.WithContext(ctx).Debug("evidence extracted",
		"sample_id", r.sample.ID,
		"keywords", keywords,
		"windows", len(windows),
		"evidence", len(evidence),
	)
	otel.SpanFromContext(ctx).SetAttributes(attribute.Int(otel.AttrKeywordCount, len(keywords)))
	return evidence, nil
}

func groundTruthEvidence(_ context.Context, r *run) ([]string, error) {
	return r.gt.Segments, nil
}

func groundTruthRelevance(_ context.Context, r *run, _ []string) (bool, error) {
	return r.gt.DocumentRelevant, nil
}

func (p *Pipeline) laxRelevance(context.Context, *run, []string) (bool, error) {
	return true, nil
}

func (p *Pipeline) strictRelevance(ctx context.Context, r *run, evidence []string) (bool, error) {
	last, _ := r.sample.lastTurn()
	return p.lm.AffirmativeResponse(ctx, excerptRelevanceMessages(last, evidence))
}

// answerLLMOnly 基线：整份文档上下文直接询问相关性与回答
func (p *Pipeline) answerLLMOnly(ctx context.Context, r *run) (Label, error) {
	docContext := p.documentContext(r.docs)

	relevant, err := p.lm.AffirmativeResponse(ctx, documentsRelevanceMessages(docContext, r.sample.Conversation))
	if err != nil {
		return Label{}, err
	}
	if !relevant {
		return Label{DocumentRelevant: false}, nil
	}

	reply, err := p.lm.Generate(ctx, documentsAnswerMessages(docContext, r.sample.Conversation), AnswerMaxTokens)
	if err != nil {
		return Label{}, err
	}
	label := Label{DocumentRelevant: true, Answer: StringPtr(reply)}
	if inAnyDocument(reply, r.docs) {
		label.Segments = []string{reply}
	}
	return label, nil
}

// documentContext 以 <div> 连接文档，超出 Token 上限时按文档均分预算截断
func (p *Pipeline) documentContext(docs []string) string {
	if p.cfg.MaxContextTokens <= 0 || len(docs) == 0 {
		return divJoin(docs)
	}
	budget := max(p.cfg.MaxContextTokens/len(docs), 1)
	truncated := make([]string, len(docs))
	for i, doc := range docs {
		truncated[i] = p.counter.Truncate(doc, budget)
	}
	return divJoin(truncated)
}

// topicContext 收集在范围内文档的摘要树主题
func (p *Pipeline) topicContext(docIDs []string) string {
	if !p.cfg.UseSummaryTrees || len(p.trees) == 0 {
		return ""
	}
	var parts []string
	for _, id := range docIDs {
		tree, ok := p.trees.Get(id)
		if !ok {
			continue
		}
		if topics := tree.Topics(); len(topics) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", id, strings.Join(topics, "; ")))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return divJoin(parts)
}

// inAnyDocument 回答是否逐字出现在某个文档中，空回答不算
func inAnyDocument(reply string, docs []string) bool {
	if reply == "" {
		return false
	}
	for _, doc := range docs {
		if strings.Contains(doc, reply) {
			return true
		}
	}
	return false
}

// lowerUnique 小写、去首尾空白、去空项并去重，保留首次出现顺序
func lowerUnique(words []string) []string {
	return appendUnique(nil, words...)
}

func appendUnique(dst []string, words ...string) []string {
	seen := make(map[string]bool, len(dst)+len(words))
	for _, w := range dst {
		seen[w] = true
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		dst = append(dst, w)
	}
	return dst
}
