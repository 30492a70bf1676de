package summarytree

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/easyops/convref-go/pkg/capability"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/core/message"
	"github.com/easyops/convref-go/pkg/embedding"
	"github.com/easyops/convref-go/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultMaxNodesPerLevel 默认扇出上限
	DefaultMaxNodesPerLevel = 5
	// SummaryMaxTokens 摘要生成的输出预算
	SummaryMaxTokens = 128
	// MaxSummaryKeywords 摘要关键词数上限
	MaxSummaryKeywords = 25
)

var blankLine = regexp.MustCompile(`\n[ \t\r]*\n`)

// Builder 摘要树构建器
//
// Builder 不持有跨文档的可变状态，可重复用于多个文档。
type Builder struct {
	lm          *capability.Adapter
	encoder     embedding.Encoder
	maxNodes    int
	kmeans      KMeansOptions
	sensitivity float64
	logger      otel.Logger
	tracer      *otel.PipelineTracer
}

// Option 构建器选项
type Option func(*Builder)

// WithMaxNodesPerLevel 设置扇出上限，小于 2 时按 2 处理
func WithMaxNodesPerLevel(n int) Option {
	return func(b *Builder) {
		b.maxNodes = max(n, 2)
	}
}

// WithSeed 设置 k-means 随机种子
func WithSeed(seed int64) Option {
	return func(b *Builder) {
		b.kmeans.Seed = seed
	}
}

// WithKMeansOptions 设置完整的 k-means 参数
func WithKMeansOptions(opts KMeansOptions) Option {
	return func(b *Builder) {
		b.kmeans = opts
	}
}

// WithLogger 设置日志器
func WithLogger(logger otel.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithPipelineTracer 设置追踪与指标
func WithPipelineTracer(tracer *otel.PipelineTracer) Option {
	return func(b *Builder) {
		b.tracer = tracer
	}
}

// NewBuilder 创建构建器
func NewBuilder(provider llm.Provider, encoder embedding.Encoder, opts ...Option) *Builder {
	b := &Builder{
		lm:          capability.New(provider),
		encoder:     encoder,
		maxNodes:    DefaultMaxNodesPerLevel,
		kmeans:      DefaultKMeansOptions(),
		sensitivity: DefaultKneeSensitivity,
		logger:      otel.NewNoopLogger(),
		tracer:      otel.NewPipelineTracer(nil, nil),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MaxNodesPerLevel 返回扇出上限
func (b *Builder) MaxNodesPerLevel() int {
	return b.maxNodes
}

// Chunk 按空行切分文档，去除首尾空白、空块和完全重复的块，保留首次出现的顺序
func Chunk(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	seen := make(map[string]bool)
	var chunks []string
	for _, block := range blankLine.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" || seen[block] {
			continue
		}
		seen[block] = true
		chunks = append(chunks, block)
	}
	return chunks
}

// Build 为一个文档构建摘要树
//
// 嵌入或 LLM 调用失败时中止并返回错误。
func (b *Builder) Build(ctx context.Context, docID, text string) (_ *SummaryTree, err error) {
	start := time.Now()
	chunks := Chunk(text)

	ctx, span := b.tracer.StartTreeBuild(ctx, docID, len(chunks))
	defer func() { otel.Finish(span, err) }()

	root := NewNode("")
	for _, c := range chunks {
		root.AddChild(NewNode(c))
	}

	clusters, err := b.enforceFanout(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("clustering %s: %w", docID, err)
	}
	if err := b.Summarize(ctx, root, false); err != nil {
		return nil, fmt.Errorf("summarizing %s: %w", docID, err)
	}

	span.SetAttributes(attribute.Int(otel.AttrTreeDepth, root.Depth()))
	b.tracer.RecordTreeBuild(ctx, clusters, time.Since(start))
	b.logger.WithContext(ctx).Info("summary tree built",
		"document_id", docID,
		"chunks", len(chunks),
		"clusters", clusters,
		"depth", root.Depth(),
		"elapsed", time.Since(start),
	)
	return &SummaryTree{DocumentID: docID, Root: root}, nil
}

// enforceFanout 自顶向下聚类，使每个节点的子节点数不超过上限，返回新建的中间节点数
func (b *Builder) enforceFanout(ctx context.Context, node *TreeNode) (int, error) {
	children := node.Children
	if len(children) <= b.maxNodes {
		if len(children) == 1 {
			node.Data = children[0].Data
			node.Children = nil
		}
		return 0, nil
	}

	texts := make([]string, len(children))
	for i, c := range children {
		texts[i] = c.Data
	}
	vectors, err := b.encoder.Encode(ctx, texts, embedding.TaskSeparation)
	if err != nil {
		return 0, err
	}

	k, labels := b.cluster(toFloat64(vectors))
	otel.SpanFromContext(ctx).AddEvent("cluster",
		attribute.Int(otel.AttrTreeClusterK, k),
		attribute.Int(otel.AttrTreeChunkCount, len(children)),
	)
	groups := make([][]*TreeNode, k)
	for i, label := range labels {
		groups[label] = append(groups[label], children[i])
	}
	for _, g := range groups {
		if len(g) == len(children) {
			groups = splitEvenly(children, k)
			break
		}
	}

	created := 0
	survivors := make([]*TreeNode, 0, k)
	for _, g := range groups {
		// 仅含 0 或 1 个成员的簇连同成员一起丢弃
		if len(g) <= 1 {
			if len(g) == 1 {
				b.logger.WithContext(ctx).Debug("dropping single-member cluster", "level", node.Level()+1)
			}
			continue
		}
		inter := NewNode("")
		inter.SetChildren(g)
		n, err := b.enforceFanout(ctx, inter)
		if err != nil {
			return 0, err
		}
		created += n + 1
		survivors = append(survivors, inter)
	}
	node.SetChildren(survivors)
	return created, nil
}

// cluster 对 k ∈ [2, maxNodes) 逐一拟合，在惯性曲线拐点处选择 k
//
// 无法定位拐点时使用 maxNodes-1，且不小于 2。
func (b *Builder) cluster(points [][]float64) (int, []int) {
	fallback := max(b.maxNodes-1, 2)

	var ks, inertias []float64
	fits := make(map[int]KMeansResult)
	for k := 2; k < b.maxNodes && k <= len(points); k++ {
		res, err := KMeans(points, k, b.kmeans)
		if err != nil {
			continue
		}
		fits[k] = res
		ks = append(ks, float64(k))
		inertias = append(inertias, res.Inertia)
	}

	k := fallback
	if knee, ok := ConvexDecreasingKnee(ks, inertias, b.sensitivity); ok {
		k = int(knee)
	}

	res, ok := fits[k]
	if !ok {
		var err error
		if res, err = KMeans(points, k, b.kmeans); err != nil {
			return k, evenLabels(len(points), k)
		}
	}
	return k, res.Labels
}

// splitEvenly 按顺序把节点均分为 k 组
func splitEvenly(nodes []*TreeNode, k int) [][]*TreeNode {
	groups := make([][]*TreeNode, k)
	for i, label := range evenLabels(len(nodes), k) {
		groups[label] = append(groups[label], nodes[i])
	}
	return groups
}

func evenLabels(n, k int) []int {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i * k / n
	}
	return labels
}

// Summarize 自底向上生成内部节点摘要
//
// 叶子节点保持原文；内部节点在 data 为空或 force 为 true 时重新生成。
func (b *Builder) Summarize(ctx context.Context, node *TreeNode, force bool) error {
	if node.IsLeaf() {
		return nil
	}
	for _, c := range node.Children {
		if err := b.Summarize(ctx, c, force); err != nil {
			return err
		}
	}
	if node.Data != "" && !force {
		return nil
	}

	reply, err := b.lm.Generate(ctx, []message.Message{
		message.NewUserMessage(SummaryPrompt(node.Children)),
	}, SummaryMaxTokens)
	if err != nil {
		return err
	}
	node.Data = strings.TrimSpace(reply)
	return nil
}

// SummaryPrompt 构造摘要提示，逐项标明子节点是文档还是下层摘要
func SummaryPrompt(children []*TreeNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d item(s), each enclosed in <div>s:\n", len(children))
	for i, c := range children {
		kind := "a document"
		if !c.IsLeaf() {
			kind = "a document-collection's keyword summary"
		}
		fmt.Fprintf(&b, "Item %d is %s: <div>%s</div>\n", i+1, kind, c.Data)
	}
	fmt.Fprintf(&b, "Summarize the topics covered by all items above in at most %d keywords separated by commas. Give only the keywords.", MaxSummaryKeywords)
	return b.String()
}
