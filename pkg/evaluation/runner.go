// Package evaluation 逐个样本运行管道并保存预测，中断后可续跑，最后与真实标签对比评分。
package evaluation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/easyops/convref-go/pkg/convref"
	"github.com/easyops/convref-go/pkg/dataset"
	"github.com/easyops/convref-go/pkg/otel"
)

// Answerer 为一个样本生成预测
type Answerer interface {
	Answer(ctx context.Context, sample convref.Sample, docs map[string]string, groundTruth *convref.Label) (convref.Label, error)
}

// StatefulAnswerer 支持跨轮次对话状态的 Answerer
type StatefulAnswerer interface {
	Answerer
	AnswerWithState(ctx context.Context, sample convref.Sample, docs map[string]string, groundTruth *convref.Label, state convref.DialogueState) (convref.Label, convref.DialogueState, error)
}

// Runner 依次预测并评分，每个预测完成后立即保存，重跑时从已保存处继续
type Runner struct {
	answerer   Answerer
	store      ResultStore
	scorer     *Scorer
	outputDir  string
	maxSamples int
	logger     otel.Logger
	tracer     *otel.PipelineTracer
}

// RunnerOption Runner 选项
type RunnerOption func(*Runner)

// WithMaxSamples 限制每个划分最多预测的样本数（0 表示不限制）
func WithMaxSamples(n int) RunnerOption {
	return func(r *Runner) {
		r.maxSamples = n
	}
}

// WithRunnerLogger 设置日志
func WithRunnerLogger(logger otel.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRunnerTracer 设置管道追踪器
func WithRunnerTracer(tracer *otel.PipelineTracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// NewRunner 创建评估运行器
//
// scorer 为 nil 时只生成预测不评分。
func NewRunner(answerer Answerer, store ResultStore, scorer *Scorer, outputDir string, opts ...RunnerOption) *Runner {
	r := &Runner{
		answerer:  answerer,
		store:     store,
		scorer:    scorer,
		outputDir: outputDir,
		logger:    otel.NewNoopLogger(),
		tracer:    otel.NewPipelineTracer(nil, nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 对数据集的每个划分预测并评分，返回各划分的报告
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset) (map[dataset.Split]*Report, error) {
	reports := make(map[dataset.Split]*Report, len(dataset.Splits))
	for _, split := range dataset.Splits {
		samples, labels, err := ds.Split(split)
		if err != nil {
			return reports, err
		}
		report, err := r.RunSplit(ctx, string(ds.Name), string(split), samples, labels, ds.Docs)
		if err != nil {
			return reports, fmt.Errorf("%s: %w", split, err)
		}
		if report != nil {
			reports[split] = report
		}
	}
	return reports, nil
}

// RunSplit 预测一个划分并评分，prefix 同时作为存储前缀
func (r *Runner) RunSplit(ctx context.Context, datasetName, prefix string, samples []convref.Sample, labels []convref.Label, docs map[string]string) (*Report, error) {
	predictions, err := r.Predict(ctx, datasetName, prefix, samples, labels, docs)
	if err != nil {
		return nil, err
	}
	if r.scorer == nil {
		return nil, nil
	}

	n := len(predictions)
	report, err := r.scorer.Score(ctx, samples[:n], predictions, labels[:min(n, len(labels))])
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	path, err := WriteReport(r.outputDir, prefix, report)
	if err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}
	r.logger.Info("evaluation scored",
		"split", prefix,
		"relevance_f1", report.Relevance.F1,
		"retrieval_accuracy", report.Retrieval.Accuracy,
		"answer_accuracy", report.Answer.Accuracy,
		"time_average", report.Time.Average,
		"report", path,
	)
	return report, nil
}

// Predict 生成（或续跑）一个划分的预测
//
// 已保存的预测不会重新生成。当 answerer 支持对话状态时，
// 同一对话的连续样本间传递状态，样本对话不是上一个样本的延续时重置。
func (r *Runner) Predict(ctx context.Context, datasetName, prefix string, samples []convref.Sample, labels []convref.Label, docs map[string]string) ([]convref.Label, error) {
	total := len(samples)
	if r.maxSamples > 0 && r.maxSamples < total {
		total = r.maxSamples
	}

	predictions, err := r.store.Load(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("loading stored predictions: %w", err)
	}
	if len(predictions) > total {
		predictions = predictions[:total]
	}
	resumed := len(predictions)
	if resumed > 0 {
		r.logger.Info("resuming evaluation", "split", prefix, "stored", resumed, "total", total)
	}

	stateful, _ := r.answerer.(StatefulAnswerer)
	var state convref.DialogueState

	predicted := 0
	defer func() {
		r.tracer.RecordEvaluation(ctx, datasetName, prefix, predicted, resumed)
	}()

	for i := resumed; i < total; i++ {
		select {
		case <-ctx.Done():
			return predictions, ctx.Err()
		default:
		}

		sample := samples[i]
		var groundTruth *convref.Label
		if i < len(labels) {
			groundTruth = &labels[i]
		}

		var label convref.Label
		if stateful != nil {
			if i == resumed || !continues(samples[i-1], sample) {
				state = convref.DialogueState{}
			}
			label, state, err = stateful.AnswerWithState(ctx, sample, docs, groundTruth, state)
		} else {
			label, err = r.answerer.Answer(ctx, sample, docs, groundTruth)
		}
		if err != nil {
			return predictions, fmt.Errorf("sample %d: %w", i, err)
		}

		if err := r.store.Append(ctx, prefix, i, label); err != nil {
			return predictions, fmt.Errorf("saving prediction %d: %w", i, err)
		}
		predictions = append(predictions, label)
		predicted++

		r.logger.Debug("sample predicted",
			"split", prefix,
			"index", i,
			"relevant", label.DocumentRelevant,
			"time_taken", time.Duration(label.Seconds()*float64(time.Second)).String(),
		)
	}

	r.logger.Info("predictions complete", "split", prefix, "predicted", predicted, "resumed", resumed)
	return predictions, nil
}

// continues 判断 next 是否为 prev 同一对话的后续轮次
func continues(prev, next convref.Sample) bool {
	if !slices.Equal(prev.DocumentIDs, next.DocumentIDs) {
		return false
	}
	if len(next.Conversation) <= len(prev.Conversation) {
		return false
	}
	return slices.Equal(prev.Conversation, next.Conversation[:len(prev.Conversation)])
}
