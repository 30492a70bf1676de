package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/easyops/convref-go/pkg/capability"
	"github.com/easyops/convref-go/pkg/convref"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/core/message"
	"github.com/easyops/convref-go/pkg/otel"
)

// JudgeMaxTokens 一致性判定的最大生成长度
const JudgeMaxTokens = 10

const judgeQuestion = `Are Answers 1 & 2 consistent with each other and convey roughly the same idea? Answer only "YES, THEY ARE CONSISTENT." or "NO, THEY ARE NOT CONSISTENT."`

// Report 评估报告
type Report struct {
	Relevance RelevanceScore `json:"relevance"`
	Retrieval RetrievalScore `json:"retrieval"`
	Answer    AnswerScore    `json:"answer"`
	Time      TimeScore      `json:"time"`
}

// RelevanceScore 回答的词级 F1
type RelevanceScore struct {
	F1     float64   `json:"f1"`
	Values []float64 `json:"values"`
}

// RetrievalScore 文档相关性判定的准确率与混淆矩阵
type RetrievalScore struct {
	Accuracy float64 `json:"accuracy"`
	TP       int     `json:"TP"`
	FP       int     `json:"FP"`
	TN       int     `json:"TN"`
	FN       int     `json:"FN"`
	Values   []int   `json:"values"`
}

// AnswerScore 由 LLM 判定的回答一致性
type AnswerScore struct {
	Accuracy float64 `json:"accuracy"`
	Values   []int   `json:"values"`
}

// TimeScore 回答耗时（秒）
type TimeScore struct {
	Average           float64 `json:"average"`
	StandardDeviation float64 `json:"standard_deviation"`
}

// Scorer 对比预测与真实标签
type Scorer struct {
	judge  *capability.Adapter
	logger otel.Logger
}

// ScorerOption 评分器选项
type ScorerOption func(*Scorer)

// WithScorerLogger 设置日志
func WithScorerLogger(logger otel.Logger) ScorerOption {
	return func(s *Scorer) {
		s.logger = logger
	}
}

// NewScorer 创建评分器，judge 用于判定回答一致性
func NewScorer(judge llm.Provider, opts ...ScorerOption) *Scorer {
	s := &Scorer{
		judge:  capability.New(judge),
		logger: otel.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score 计算全部指标，长度不一致时按最短的计算
func (s *Scorer) Score(ctx context.Context, samples []convref.Sample, predictions, labels []convref.Label) (*Report, error) {
	answer, err := s.AnswerConsistency(ctx, samples, predictions, labels)
	if err != nil {
		return nil, err
	}
	return &Report{
		Relevance: Relevance(predictions, labels),
		Retrieval: Retrieval(predictions, labels),
		Answer:    answer,
		Time:      Time(predictions),
	}, nil
}

// Relevance 两边都判定相关且都有回答时，取预测与各参考答案 F1 的最大值，否则为 0
func Relevance(predictions, labels []convref.Label) RelevanceScore {
	n := min(len(predictions), len(labels))
	values := make([]float64, n)
	for i := range n {
		yHat, y := predictions[i], labels[i]
		if !yHat.DocumentRelevant || !y.DocumentRelevant || !yHat.HasAnswer() || !y.HasAnswer() {
			continue
		}
		for _, gold := range strings.Split(y.AnswerText(), convref.AnswerDelimiter) {
			values[i] = max(values[i], F1(gold, yHat.AnswerText()))
		}
	}
	return RelevanceScore{F1: mean(values), Values: values}
}

// Retrieval 统计相关性判定的准确率
func Retrieval(predictions, labels []convref.Label) RetrievalScore {
	n := min(len(predictions), len(labels))
	score := RetrievalScore{Values: make([]int, n)}
	hits := make([]float64, n)
	for i := range n {
		predicted, actual := predictions[i].DocumentRelevant, labels[i].DocumentRelevant
		switch {
		case predicted == actual && actual:
			score.TP++
		case predicted == actual:
			score.TN++
		case actual:
			score.FN++
		default:
			score.FP++
		}
		if predicted == actual {
			score.Values[i] = 1
			hits[i] = 1
		}
	}
	score.Accuracy = mean(hits)
	return score
}

// AnswerConsistency 逐个判定预测回答与参考回答是否一致
//
// 只有一方有回答记 0，双方都没有记 1，否则询问 LLM，回复以 "YES" 开头记 1。
func (s *Scorer) AnswerConsistency(ctx context.Context, samples []convref.Sample, predictions, labels []convref.Label) (AnswerScore, error) {
	n := min(len(samples), len(predictions), len(labels))
	score := AnswerScore{Values: make([]int, n)}
	hits := make([]float64, n)
	for i := range n {
		select {
		case <-ctx.Done():
			return score, ctx.Err()
		default:
		}

		yHat, y := predictions[i], labels[i]
		switch {
		case yHat.HasAnswer() != y.HasAnswer():
			continue
		case !yHat.HasAnswer():
			score.Values[i] = 1
			hits[i] = 1
			continue
		}

		query, err := samples[i].Query()
		if err != nil {
			return score, fmt.Errorf("sample %d: %w", i, err)
		}
		reply, err := s.judge.Generate(ctx, judgePrompt(query, yHat.AnswerText(), y.AnswerText()), JudgeMaxTokens)
		if err != nil {
			return score, fmt.Errorf("judging sample %d: %w", i, err)
		}
		s.logger.Debug("answer judged", "index", i, "reply", reply)
		if strings.HasPrefix(reply, "YES") {
			score.Values[i] = 1
			hits[i] = 1
		}
	}
	score.Accuracy = mean(hits)
	return score, nil
}

func judgePrompt(query, predicted, reference string) []message.Message {
	return []message.Message{
		message.NewUserMessage("[QUESTION] " + query),
		message.NewUserMessage("[ANSWER 1] " + predicted),
		message.NewUserMessage("[ANSWER 2] " + reference),
		message.NewUserMessage(judgeQuestion),
	}
}

// Time 计算预测耗时的均值与总体标准差
func Time(predictions []convref.Label) TimeScore {
	if len(predictions) == 0 {
		return TimeScore{}
	}
	seconds := make([]float64, len(predictions))
	for i, p := range predictions {
		seconds[i] = p.Seconds()
	}
	avg, std := stat.PopMeanStdDev(seconds, nil)
	return TimeScore{Average: avg, StandardDeviation: std}
}

// WriteReport 将报告写入 dir/{prefix}eval.json
func WriteReport(dir, prefix string, report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ReportFile(prefix))
	return path, os.WriteFile(path, data, 0o644)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

var (
	punctuation = regexp.MustCompile("[!\"#$%&'()*+,\\-./:;<=>?@\\[\\\\\\]^_`{|}~]")
	articles    = regexp.MustCompile(`\b(a|an|the)\b`)
)

// NormalizeAnswer 小写、去标点、去冠词并合并空白
func NormalizeAnswer(s string) string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, "")
	s = articles.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// F1 计算归一化后的词袋 F1，任一方为空时仅在两者都为空时为 1
func F1(gold, predicted string) float64 {
	goldTokens := strings.Fields(NormalizeAnswer(gold))
	predTokens := strings.Fields(NormalizeAnswer(predicted))
	if len(goldTokens) == 0 || len(predTokens) == 0 {
		if len(goldTokens) == len(predTokens) {
			return 1
		}
		return 0
	}

	counts := make(map[string]int, len(goldTokens))
	for _, t := range goldTokens {
		counts[t]++
	}
	same := 0
	for _, t := range predTokens {
		if counts[t] > 0 {
			counts[t]--
			same++
		}
	}
	if same == 0 {
		return 0
	}
	precision := float64(same) / float64(len(predTokens))
	recall := float64(same) / float64(len(goldTokens))
	return 2 * precision * recall / (precision + recall)
}
