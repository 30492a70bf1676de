// Package convref 实现对话式文档相关性判断与逐字回答管道
//
// 管道对每个样本依次执行三个阶段：证据片段提取、相关性判断、回答生成。
// 另提供仅 LLM 的基线模式作为对照。
package convref

import (
	"github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/core/message"
)

// Sample 一个待回答的对话轮次
type Sample struct {
	// ID 样本标识，仅用于记录
	ID string `json:"id,omitempty"`
	// DocumentIDs 本轮可用的文档
	DocumentIDs []string `json:"document_ids"`
	// Conversation 有序对话，最后一条为当前查询
	Conversation []message.Message `json:"conversation"`
}

// Query 返回最后一轮的文本
func (s Sample) Query() (string, error) {
	last, ok := s.lastTurn()
	if !ok {
		return "", errors.ErrEmptyConversation
	}
	return last.Content, nil
}

func (s Sample) lastTurn() (message.Message, bool) {
	if len(s.Conversation) == 0 {
		return message.Message{}, false
	}
	return s.Conversation[len(s.Conversation)-1], true
}

// Label 管道输出或真实标签
//
// 管道输出满足：DocumentRelevant 为 false 时 Segments 与 Answer 均为空。
// 真实标签可能不满足该约束。
type Label struct {
	// DocumentRelevant 文档是否与查询相关
	DocumentRelevant bool `json:"document_relevant"`
	// Segments 证据片段，nil 表示缺失
	Segments []string `json:"segments"`
	// Answer 回答，nil 表示缺失；多个参考答案以 AnswerDelimiter 连接
	Answer *string `json:"answer"`
	// TimeTaken 回答耗时（秒）
	TimeTaken *float64 `json:"time_taken,omitempty"`
}

// AnswerDelimiter 连接多个参考答案的分隔符，第一个为最佳答案
const AnswerDelimiter = "|||"

// Normalize 不相关的标签清空证据与回答
func (l Label) Normalize() Label {
	if !l.DocumentRelevant {
		l.Segments = nil
		l.Answer = nil
	}
	return l
}

// HasAnswer 是否有回答
func (l Label) HasAnswer() bool {
	return l.Answer != nil
}

// AnswerText 返回回答文本，缺失时为空串
func (l Label) AnswerText() string {
	if l.Answer == nil {
		return ""
	}
	return *l.Answer
}

// Seconds 返回耗时，缺失时为 0
func (l Label) Seconds() float64 {
	if l.TimeTaken == nil {
		return 0
	}
	return *l.TimeTaken
}

// StringPtr 返回字符串指针
func StringPtr(s string) *string {
	return &s
}

// DialogueState 跨轮次的对话状态，由调用方在同一对话的连续调用间传递
type DialogueState struct {
	// Entities 之前轮次出现过的实体（小写，按首次出现排序）
	Entities []string `json:"entities,omitempty"`
}

// WithEntities 返回合并了新实体的状态副本
func (s DialogueState) WithEntities(entities []string) DialogueState {
	merged := make([]string, 0, len(s.Entities)+len(entities))
	merged = append(merged, s.Entities...)
	merged = appendUnique(merged, entities...)
	return DialogueState{Entities: merged}
}
