// Package textctx 提供关键词句窗提取与近似重复过滤
package textctx

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultSimilarityThreshold 近似重复判定的默认阈值
const DefaultSimilarityThreshold = 0.9

// SplitSentences 在 '.', '!', '?' 后紧跟一个或多个空格处切分句子
//
// 只有空格被视为句间分隔，换行不会触发切分；标点保留在前一个句子末尾。
func SplitSentences(document string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(document); i++ {
		switch document[i] {
		case '.', '!', '?':
		default:
			continue
		}
		j := i + 1
		for j < len(document) && document[j] == ' ' {
			j++
		}
		if j == i+1 {
			continue
		}
		sentences = append(sentences, document[start:i+1])
		start = j
		i = j - 1
	}
	return append(sentences, document[start:])
}

// ExtractKeywordWindows 为每个包含 keyword 的句子返回 "前一句 句子 后一句" 窗口
//
// 匹配不区分大小写；一个句子多次命中只产生一个窗口；文档边界处的前后句为空串。
// keyword 为空时返回 nil。
func ExtractKeywordWindows(document, keyword string) []string {
	keyword = strings.ToLower(keyword)
	if keyword == "" {
		return nil
	}

	sentences := SplitSentences(document)
	var windows []string
	for i, sentence := range sentences {
		if !strings.Contains(strings.ToLower(sentence), keyword) {
			continue
		}
		var before, after string
		if i > 0 {
			before = sentences[i-1]
		}
		if i < len(sentences)-1 {
			after = sentences[i+1]
		}
		windows = append(windows, strings.TrimSpace(before+" "+sentence+" "+after))
	}
	return windows
}

// SimilarityRatio 返回两个字符串按字符计算的 Ratcliff/Obershelp 相似度，范围 [0, 1]
func SimilarityRatio(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// DedupeNearDuplicates 过滤近似重复的字符串
//
// 候选按字符长度降序（稳定）排列，仅当与所有已保留字符串的相似度都小于 threshold 时保留。
// 结果按长度降序，保留每组近似重复中最长的一条。threshold <= 0 时使用默认阈值。
func DedupeNearDuplicates(candidates []string, threshold float64) []string {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	sorted := make([]string, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})

	kept := make([]string, 0, len(sorted))
	for _, s := range sorted {
		duplicate := false
		for _, k := range kept {
			if SimilarityRatio(s, k) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, s)
		}
	}
	return kept
}
