// Package dataset 加载预处理后的对话问答数据集
//
// 目录布局：docs.json、train_X.json、train_Y.json、test_X.json、test_Y.json。
package dataset

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/easyops/convref-go/pkg/convref"
	"github.com/easyops/convref-go/pkg/core/errors"
)

// 数据集错误
var (
	// ErrNotPreprocessed 目录缺少预处理文件
	ErrNotPreprocessed = stderrors.New("dataset is not preprocessed")
	// ErrLengthMismatch 样本与标签数量不一致
	ErrLengthMismatch = stderrors.New("sample and label counts differ")
	// ErrUnknownSplit 未知的数据划分
	ErrUnknownSplit = stderrors.New("unknown split")
)

// Name 数据集名称
type Name string

const (
	// MultiWOZ 多领域任务型对话
	MultiWOZ Name = "MultiWOZ"
	// QuAC 上下文问答
	QuAC Name = "QuAC"
	// CoQA 对话式问答
	CoQA Name = "CoQA"
)

// ParseName 由目录名识别数据集，未知名称返回 false
func ParseName(s string) (Name, bool) {
	switch Name(s) {
	case MultiWOZ, QuAC, CoQA:
		return Name(s), true
	default:
		return Name(s), false
	}
}

// Split 数据划分
type Split string

const (
	// Train 训练集
	Train Split = "train"
	// Test 测试集
	Test Split = "test"
)

// Splits 按评估顺序列出全部划分
var Splits = []Split{Train, Test}

// 预处理文件名
const (
	DocsFile = "docs.json"
)

// SamplesFile 返回划分的样本文件名
func SamplesFile(s Split) string {
	return string(s) + "_X.json"
}

// LabelsFile 返回划分的标签文件名
func LabelsFile(s Split) string {
	return string(s) + "_Y.json"
}

// Dataset 一个已加载的数据集
type Dataset struct {
	// Name 数据集名称（目录名）
	Name Name
	// Docs 文档 ID 到全文
	Docs map[string]string

	samples map[Split][]convref.Sample
	labels  map[Split][]convref.Label
}

// Load 加载预处理目录
//
// 原始格式的转换不在此处完成，缺少任一文件时返回 ErrNotPreprocessed。
func Load(dir string) (*Dataset, error) {
	files := []string{DocsFile}
	for _, s := range Splits {
		files = append(files, SamplesFile(s), LabelsFile(s))
	}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: missing %s in %s", ErrNotPreprocessed, f, dir)
			}
			return nil, err
		}
	}

	base := filepath.Base(filepath.Clean(dir))
	name, _ := ParseName(base)
	d := &Dataset{
		Name:    name,
		samples: make(map[Split][]convref.Sample),
		labels:  make(map[Split][]convref.Label),
	}
	if err := readJSON(filepath.Join(dir, DocsFile), &d.Docs); err != nil {
		return nil, err
	}

	for _, s := range Splits {
		var (
			x []convref.Sample
			y []convref.Label
		)
		if err := readJSON(filepath.Join(dir, SamplesFile(s)), &x); err != nil {
			return nil, err
		}
		if err := readJSON(filepath.Join(dir, LabelsFile(s)), &y); err != nil {
			return nil, err
		}
		if len(x) != len(y) {
			return nil, fmt.Errorf("%w: %s has %d samples and %d labels", ErrLengthMismatch, s, len(x), len(y))
		}
		assignIDs(base, s, x)
		d.samples[s] = x
		d.labels[s] = y
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// New 由内存数据构造数据集
func New(name Name, docs map[string]string, samples map[Split][]convref.Sample, labels map[Split][]convref.Label) (*Dataset, error) {
	d := &Dataset{Name: name, Docs: docs, samples: samples, labels: labels}
	for s, x := range samples {
		if len(x) != len(labels[s]) {
			return nil, fmt.Errorf("%w: %s has %d samples and %d labels", ErrLengthMismatch, s, len(x), len(labels[s]))
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate 检查每个样本引用的文档都存在
func (d *Dataset) Validate() error {
	for s, x := range d.samples {
		for i, sample := range x {
			for _, id := range sample.DocumentIDs {
				if _, ok := d.Docs[id]; !ok {
					return fmt.Errorf("%s sample %d: %w", s, i, errors.WrapError(errors.ErrDocumentNotFound, id))
				}
			}
		}
	}
	return nil
}

// Split 返回某个划分的样本与标签
func (d *Dataset) Split(s Split) ([]convref.Sample, []convref.Label, error) {
	x, ok := d.samples[s]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSplit, s)
	}
	return x, d.labels[s], nil
}

// Len 返回某个划分的样本数
func (d *Dataset) Len(s Split) int {
	return len(d.samples[s])
}

// assignIDs 为缺少 ID 的样本生成确定性 ID，重复加载时保持不变
func assignIDs(namespace string, s Split, samples []convref.Sample) {
	for i := range samples {
		if samples[i].ID == "" {
			key := fmt.Sprintf("%s/%s/%d", namespace, s, i)
			samples[i].ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
		}
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
