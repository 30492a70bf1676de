package evaluation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/easyops/convref-go/pkg/convref"
	"github.com/easyops/convref-go/pkg/core/config"
	"github.com/easyops/convref-go/pkg/core/errors"
)

// ErrOutOfOrder 预测必须按样本顺序追加
var ErrOutOfOrder = stderrors.New("prediction appended out of order")

// ResultStore 预测结果存储，支持中断后续跑
type ResultStore interface {
	// Load 返回某个前缀下已保存的预测（按样本顺序），没有时返回空
	Load(ctx context.Context, prefix string) ([]convref.Label, error)
	// Append 保存第 index 个预测，index 必须等于已保存数量
	Append(ctx context.Context, prefix string, index int, label convref.Label) error
	// Close 释放资源
	Close() error
}

// PredictionsFile 返回前缀对应的预测文件名
func PredictionsFile(prefix string) string {
	return prefix + "Y_hat.json"
}

// ReportFile 返回前缀对应的评估报告文件名
func ReportFile(prefix string) string {
	return prefix + "eval.json"
}

// JSONFileStore 每个前缀一个 {prefix}Y_hat.json 文件，每次追加整体重写
type JSONFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewJSONFileStore 创建 JSON 文件存储
func NewJSONFileStore(dir string) *JSONFileStore {
	return &JSONFileStore{dir: dir}
}

func (s *JSONFileStore) path(prefix string) string {
	return filepath.Join(s.dir, PredictionsFile(prefix))
}

// Load 读取已保存的预测
func (s *JSONFileStore) Load(ctx context.Context, prefix string) ([]convref.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(prefix)
}

func (s *JSONFileStore) read(prefix string) ([]convref.Label, error) {
	data, err := os.ReadFile(s.path(prefix))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var labels []convref.Label
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", PredictionsFile(prefix), err)
	}
	return labels, nil
}

// Append 追加一个预测并原子替换文件
func (s *JSONFileStore) Append(ctx context.Context, prefix string, index int, label convref.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	labels, err := s.read(prefix)
	if err != nil {
		return err
	}
	if index != len(labels) {
		return fmt.Errorf("%w: index %d with %d stored", ErrOutOfOrder, index, len(labels))
	}
	labels = append(labels, label)

	data, err := json.MarshalIndent(labels, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp := s.path(prefix) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(prefix))
}

// Close 无操作
func (s *JSONFileStore) Close() error {
	return nil
}

// NewResultStore 根据评估配置创建存储
func NewResultStore(cfg config.EvaluationConfig) (ResultStore, error) {
	cfg = cfg.WithDefaults()
	dir := OutputDir(cfg)
	switch cfg.ResultStore {
	case "json":
		return NewJSONFileStore(dir), nil
	case "sqlite":
		store, err := NewSQLiteResultStore(filepath.Join(dir, "predictions.db"), cfg.ExperimentName)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown result store %q: %w", cfg.ResultStore, errors.ErrInvalidConfig)
	}
}

// OutputDir 返回实验输出目录
func OutputDir(cfg config.EvaluationConfig) string {
	cfg = cfg.WithDefaults()
	if cfg.ExperimentName == "" {
		return cfg.OutputDir
	}
	return filepath.Join(cfg.OutputDir, cfg.ExperimentName)
}

var _ ResultStore = (*JSONFileStore)(nil)
