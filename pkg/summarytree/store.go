package summarytree

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/easyops/convref-go/pkg/core/config"
	"github.com/easyops/convref-go/pkg/core/errors"
)

// Store 摘要树持久化接口
type Store interface {
	// SaveTree 保存（或覆盖）一个文档的摘要树
	SaveTree(ctx context.Context, tree *SummaryTree) error
	// LoadForest 加载全部摘要树，存储为空时返回 ErrTreeNotFound
	LoadForest(ctx context.Context) (Forest, error)
	// Close 释放资源
	Close() error
}

// BuildAndSave 为存储中尚不存在的文档构建摘要树，每棵树构建完成后立即保存
//
// 文档按 ID 排序处理。任一文档构建失败时返回错误，之前已保存的树保持不变。
func BuildAndSave(ctx context.Context, docs map[string]string, builder *Builder, store Store) (Forest, error) {
	forest, err := store.LoadForest(ctx)
	switch {
	case stderrors.Is(err, errors.ErrTreeNotFound):
		forest = Forest{}
	case err != nil:
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, ok := forest[id]; ok {
			continue
		}
		tree, err := builder.Build(ctx, id, docs[id])
		if err != nil {
			return nil, err
		}
		if err := store.SaveTree(ctx, tree); err != nil {
			return nil, fmt.Errorf("saving tree %s: %w", id, err)
		}
		forest[id] = tree
	}
	return forest, nil
}

// Load 从存储加载全部摘要树
func Load(ctx context.Context, store Store) (Forest, error) {
	return store.LoadForest(ctx)
}

// JSONFileStore 以单个 JSON 文件保存 {docID: {data, children}}
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileStore 创建 JSON 文件存储
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Path 返回文件路径
func (s *JSONFileStore) Path() string {
	return s.path
}

// SaveTree 读取现有文件、写入该树并原子替换文件
func (s *JSONFileStore) SaveTree(ctx context.Context, tree *SummaryTree) error {
	if tree == nil || tree.Root == nil {
		return errors.ErrInvalidPersistedTree
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	roots, err := s.read()
	if err != nil && !stderrors.Is(err, errors.ErrTreeNotFound) {
		return err
	}
	if roots == nil {
		roots = make(map[string]*TreeNode)
	}
	roots[tree.DocumentID] = tree.Root
	return s.write(roots)
}

// SaveForest 一次写入整个 Forest，覆盖已有内容
func (s *JSONFileStore) SaveForest(forest Forest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(forest.persisted())
}

// LoadForest 加载全部摘要树
func (s *JSONFileStore) LoadForest(ctx context.Context) (Forest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots, err := s.read()
	if err != nil {
		return nil, err
	}
	return forestFromPersisted(roots), nil
}

// Close 无操作
func (s *JSONFileStore) Close() error {
	return nil
}

func (s *JSONFileStore) read() (map[string]*TreeNode, error) {
	data, err := os.ReadFile(s.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.path, errors.ErrTreeNotFound)
	}
	if err != nil {
		return nil, err
	}
	return DecodeForest(data)
}

func (s *JSONFileStore) write(roots map[string]*TreeNode) error {
	data, err := json.MarshalIndent(roots, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// DecodeForest 解析持久化 JSON，每棵树必须有根节点
func DecodeForest(data []byte) (map[string]*TreeNode, error) {
	var roots map[string]*TreeNode
	if err := json.Unmarshal(data, &roots); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPersistedTree, err)
	}
	if roots == nil {
		return nil, fmt.Errorf("%w: top level must be an object", errors.ErrInvalidPersistedTree)
	}
	for id, root := range roots {
		if root == nil {
			return nil, fmt.Errorf("%w: document %q has no root", errors.ErrInvalidPersistedTree, id)
		}
	}
	return roots, nil
}

var _ Store = (*JSONFileStore)(nil)

// NewStore 根据配置创建存储
func NewStore(ctx context.Context, cfg config.SummaryTreeConfig) (Store, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Store {
	case "json":
		return NewJSONFileStore(cfg.Path), nil
	case "neo4j":
		store, err := NewNeo4jStore(ctx, Neo4jConfig{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUsername,
			Password: cfg.Neo4jPassword,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown summary tree store %q: %w", cfg.Store, errors.ErrInvalidConfig)
	}
}
