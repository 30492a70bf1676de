package summarytree

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/easyops/convref-go/pkg/core/errors"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig Neo4j 配置
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore 将摘要树保存为 (:SummaryNode)-[:HAS_CHILD]->(:SummaryNode) 图
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore 创建 Neo4j 存储并验证连接
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	if cfg.URI == "" {
		cfg.URI = "bolt://localhost:7687"
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" && cfg.Password != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	s := &Neo4jStore{driver: driver, database: cfg.Database}
	if err := s.createIndexes(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

func (s *Neo4jStore) createIndexes(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		"CREATE INDEX summary_node_doc IF NOT EXISTS FOR (n:SummaryNode) ON (n.doc_id, n.node_id)", nil)
	return err
}

// SaveTree 在一个写事务中替换该文档的全部节点
func (s *Neo4jStore) SaveTree(ctx context.Context, tree *SummaryTree) error {
	if tree == nil || tree.Root == nil {
		return errors.ErrInvalidPersistedTree
	}
	rows := flatten(tree.Root)

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			`MATCH (n:SummaryNode {doc_id: $doc}) DETACH DELETE n`,
			map[string]any{"doc": tree.DocumentID}); err != nil {
			return nil, err
		}

		params := make([]map[string]any, len(rows))
		for i, r := range rows {
			params[i] = map[string]any{
				"node_id":   r.NodeID,
				"parent_id": r.ParentID,
				"position":  r.Position,
				"depth":     r.Depth,
				"data":      r.Data,
			}
		}
		if _, err := tx.Run(ctx, `
		UNWIND $rows AS row
		CREATE (n:SummaryNode {doc_id: $doc})
		SET n += row`,
			map[string]any{"doc": tree.DocumentID, "rows": params}); err != nil {
			return nil, err
		}

		_, err := tx.Run(ctx, `
		MATCH (c:SummaryNode {doc_id: $doc}) WHERE c.parent_id <> ''
		MATCH (p:SummaryNode {doc_id: $doc, node_id: c.parent_id})
		CREATE (p)-[:HAS_CHILD {position: c.position}]->(c)`,
			map[string]any{"doc": tree.DocumentID})
		return nil, err
	})
	return err
}

// LoadForest 读取全部节点并按父子关系重建
func (s *Neo4jStore) LoadForest(ctx context.Context) (Forest, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
	MATCH (n:SummaryNode)
	RETURN n.doc_id AS doc_id, n.node_id AS node_id, n.parent_id AS parent_id,
	       n.position AS position, n.depth AS depth, n.data AS data`, nil)
	if err != nil {
		return nil, err
	}

	byDoc := make(map[string][]nodeRow)
	for result.Next(ctx) {
		rec := result.Record()
		docID, _, err := neo4j.GetRecordValue[string](rec, "doc_id")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPersistedTree, err)
		}
		row, err := rowFromRecord(rec)
		if err != nil {
			return nil, err
		}
		byDoc[docID] = append(byDoc[docID], row)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if len(byDoc) == 0 {
		return nil, errors.ErrTreeNotFound
	}

	forest := make(Forest, len(byDoc))
	for docID, rows := range byDoc {
		root, err := unflatten(rows)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", docID, err)
		}
		forest[docID] = &SummaryTree{DocumentID: docID, Root: root}
	}
	return forest, nil
}

// Close 关闭驱动
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func rowFromRecord(rec *neo4j.Record) (nodeRow, error) {
	var (
		row nodeRow
		err error
	)
	if row.NodeID, _, err = neo4j.GetRecordValue[string](rec, "node_id"); err != nil {
		return row, fmt.Errorf("%w: %v", errors.ErrInvalidPersistedTree, err)
	}
	if row.ParentID, _, err = neo4j.GetRecordValue[string](rec, "parent_id"); err != nil {
		return row, fmt.Errorf("%w: %v", errors.ErrInvalidPersistedTree, err)
	}
	if row.Position, _, err = neo4j.GetRecordValue[int64](rec, "position"); err != nil {
		return row, fmt.Errorf("%w: %v", errors.ErrInvalidPersistedTree, err)
	}
	if row.Depth, _, err = neo4j.GetRecordValue[int64](rec, "depth"); err != nil {
		return row, fmt.Errorf("%w: %v", errors.ErrInvalidPersistedTree, err)
	}
	if row.Data, _, err = neo4j.GetRecordValue[string](rec, "data"); err != nil {
		return row, fmt.Errorf("%w: %v", errors.ErrInvalidPersistedTree, err)
	}
	return row, nil
}

// nodeRow 图存储中的一个节点，NodeID 为从根开始的位置路径
type nodeRow struct {
	NodeID   string
	ParentID string
	Position int64
	Depth    int64
	Data     string
}

// flatten 先序展开，根节点 ID 为 "0"，其余为 "父ID.位置"
func flatten(root *TreeNode) []nodeRow {
	var rows []nodeRow
	var walk func(n *TreeNode, id, parent string, pos, depth int64)
	walk = func(n *TreeNode, id, parent string, pos, depth int64) {
		rows = append(rows, nodeRow{NodeID: id, ParentID: parent, Position: pos, Depth: depth, Data: n.Data})
		for i, c := range n.Children {
			walk(c, id+"."+strconv.Itoa(i), id, int64(i), depth+1)
		}
	}
	walk(root, "0", "", 0, 0)
	return rows
}

// unflatten 按深度与位置重建树，要求恰好一个根且每个父节点存在
func unflatten(rows []nodeRow) (*TreeNode, error) {
	sorted := make([]nodeRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Depth != sorted[j].Depth {
			return sorted[i].Depth < sorted[j].Depth
		}
		if sorted[i].ParentID != sorted[j].ParentID {
			return sorted[i].ParentID < sorted[j].ParentID
		}
		return sorted[i].Position < sorted[j].Position
	})

	var root *TreeNode
	nodes := make(map[string]*TreeNode, len(sorted))
	for _, r := range sorted {
		n := NewNode(r.Data)
		if r.ParentID == "" {
			if root != nil {
				return nil, fmt.Errorf("%w: multiple roots", errors.ErrInvalidPersistedTree)
			}
			root = n
		} else {
			parent, ok := nodes[r.ParentID]
			if !ok {
				return nil, fmt.Errorf("%w: node %s has no parent %s", errors.ErrInvalidPersistedTree, r.NodeID, r.ParentID)
			}
			parent.AddChild(n)
		}
		nodes[r.NodeID] = n
	}
	if root == nil {
		return nil, fmt.Errorf("%w: missing root", errors.ErrInvalidPersistedTree)
	}
	return root, nil
}

var _ Store = (*Neo4jStore)(nil)
