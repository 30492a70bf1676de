package summarytree

// SummaryTree 一个文档对应的摘要树
type SummaryTree struct {
	// DocumentID 源文档 ID
	DocumentID string
	// Root 根节点
	Root *TreeNode
}

// Topics 返回根节点与第一层节点的非空摘要
func (t *SummaryTree) Topics() []string {
	if t == nil || t.Root == nil {
		return nil
	}
	var topics []string
	if t.Root.Data != "" {
		topics = append(topics, t.Root.Data)
	}
	for _, c := range t.Root.Children {
		if c.Data != "" {
			topics = append(topics, c.Data)
		}
	}
	return topics
}

// Render 以缩进大纲形式输出整棵树
func (t *SummaryTree) Render() string {
	if t == nil || t.Root == nil {
		return ""
	}
	return t.Root.Render()
}

// Forest 文档 ID 到摘要树的映射，加载后只读
type Forest map[string]*SummaryTree

// Get 返回文档对应的摘要树
func (f Forest) Get(docID string) (*SummaryTree, bool) {
	t, ok := f[docID]
	return t, ok
}

// persisted 返回持久化形式 {docID: root}
func (f Forest) persisted() map[string]*TreeNode {
	out := make(map[string]*TreeNode, len(f))
	for id, t := range f {
		out[id] = t.Root
	}
	return out
}

// forestFromPersisted 从持久化形式重建 Forest
func forestFromPersisted(roots map[string]*TreeNode) Forest {
	f := make(Forest, len(roots))
	for id, root := range roots {
		f[id] = &SummaryTree{DocumentID: id, Root: root}
	}
	return f
}
