// Package summarytree 将文档构建为有界扇出的层级主题摘要树
//
// 叶子节点保存文档分块原文，内部节点保存由 LLM 生成的关键词摘要。
// 树在构建后不可变，可持久化为 {data, children} 嵌套结构并重新加载。
package summarytree

import (
	"encoding/json"
	"strings"
)

// TreeNode 摘要树节点
//
// parent 仅用于计算层级，不用于修改父节点。
type TreeNode struct {
	// Data 叶子为文档分块，内部节点为摘要
	Data string
	// Children 有序子节点
	Children []*TreeNode

	parent *TreeNode
}

// NewNode 创建节点
func NewNode(data string) *TreeNode {
	return &TreeNode{Data: data}
}

// AddChild 追加子节点并设置其父引用
func (n *TreeNode) AddChild(child *TreeNode) {
	child.parent = n
	n.Children = append(n.Children, child)
}

// SetChildren 替换全部子节点
func (n *TreeNode) SetChildren(children []*TreeNode) {
	n.Children = nil
	for _, c := range children {
		n.AddChild(c)
	}
}

// Parent 返回父节点，根节点返回 nil
func (n *TreeNode) Parent() *TreeNode {
	return n.parent
}

// IsLeaf 是否为叶子节点
func (n *TreeNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// Level 返回节点深度，根节点为 0
func (n *TreeNode) Level() int {
	level := 0
	for p := n.parent; p != nil; p = p.parent {
		level++
	}
	return level
}

// Depth 返回以该节点为根的子树高度，叶子为 1
func (n *TreeNode) Depth() int {
	deepest := 0
	for _, c := range n.Children {
		deepest = max(deepest, c.Depth())
	}
	return deepest + 1
}

// Walk 先序遍历子树，fn 返回 false 时不再进入该节点的子节点
func (n *TreeNode) Walk(fn func(*TreeNode) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Render 以缩进大纲形式输出子树
//
// 每层缩进 4 个空格，非根节点带 "|__" 前缀。
func (n *TreeNode) Render() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *TreeNode) render(b *strings.Builder) {
	if n.parent != nil {
		b.WriteString(strings.Repeat(" ", n.Level()*4))
		b.WriteString("|__")
	}
	b.WriteString(n.Data)
	b.WriteByte('\n')
	for _, c := range n.Children {
		c.render(b)
	}
}

// nodeJSON 持久化格式
type nodeJSON struct {
	Data     string      `json:"data"`
	Children []*TreeNode `json:"children"`
}

// MarshalJSON 实现 json.Marshaler
func (n *TreeNode) MarshalJSON() ([]byte, error) {
	children := n.Children
	if children == nil {
		children = []*TreeNode{}
	}
	return json.Marshal(nodeJSON{Data: n.Data, Children: children})
}

// UnmarshalJSON 实现 json.Unmarshaler，并恢复父引用
func (n *TreeNode) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	n.Data = raw.Data
	n.Children = nil
	for _, c := range raw.Children {
		if c == nil {
			continue
		}
		n.AddChild(c)
	}
	return nil
}
