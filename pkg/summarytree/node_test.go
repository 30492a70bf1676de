package summarytree_test

import (
	"encoding/json"
	"testing"

	"github.com/easyops/convref-go/pkg/summarytree"
)

func sampleTree() *summarytree.TreeNode {
	root := summarytree.NewNode("travel, europe")
	france := summarytree.NewNode("france")
	france.AddChild(summarytree.NewNode("Paris is the capital of France."))
	france.AddChild(summarytree.NewNode("Lyon is a city in France."))
	root.AddChild(france)
	root.AddChild(summarytree.NewNode("Rome is the capital of Italy."))
	return root
}

func TestTreeNode_Level(t *testing.T) {
	root := sampleTree()
	leaf := root.Children[0].Children[1]

	if root.Level() != 0 {
		t.Errorf("expected root level 0, got %d", root.Level())
	}
	if leaf.Level() != 2 {
		t.Errorf("expected leaf level 2, got %d", leaf.Level())
	}
	if leaf.Parent() != root.Children[0] {
		t.Error("expected leaf parent to be the france node")
	}
	if root.Depth() != 3 {
		t.Errorf("expected depth 3, got %d", root.Depth())
	}
}

func TestTreeNode_Render(t *testing.T) {
	want := "travel, europe\n" +
		"    |__france\n" +
		"        |__Paris is the capital of France.\n" +
		"        |__Lyon is a city in France.\n" +
		"    |__Rome is the capital of Italy.\n"
	if got := sampleTree().Render(); got != want {
		t.Errorf("unexpected render:\n%s\nwant:\n%s", got, want)
	}
}

func TestTreeNode_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(sampleTree())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded summarytree.TreeNode
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Render() != sampleTree().Render() {
		t.Errorf("round trip changed the tree:\n%s", decoded.Render())
	}
	if decoded.Children[0].Children[0].Level() != 2 {
		t.Error("expected parent references to be restored")
	}
}

func TestTreeNode_MarshalLeafHasEmptyChildren(t *testing.T) {
	data, err := json.Marshal(summarytree.NewNode("leaf"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"data":"leaf","children":[]}` {
		t.Errorf("unexpected json %s", data)
	}
}

func TestTreeNode_Walk(t *testing.T) {
	var visited []string
	sampleTree().Walk(func(n *summarytree.TreeNode) bool {
		visited = append(visited, n.Data)
		return n.Data != "france"
	})
	if len(visited) != 3 {
		t.Errorf("expected walk to skip france's children, visited %v", visited)
	}
}

func TestSummaryTree_Topics(t *testing.T) {
	tree := &summarytree.SummaryTree{DocumentID: "d1", Root: sampleTree()}
	topics := tree.Topics()
	want := []string{"travel, europe", "france", "Rome is the capital of Italy."}
	if len(topics) != len(want) {
		t.Fatalf("expected %v, got %v", want, topics)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topic %d: expected %q, got %q", i, want[i], topics[i])
		}
	}

	var empty *summarytree.SummaryTree
	if empty.Topics() != nil {
		t.Error("expected nil topics for nil tree")
	}
}
