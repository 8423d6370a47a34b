package graph_test

import (
	"strings"
	"testing"

	"github.com/and07/mindsync/internal/presentation/graph"
	"github.com/and07/mindsync/pkg/domain"
)

func buildTree(t *testing.T) *domain.Tree {
	t.Helper()
	tree := domain.NewTree(domain.Node{ID: "root-1", Description: "Plan", Shape: domain.ShapeCircle})
	var err error
	tree, err = tree.Apply(domain.Insert("root-1", domain.Node{ID: "a.b", Description: `say "hi"`, Shape: domain.ShapeRectangle}))
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(buildTree(t), nil)

	if !strings.HasPrefix(out, "mindmap\n") {
		t.Errorf("expected mindmap header, got %q", out)
	}
	for _, want := range []string{
		`root_1(("Plan"))`,
		`a_b["say 'hi'"]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Children are indented one level below their parent.
	rootLine := strings.Index(out, "root_1")
	childLine := strings.Index(out, "a_b")
	if childLine < rootLine {
		t.Error("child rendered before its parent")
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(buildTree(t), &graph.Overlay{SelectedNode: "a.b"})
	if !strings.Contains(out, "class a_b selected;") {
		t.Errorf("selected node not styled:\n%s", out)
	}

	// Unknown selections produce no overlay block.
	out = graph.GenerateMermaid(buildTree(t), &graph.Overlay{SelectedNode: "ghost"})
	if strings.Contains(out, "classDef") {
		t.Error("overlay emitted for unknown node")
	}
}
