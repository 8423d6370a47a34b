package tui_test

import (
	"strings"
	"testing"

	"github.com/and07/mindsync/internal/presentation/tui"
	"github.com/and07/mindsync/pkg/domain"
)

func TestOutlineView_Render(t *testing.T) {
	tree := domain.NewTree(domain.Node{ID: "r", Description: "Plan"})
	tree, err := tree.Apply(domain.Insert("r", domain.Node{ID: "a", Description: "Flights"}))
	if err != nil {
		t.Fatal(err)
	}

	view := tui.OutlineView{
		Title:     "Trip",
		Version:   3,
		Selected:  "a",
		Positions: map[string]domain.Point{"a": {X: 270, Y: 360}},
	}
	out := view.Render(tree)

	for _, want := range []string{
		"# Trip",
		"- Plan",
		"  - **Flights**",
		"`(270, 360)`",
		"*version 3, 2 nodes*",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestOutlineView_Bare(t *testing.T) {
	tree := domain.NewTree(domain.Node{ID: "r", Description: "Plan"})
	out := tui.OutlineView{}.Render(tree)

	if strings.Contains(out, "#") || strings.Contains(out, "version") {
		t.Errorf("bare view should render only the outline:\n%s", out)
	}
	if !strings.HasPrefix(out, "- Plan") {
		t.Errorf("unexpected outline: %q", out)
	}
}
