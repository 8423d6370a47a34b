package tui

import (
	"fmt"
	"strings"

	"github.com/and07/mindsync/pkg/domain"
)

// OutlineView renders a board tree as a markdown outline. The selected node,
// if any, is marked; positions, when provided, are appended per node so a
// terminal session can mirror what the canvas clients see.
type OutlineView struct {
	Title     string
	Version   uint64
	Selected  string
	Positions map[string]domain.Point
}

// Render produces the markdown for tree under the view's settings.
func (v OutlineView) Render(tree *domain.Tree) string {
	var sb strings.Builder
	if v.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", v.Title)
	}
	v.writeNode(&sb, tree, tree.RootID, 0)
	if v.Version > 0 {
		fmt.Fprintf(&sb, "\n*version %d, %d nodes*\n", v.Version, tree.Len())
	}
	return sb.String()
}

func (v OutlineView) writeNode(sb *strings.Builder, tree *domain.Tree, id string, depth int) {
	node, ok := tree.Find(id)
	if !ok {
		return
	}

	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString("- ")
	if node.ID == v.Selected {
		fmt.Fprintf(sb, "**%s** ←", node.Description)
	} else {
		sb.WriteString(node.Description)
	}
	if pos, ok := v.Positions[node.ID]; ok {
		fmt.Fprintf(sb, " `(%.0f, %.0f)`", pos.X, pos.Y)
	}
	sb.WriteString("\n")

	for _, childID := range node.ChildIDs {
		v.writeNode(sb, tree, childID, depth+1)
	}
}
