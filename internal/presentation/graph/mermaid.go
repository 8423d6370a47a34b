package graph

import (
	"fmt"
	"strings"

	"github.com/and07/mindsync/pkg/domain"
)

// Overlay contains dynamic state to visualize on the diagram.
type Overlay struct {
	SelectedNode string
}

// GenerateMermaid produces Mermaid mindmap syntax from a tree. Node shapes
// follow the board model:
// - circle: ((Circle))
// - rectangle: [Rectangle]
// The selected node, if any, gets a highlight class.
func GenerateMermaid(tree *domain.Tree, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("mindmap\n")
	writeNode(&sb, tree, tree.RootID, 1)

	if overlay != nil && overlay.SelectedNode != "" {
		if _, ok := tree.Find(overlay.SelectedNode); ok {
			sb.WriteString("\n%% Overlay Styles\n")
			sb.WriteString("classDef selected fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
			sb.WriteString(fmt.Sprintf("class %s selected;\n", sanitizeMermaidID(overlay.SelectedNode)))
		}
	}
	return sb.String()
}

func writeNode(sb *strings.Builder, tree *domain.Tree, id string, depth int) {
	node, ok := tree.Find(id)
	if !ok {
		return
	}

	opener, closer := "[", "]"
	if node.Shape == domain.ShapeCircle {
		opener, closer = "((", "))"
	}

	// Mermaid mindmap labels cannot contain unescaped quotes.
	label := strings.ReplaceAll(node.Description, "\"", "'")
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(fmt.Sprintf("%s%s\"%s\"%s\n", sanitizeMermaidID(node.ID), opener, label, closer))

	for _, childID := range node.ChildIDs {
		writeNode(sb, tree, childID, depth+1)
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
