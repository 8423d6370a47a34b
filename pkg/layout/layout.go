/*
Package layout computes node positions for a mind map tree.

The algorithm is the classic two-pass right-growing mind map arrangement: a
bottom-up pass measures the vertical extent each subtree needs, then a
top-down pass assigns x by depth and centers every node inside its measured
slot, children stacked top to bottom in child-list order.

Arrange is a pure function of the tree and the spacing configuration: no state
survives between calls and iteration follows child-list order only, so two
calls on structurally identical trees produce identical coordinates.
*/
package layout

import "github.com/and07/mindsync/pkg/domain"

// Config holds the fixed spacing used by Arrange, in dp.
type Config struct {
	// HorizontalGap is the x distance between consecutive depth levels.
	HorizontalGap float64 `json:"horizontal_gap" yaml:"horizontal_gap"`
	// VerticalGap is the spacing reserved between siblings.
	VerticalGap float64 `json:"vertical_gap" yaml:"vertical_gap"`
	// Anchor is the center point of the root node.
	Anchor domain.Point `json:"anchor" yaml:"anchor"`
}

// DefaultConfig mirrors the spacing proportions of the mobile client.
func DefaultConfig() Config {
	return Config{
		HorizontalGap: 170,
		VerticalGap:   25,
		Anchor:        domain.Point{X: 100, Y: 360},
	}
}

// Arrange maps every node id in the tree to its center coordinate. The tree
// grows rightward from the root at cfg.Anchor.
func Arrange(tree *domain.Tree, cfg Config) map[string]domain.Point {
	a := arranger{tree: tree, cfg: cfg, extents: make(map[string]float64, tree.Len())}
	a.measure(tree.RootID)
	positions := make(map[string]domain.Point, tree.Len())
	a.place(tree.RootID, 0, cfg.Anchor.Y, positions)
	return positions
}

type arranger struct {
	tree    *domain.Tree
	cfg     Config
	extents map[string]float64
}

// measure computes the vertical extent of the subtree rooted at id, leaves
// first. A leaf needs its own height plus the sibling gap; an internal node
// needs the sum of its children's extents, but never less than its own slot
// (a parent taller than its subtree must not overlap its siblings).
func (a *arranger) measure(id string) float64 {
	n, ok := a.tree.Find(id)
	if !ok {
		return 0
	}
	own := n.Size.Height + a.cfg.VerticalGap
	total := 0.0
	for _, childID := range n.ChildIDs {
		total += a.measure(childID)
	}
	if total < own {
		total = own
	}
	a.extents[id] = total
	return total
}

// place assigns the center of id at (anchor.X + depth*gap, centerY), then
// distributes its children's slots top to bottom around the same center.
func (a *arranger) place(id string, depth int, centerY float64, out map[string]domain.Point) {
	n, ok := a.tree.Find(id)
	if !ok {
		return
	}
	out[id] = domain.Point{
		X: a.cfg.Anchor.X + float64(depth)*a.cfg.HorizontalGap,
		Y: centerY,
	}

	total := 0.0
	for _, childID := range n.ChildIDs {
		total += a.extents[childID]
	}
	cursor := centerY - total/2
	for _, childID := range n.ChildIDs {
		ext := a.extents[childID]
		a.place(childID, depth+1, cursor+ext/2, out)
		cursor += ext
	}
}
