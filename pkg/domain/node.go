package domain

import "github.com/google/uuid"

// Shape identifies the visual variant of a node.
type Shape string

const (
	// ShapeCircle is used for root nodes.
	ShapeCircle Shape = "circle"
	// ShapeRectangle is used for every non-root node.
	ShapeRectangle Shape = "rectangle"
)

// Default node dimensions in dp, matching the proportions of the mobile client.
const (
	DefaultCircleRadius     = 50.0
	DefaultRectangleWidth   = 90.0
	DefaultRectangleHeight  = 40.0
	descriptionWidthPerRune = 8.0
)

// Point is a center coordinate in dp (density-independent, resolution-neutral).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in dp.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node represents a single shape on a mind map board.
//
// Nodes reference each other only by id. ParentID is empty exactly for the
// root; ChildIDs order is meaningful and determines sibling layout order.
type Node struct {
	ID          string   `json:"id" mapstructure:"id"`
	Description string   `json:"description" mapstructure:"description"`
	Shape       Shape    `json:"shape" mapstructure:"shape"`
	Pos         Point    `json:"pos" mapstructure:"pos"`
	Size        Size     `json:"size" mapstructure:"size"`
	ParentID    string   `json:"parent_id,omitempty" mapstructure:"parent_id"`
	ChildIDs    []string `json:"child_ids,omitempty" mapstructure:"child_ids"`
}

// IsRoot reports whether the node is the root of its tree.
func (n Node) IsRoot() bool {
	return n.ParentID == ""
}

// clone returns a deep copy of the node (ChildIDs included), so the returned
// value can be modified without aliasing the original.
func (n Node) clone() Node {
	c := n
	c.ChildIDs = append([]string(nil), n.ChildIDs...)
	return c
}

// NewNode creates a rectangle node with a fresh id, sized for its description.
// The position is zero; layout assigns coordinates.
func NewNode(description string) Node {
	width := DefaultRectangleWidth
	if w := float64(len([]rune(description))) * descriptionWidthPerRune; w > width {
		width = w
	}
	return Node{
		ID:          uuid.NewString(),
		Description: description,
		Shape:       ShapeRectangle,
		Size:        Size{Width: width, Height: DefaultRectangleHeight},
	}
}

// NewRootNode creates the circle root node for a fresh board.
func NewRootNode(description string) Node {
	return Node{
		ID:          uuid.NewString(),
		Description: description,
		Shape:       ShapeCircle,
		Size:        Size{Width: DefaultCircleRadius * 2, Height: DefaultCircleRadius * 2},
	}
}
