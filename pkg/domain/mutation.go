package domain

import "fmt"

// Op is the tag discriminating mutation variants.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpMove   Op = "move"
	OpDelete Op = "delete"
)

// Mutation is a structural change intent against a board's tree.
//
// Exactly one variant is active, selected by Op:
//
//   - Insert: Node is the new node, ParentID the existing parent.
//   - Update: NodeID is the target; Description, Shape and Pos are applied
//     only when non-nil, so a description edit cannot clobber a concurrent
//     drag and vice versa.
//   - Move: NodeID is re-parented under ParentID.
//   - Delete: NodeID and its entire subtree are removed.
type Mutation struct {
	Op Op `json:"op"`

	ParentID string `json:"parent_id,omitempty"`
	Node     *Node  `json:"node,omitempty"`
	NodeID   string `json:"node_id,omitempty"`

	Description *string `json:"description,omitempty"`
	Shape       *Shape  `json:"shape,omitempty"`
	Pos         *Point  `json:"pos,omitempty"`
}

// Insert builds an Insert mutation attaching node under parentID.
func Insert(parentID string, node Node) Mutation {
	return Mutation{Op: OpInsert, ParentID: parentID, Node: &node}
}

// UpdateDescription builds an Update mutation changing only the description.
func UpdateDescription(nodeID, description string) Mutation {
	return Mutation{Op: OpUpdate, NodeID: nodeID, Description: &description}
}

// UpdatePos builds an Update mutation changing only the position.
func UpdatePos(nodeID string, pos Point) Mutation {
	return Mutation{Op: OpUpdate, NodeID: nodeID, Pos: &pos}
}

// Move builds a Move mutation re-parenting nodeID under parentID.
func Move(nodeID, parentID string) Mutation {
	return Mutation{Op: OpMove, NodeID: nodeID, ParentID: parentID}
}

// Delete builds a Delete mutation removing nodeID and its subtree.
func Delete(nodeID string) Mutation {
	return Mutation{Op: OpDelete, NodeID: nodeID}
}

// Validate checks that the mutation is structurally well formed for its Op.
// It does not consult any tree; referential checks happen in Tree.Apply.
func (m Mutation) Validate() error {
	switch m.Op {
	case OpInsert:
		if m.Node == nil {
			return fmt.Errorf("%w: insert requires a node", ErrInvalidMutation)
		}
		if m.Node.ID == "" {
			return fmt.Errorf("%w: insert node missing id", ErrInvalidMutation)
		}
		if m.ParentID == "" {
			return fmt.Errorf("%w: insert requires a parent id", ErrInvalidMutation)
		}
	case OpUpdate:
		if m.NodeID == "" {
			return fmt.Errorf("%w: update requires a node id", ErrInvalidMutation)
		}
		if m.Description == nil && m.Shape == nil && m.Pos == nil {
			return fmt.Errorf("%w: update changes nothing", ErrInvalidMutation)
		}
	case OpMove:
		if m.NodeID == "" || m.ParentID == "" {
			return fmt.Errorf("%w: move requires node id and parent id", ErrInvalidMutation)
		}
	case OpDelete:
		if m.NodeID == "" {
			return fmt.Errorf("%w: delete requires a node id", ErrInvalidMutation)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidMutation, m.Op)
	}
	return nil
}

// Target returns the id of the existing node the mutation anchors on: the
// parent for an Insert, the node itself otherwise. Used for conflict
// reporting.
func (m Mutation) Target() string {
	if m.Op == OpInsert {
		return m.ParentID
	}
	return m.NodeID
}
