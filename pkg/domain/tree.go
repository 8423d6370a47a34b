package domain

import (
	"fmt"
	"iter"
)

// Tree is an id-indexed rooted tree of nodes (arena pattern: nodes reference
// each other only by id, never by pointer).
//
// Structural invariants:
//
//  1. Exactly one root, whose ParentID is empty.
//  2. Every non-root node's ParentID resolves to a node in the same tree.
//  3. No id is listed as a child of two different parents.
//  4. No id is its own ancestor.
//  5. Child id lists contain no duplicates and every listed child's ParentID
//     matches the listing parent.
//
// Apply is the only way to derive a changed tree; it returns a fresh value and
// leaves the receiver intact, so snapshots can be shared freely across
// goroutines without locking.
type Tree struct {
	RootID string          `json:"root_id"`
	Nodes  map[string]Node `json:"nodes"`
}

// NewTree creates a single-node tree owned by root. The root's ParentID and
// ChildIDs are reset to keep invariant 1.
func NewTree(root Node) *Tree {
	root.ParentID = ""
	root.ChildIDs = nil
	return &Tree{
		RootID: root.ID,
		Nodes:  map[string]Node{root.ID: root},
	}
}

// Find returns the node with the given id.
func (t *Tree) Find(id string) (Node, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// Root returns the root node.
func (t *Tree) Root() Node {
	return t.Nodes[t.RootID]
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Traverse yields the subtree rooted at startID depth-first, parents before
// children, siblings in child-list order. Each call returns a fresh sequence;
// there is no shared cursor. An unknown startID yields an empty sequence.
func (t *Tree) Traverse(startID string) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		t.walk(startID, yield)
	}
}

func (t *Tree) walk(id string, yield func(Node) bool) bool {
	n, ok := t.Nodes[id]
	if !ok {
		return true
	}
	if !yield(n) {
		return false
	}
	for _, childID := range n.ChildIDs {
		if !t.walk(childID, yield) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the tree, sharing nothing with the receiver.
func (t *Tree) Clone() *Tree {
	nodes := make(map[string]Node, len(t.Nodes))
	for id, n := range t.Nodes {
		nodes[id] = n.clone()
	}
	return &Tree{RootID: t.RootID, Nodes: nodes}
}

// shallow returns a new Tree sharing node values with the receiver. Callers
// must replace (not mutate) entries, which put and remove enforce.
func (t *Tree) shallow() *Tree {
	nodes := make(map[string]Node, len(t.Nodes))
	for id, n := range t.Nodes {
		nodes[id] = n
	}
	return &Tree{RootID: t.RootID, Nodes: nodes}
}

// Apply produces the tree that results from applying m. It is pure: the
// receiver remains valid and unmodified regardless of the outcome.
//
// Referential failures return ErrUnknownNode, ErrDuplicateNode,
// ErrDuplicateRoot, ErrWouldCreateCycle or ErrRootImmovable; structural
// malformation returns ErrInvalidMutation. On error the returned tree is nil.
func (t *Tree) Apply(m Mutation) (*Tree, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	switch m.Op {
	case OpInsert:
		return t.applyInsert(m)
	case OpUpdate:
		return t.applyUpdate(m)
	case OpMove:
		return t.applyMove(m)
	case OpDelete:
		return t.applyDelete(m)
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidMutation, m.Op)
}

func (t *Tree) applyInsert(m Mutation) (*Tree, error) {
	if _, ok := t.Nodes[m.Node.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, m.Node.ID)
	}
	parent, ok := t.Nodes[m.ParentID]
	if !ok {
		return nil, fmt.Errorf("%w: parent %s", ErrUnknownNode, m.ParentID)
	}
	if m.Node.ParentID != "" && m.Node.ParentID != m.ParentID {
		return nil, fmt.Errorf("%w: node %s claims parent %s", ErrDuplicateRoot, m.Node.ID, m.Node.ParentID)
	}

	next := t.shallow()
	child := m.Node.clone()
	child.ParentID = parent.ID
	child.ChildIDs = nil
	next.Nodes[child.ID] = child

	parent = parent.clone()
	parent.ChildIDs = append(parent.ChildIDs, child.ID)
	next.Nodes[parent.ID] = parent
	return next, nil
}

func (t *Tree) applyUpdate(m Mutation) (*Tree, error) {
	n, ok := t.Nodes[m.NodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, m.NodeID)
	}

	next := t.shallow()
	n = n.clone()
	if m.Description != nil {
		n.Description = *m.Description
	}
	if m.Shape != nil {
		n.Shape = *m.Shape
	}
	if m.Pos != nil {
		n.Pos = *m.Pos
	}
	next.Nodes[n.ID] = n
	return next, nil
}

func (t *Tree) applyMove(m Mutation) (*Tree, error) {
	n, ok := t.Nodes[m.NodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, m.NodeID)
	}
	if n.ID == t.RootID {
		return nil, fmt.Errorf("%w: %s", ErrRootImmovable, n.ID)
	}
	parent, ok := t.Nodes[m.ParentID]
	if !ok {
		return nil, fmt.Errorf("%w: parent %s", ErrUnknownNode, m.ParentID)
	}
	if t.isDescendant(m.ParentID, m.NodeID) {
		return nil, fmt.Errorf("%w: %s into its own subtree", ErrWouldCreateCycle, n.ID)
	}
	if n.ParentID == m.ParentID {
		return t.shallow(), nil // no-op move, still a valid new tree
	}

	next := t.shallow()

	old := next.Nodes[n.ParentID].clone()
	old.ChildIDs = removeID(old.ChildIDs, n.ID)
	next.Nodes[old.ID] = old

	parent = parent.clone()
	parent.ChildIDs = append(parent.ChildIDs, n.ID)
	next.Nodes[parent.ID] = parent

	n = n.clone()
	n.ParentID = parent.ID
	next.Nodes[n.ID] = n
	return next, nil
}

func (t *Tree) applyDelete(m Mutation) (*Tree, error) {
	n, ok := t.Nodes[m.NodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, m.NodeID)
	}
	if n.ID == t.RootID {
		return nil, fmt.Errorf("%w: %s", ErrRootImmovable, n.ID)
	}

	next := t.shallow()
	for victim := range t.Traverse(n.ID) {
		delete(next.Nodes, victim.ID)
	}
	parent := next.Nodes[n.ParentID].clone()
	parent.ChildIDs = removeID(parent.ChildIDs, n.ID)
	next.Nodes[parent.ID] = parent
	return next, nil
}

// isDescendant reports whether id lies in the subtree rooted at ancestorID
// (a node is its own descendant).
func (t *Tree) isDescendant(id, ancestorID string) bool {
	for n := range t.Traverse(ancestorID) {
		if n.ID == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks all five structural invariants. It is used by tests and as
// a debug assertion; Apply maintains the invariants by construction.
func (t *Tree) Validate() error {
	root, ok := t.Nodes[t.RootID]
	if !ok {
		return fmt.Errorf("root %s not in tree", t.RootID)
	}
	if root.ParentID != "" {
		return fmt.Errorf("root %s has parent %s", root.ID, root.ParentID)
	}

	seenChild := make(map[string]string, len(t.Nodes)) // child id -> parent id
	for id, n := range t.Nodes {
		if id != n.ID {
			return fmt.Errorf("node %s stored under key %s", n.ID, id)
		}
		if id != t.RootID {
			if n.ParentID == "" {
				return fmt.Errorf("second root %s", id)
			}
			if _, ok := t.Nodes[n.ParentID]; !ok {
				return fmt.Errorf("node %s has dangling parent %s", id, n.ParentID)
			}
		}
		for _, childID := range n.ChildIDs {
			if prev, dup := seenChild[childID]; dup {
				return fmt.Errorf("node %s listed under parents %s and %s", childID, prev, id)
			}
			seenChild[childID] = id
			child, ok := t.Nodes[childID]
			if !ok {
				return fmt.Errorf("node %s lists missing child %s", id, childID)
			}
			if child.ParentID != id {
				return fmt.Errorf("node %s lists child %s whose parent is %s", id, childID, child.ParentID)
			}
		}
	}

	reached := 0
	for range t.Traverse(t.RootID) {
		reached++
	}
	if reached != len(t.Nodes) {
		return fmt.Errorf("tree has %d nodes but only %d reachable from root", len(t.Nodes), reached)
	}
	return nil
}
