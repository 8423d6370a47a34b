package domain

// Board is a single collaborative mind map document: one tree plus the version
// counter that numbers the mutations applied to it.
type Board struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Tree    *Tree  `json:"tree"`
	Version uint64 `json:"version"`
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	c := *b
	c.Tree = b.Tree.Clone()
	return &c
}

// NewBoard initializes a board at version 0 with a single root node carrying
// the board name as its description.
func NewBoard(id, name string) *Board {
	return &Board{
		ID:   id,
		Name: name,
		Tree: NewTree(NewRootNode(name)),
	}
}
