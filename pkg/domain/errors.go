package domain

import "errors"

// ErrUnknownNode is returned when a mutation references a node id that does not
// exist in the tree.
var ErrUnknownNode = errors.New("unknown node")

// ErrDuplicateNode is returned when an Insert carries a node id that is already
// present in the tree.
var ErrDuplicateNode = errors.New("duplicate node id")

// ErrDuplicateRoot is returned when an Insert would introduce a second root.
var ErrDuplicateRoot = errors.New("tree already has a root")

// ErrWouldCreateCycle is returned when a Move targets a parent inside the moved
// node's own subtree.
var ErrWouldCreateCycle = errors.New("move would create a cycle")

// ErrRootImmovable is returned when a Delete or Move targets the root node.
var ErrRootImmovable = errors.New("root node cannot be deleted or moved")

// ErrInvalidMutation is returned when a mutation is structurally malformed
// (missing required fields for its operation).
var ErrInvalidMutation = errors.New("invalid mutation")

// ErrBoardNotFound is returned when a board id cannot be found in the store.
var ErrBoardNotFound = errors.New("board not found")

// ErrVersionConflict is returned by stores that enforce monotonic version
// writes when a save would regress the persisted version.
var ErrVersionConflict = errors.New("stale board version")
