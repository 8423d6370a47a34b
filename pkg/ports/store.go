package ports

import (
	"context"

	"github.com/and07/mindsync/pkg/domain"
)

// BoardStore defines the interface for persisting board snapshots.
//
// The gateway's in-memory tree is authoritative for live sessions; the store
// exists for durability and reload. Save is called with monotonically
// increasing versions per board and implementations must refuse regressions
// with domain.ErrVersionConflict, which makes retried saves idempotent
// (keyed by version).
type BoardStore interface {
	// Save persists the board snapshot.
	// Returns domain.ErrVersionConflict if a newer version is already stored.
	Save(ctx context.Context, board *domain.Board) error

	// Load retrieves the latest snapshot for a board id.
	// Returns domain.ErrBoardNotFound if the board does not exist.
	Load(ctx context.Context, boardID string) (*domain.Board, error)

	// Delete removes the snapshot for a board id.
	Delete(ctx context.Context, boardID string) error

	// List returns the ids of all stored boards.
	List(ctx context.Context) ([]string, error)
}
