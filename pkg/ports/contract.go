package ports

import (
	"context"
	"testing"
	"time"

	"github.com/and07/mindsync/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBoardStoreContract runs a suite of tests verifying that a BoardStore
// implementation adheres to the interface contract. Adapter test files call
// it against their concrete store.
func RunBoardStoreContract(t *testing.T, store BoardStore) {
	ctx := context.Background()
	boardID := "contract-test-board-" + time.Now().Format("20060102150405")

	newBoard := func(version uint64) *domain.Board {
		b := domain.NewBoard(boardID, "contract")
		b.Version = version
		return b
	}

	t.Run("Save and Load", func(t *testing.T) {
		board := newBoard(1)
		require.NoError(t, store.Save(ctx, board))

		loaded, err := store.Load(ctx, boardID)
		require.NoError(t, err)
		assert.Equal(t, board.ID, loaded.ID)
		assert.Equal(t, board.Version, loaded.Version)
		assert.Equal(t, board.Tree.RootID, loaded.Tree.RootID)
		assert.NoError(t, loaded.Tree.Validate())
	})

	t.Run("Monotonic versions", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newBoard(3)))

		// Regression is refused; the retry of an old save is a no-op.
		err := store.Save(ctx, newBoard(2))
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		loaded, err := store.Load(ctx, boardID)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), loaded.Version)

		// Re-saving the same version is idempotent, not a conflict.
		assert.NoError(t, store.Save(ctx, newBoard(3)))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+boardID)
		assert.ErrorIs(t, err, domain.ErrBoardNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newBoard(4)))
		require.NoError(t, store.Delete(ctx, boardID))

		_, err := store.Load(ctx, boardID)
		assert.ErrorIs(t, err, domain.ErrBoardNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := boardID + "-1"
		id2 := boardID + "-2"
		b1 := domain.NewBoard(id1, "one")
		b2 := domain.NewBoard(id2, "two")
		require.NoError(t, store.Save(ctx, b1))
		require.NoError(t, store.Save(ctx, b2))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})

	t.Run("Stored copy is isolated", func(t *testing.T) {
		board := newBoard(5)
		require.NoError(t, store.Save(ctx, board))

		// Mutating the caller's board after Save must not leak into the store.
		board.Tree.Nodes["rogue"] = domain.Node{ID: "rogue", ParentID: board.Tree.RootID}

		loaded, err := store.Load(ctx, boardID)
		require.NoError(t, err)
		_, ok := loaded.Tree.Find("rogue")
		assert.False(t, ok)

		_ = store.Delete(ctx, boardID)
	})
}
