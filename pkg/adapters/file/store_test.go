package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and07/mindsync/pkg/adapters/file"
	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/ports"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunBoardStoreContract(t, store)
}

func TestFileStore_ListSkipsOrphanedTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	board := &domain.Board{
		ID:   "b1",
		Name: "b1",
		Tree: domain.NewTree(domain.Node{ID: "R", Description: "root"}),
	}
	require.NoError(t, store.Save(ctx, board))

	// A crash between CreateTemp and Rename leaves a temp file behind; it
	// must not surface as a board.
	orphan := filepath.Join(dir, "tmp-b1-123456.json")
	require.NoError(t, os.WriteFile(orphan, []byte("{"), 0o644))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, ids)
}
