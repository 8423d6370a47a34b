package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and07/mindsync/pkg/adapters/memory"
	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/persistence/middleware"
	"github.com/and07/mindsync/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: generateKey(t),
	})(memory.NewStore())

	ports.RunBoardStoreContract(t, store)
}

func TestEncryptionMiddleware_HidesContent(t *testing.T) {
	inner := memory.NewStore()
	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: generateKey(t),
	})(inner)

	ctx := context.Background()
	board := domain.NewBoard("secret-board", "Acquisition Plan")
	board.Version = 1
	require.NoError(t, store.Save(ctx, board))

	// The underlying store sees only the envelope.
	raw, err := inner.Load(ctx, "secret-board")
	require.NoError(t, err)
	assert.NotEqual(t, "Acquisition Plan", raw.Name)
	for _, n := range raw.Tree.Nodes {
		assert.NotContains(t, n.Description, "Acquisition")
	}
	assert.Equal(t, uint64(1), raw.Version, "version stays visible for the monotonicity guard")

	// Round trip restores the real board.
	loaded, err := store.Load(ctx, "secret-board")
	require.NoError(t, err)
	assert.Equal(t, "Acquisition Plan", loaded.Name)
	assert.NoError(t, loaded.Tree.Validate())
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	oldKey, newKey := generateKey(t), generateKey(t)
	inner := memory.NewStore()
	ctx := context.Background()

	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: oldKey,
	})(inner)
	board := domain.NewBoard("rotated", "r")
	board.Version = 1
	require.NoError(t, oldStore.Save(ctx, board))

	// New active key with the old key as fallback still reads old data.
	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(inner)
	loaded, err := rotated.Load(ctx, "rotated")
	require.NoError(t, err)
	assert.Equal(t, "r", loaded.Name)

	// Without the fallback, decryption fails rather than returning garbage.
	wrongOnly := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: newKey,
	})(inner)
	_, err = wrongOnly.Load(ctx, "rotated")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_RejectsPlaintext(t *testing.T) {
	inner := memory.NewStore()
	ctx := context.Background()

	plain := domain.NewBoard("plain", "p")
	plain.Version = 1
	require.NoError(t, inner.Save(ctx, plain))

	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: generateKey(t),
	})(inner)
	_, err := store.Load(ctx, "plain")
	assert.ErrorContains(t, err, "envelope")
}

func TestEncryptionMiddleware_PanicsOnShortKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	})
}
