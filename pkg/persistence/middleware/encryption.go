package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/ports"
)

// envelopeNodeID marks a stored board as an encryption envelope.
const envelopeNodeID = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.BoardStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts boards at rest
// using AES-GCM (envelope encryption). The board id and version stay in the
// clear: the id keys the store, and the version must remain visible for the
// store's monotonicity guard. Names, descriptions and structure are hidden.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.BoardStore) ports.BoardStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, board *domain.Board) error {
	plainText, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt board: %w", err)
	}

	// The envelope is a single-node board carrying the ciphertext; the real
	// tree never reaches the underlying store.
	envelope := &domain.Board{
		ID:      board.ID,
		Name:    envelopeNodeID,
		Version: board.Version,
		Tree: domain.NewTree(domain.Node{
			ID:          envelopeNodeID,
			Description: base64.StdEncoding.EncodeToString(ciphertext),
			Shape:       domain.ShapeCircle,
		}),
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, boardID string) (*domain.Board, error) {
	envelope, err := m.next.Load(ctx, boardID)
	if err != nil {
		return nil, err
	}

	node, ok := envelope.Tree.Find(envelopeNodeID)
	if !ok {
		// Not an envelope. Fail secure: with encryption configured we never
		// hand back a plaintext board of unknown provenance.
		return nil, errors.New("board is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(node.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt board: %w", err)
	}

	var board domain.Board
	if err := json.Unmarshal(plainText, &board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted board: %w", err)
	}
	return &board, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, boardID string) error {
	return m.next.Delete(ctx, boardID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
