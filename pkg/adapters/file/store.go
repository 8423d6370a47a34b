package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/and07/mindsync/pkg/domain"
)

// Store implements ports.BoardStore using the local filesystem.
// Each board is one JSON file in the configured directory, written atomically
// (temp file, fsync, rename). A process-wide mutex serializes writers so the
// load-check-write version guard cannot race within one process.
type Store struct {
	BasePath string
	mu       sync.Mutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".mindsync/boards".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".mindsync", "boards")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(boardID string) string {
	return filepath.Join(s.BasePath, boardID+".json")
}

// Save persists the board snapshot to a JSON file atomically, refusing
// version regressions.
func (s *Store) Save(ctx context.Context, board *domain.Board) error {
	if board.ID == "" {
		return fmt.Errorf("board id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.load(board.ID); err == nil && board.Version < existing.Version {
		return fmt.Errorf("%w: have %d, got %d", domain.ErrVersionConflict, existing.Version, board.Version)
	}

	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure board directory: %w", err)
	}

	data, err := json.MarshalIndent(board, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+board.ID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(board.ID)); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// Load retrieves the board snapshot from its JSON file.
func (s *Store) Load(ctx context.Context, boardID string) (*domain.Board, error) {
	if boardID == "" {
		return nil, fmt.Errorf("board id cannot be empty")
	}
	return s.load(boardID)
}

func (s *Store) load(boardID string) (*domain.Board, error) {
	data, err := os.ReadFile(s.path(boardID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrBoardNotFound
		}
		return nil, fmt.Errorf("failed to read board file: %w", err)
	}

	var board domain.Board
	if err := json.Unmarshal(data, &board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board: %w", err)
	}
	return &board, nil
}

// Delete removes the board file.
func (s *Store) Delete(ctx context.Context, boardID string) error {
	if boardID == "" {
		return fmt.Errorf("board id cannot be empty")
	}

	err := os.Remove(s.path(boardID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete board file: %w", err)
	}
	return nil
}

// List returns all stored board ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		// Temp files left behind by a crash mid-save are not boards.
		if strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}
