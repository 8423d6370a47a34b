package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/and07/mindsync/pkg/domain"
)

// Store implements ports.BoardStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Board
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Board),
	}
}

// Save persists the board in memory. Versions are monotonic per board.
func (s *Store) Save(ctx context.Context, board *domain.Board) error {
	if board.ID == "" {
		return fmt.Errorf("board id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[board.ID]; ok && board.Version < existing.Version {
		return fmt.Errorf("%w: have %d, got %d", domain.ErrVersionConflict, existing.Version, board.Version)
	}
	// Deep copy to ensure isolation, similar to serialization.
	s.data[board.ID] = board.Clone()
	return nil
}

// Load retrieves the board from memory.
func (s *Store) Load(ctx context.Context, boardID string) (*domain.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	board, ok := s.data[boardID]
	if !ok {
		return nil, domain.ErrBoardNotFound
	}

	// Copy on read so the caller can't mutate store state through the pointer.
	return board.Clone(), nil
}

// Delete removes the board.
func (s *Store) Delete(ctx context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, boardID)
	return nil
}

// List returns stored board ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
