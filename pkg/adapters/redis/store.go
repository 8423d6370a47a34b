package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/and07/mindsync/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.BoardStore using Redis.
//
// Snapshots are stored as JSON under <prefix><id>, the applied version under
// <prefix><id>:version, and board ids are indexed in a ZSET so List does not
// need SCAN. Version monotonicity is enforced server-side by a Lua script so
// that two gateway replicas retrying saves cannot interleave a regression.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for board snapshots.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for boards.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "mindsync:board:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(boardID string) string {
	return s.prefix + boardID
}

func (s *Store) versionKey(boardID string) string {
	return s.prefix + boardID + ":version"
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// saveScript refuses version regressions atomically.
// KEYS: board key, version key, index key. ARGV: json, version, score, id.
const saveScript = `
local current = redis.call("GET", KEYS[2])
if current and tonumber(ARGV[2]) < tonumber(current) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[4])
return 1
`

// Save persists the board snapshot to Redis.
func (s *Store) Save(ctx context.Context, board *domain.Board) error {
	data, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	// Score = Now + TTL. If TTL = 0, Score = far future.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	keys := []string{s.key(board.ID), s.versionKey(board.ID), s.indexKey()}
	argv := []any{data, board.Version, score, board.ID}
	ok, err := s.client.Eval(ctx, saveScript, keys, argv...).Int()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: board %s", domain.ErrVersionConflict, board.ID)
	}

	if s.ttl > 0 {
		pipe := s.client.Pipeline()
		pipe.PExpire(ctx, s.key(board.ID), s.ttl)
		pipe.PExpire(ctx, s.versionKey(board.ID), s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to set board ttl: %w", err)
		}
	}
	return nil
}

// Load retrieves the board from Redis.
func (s *Store) Load(ctx context.Context, boardID string) (*domain.Board, error) {
	val, err := s.client.Get(ctx, s.key(boardID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrBoardNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var board domain.Board
	if err := json.Unmarshal([]byte(val), &board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board: %w", err)
	}

	return &board, nil
}

// Delete removes the board.
func (s *Store) Delete(ctx context.Context, boardID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.key(boardID))
	pipe.Del(ctx, s.versionKey(boardID))
	pipe.ZRem(ctx, s.indexKey(), boardID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns stored board ids, lazily pruning expired index entries.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired boards: %w", err)
	}

	boards, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}

	return boards, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
