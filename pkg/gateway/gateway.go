package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/and07/mindsync/internal/logging"
	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/ports"
)

// Reason classifies why the gateway refused a mutation.
type Reason string

const (
	// ReasonStaleReference means the referenced node no longer exists
	// (deleted by a racing mutation). Non-fatal; the client should not retry.
	ReasonStaleReference Reason = "stale_reference"
	// ReasonInvalidMutation means the mutation was structurally malformed.
	ReasonInvalidMutation Reason = "invalid_mutation"
	// ReasonRejected covers the remaining apply failures (cycle, duplicate
	// id, root deletion).
	ReasonRejected Reason = "rejected"
)

// RejectedError is returned by Submit when the mutation was not applied.
// The authoritative tree is unchanged in that case.
type RejectedError struct {
	Reason Reason
	Err    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("mutation rejected (%s): %v", e.Reason, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Snapshot is a full tree plus its version, used to (re)synchronize sessions.
type Snapshot struct {
	Tree    *domain.Tree `json:"tree"`
	Version uint64       `json:"version"`
}

// Broadcast is one applied mutation with the version it produced. Delivered
// to every subscriber of the board's room, in version order.
type Broadcast struct {
	Mutation domain.Mutation `json:"mutation"`
	Version  uint64          `json:"version"`
}

// lockTTL bounds how long a crashed replica can hold a board.
const lockTTL = 30 * time.Second

// Gateway is the single source of truth for every open board.
//
// Lock order is Gateway.mu before room.mu, never the reverse.
type Gateway struct {
	store  ports.BoardStore
	locker ports.DistributedLocker
	logger *slog.Logger
	stats  *metrics

	mu    sync.Mutex
	rooms map[string]*room

	persistAttempts int
	persistBackoff  time.Duration

	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger configures a logger for the gateway.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithLocker enables distributed board ownership for multi-replica
// deployments.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(g *Gateway) {
		g.locker = locker
	}
}

// WithMetrics registers the gateway's collectors with reg.
func WithMetrics(reg registerer) Option {
	return func(g *Gateway) {
		g.stats = newMetrics(reg)
	}
}

// WithPersistRetry tunes the asynchronous save loop: attempts per snapshot
// and the initial backoff (doubled per retry).
func WithPersistRetry(attempts int, backoff time.Duration) Option {
	return func(g *Gateway) {
		g.persistAttempts = attempts
		g.persistBackoff = backoff
	}
}

// New creates a Gateway backed by the given store.
func New(store ports.BoardStore, opts ...Option) *Gateway {
	bg, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		store:           store,
		logger:          logging.NewNop(),
		rooms:           make(map[string]*room),
		persistAttempts: 5,
		persistBackoff:  100 * time.Millisecond,
		bg:              bg,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.stats == nil {
		g.stats = newMetrics(nil)
	}
	return g
}

// Join opens the board (loading it from the store, or initializing a fresh
// single-root tree if the store has never seen it), subscribes the caller to
// its room and returns the current snapshot. Snapshot and registration happen
// inside the room's critical section, so the first broadcast a new subscriber
// sees is exactly snapshot version + 1.
func (g *Gateway) Join(ctx context.Context, boardID string) (Snapshot, *Subscription, error) {
	for {
		r, err := g.openRoom(ctx, boardID)
		if err != nil {
			return Snapshot{}, nil, err
		}

		r.mu.Lock()
		if r.closed {
			// Lost a race with the last leaver; open a fresh room.
			r.mu.Unlock()
			continue
		}
		sub := r.subscribe(g)
		snap := Snapshot{Tree: r.board.Tree.Clone(), Version: r.board.Version}
		r.mu.Unlock()

		g.stats.sessions.Inc()
		return snap, sub, nil
	}
}

// Submit applies a mutation to the board's authoritative tree.
//
// clientVersion is advisory only: the gateway merges optimistically by
// applying against the current tree, whatever the client had seen. The call
// fails with *RejectedError (StaleReference for vanished nodes) leaving the
// tree unchanged, or succeeds, increments the version, schedules an
// asynchronous save and broadcasts {mutation, version} to every subscriber
// including the submitter.
//
// A non-empty nonce makes the submission idempotent within the room's replay
// window: a copy of an already applied submission returns the recorded
// version without applying or broadcasting again.
func (g *Gateway) Submit(ctx context.Context, boardID string, m domain.Mutation, clientVersion uint64, nonce string) (Broadcast, error) {
	r, err := g.liveRoom(ctx, boardID)
	if err != nil {
		return Broadcast{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Broadcast{}, fmt.Errorf("submit to closed board %s: %w", boardID, domain.ErrBoardNotFound)
	}

	if nonce != "" {
		if v, ok := r.nonces[nonce]; ok {
			return Broadcast{Mutation: m, Version: v}, nil
		}
	}

	started := time.Now()
	next, applyErr := r.board.Tree.Apply(m)
	if applyErr != nil {
		rej := &RejectedError{Reason: classify(applyErr), Err: applyErr}
		g.stats.rejected.WithLabelValues(string(rej.Reason)).Inc()
		g.logger.Debug("mutation rejected",
			"board_id", boardID,
			"op", string(m.Op),
			"target", m.Target(),
			"client_version", clientVersion,
			"err", applyErr,
		)
		return Broadcast{}, rej
	}

	r.board.Tree = next
	r.board.Version++
	if nonce != "" {
		r.remember(nonce, r.board.Version)
	}
	b := Broadcast{Mutation: m, Version: r.board.Version}
	r.publish(g, b)

	g.stats.applied.WithLabelValues(string(m.Op)).Inc()
	g.stats.applyLatency.Observe(time.Since(started).Seconds())

	g.persistAsync(r.board.Clone())
	return b, nil
}

// SnapshotBoard returns the current snapshot of an open board, used for
// client-initiated resynchronization after a version gap.
func (g *Gateway) SnapshotBoard(ctx context.Context, boardID string) (Snapshot, error) {
	r, err := g.liveRoom(ctx, boardID)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Snapshot{}, fmt.Errorf("snapshot of closed board %s: %w", boardID, domain.ErrBoardNotFound)
	}
	return Snapshot{Tree: r.board.Tree.Clone(), Version: r.board.Version}, nil
}

// Close shuts the gateway down, waiting for outstanding persistence work.
func (g *Gateway) Close() {
	g.cancel()
	g.wg.Wait()
}

// classify maps domain apply errors onto wire rejection reasons.
func classify(err error) Reason {
	switch {
	case errors.Is(err, domain.ErrUnknownNode):
		return ReasonStaleReference
	case errors.Is(err, domain.ErrInvalidMutation):
		return ReasonInvalidMutation
	default:
		return ReasonRejected
	}
}

// openRoom returns the loaded room for boardID, creating it on first use.
// The creating caller loads the board outside any lock; concurrent callers
// wait on the room's loading barrier instead of racing the store.
func (g *Gateway) openRoom(ctx context.Context, boardID string) (*room, error) {
	g.mu.Lock()
	r, ok := g.rooms[boardID]
	if !ok {
		r = newRoom(boardID)
		g.rooms[boardID] = r
		g.mu.Unlock()

		if err := g.populate(ctx, r); err != nil {
			g.mu.Lock()
			delete(g.rooms, boardID)
			g.mu.Unlock()
			r.fail()
			return nil, err
		}
		r.open()
		g.stats.rooms.Inc()
		return r, nil
	}
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.loading:
	}
	if r.failed {
		return nil, fmt.Errorf("board %s failed to open", boardID)
	}
	return r, nil
}

// liveRoom fetches an already-open room without creating one.
func (g *Gateway) liveRoom(ctx context.Context, boardID string) (*room, error) {
	g.mu.Lock()
	r, ok := g.rooms[boardID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("board %s is not open: %w", boardID, domain.ErrBoardNotFound)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.loading:
	}
	if r.failed {
		return nil, fmt.Errorf("board %s is not open: %w", boardID, domain.ErrBoardNotFound)
	}
	return r, nil
}

// populate acquires the distributed lock (if any) and loads the board.
// The room is not yet visible through its loading barrier, so plain field
// writes are safe here.
func (g *Gateway) populate(ctx context.Context, r *room) error {
	if g.locker != nil {
		unlock, err := g.locker.Lock(ctx, r.id, lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire board lock: %w", err)
		}
		r.unlock = unlock
	}

	board, err := g.store.Load(ctx, r.id)
	switch {
	case err == nil:
		r.board = board
	case errors.Is(err, domain.ErrBoardNotFound):
		r.board = domain.NewBoard(r.id, r.id)
	default:
		g.releaseLock(r)
		return fmt.Errorf("failed to load board %s: %w", r.id, err)
	}
	return nil
}

// dropRoom removes a room whose last subscriber left: the board is persisted
// once more (best effort) and the distributed lock released.
func (g *Gateway) dropRoom(r *room, finalState *domain.Board) {
	g.mu.Lock()
	delete(g.rooms, r.id)
	g.mu.Unlock()

	g.stats.rooms.Dec()
	g.persistAsync(finalState)
	g.releaseLock(r)
}

func (g *Gateway) releaseLock(r *room) {
	if r.unlock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.unlock(ctx); err != nil {
		g.logger.Warn("failed to release board lock (will expire via TTL)",
			"board_id", r.id,
			"err", err,
		)
	}
	r.unlock = nil
}

// persistAsync saves a board snapshot in the background with capped
// exponential backoff. Failures are logged, never surfaced to clients; a
// version conflict means a newer snapshot is already durable and ends the
// loop quietly.
func (g *Gateway) persistAsync(board *domain.Board) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		backoff := g.persistBackoff
		var err error
		for attempt := 0; attempt < g.persistAttempts; attempt++ {
			if attempt > 0 {
				g.stats.persistRetries.Inc()
				select {
				case <-g.bg.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
			}

			ctx, cancel := context.WithTimeout(g.bg, 10*time.Second)
			err = g.store.Save(ctx, board)
			cancel()
			if err == nil || errors.Is(err, domain.ErrVersionConflict) {
				return
			}
		}
		g.logger.Error("giving up persisting board snapshot",
			"board_id", board.ID,
			"version", board.Version,
			"attempts", g.persistAttempts,
			"err", err,
		)
	}()
}
