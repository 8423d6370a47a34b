package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/and07/mindsync/internal/logging"
	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/layout"
	"github.com/and07/mindsync/pkg/protocol"
)

// State is the session lifecycle phase.
type State string

const (
	StateLoading  State = "loading"
	StateSynced   State = "synced"
	StateMutating State = "mutating"
	StateClosed   State = "closed"
)

// Snapshot is one laid-out view of the board, handed to the renderer.
// Consumers must not mutate the tree or positions.
//
// Pending marks an optimistic snapshot: the local edit it shows has been sent
// but not yet confirmed. Confirmed snapshots carry strictly increasing
// versions; a pending snapshot always carries a version above the last
// confirmed one (its predicted slot).
type Snapshot struct {
	Tree      *domain.Tree
	Version   uint64
	Positions map[string]domain.Point
	Pending   bool
}

// Notice is a non-fatal, user-visible event: a conflict, a refused intent or
// a forced resynchronization.
type Notice struct {
	Reason   string
	Mutation domain.Mutation
}

// Notice reasons.
const (
	NoticeInvalid  = "invalid mutation"
	NoticeConflict = "edit conflicts with a concurrent change"
	NoticeRejected = "edit rejected by server"
	NoticeResync   = "board reloaded, pending edit dropped"
)

// Session is the client-side state holder for one open board.
type Session struct {
	boardID string
	conn    Conn
	cfg     layout.Config
	logger  *slog.Logger

	snapshots chan Snapshot
	notices   chan Notice
	intents   chan domain.Mutation
	inbound   chan protocol.Envelope
	done      chan struct{}
	cancel    context.CancelFunc

	mu       sync.Mutex
	state    State
	selected string

	// Loop-owned; never touched outside the run goroutine.
	tree    *domain.Tree
	base    *domain.Tree
	version uint64
	pending *domain.Mutation
	nonce   string
}

// Option configures a Session.
type Option func(*Session)

// WithLayout overrides the layout spacing used for snapshots.
func WithLayout(cfg layout.Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithLogger configures a logger for the session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Open joins boardID over conn and starts the session event loop. The session
// is Loading until the gateway's snapshot arrives; the first value on
// Snapshots() is the synchronized board.
func Open(ctx context.Context, conn Conn, boardID string, opts ...Option) (*Session, error) {
	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		boardID:   boardID,
		conn:      conn,
		cfg:       layout.DefaultConfig(),
		logger:    logging.NewNop(),
		snapshots: make(chan Snapshot, 16),
		notices:   make(chan Notice, 16),
		intents:   make(chan domain.Mutation),
		inbound:   make(chan protocol.Envelope),
		done:      make(chan struct{}),
		cancel:    cancel,
		state:     StateLoading,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := conn.Send(ctx, protocol.Envelope{
		Type: protocol.TypeJoin,
		Join: &protocol.Join{BoardID: boardID},
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to join board %s: %w", boardID, err)
	}

	go s.receivePump(loopCtx)
	go s.run(loopCtx)
	return s, nil
}

// Snapshots returns the push sequence of laid-out trees, one per accepted
// mutation, in version order. Closed when the session ends.
func (s *Session) Snapshots() <-chan Snapshot {
	return s.snapshots
}

// Notices returns user-visible conflict events. Closed when the session ends.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Select remembers the node the user is working on.
func (s *Session) Select(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nodeID
}

// Selected returns the selected node id, or empty when nothing is selected.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Submit hands a local edit intent to the session. It blocks while a previous
// intent is still unacknowledged (one pending mutation at a time) and fails
// once the session is closed.
func (s *Session) Submit(ctx context.Context, m domain.Mutation) error {
	select {
	case s.intents <- m:
		return nil
	case <-s.done:
		return fmt.Errorf("session for board %s is closed", s.boardID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session: the outstanding ack wait (if any) is abandoned, the
// connection is closed and the snapshot sequence terminates.
func (s *Session) Close() error {
	s.cancel()
	err := s.conn.Close()
	<-s.done
	return err
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// receivePump moves envelopes from the wire into the event loop.
func (s *Session) receivePump(ctx context.Context) {
	defer close(s.inbound)
	for {
		env, err := s.conn.Receive(ctx)
		if err != nil {
			return // connection loss; the loop terminates
		}
		select {
		case s.inbound <- env:
		case <-ctx.Done():
			return
		}
	}
}

// run is the single cooperative event loop; it is the only goroutine that
// touches the local tree.
func (s *Session) run(ctx context.Context) {
	defer func() {
		s.setState(StateClosed)
		close(s.snapshots)
		close(s.notices)
		close(s.done)
	}()

	for {
		// Local intents are consumed only while Synced: a pending edit must
		// resolve before the next one starts, and Loading has no tree yet.
		var intents chan domain.Mutation
		if s.State() == StateSynced {
			intents = s.intents
		}

		select {
		case <-ctx.Done():
			return
		case m := <-intents:
			if !s.handleIntent(ctx, m) {
				return
			}
		case env, ok := <-s.inbound:
			if !ok {
				// No offline queue: the owner reopens the session and gets a
				// fresh snapshot on reconnect.
				s.logger.Debug("connection lost", "board_id", s.boardID)
				return
			}
			if !s.handleServer(ctx, env) {
				return
			}
		}
	}
}

// handleIntent validates and optimistically applies a local edit, then sends
// it to the gateway. Returns false when the session must terminate.
func (s *Session) handleIntent(ctx context.Context, m domain.Mutation) bool {
	if err := m.Validate(); err != nil {
		// Malformed intents never reach the gateway.
		s.notify(ctx, Notice{Reason: NoticeInvalid, Mutation: m})
		return true
	}

	next, err := s.tree.Apply(m)
	if err != nil {
		// Stale intent against the local replica (e.g. the target vanished
		// with the previous broadcast). Short-circuit before submission.
		s.notify(ctx, Notice{Reason: NoticeConflict, Mutation: m})
		return true
	}

	s.base = s.tree
	s.tree = next
	s.pending = &m
	s.nonce = uuid.NewString()
	s.setState(StateMutating)
	s.emit(ctx, s.version+1, true)

	if err := s.send(ctx, protocol.Envelope{
		Type:   protocol.TypeMutate,
		Mutate: &protocol.Mutate{BoardID: s.boardID, Mutation: m, ClientVersion: s.version, Nonce: s.nonce},
	}); err != nil {
		return false
	}
	return true
}

// handleServer dispatches one gateway envelope. Returns false when the
// session must terminate.
func (s *Session) handleServer(ctx context.Context, env protocol.Envelope) bool {
	switch env.Type {
	case protocol.TypeSnapshot:
		return s.handleSnapshot(ctx, env.Snapshot)
	case protocol.TypeBroadcast:
		return s.handleBroadcast(ctx, env.Broadcast)
	case protocol.TypeRejected:
		return s.handleRejected(ctx, env.Rejected)
	default:
		s.logger.Warn("ignoring unexpected envelope", "type", string(env.Type))
		return true
	}
}

func (s *Session) handleSnapshot(ctx context.Context, snap *protocol.Snapshot) bool {
	if s.pending != nil {
		s.notify(ctx, Notice{Reason: NoticeResync, Mutation: *s.pending})
		s.pending = nil
	}
	s.tree = snap.Tree
	s.base = nil
	s.version = snap.Version
	s.dropDeadSelection()
	s.setState(StateSynced)
	s.emit(ctx, s.version, false)
	return true
}

func (s *Session) handleBroadcast(ctx context.Context, b *protocol.Broadcast) bool {
	if s.State() == StateLoading {
		// No replica to apply against yet. The snapshot answering the
		// outstanding join is taken after this edit and already contains it.
		return true
	}

	switch {
	case b.Version <= s.version:
		// Duplicate delivery; already applied.
		return true

	case b.Version == s.version+1 && s.pending != nil && mutationEqual(b.Mutation, *s.pending):
		// Acknowledgment of our own edit at the expected slot. The
		// optimistic tree is already canonical; its snapshot was the one
		// emission for this mutation.
		s.version = b.Version
		s.pending = nil
		s.base = nil
		s.setState(StateSynced)
		return true

	case b.Version == s.version+1 && s.pending != nil:
		// Another session's edit interleaved ahead of ours. Rebase: apply
		// the foreign mutation to our pre-edit tree, then re-validate the
		// pending intent on top of it. The re-submission reuses the original
		// nonce; the gateway applies whichever copy arrives first and drops
		// the other.
		canonical, err := s.base.Apply(b.Mutation)
		if err != nil {
			return s.resync(ctx)
		}
		s.base = canonical
		s.version = b.Version
		s.dropDeadSelection()

		rebased, err := canonical.Apply(*s.pending)
		if err != nil {
			// The pending edit's target is gone; discard with a conflict
			// notice rather than auto-retrying against nothing.
			s.notify(ctx, Notice{Reason: NoticeConflict, Mutation: *s.pending})
			s.tree = canonical
			s.pending = nil
			s.setState(StateSynced)
			s.emit(ctx, s.version, false)
			return true
		}
		s.tree = rebased
		s.emit(ctx, s.version+1, true)
		return s.send(ctx, protocol.Envelope{
			Type:   protocol.TypeMutate,
			Mutate: &protocol.Mutate{BoardID: s.boardID, Mutation: *s.pending, ClientVersion: s.version, Nonce: s.nonce},
		}) == nil

	case b.Version == s.version+1:
		next, err := s.tree.Apply(b.Mutation)
		if err != nil {
			// The broadcast cannot be replayed locally; the replica has
			// diverged somehow. Full resync over partial repair.
			return s.resync(ctx)
		}
		s.tree = next
		s.version = b.Version
		s.dropDeadSelection()
		s.emit(ctx, s.version, false)
		return true

	default:
		// Version gap (N+2 before N+1): never apply out of order.
		return s.resync(ctx)
	}
}

func (s *Session) handleRejected(ctx context.Context, r *protocol.Rejected) bool {
	if s.pending == nil || !mutationEqual(r.Mutation, *s.pending) {
		return true
	}
	// Roll the optimistic edit back and surface the conflict. No auto-retry.
	s.tree = s.base
	s.base = nil
	s.pending = nil
	s.setState(StateSynced)
	s.notify(ctx, Notice{Reason: NoticeRejected + ": " + r.Reason, Mutation: r.Mutation})
	s.emit(ctx, s.version, false)
	return true
}

// resync discards the local replica and requests a fresh snapshot.
func (s *Session) resync(ctx context.Context) bool {
	if s.pending != nil {
		s.notify(ctx, Notice{Reason: NoticeResync, Mutation: *s.pending})
		s.pending = nil
	}
	s.base = nil
	s.setState(StateLoading)
	return s.send(ctx, protocol.Envelope{
		Type: protocol.TypeJoin,
		Join: &protocol.Join{BoardID: s.boardID},
	}) == nil
}

func (s *Session) send(ctx context.Context, env protocol.Envelope) error {
	if err := s.conn.Send(ctx, env); err != nil {
		s.logger.Debug("send failed, closing session", "board_id", s.boardID, "err", err)
		return err
	}
	return nil
}

// emit publishes one laid-out snapshot. Blocks when the consumer is behind;
// the server drops us as lagging if that stall outlives the room buffer,
// which resolves via resync.
func (s *Session) emit(ctx context.Context, version uint64, pending bool) {
	snap := Snapshot{
		Tree:      s.tree.Clone(),
		Version:   version,
		Positions: layout.Arrange(s.tree, s.cfg),
		Pending:   pending,
	}
	select {
	case s.snapshots <- snap:
	case <-ctx.Done():
	}
}

func (s *Session) notify(ctx context.Context, n Notice) {
	select {
	case s.notices <- n:
	case <-ctx.Done():
	}
}

// dropDeadSelection clears the selection when the selected node left the tree.
func (s *Session) dropDeadSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return
	}
	if _, ok := s.tree.Find(s.selected); !ok {
		s.selected = ""
	}
}

// mutationEqual compares mutations field by field, dereferencing the optional
// payloads, so a broadcast can be matched against the pending intent.
func mutationEqual(a, b domain.Mutation) bool {
	if a.Op != b.Op || a.ParentID != b.ParentID || a.NodeID != b.NodeID {
		return false
	}
	if (a.Node == nil) != (b.Node == nil) {
		return false
	}
	if a.Node != nil && (a.Node.ID != b.Node.ID || a.Node.Description != b.Node.Description) {
		return false
	}
	if (a.Description == nil) != (b.Description == nil) {
		return false
	}
	if a.Description != nil && *a.Description != *b.Description {
		return false
	}
	if (a.Shape == nil) != (b.Shape == nil) {
		return false
	}
	if a.Shape != nil && *a.Shape != *b.Shape {
		return false
	}
	if (a.Pos == nil) != (b.Pos == nil) {
		return false
	}
	if a.Pos != nil && *a.Pos != *b.Pos {
		return false
	}
	return true
}
