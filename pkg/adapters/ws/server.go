// Package ws exposes the synchronization gateway over websockets and
// provides the matching client-side connection.
//
// Each socket runs a read loop and a write pump. The read loop owns the
// socket's board subscriptions; a forwarder goroutine per subscription moves
// room broadcasts onto the shared outbound channel, so the write pump is the
// only goroutine touching the websocket writer.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/and07/mindsync/internal/logging"
	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/gateway"
	"github.com/and07/mindsync/pkg/protocol"
)

const outboundBuffer = 64

// Server bridges websocket connections to a Gateway.
type Server struct {
	gw       *gateway.Gateway
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger configures a logger for the server.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a websocket front for gw.
func NewServer(gw *gateway.Gateway, opts ...ServerOption) *Server {
	s := &Server{
		gw:     gw,
		logger: logging.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Board access control is out of scope; same-origin checks are
			// left to the deployment's proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP mux: the realtime channel under /ws plus a
// liveness probe.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	sock := &socket{
		srv:  s,
		conn: conn,
		out:  make(chan protocol.Envelope, outboundBuffer),
		done: make(chan struct{}),
		subs: make(map[string]*boardSub),
	}
	go sock.writePump()
	sock.readLoop(r.Context())
}

// socket is one client connection and its board subscriptions.
type socket struct {
	srv  *Server
	conn *websocket.Conn
	out  chan protocol.Envelope
	done chan struct{}

	mu   sync.Mutex
	subs map[string]*boardSub
}

// boardSub ties a room subscription to its forwarder goroutine.
type boardSub struct {
	sub      *gateway.Subscription
	detached chan struct{}
}

// readLoop processes inbound envelopes until the peer disconnects. It owns
// the subscription map's lifecycle; forwarders only read it under mu.
func (s *socket) readLoop(ctx context.Context) {
	defer s.teardown()

	for {
		var env protocol.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.srv.logger.Debug("socket read ended", "err", err)
			}
			return
		}
		if err := protocol.Validate(&env); err != nil {
			var m domain.Mutation
			if env.Mutate != nil {
				m = env.Mutate.Mutation
			}
			s.reject(envBoardID(&env), gateway.ReasonInvalidMutation, m)
			continue
		}

		switch env.Type {
		case protocol.TypeJoin:
			s.handleJoin(ctx, env.Join.BoardID)
		case protocol.TypeLeave:
			s.detach(env.Leave.BoardID)
		case protocol.TypeMutate:
			s.handleMutate(ctx, env.Mutate)
		default:
			// Server-to-client types arriving inbound are a protocol breach;
			// drop them rather than killing the socket.
			s.srv.logger.Warn("ignoring inbound envelope", "type", string(env.Type))
		}
	}
}

// handleJoin subscribes the socket to a board's room and replies with the
// current snapshot. Joining an already subscribed board is the
// resynchronization path: the old subscription is replaced and a fresh
// snapshot sent.
func (s *socket) handleJoin(ctx context.Context, boardID string) {
	s.detach(boardID)

	snap, sub, err := s.srv.gw.Join(ctx, boardID)
	if err != nil {
		s.srv.logger.Error("join failed", "board_id", boardID, "err", err)
		s.reject(boardID, gateway.ReasonRejected, domain.Mutation{})
		return
	}

	bs := &boardSub{sub: sub, detached: make(chan struct{})}
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		sub.Close()
		return
	default:
	}
	s.subs[boardID] = bs
	s.mu.Unlock()

	// The snapshot must be queued outbound before the forwarder starts, or a
	// mutation published right after Join could reach the peer ahead of it.
	// Broadcasts arriving in between wait in the subscription buffer.
	s.deliver(protocol.Envelope{
		Type:     protocol.TypeSnapshot,
		Snapshot: &protocol.Snapshot{BoardID: boardID, Tree: snap.Tree, Version: snap.Version},
	})
	go s.forward(boardID, bs)
}

func (s *socket) handleMutate(ctx context.Context, m *protocol.Mutate) {
	if _, err := s.srv.gw.Submit(ctx, m.BoardID, m.Mutation, m.ClientVersion, m.Nonce); err != nil {
		// The resulting broadcast reaches this socket through its room
		// subscription; only refusals are answered directly, and only to
		// the submitter.
		var rej *gateway.RejectedError
		if errors.As(err, &rej) {
			s.reject(m.BoardID, rej.Reason, m.Mutation)
			return
		}
		s.reject(m.BoardID, gateway.ReasonRejected, m.Mutation)
	}
}

// forward relays room broadcasts to the outbound channel. When the room
// closes the subscription without a matching leave, either because this
// socket lagged past the room buffer or the room was torn down, the peer has
// a versioned gap only a fresh snapshot can close: the socket rejoins on its
// behalf and sends one.
func (s *socket) forward(boardID string, bs *boardSub) {
	for b := range bs.sub.C {
		s.deliver(protocol.Envelope{
			Type:      protocol.TypeBroadcast,
			Broadcast: &protocol.Broadcast{BoardID: boardID, Mutation: b.Mutation, Version: b.Version},
		})
	}
	select {
	case <-bs.detached:
		// Deliberate leave or replacement; nothing to tell the peer.
	case <-s.done:
	default:
		s.mu.Lock()
		if s.subs[boardID] == bs {
			delete(s.subs, boardID)
		}
		s.mu.Unlock()
		s.handleJoin(context.Background(), boardID)
	}
}

// detach closes the board's subscription, if any.
func (s *socket) detach(boardID string) {
	s.mu.Lock()
	bs, ok := s.subs[boardID]
	if ok {
		delete(s.subs, boardID)
	}
	s.mu.Unlock()
	if ok {
		close(bs.detached)
		bs.sub.Close()
	}
}

// teardown leaves every room and stops the write pump. Closing done under mu
// fences late rejoins from forwarders against the sweep.
func (s *socket) teardown() {
	s.mu.Lock()
	close(s.done)
	subs := s.subs
	s.subs = make(map[string]*boardSub)
	s.mu.Unlock()
	for _, bs := range subs {
		close(bs.detached)
		bs.sub.Close()
	}
	s.conn.Close()
}

func (s *socket) reject(boardID string, reason gateway.Reason, m domain.Mutation) {
	s.deliver(protocol.Envelope{
		Type:     protocol.TypeRejected,
		Rejected: &protocol.Rejected{BoardID: boardID, Reason: string(reason), Mutation: m},
	})
}

// deliver queues an envelope for the write pump, dropping it when the socket
// is gone.
func (s *socket) deliver(env protocol.Envelope) {
	select {
	case s.out <- env:
	case <-s.done:
	}
}

func (s *socket) writePump() {
	for {
		select {
		case env := <-s.out:
			if err := s.conn.WriteJSON(env); err != nil {
				s.srv.logger.Debug("socket write ended", "err", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func envBoardID(env *protocol.Envelope) string {
	switch {
	case env.Join != nil:
		return env.Join.BoardID
	case env.Leave != nil:
		return env.Leave.BoardID
	case env.Mutate != nil:
		return env.Mutate.BoardID
	default:
		return ""
	}
}
