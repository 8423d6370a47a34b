package gateway

import (
	"sync"

	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/ports"
)

// subscriptionBuffer is the per-session broadcast backlog. A session that
// falls further behind than this is disconnected from the room and has to
// resynchronize, the same escape hatch as a version gap.
const subscriptionBuffer = 64

// appliedNonceCap bounds the per-room replay memory for submission nonces.
// A client that rebases re-sends its pending edit under the same nonce; the
// window only has to outlast that short race.
const appliedNonceCap = 128

// room is the unit of mutual exclusion for one board: the authoritative tree,
// its version and the set of connected sessions.
type room struct {
	id string

	// loading is closed once board is set (or the open failed); callers that
	// did not create the room wait on it instead of racing the store load.
	loading chan struct{}
	failed  bool

	// mu guards everything below.
	mu         sync.Mutex
	board      *domain.Board
	subs       map[uint64]chan Broadcast
	nextID     uint64
	closed     bool
	nonces     map[string]uint64
	nonceOrder []string

	unlock ports.UnlockFunc
}

func newRoom(id string) *room {
	return &room{
		id:      id,
		loading: make(chan struct{}),
		subs:    make(map[uint64]chan Broadcast),
		nonces:  make(map[string]uint64),
	}
}

// remember records an applied submission nonce, evicting the oldest entry
// once the window is full. Caller holds r.mu.
func (r *room) remember(nonce string, version uint64) {
	if len(r.nonceOrder) == appliedNonceCap {
		delete(r.nonces, r.nonceOrder[0])
		r.nonceOrder = r.nonceOrder[1:]
	}
	r.nonces[nonce] = version
	r.nonceOrder = append(r.nonceOrder, nonce)
}

func (r *room) open() {
	close(r.loading)
}

func (r *room) fail() {
	r.failed = true
	close(r.loading)
}

// subscribe registers a new session. Caller holds r.mu.
func (r *room) subscribe(g *Gateway) *Subscription {
	ch := make(chan Broadcast, subscriptionBuffer)
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	return &Subscription{C: ch, id: id, ch: ch, room: r, g: g}
}

// publish fans a broadcast out to every subscriber. Caller holds r.mu, so
// every channel observes broadcasts in version order. A subscriber whose
// buffer is full is dropped on the spot; its closed channel tells the session
// to resynchronize.
func (r *room) publish(g *Gateway, b Broadcast) {
	for id, ch := range r.subs {
		select {
		case ch <- b:
		default:
			delete(r.subs, id)
			close(ch)
			g.stats.sessions.Dec()
			g.logger.Warn("dropping lagging session",
				"board_id", r.id,
				"subscription", id,
				"version", b.Version,
			)
		}
	}
}

// Subscription is one session's membership in a board's room.
//
// C delivers applied mutations in strict version order. The channel is closed
// when the subscription is dropped for lagging or the room is torn down; the
// session must then rejoin for a fresh snapshot.
type Subscription struct {
	C <-chan Broadcast

	id   uint64
	ch   chan Broadcast
	room *room
	g    *Gateway
}

// Close leaves the room. The last session out evicts the board from memory
// after a final snapshot save; the document store keeps the durable copy.
func (s *Subscription) Close() {
	r := s.room
	r.mu.Lock()

	if _, ok := r.subs[s.id]; ok {
		delete(r.subs, s.id)
		close(s.ch)
		s.g.stats.sessions.Dec()
	}
	// A subscription dropped for lagging still reaches this point when the
	// session notices its closed channel, so an emptied room is always swept.
	last := len(r.subs) == 0 && !r.closed
	var finalState *domain.Board
	if last {
		r.closed = true
		finalState = r.board.Clone()
	}
	r.mu.Unlock()

	if last {
		s.g.dropRoom(r, finalState)
	}
}
