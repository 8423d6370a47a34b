package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and07/mindsync/pkg/client"
	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a scripted gateway peer for driving the state machine.
type fakeConn struct {
	fromServer chan protocol.Envelope
	toServer   chan protocol.Envelope
	closed     chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		fromServer: make(chan protocol.Envelope, 16),
		toServer:   make(chan protocol.Envelope, 16),
		closed:     make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, env protocol.Envelope) error {
	select {
	case c.toServer <- env:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Receive(ctx context.Context) (protocol.Envelope, error) {
	select {
	case env, ok := <-c.fromServer:
		if !ok {
			return protocol.Envelope{}, errors.New("connection lost")
		}
		return env, nil
	case <-c.closed:
		return protocol.Envelope{}, errors.New("connection closed")
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) serve(env protocol.Envelope) {
	c.fromServer <- env
}

func (c *fakeConn) sent(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case env := <-c.toServer:
		return env
	case <-time.After(time.Second):
		t.Fatal("session sent nothing")
		return protocol.Envelope{}
	}
}

func nextSnapshot(t *testing.T, s *client.Session) client.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-s.Snapshots():
		require.True(t, ok, "snapshot channel closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
		return client.Snapshot{}
	}
}

func nextNotice(t *testing.T, s *client.Session) client.Notice {
	t.Helper()
	select {
	case n, ok := <-s.Notices():
		require.True(t, ok, "notice channel closed")
		return n
	case <-time.After(time.Second):
		t.Fatal("no notice")
		return client.Notice{}
	}
}

func noSnapshot(t *testing.T, s *client.Session) {
	t.Helper()
	select {
	case snap := <-s.Snapshots():
		t.Fatalf("unexpected snapshot at version %d", snap.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

// openSynced starts a session and feeds the initial snapshot: R -> A.
func openSynced(t *testing.T) (*client.Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	ctx := context.Background()

	s, err := client.Open(ctx, conn, "board-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	join := conn.sent(t)
	require.Equal(t, protocol.TypeJoin, join.Type)
	require.Equal(t, "board-1", join.Join.BoardID)

	tree := domain.NewTree(domain.Node{ID: "R", Description: "root"})
	tree, err = tree.Apply(domain.Insert("R", domain.Node{ID: "A", Description: "a"}))
	require.NoError(t, err)
	conn.serve(protocol.Envelope{
		Type:     protocol.TypeSnapshot,
		Snapshot: &protocol.Snapshot{BoardID: "board-1", Tree: tree, Version: 1},
	})

	snap := nextSnapshot(t, s)
	require.Equal(t, uint64(1), snap.Version)
	require.False(t, snap.Pending)
	require.Equal(t, client.StateSynced, s.State())
	return s, conn
}

func TestSession_LoadingToSynced(t *testing.T) {
	openSynced(t)
}

func TestSession_OptimisticSubmitAndAck(t *testing.T) {
	s, conn := openSynced(t)
	ctx := context.Background()

	m := domain.Insert("R", domain.Node{ID: "B", Description: "b"})
	require.NoError(t, s.Submit(ctx, m))

	// The edit shows immediately, marked pending at its predicted slot.
	snap := nextSnapshot(t, s)
	assert.True(t, snap.Pending)
	assert.Equal(t, uint64(2), snap.Version)
	_, ok := snap.Tree.Find("B")
	assert.True(t, ok)
	assert.Contains(t, snap.Positions, "B")

	// The intent went out with our last confirmed version.
	sent := conn.sent(t)
	require.Equal(t, protocol.TypeMutate, sent.Type)
	assert.Equal(t, uint64(1), sent.Mutate.ClientVersion)

	// The gateway's broadcast of the same mutation resolves Mutating without
	// a second snapshot: the optimistic one was this mutation's emission.
	conn.serve(protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: m, Version: 2},
	})
	assert.Eventually(t, func() bool { return s.State() == client.StateSynced }, time.Second, time.Millisecond)
	noSnapshot(t, s)
}

func TestSession_BroadcastBeforeSnapshotIsIgnored(t *testing.T) {
	conn := newFakeConn()
	ctx := context.Background()

	s, err := client.Open(ctx, conn, "board-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	conn.sent(t) // join

	// A mutation published between the join and the snapshot can arrive
	// first. There is no replica to apply it against; the snapshot taken
	// after it already contains the edit.
	m := domain.Insert("R", domain.Node{ID: "A", Description: "early"})
	conn.serve(protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: m, Version: 1},
	})
	noSnapshot(t, s)
	require.Equal(t, client.StateLoading, s.State())

	tree := domain.NewTree(domain.Node{ID: "R", Description: "root"})
	tree, err = tree.Apply(m)
	require.NoError(t, err)
	conn.serve(protocol.Envelope{
		Type:     protocol.TypeSnapshot,
		Snapshot: &protocol.Snapshot{BoardID: "board-1", Tree: tree, Version: 1},
	})

	snap := nextSnapshot(t, s)
	assert.Equal(t, uint64(1), snap.Version)
	_, ok := snap.Tree.Find("A")
	assert.True(t, ok)
	assert.Equal(t, client.StateSynced, s.State())
}

func TestSession_RemoteBroadcastWhileSynced(t *testing.T) {
	s, conn := openSynced(t)

	m := domain.UpdateDescription("A", "edited elsewhere")
	conn.serve(protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: m, Version: 2},
	})

	snap := nextSnapshot(t, s)
	assert.Equal(t, uint64(2), snap.Version)
	assert.False(t, snap.Pending)
	a, _ := snap.Tree.Find("A")
	assert.Equal(t, "edited elsewhere", a.Description)
}

func TestSession_DuplicateBroadcastIsNoOp(t *testing.T) {
	s, conn := openSynced(t)

	m := domain.UpdateDescription("A", "once")
	env := protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: m, Version: 2},
	}
	conn.serve(env)
	nextSnapshot(t, s)

	conn.serve(env)
	noSnapshot(t, s)
}

func TestSession_InterleavedBroadcastRebasesPending(t *testing.T) {
	s, conn := openSynced(t)
	ctx := context.Background()

	mine := domain.Insert("A", domain.Node{ID: "B", Description: "mine"})
	require.NoError(t, s.Submit(ctx, mine))
	nextSnapshot(t, s)    // optimistic
	first := conn.sent(t) // first submission
	require.Equal(t, protocol.TypeMutate, first.Type)
	require.NotEmpty(t, first.Mutate.Nonce)

	// Someone else's insert wins version 2.
	theirs := domain.Insert("R", domain.Node{ID: "C", Description: "theirs"})
	conn.serve(protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: theirs, Version: 2},
	})

	// Still pending, rebased on top of their change, and re-submitted.
	snap := nextSnapshot(t, s)
	assert.True(t, snap.Pending)
	assert.Equal(t, uint64(3), snap.Version)
	_, ok := snap.Tree.Find("B")
	assert.True(t, ok)
	_, ok = snap.Tree.Find("C")
	assert.True(t, ok)

	// The re-submission reuses the first submission's nonce, so the gateway
	// applies one copy and drops the other.
	resent := conn.sent(t)
	require.Equal(t, protocol.TypeMutate, resent.Type)
	assert.Equal(t, uint64(2), resent.Mutate.ClientVersion)
	assert.Equal(t, first.Mutate.Nonce, resent.Mutate.Nonce)

	// The gateway confirms ours at version 3.
	conn.serve(protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: mine, Version: 3},
	})
	assert.Eventually(t, func() bool { return s.State() == client.StateSynced }, time.Second, time.Millisecond)
}

func TestSession_InterleavedDeleteDiscardsPending(t *testing.T) {
	s, conn := openSynced(t)
	ctx := context.Background()

	mine := domain.UpdateDescription("A", "doomed edit")
	require.NoError(t, s.Submit(ctx, mine))
	nextSnapshot(t, s)
	conn.sent(t)

	// A racing session deleted the node we were editing.
	conn.serve(protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: domain.Delete("A"), Version: 2},
	})

	notice := nextNotice(t, s)
	assert.Equal(t, client.NoticeConflict, notice.Reason)

	snap := nextSnapshot(t, s)
	assert.False(t, snap.Pending)
	assert.Equal(t, uint64(2), snap.Version)
	_, ok := snap.Tree.Find("A")
	assert.False(t, ok)
	assert.Equal(t, client.StateSynced, s.State())
}

func TestSession_RejectionRollsBack(t *testing.T) {
	s, conn := openSynced(t)
	ctx := context.Background()

	m := domain.UpdateDescription("A", "refused")
	require.NoError(t, s.Submit(ctx, m))
	nextSnapshot(t, s)
	conn.sent(t)

	conn.serve(protocol.Envelope{
		Type:     protocol.TypeRejected,
		Rejected: &protocol.Rejected{BoardID: "board-1", Reason: "stale_reference", Mutation: m},
	})

	notice := nextNotice(t, s)
	assert.Contains(t, notice.Reason, "stale_reference")

	// The optimistic edit is reverted at the still-confirmed version.
	snap := nextSnapshot(t, s)
	assert.Equal(t, uint64(1), snap.Version)
	a, _ := snap.Tree.Find("A")
	assert.Equal(t, "a", a.Description)
}

func TestSession_VersionGapForcesResync(t *testing.T) {
	s, conn := openSynced(t)

	// Version 3 arrives before 2: must not be applied.
	conn.serve(protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: domain.UpdateDescription("A", "future"), Version: 3},
	})

	rejoin := conn.sent(t)
	require.Equal(t, protocol.TypeJoin, rejoin.Type)
	assert.Eventually(t, func() bool { return s.State() == client.StateLoading }, time.Second, time.Millisecond)
	noSnapshot(t, s)

	// The fresh snapshot restores service.
	tree := domain.NewTree(domain.Node{ID: "R"})
	conn.serve(protocol.Envelope{
		Type:     protocol.TypeSnapshot,
		Snapshot: &protocol.Snapshot{BoardID: "board-1", Tree: tree, Version: 5},
	})
	snap := nextSnapshot(t, s)
	assert.Equal(t, uint64(5), snap.Version)
	assert.Equal(t, client.StateSynced, s.State())
}

func TestSession_InvalidIntentNeverSent(t *testing.T) {
	s, conn := openSynced(t)
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, domain.Mutation{Op: domain.OpDelete}))

	notice := nextNotice(t, s)
	assert.Equal(t, client.NoticeInvalid, notice.Reason)
	select {
	case env := <-conn.toServer:
		t.Fatalf("malformed mutation reached the wire: %v", env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_SelectionClearedByRemoteDelete(t *testing.T) {
	s, conn := openSynced(t)

	s.Select("A")
	require.Equal(t, "A", s.Selected())

	conn.serve(protocol.Envelope{
		Type:      protocol.TypeBroadcast,
		Broadcast: &protocol.Broadcast{BoardID: "board-1", Mutation: domain.Delete("A"), Version: 2},
	})
	nextSnapshot(t, s)
	assert.Empty(t, s.Selected())
}

func TestSession_ConnectionLossCloses(t *testing.T) {
	s, conn := openSynced(t)

	close(conn.fromServer)

	assert.Eventually(t, func() bool { return s.State() == client.StateClosed }, time.Second, time.Millisecond)
	_, ok := <-s.Snapshots()
	assert.False(t, ok, "snapshot channel should be closed")

	err := s.Submit(context.Background(), domain.Delete("A"))
	assert.Error(t, err)
}
