package mindsync_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and07/mindsync"
	"github.com/and07/mindsync/pkg/adapters/memory"
	"github.com/and07/mindsync/pkg/client"
	"github.com/and07/mindsync/pkg/domain"
)

func TestServerAndConnect(t *testing.T) {
	srv := mindsync.NewServer(memory.NewStore())
	defer srv.Close()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ctx := context.Background()
	session, err := mindsync.Connect(ctx, url, "demo")
	require.NoError(t, err)
	defer session.Close()

	first := <-session.Snapshots()
	assert.Equal(t, uint64(0), first.Version)
	require.NotNil(t, first.Tree)

	node := domain.NewNode("first idea")
	require.NoError(t, session.Submit(ctx, domain.Insert(first.Tree.RootID, node)))

	snap := <-session.Snapshots()
	_, ok := snap.Tree.Find(node.ID)
	assert.True(t, ok)
	assert.Contains(t, snap.Positions, node.ID)

	assert.Eventually(t, func() bool { return session.State() == client.StateSynced },
		2*time.Second, 10*time.Millisecond)
}

func TestDirectGatewayAccess(t *testing.T) {
	srv := mindsync.NewServer(memory.NewStore())
	defer srv.Close()

	ctx := context.Background()
	snap, sub, err := srv.Gateway().Join(ctx, "scripted")
	require.NoError(t, err)
	defer sub.Close()

	_, err = srv.Gateway().Submit(ctx, "scripted", domain.Insert(snap.Tree.RootID, domain.NewNode("x")), 0, "")
	require.NoError(t, err)

	b := <-sub.C
	assert.Equal(t, uint64(1), b.Version)
}
