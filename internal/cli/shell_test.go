package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and07/mindsync/pkg/client"
	"github.com/and07/mindsync/pkg/domain"
)

type fakeSession struct {
	submitted []domain.Mutation
	selected  string
	snapshots chan client.Snapshot
	notices   chan client.Notice
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		snapshots: make(chan client.Snapshot, 4),
		notices:   make(chan client.Notice, 4),
	}
}

func (f *fakeSession) Submit(_ context.Context, m domain.Mutation) error {
	f.submitted = append(f.submitted, m)
	return nil
}
func (f *fakeSession) Select(nodeID string)              { f.selected = nodeID }
func (f *fakeSession) Selected() string                  { return f.selected }
func (f *fakeSession) State() client.State               { return client.StateSynced }
func (f *fakeSession) Snapshots() <-chan client.Snapshot { return f.snapshots }
func (f *fakeSession) Notices() <-chan client.Notice     { return f.notices }

// syncBuffer makes the shell's output safe to poll while the watch goroutine
// writes notices to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testTree(t *testing.T) *domain.Tree {
	t.Helper()
	tree := domain.NewTree(domain.Node{ID: "r", Description: "Plan"})
	var err error
	for id, desc := range map[string]string{"f": "Flights", "h": "Hotels", "ho": "Home"} {
		tree, err = tree.Apply(domain.Insert("r", domain.Node{ID: id, Description: desc}))
		require.NoError(t, err)
	}
	return tree
}

// newTestShell builds a shell over a fake session with one snapshot loaded.
func newTestShell(t *testing.T) (*Shell, *fakeSession, *syncBuffer) {
	t.Helper()
	session := newFakeSession()
	out := &syncBuffer{}
	shell := NewShell(session, nil, out, "b1")

	session.snapshots <- client.Snapshot{Tree: testTree(t), Version: 2}
	waitLoaded(t, shell)
	return shell, session, out
}

func waitLoaded(t *testing.T, shell *Shell) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for shell.snapshot().Tree == nil {
		if time.Now().After(deadline) {
			t.Fatal("snapshot never observed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`add milk`, []string{"add", "milk"}},
		{`add "whole milk"`, []string{"add", "whole milk"}},
		{`  select   x `, []string{"select", "x"}},
		{`edit "a b" c`, []string{"edit", "a b", "c"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseArgs(tc.in), tc.in)
	}
}

func TestShell_AddUnderRootWhenNothingSelected(t *testing.T) {
	shell, session, _ := newTestShell(t)

	require.NoError(t, shell.Execute(context.Background(), []string{"add", "new", "idea"}))

	require.Len(t, session.submitted, 1)
	m := session.submitted[0]
	assert.Equal(t, domain.OpInsert, m.Op)
	assert.Equal(t, "r", m.ParentID)
	assert.Equal(t, "new idea", m.Node.Description)
	// The fresh node becomes the selection for follow-up edits.
	assert.Equal(t, m.Node.ID, session.selected)
}

func TestShell_EditRequiresSelection(t *testing.T) {
	shell, session, _ := newTestShell(t)

	err := shell.Execute(context.Background(), []string{"edit", "x"})
	assert.Error(t, err)
	assert.Empty(t, session.submitted)

	session.selected = "f"
	require.NoError(t, shell.Execute(context.Background(), []string{"edit", "Trains"}))
	require.Len(t, session.submitted, 1)
	assert.Equal(t, domain.OpUpdate, session.submitted[0].Op)
	assert.Equal(t, "Trains", *session.submitted[0].Description)
}

func TestShell_MoveResolvesTarget(t *testing.T) {
	shell, session, _ := newTestShell(t)
	session.selected = "f"

	require.NoError(t, shell.Execute(context.Background(), []string{"move", "Hotels"}))
	require.Len(t, session.submitted, 1)
	assert.Equal(t, domain.OpMove, session.submitted[0].Op)
	assert.Equal(t, "f", session.submitted[0].NodeID)
	assert.Equal(t, "h", session.submitted[0].ParentID)
}

func TestShell_SelectByPrefix(t *testing.T) {
	shell, session, _ := newTestShell(t)

	// "Fl" uniquely prefixes Flights.
	require.NoError(t, shell.Execute(context.Background(), []string{"select", "Fl"}))
	assert.Equal(t, "f", session.selected)

	// "Ho" matches Hotels and Home by prefix but Home exactly; exact wins.
	require.NoError(t, shell.Execute(context.Background(), []string{"select", "home"}))
	assert.Equal(t, "ho", session.selected)

	// "H" alone is ambiguous.
	err := shell.Execute(context.Background(), []string{"select", "H"})
	assert.ErrorContains(t, err, "ambiguous")

	// No argument clears the selection.
	require.NoError(t, shell.Execute(context.Background(), []string{"select"}))
	assert.Empty(t, session.selected)
}

func TestShell_Show(t *testing.T) {
	shell, session, out := newTestShell(t)
	session.selected = "f"

	require.NoError(t, shell.Execute(context.Background(), []string{"show"}))
	output := out.String()
	assert.Contains(t, output, "- Plan")
	assert.Contains(t, output, "**Flights**")
	assert.Contains(t, output, "version 2")
}

func TestShell_QuitAndUnknown(t *testing.T) {
	shell, _, _ := newTestShell(t)

	assert.Equal(t, io.EOF, shell.Execute(context.Background(), []string{"quit"}))
	assert.ErrorContains(t, shell.Execute(context.Background(), []string{"frobnicate"}), "unknown command")
}

func TestShell_NoticeIsPrinted(t *testing.T) {
	shell, session, out := newTestShell(t)
	session.notices <- client.Notice{Reason: client.NoticeConflict}

	deadline := time.Now().Add(time.Second)
	for !strings.Contains(out.String(), client.NoticeConflict) {
		if time.Now().After(deadline) {
			t.Fatal("notice never printed")
		}
		time.Sleep(time.Millisecond)
	}
	_ = shell
}
