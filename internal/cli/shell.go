package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/and07/mindsync/internal/presentation/graph"
	"github.com/and07/mindsync/internal/presentation/tui"
	"github.com/and07/mindsync/pkg/client"
	"github.com/and07/mindsync/pkg/domain"
)

// boardSession is the slice of client.Session the shell drives. Tests
// substitute a scripted implementation.
type boardSession interface {
	Submit(ctx context.Context, m domain.Mutation) error
	Select(nodeID string)
	Selected() string
	State() client.State
	Snapshots() <-chan client.Snapshot
	Notices() <-chan client.Notice
}

// Shell is the interactive terminal client for one board.
type Shell struct {
	session boardSession
	rl      *readline.Instance
	render  func(string) (string, error)
	out     io.Writer
	boardID string
	title   string
	done    chan struct{}

	mu     sync.Mutex
	latest client.Snapshot
}

// NewShell wires a shell around an open session. rl may be nil in tests that
// call Execute directly.
func NewShell(session boardSession, rl *readline.Instance, out io.Writer, boardID string) *Shell {
	s := &Shell{
		session: session,
		rl:      rl,
		render:  func(md string) (string, error) { return md, nil },
		out:     out,
		boardID: boardID,
		title:   boardID,
		done:    make(chan struct{}),
	}
	go s.watch()
	return s
}

// WithRenderer sets the markdown renderer used by show.
func (s *Shell) WithRenderer(render func(string) (string, error)) *Shell {
	s.render = render
	return s
}

// watch keeps the latest snapshot current and surfaces notices. Notices are
// printed immediately; snapshots repaint only on the next show, so concurrent
// edits do not fight the prompt.
func (s *Shell) watch() {
	defer close(s.done)
	snapshots, notices := s.session.Snapshots(), s.session.Notices()
	for snapshots != nil || notices != nil {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			s.mu.Lock()
			s.latest = snap
			s.mu.Unlock()
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			fmt.Fprintf(s.out, "! %s\n", n.Reason)
		}
	}
}

// Run reads and executes commands until quit or EOF.
func (s *Shell) Run(ctx context.Context) error {
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.Execute(ctx, ParseArgs(line)); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// ParseArgs splits a command line, honoring double quoted arguments.
func ParseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false

	for _, char := range input {
		switch char {
		case '"':
			inQuotes = !inQuotes
		case ' ':
			if inQuotes {
				current.WriteRune(char)
			} else if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

// Execute dispatches one parsed command.
func (s *Shell) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command provided")
	}

	switch args[0] {
	case "add":
		return s.handleAdd(ctx, args[1:])
	case "edit":
		return s.handleEdit(ctx, args[1:])
	case "move":
		return s.handleMove(ctx, args[1:])
	case "del":
		return s.handleDelete(ctx)
	case "select":
		return s.handleSelect(args[1:])
	case "show":
		return s.handleShow()
	case "map":
		return s.handleMap()
	case "help":
		s.printHelp()
		return nil
	case "exit", "quit":
		fmt.Fprintln(s.out, "Exiting...")
		return io.EOF
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (s *Shell) handleAdd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: add <description>")
	}
	parentID := s.session.Selected()
	if parentID == "" {
		snap := s.snapshot()
		if snap.Tree == nil {
			return fmt.Errorf("board not loaded yet")
		}
		parentID = snap.Tree.RootID
	}
	node := domain.NewNode(strings.Join(args, " "))
	if err := s.session.Submit(ctx, domain.Insert(parentID, node)); err != nil {
		return err
	}
	s.session.Select(node.ID)
	return nil
}

func (s *Shell) handleEdit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: edit <description>")
	}
	nodeID := s.session.Selected()
	if nodeID == "" {
		return fmt.Errorf("no node selected; use select first")
	}
	return s.session.Submit(ctx, domain.UpdateDescription(nodeID, strings.Join(args, " ")))
}

func (s *Shell) handleMove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: move <new parent>")
	}
	nodeID := s.session.Selected()
	if nodeID == "" {
		return fmt.Errorf("no node selected; use select first")
	}
	target, err := s.resolve(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return s.session.Submit(ctx, domain.Move(nodeID, target.ID))
}

func (s *Shell) handleDelete(ctx context.Context) error {
	nodeID := s.session.Selected()
	if nodeID == "" {
		return fmt.Errorf("no node selected; use select first")
	}
	return s.session.Submit(ctx, domain.Delete(nodeID))
}

func (s *Shell) handleSelect(args []string) error {
	if len(args) == 0 {
		s.session.Select("")
		return nil
	}
	node, err := s.resolve(strings.Join(args, " "))
	if err != nil {
		return err
	}
	s.session.Select(node.ID)
	fmt.Fprintf(s.out, "selected: %s\n", node.Description)
	return nil
}

func (s *Shell) handleShow() error {
	snap := s.snapshot()
	if snap.Tree == nil {
		return fmt.Errorf("board not loaded yet")
	}
	view := tui.OutlineView{
		Title:     s.title,
		Version:   snap.Version,
		Selected:  s.session.Selected(),
		Positions: snap.Positions,
	}
	md := view.Render(snap.Tree)
	if snap.Pending {
		md += "\n*pending confirmation*\n"
	}
	rendered, err := s.render(md)
	if err != nil {
		rendered = md
	}
	fmt.Fprint(s.out, rendered)
	return nil
}

func (s *Shell) handleMap() error {
	snap := s.snapshot()
	if snap.Tree == nil {
		return fmt.Errorf("board not loaded yet")
	}
	fmt.Fprint(s.out, graph.GenerateMermaid(snap.Tree, &graph.Overlay{SelectedNode: s.session.Selected()}))
	return nil
}

func (s *Shell) printHelp() {
	help := []string{
		"add <description>     add a child under the selected node (root if none)",
		"edit <description>    rewrite the selected node",
		"move <parent>         reattach the selected node under another node",
		"del                   delete the selected node and its subtree",
		"select [text]         select a node by description (no text clears)",
		"show                  print the board outline",
		"map                   print the board as a Mermaid mindmap",
		"quit                  leave the board",
	}
	fmt.Fprintln(s.out, "Available commands:")
	for _, h := range help {
		fmt.Fprintf(s.out, "  %s\n", h)
	}
}

func (s *Shell) snapshot() client.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// resolve finds a node by exact description, unique description prefix, or id.
func (s *Shell) resolve(query string) (domain.Node, error) {
	snap := s.snapshot()
	if snap.Tree == nil {
		return domain.Node{}, fmt.Errorf("board not loaded yet")
	}
	if node, ok := snap.Tree.Find(query); ok {
		return node, nil
	}

	var matches []domain.Node
	for node := range snap.Tree.Traverse(snap.Tree.RootID) {
		if strings.EqualFold(node.Description, query) {
			return node, nil
		}
		if strings.HasPrefix(strings.ToLower(node.Description), strings.ToLower(query)) {
			matches = append(matches, node)
		}
	}
	switch len(matches) {
	case 0:
		return domain.Node{}, fmt.Errorf("no node matches %q", query)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Description
		}
		sort.Strings(names)
		return domain.Node{}, fmt.Errorf("%q is ambiguous: %s", query, strings.Join(names, ", "))
	}
}
