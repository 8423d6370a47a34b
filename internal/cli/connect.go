package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"

	"github.com/and07/mindsync/internal/presentation/tui"
	"github.com/and07/mindsync/pkg/adapters/ws"
	"github.com/and07/mindsync/pkg/client"
)

// ConnectOptions contains all the configuration for the connect command.
type ConnectOptions struct {
	URL     string
	BoardID string
	Debug   bool
}

// RunConnect opens a shared board over websocket and hands it to the
// interactive shell.
func RunConnect(opts ConnectOptions) error {
	logger := createLogger(opts.Debug)

	tui.PrintBanner()

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	conn, err := ws.Dial(sigCtx, opts.URL)
	if err != nil {
		return fmt.Errorf("error connecting to %s: %w", opts.URL, err)
	}

	session, err := client.Open(sigCtx, conn, opts.BoardID, client.WithLogger(logger))
	if err != nil {
		conn.Close()
		return fmt.Errorf("error joining board %s: %w", opts.BoardID, err)
	}
	defer session.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mindsync> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("error initializing terminal: %w", err)
	}
	defer rl.Close()

	printSystemMessage("Joined board '%s'. Type 'help' for commands.", opts.BoardID)

	shell := NewShell(session, rl, os.Stdout, opts.BoardID).WithRenderer(tui.NewRenderer())
	err = shell.Run(sigCtx)
	if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) || sigCtx.Err() != nil {
		return nil
	}
	return err
}
