package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/and07/mindsync/internal/boardfile"
	"github.com/and07/mindsync/internal/presentation/tui"
	"github.com/and07/mindsync/pkg/layout"
	"github.com/and07/mindsync/pkg/ports"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Import, export and inspect stored boards",
	Long:  `Works directly on the board store. Point it at the same store the gateway uses; for the file store this is safe while the gateway is stopped.`,
}

var boardImportCmd = &cobra.Command{
	Use:   "import <file.md>",
	Short: "Import a markdown board file into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := boardStore(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		board, err := boardfile.Parse(data)
		if err != nil {
			return err
		}
		if err := store.Save(cmd.Context(), board); err != nil {
			return err
		}
		fmt.Printf("imported board %s (%d nodes)\n", board.ID, board.Tree.Len())
		return nil
	},
}

var boardExportCmd = &cobra.Command{
	Use:   "export <board-id>",
	Short: "Export a stored board as a markdown file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := boardStore(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		board, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := boardfile.Render(board)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Base(board.ID) + ".md"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Printf("exported board %s to %s\n", board.ID, out)
		return nil
	},
}

var boardShowCmd = &cobra.Command{
	Use:   "show <board-id>",
	Short: "Print a stored board as an outline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := boardStore(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		board, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		view := tui.OutlineView{Title: board.Name, Version: board.Version}
		if withLayout, _ := cmd.Flags().GetBool("layout"); withLayout {
			view.Positions = layout.Arrange(board.Tree, layout.DefaultConfig())
		}
		md := view.Render(board.Tree)

		rendered, err := tui.NewRenderer()(md)
		if err != nil {
			rendered = md
		}
		fmt.Print(rendered)
		return nil
	},
}

var boardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the boards in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := boardStore(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ids, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no boards")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

// boardStore builds the store from the board command's persistent flags.
func boardStore(cmd *cobra.Command) (ports.BoardStore, func(), error) {
	cfg := defaultServeConfig()
	flags := cmd.Flags()
	if s, _ := flags.GetString("store"); s != "" {
		cfg.Store = s
	}
	if d, _ := flags.GetString("data-dir"); d != "" {
		cfg.DataDir = d
	}
	if u, _ := flags.GetString("redis-url"); u != "" {
		cfg.RedisURL = u
	}
	if p, _ := flags.GetString("redis-prefix"); p != "" {
		cfg.RedisPrefix = p
	}

	store, _, cleanup, err := buildStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, _, err = wrapEncryption(store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

func init() {
	rootCmd.AddCommand(boardCmd)
	boardCmd.AddCommand(boardImportCmd, boardExportCmd, boardShowCmd, boardListCmd)

	boardCmd.PersistentFlags().String("store", "file", "Board store backend: file or redis")
	boardCmd.PersistentFlags().String("data-dir", ".mindsync/boards", "Directory for the file store")
	boardCmd.PersistentFlags().String("redis-url", "", "Redis connection URL")
	boardCmd.PersistentFlags().String("redis-prefix", "", "Key prefix for the redis store")

	boardExportCmd.Flags().StringP("out", "o", "", "Output file (default <board-id>.md)")
	boardShowCmd.Flags().Bool("layout", false, "Include computed canvas positions")
}
