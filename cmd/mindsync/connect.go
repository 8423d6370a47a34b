package main

import (
	"github.com/spf13/cobra"

	"github.com/and07/mindsync/internal/cli"
)

var connectCmd = &cobra.Command{
	Use:   "connect <board-id>",
	Short: "Open a board in the interactive terminal client",
	Long:  `Joins a shared board on a running gateway and edits it from an interactive shell. Edits from other sessions appear live.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		debug, _ := cmd.Flags().GetBool("debug")
		return cli.RunConnect(cli.ConnectOptions{
			URL:     url,
			BoardID: args[0],
			Debug:   debug,
		})
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().String("url", "ws://localhost:8080/ws", "Gateway websocket URL")
	connectCmd.Flags().Bool("debug", false, "Enable debug logging")
}
