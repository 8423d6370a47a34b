package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mindsync",
	Short: "MindSync is a collaborative mind map engine",
	Long:  `MindSync keeps a shared tree of ideas synchronized across sessions in real time, with deterministic layout and conflict-free merging.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
