package main

import (
	"fmt"
	"strings"

	"github.com/and07/mindsync"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mindsync",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mindsync version %s\n", strings.TrimSpace(mindsync.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
