package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"audioscribe/server"
)

var rootCmd = &cobra.Command{
	Use:   "audioscribe",
	Short: "audioscribe batch-transcribes media from an object store",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
