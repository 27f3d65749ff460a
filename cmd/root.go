// Package cmd implements the openr command-line surface: a daemon
// subcommand that runs the KvStore and health checker together, and a set
// of client subcommands that talk to a running daemon over its local
// command sockets (§4.3, §4.5).
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "openr",
	Short: "A replicated key-value store and peer health checker",
	Long: `openr runs the control-plane core of a link-state routing fabric: a
gossiping, eventually-consistent key-value store and a topology-aware peer
health checker layered on top of it.`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "init", Title: "Setup commands:"},
		&cobra.Group{ID: "node", Title: "Node commands:"},
	)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "node configuration file")
}
