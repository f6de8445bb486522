// ABOUTME: Root CLI command and global flags for the Veil relay
// ABOUTME: Wires up serve, mcp, purge, entropy, and version subcommands
package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
	quiet   bool
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "veil",
		Short: "Anonymous relay for game communities",
		Long: `Veil relays messages between users, personas, and channels without
revealing who is behind them. It keeps per-user anonymisation settings,
estimates how identifiable those settings are, and exposes an HTTP API
for the game service plus an MCP surface for agents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewEntropyCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
