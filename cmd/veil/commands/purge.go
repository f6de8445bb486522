// ABOUTME: Purge command deactivates every temporary persona
// ABOUTME: Run between game rounds to force an identity reset
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/veil/internal/config"
	"github.com/harper/veil/internal/core"
	"github.com/harper/veil/internal/storage/sqlite"
)

// NewPurgeCmd creates the purge command
func NewPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Deactivate all temporary personas",
		Long: `Deactivate all temporary personas.

Each user gets a fresh default persona the next time their personas are
listed, so identities do not persist across game rounds.`,
		RunE: runPurge,
	}

	return cmd
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := core.NewRegistry(sqlite.NewPersonaStore(db), core.DefaultNamePool(), log)
	n, err := registry.PurgeTemporary(cmd.Context())
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d temporary persona(s)\n", n)
	}
	return nil
}
