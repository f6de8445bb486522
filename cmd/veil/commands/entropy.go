// ABOUTME: Entropy command prints a user's identifiability estimate
// ABOUTME: Same figure the settings surfaces show, for operators
package commands

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/harper/veil/internal/config"
	"github.com/harper/veil/internal/core"
	"github.com/harper/veil/internal/storage/sqlite"
)

// NewEntropyCmd creates the entropy command
func NewEntropyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entropy <user-id>",
		Short: "Estimate how identifiable a user's settings are",
		Long: `Estimate how identifiable a user's settings are.

Prints the number of bits of identifying information the user's privacy
settings carry against the recently active population. Lower is better;
"no estimate" means nobody has been active recently enough to compare
against, or the user's settings are unique.`,
		Args: cobra.ExactArgs(1),
		RunE: runEntropy,
	}

	return cmd
}

func runEntropy(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		return fmt.Errorf("bad user id %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	settings := core.NewSettingsService(sqlite.NewSettingsStore(db))
	bits, err := settings.EntropyBits(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("entropy estimate failed: %w", err)
	}

	if math.IsInf(bits, 1) {
		fmt.Fprintln(cmd.OutOrStdout(), "no estimate (empty or disjoint population)")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.2f bits\n", bits)
	return nil
}
