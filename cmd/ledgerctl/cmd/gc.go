package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete expired idempotency records",
	Long: `gc removes stored idempotent responses whose replay window has passed.

Example:
  ledgerctl gc --grace 1h`,
	RunE: runGC,
}

var gcGrace time.Duration

func init() {
	rootCmd.AddCommand(gcCmd)

	gcCmd.Flags().DurationVar(&gcGrace, "grace", 0, "keep records that expired less than this long ago")
}

func runGC(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := repository.NewIdempotencyRepository(db).Purge(ctx, time.Now().Add(-gcGrace))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d idempotency records\n", n)
	return nil
}
