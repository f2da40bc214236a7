package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/brokerage-ledger/internal/config"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
)

var (
	logLevel string
	appEnv   string
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operator tooling for the brokerage ledger",
	Long: `ledgerctl runs maintenance tasks directly against the ledger database.

It reads DATABASE_URL and the DB_* pool settings from the environment.

Commands:
  reconcile - rebuild balances from the journal and position lots and report drift
  export    - write one account's history to CSV or a standalone SQLite file
  gc        - delete expired idempotency records`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Logs go to stderr so command output on stdout stays machine readable.
		slog.SetDefault(logging.New(os.Stderr, "ledgerctl", logLevel, appEnv))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&appEnv, "env", "development", "log format: development for text, anything else for JSON")
}

func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.LoadDB()
	if err != nil {
		return nil, err
	}
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfigFrom(*cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
