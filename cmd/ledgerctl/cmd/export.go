package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/brokerage-ledger/internal/export"
	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one account's journal and position lots",
	Long: `Export writes an account's complete history.

Formats:
  csv    - one activity stream, journal rows and lots interleaved by time
  sqlite - a standalone SQLite file with account, journal_entries and position_lots tables

Examples:
  ledgerctl export --user 6f1c... --format csv --out activity.csv
  ledgerctl export --user 6f1c... --format sqlite --out statement.db`,
	RunE: runExport,
}

var (
	exportUser   string
	exportFormat string
	exportOut    string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportUser, "user", "u", "", "user id to export (required)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv, sqlite)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "output path; - writes CSV to stdout")

	exportCmd.MarkFlagRequired("user")
}

func runExport(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(exportUser)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	if exportFormat != "csv" && exportFormat != "sqlite" {
		return fmt.Errorf("unknown format %q", exportFormat)
	}
	if exportFormat == "sqlite" && exportOut == "-" {
		return fmt.Errorf("sqlite export needs a file path in --out")
	}

	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	loader := export.NewLoader(
		repository.NewDB(db),
		repository.NewAccountRepository(db),
		repository.NewJournalRepository(db),
		repository.NewPositionRepository(db),
	)
	statement, err := loader.Load(ctx, userID)
	if err != nil {
		return err
	}

	if exportFormat == "sqlite" {
		if err := export.WriteSQLite(ctx, exportOut, statement); err != nil {
			return err
		}
	} else if err := writeCSV(cmd.OutOrStdout(), exportOut, statement); err != nil {
		return err
	}

	slog.Info("export written",
		"user_id", userID,
		"format", exportFormat,
		"out", exportOut,
		"journal_entries", len(statement.Entries),
		"lots", len(statement.Lots),
	)
	return nil
}

func writeCSV(stdout io.Writer, path string, s *export.Statement) error {
	if path == "-" {
		return export.WriteCSV(stdout, s)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteCSV(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
