package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
	"github.com/josh-kwaku/brokerage-ledger/internal/service"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check stored balances against the journal and position lots",
	Long: `Reconcile rebuilds every balance as

  opening_balance + sum(journal amounts) - sum(lot quantity * price)

and compares it with the stored balance. The command exits non-zero when any
account has drifted.

Examples:
  ledgerctl reconcile
  ledgerctl reconcile --user 6f1c... --output json`,
	RunE: runReconcile,
}

var (
	reconcileUser   string
	reconcileOutput string
)

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&reconcileUser, "user", "u", "", "reconcile only this user id")
	reconcileCmd.Flags().StringVarP(&reconcileOutput, "output", "o", "yaml", "output format (yaml, json)")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if reconcileOutput != "yaml" && reconcileOutput != "json" {
		return fmt.Errorf("unknown output format %q", reconcileOutput)
	}

	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	r := service.NewReconciler(
		repository.NewDB(db),
		repository.NewAccountRepository(db),
		repository.NewJournalRepository(db),
		repository.NewPositionRepository(db),
	)

	var results []service.Reconciliation
	if reconcileUser != "" {
		userID, err := uuid.Parse(reconcileUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		rec, err := r.Reconcile(ctx, userID)
		if err != nil {
			return err
		}
		results = append(results, *rec)
	} else {
		results, err = r.ReconcileAll(ctx)
		if err != nil {
			return err
		}
	}

	if err := writeReconciliation(cmd.OutOrStdout(), reconcileOutput, results); err != nil {
		return err
	}

	drifted := 0
	for _, rec := range results {
		if !rec.Balanced {
			drifted++
		}
	}
	if drifted > 0 {
		return fmt.Errorf("%d of %d accounts out of balance", drifted, len(results))
	}
	return nil
}

func writeReconciliation(w io.Writer, format string, results []service.Reconciliation) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(results); err != nil {
		return err
	}
	return enc.Close()
}
