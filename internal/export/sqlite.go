package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Amounts are stored as TEXT so they keep their two decimal places. Several
// accounts may share one file; every row carries the account it belongs to.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS account (
	user_id TEXT PRIMARY KEY,
	iban TEXT NOT NULL,
	name TEXT NOT NULL,
	opening_balance TEXT NOT NULL,
	balance TEXT NOT NULL,
	exported_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_entries (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES account(user_id),
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	amount TEXT NOT NULL,
	balance_after TEXT NOT NULL,
	transfer_id TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS position_lots (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES account(user_id),
	seq INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_user ON journal_entries(user_id, seq);
CREATE INDEX IF NOT EXISTS idx_lots_user_symbol ON position_lots(user_id, symbol, seq);
`

// WriteSQLite copies the statement into a standalone SQLite file at path.
// Rows already present from an earlier export of the same account are
// replaced, so re-running an export is safe.
func WriteSQLite(ctx context.Context, path string, s *Statement) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("WriteSQLite: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("WriteSQLite: schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WriteSQLite: %w", err)
	}
	defer tx.Rollback()

	if err := writeRows(ctx, tx, s); err != nil {
		return fmt.Errorf("WriteSQLite: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("WriteSQLite: commit: %w", err)
	}
	return nil
}

func writeRows(ctx context.Context, tx *sql.Tx, s *Statement) error {
	a := s.Account
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO account (user_id, iban, name, opening_balance, balance, exported_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID.String(), a.IBAN, a.Name, a.OpeningBalance.String(), a.Balance.String(), s.GeneratedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}

	for _, e := range s.Entries {
		var transferID sql.NullString
		if e.TransferID != nil {
			transferID = sql.NullString{String: e.TransferID.String(), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO journal_entries (id, user_id, seq, kind, amount, balance_after, transfer_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, a.UserID.String(), e.Seq, string(e.Kind), e.Amount.String(), e.BalanceAfter.String(), transferID, e.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("journal entry %s: %w", e.ID, err)
		}
	}

	for _, l := range s.Lots {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO position_lots (id, user_id, seq, symbol, quantity, price, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.ID, a.UserID.String(), l.Seq, l.Symbol, l.Quantity, l.Price.String(), l.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("lot %s: %w", l.ID, err)
		}
	}
	return nil
}
