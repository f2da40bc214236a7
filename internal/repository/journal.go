package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

const journalColumns = `id, seq, user_id, kind, amount, balance_after, transfer_id, created_at`

type JournalRepository struct {
	db *sql.DB
}

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// Append inserts the entry. Seq and CreatedAt are assigned by the database
// while the caller holds the account lock, so both follow commit order.
func (r *JournalRepository) Append(ctx context.Context, tx *sql.Tx, entry *domain.JournalEntry) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO journal_entries (id, user_id, kind, amount, balance_after, transfer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
		RETURNING seq, created_at`,
		entry.ID, entry.UserID, entry.Kind, entry.Amount, entry.BalanceAfter, entry.TransferID,
	).Scan(&entry.Seq, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("Append: %w", classify(err))
	}
	return nil
}

// EntriesFor pages through a user's journal oldest first and reports the total row count.
func (r *JournalRepository) EntriesFor(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.JournalEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journal_entries WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("EntriesFor: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+journalColumns+` FROM journal_entries
		WHERE user_id = $1 ORDER BY seq LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("EntriesFor: %w", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("EntriesFor: %w", err)
	}
	return entries, total, nil
}

func (r *JournalRepository) All(ctx context.Context, tx *sql.Tx, userID uuid.UUID) ([]domain.JournalEntry, error) {
	rows, err := on(r.db, tx).QueryContext(ctx,
		`SELECT `+journalColumns+` FROM journal_entries
		WHERE user_id = $1 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("All: %w", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("All: %w", err)
	}
	return entries, nil
}

// Sum totals the signed amounts journaled for a user.
func (r *JournalRepository) Sum(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (domain.Money, error) {
	var sum domain.Money
	err := on(r.db, tx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM journal_entries WHERE user_id = $1`, userID,
	).Scan(&sum)
	if err != nil {
		return domain.Zero, fmt.Errorf("Sum: %w", err)
	}
	return sum, nil
}

func collectEntries(rows *sql.Rows) ([]domain.JournalEntry, error) {
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e          domain.JournalEntry
			transferID uuid.NullUUID
		)
		err := rows.Scan(
			&e.ID, &e.Seq, &e.UserID, &e.Kind,
			&e.Amount, &e.BalanceAfter, &transferID, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if transferID.Valid {
			e.TransferID = &transferID.UUID
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}
