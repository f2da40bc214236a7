// Package export writes a user's ledger history to files that can be read
// without access to the primary database.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

type snapshotRunner interface {
	WithinReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type accountReader interface {
	GetInTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error)
}

type journalReader interface {
	All(ctx context.Context, tx *sql.Tx, userID uuid.UUID) ([]domain.JournalEntry, error)
}

type lotReader interface {
	AllLots(ctx context.Context, tx *sql.Tx, userID uuid.UUID) ([]domain.PositionLot, error)
}

// Statement is everything recorded for one account at GeneratedAt.
type Statement struct {
	Account     domain.Account
	Entries     []domain.JournalEntry
	Lots        []domain.PositionLot
	GeneratedAt time.Time
}

type Loader struct {
	db        snapshotRunner
	accounts  accountReader
	journal   journalReader
	positions lotReader
}

func NewLoader(db snapshotRunner, accounts accountReader, journal journalReader, positions lotReader) *Loader {
	return &Loader{db: db, accounts: accounts, journal: journal, positions: positions}
}

// Load reads the account, journal and lots from one snapshot so the balance
// agrees with the rows listed.
func (l *Loader) Load(ctx context.Context, userID uuid.UUID) (*Statement, error) {
	s := &Statement{}
	err := l.db.WithinReadTx(ctx, func(tx *sql.Tx) error {
		account, err := l.accounts.GetInTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		s.Account = *account
		if s.Entries, err = l.journal.All(ctx, tx, userID); err != nil {
			return err
		}
		if s.Lots, err = l.positions.AllLots(ctx, tx, userID); err != nil {
			return err
		}
		s.GeneratedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return s, nil
}
