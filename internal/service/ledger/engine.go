package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/config"
	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type accountRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	GetByIBANAndName(ctx context.Context, iban, name string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error)
	AdjustBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID, delta domain.Money) (*domain.Account, error)
}

type positionRepo interface {
	AppendLot(ctx context.Context, tx *sql.Tx, lot *domain.PositionLot) error
	NetHoldings(ctx context.Context, tx *sql.Tx, userID uuid.UUID, symbol string) (int64, error)
	Lots(ctx context.Context, userID uuid.UUID, symbol string) ([]domain.PositionLot, error)
	Holdings(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error)
}

type journalRepo interface {
	Append(ctx context.Context, tx *sql.Tx, entry *domain.JournalEntry) error
	EntriesFor(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.JournalEntry, int, error)
}

type transferRepo interface {
	Create(ctx context.Context, tx *sql.Tx, rec *domain.TransferRecord) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransferRecord, int, error)
}

// Engine is the only writer of balances, lots, journal rows and transfer
// records. Each operation commits all of its effects in one transaction or
// none of them.
type Engine struct {
	db        txRunner
	accounts  accountRepo
	positions positionRepo
	journal   journalRepo
	transfers transferRepo
	config    config.Ledger
	now       func() time.Time
}

func NewEngine(
	db txRunner,
	accounts accountRepo,
	positions positionRepo,
	journal journalRepo,
	transfers transferRepo,
	cfg config.Ledger,
) *Engine {
	return &Engine{
		db:        db,
		accounts:  accounts,
		positions: positions,
		journal:   journal,
		transfers: transfers,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// runInTx retries fn while the store reports contention. Any other error
// ends the loop immediately and is returned as is.
func (e *Engine) runInTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	log := logging.FromContext(ctx)

	attempt := func() error {
		err := e.db.WithinTx(ctx, fn)
		if err == nil || errors.Is(err, domain.ErrStoreConflict) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.config.RetryInitial
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, e.config.MaxRetries), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		log.Warn("store conflict, retrying", "op", op, "error", err, "wait", wait)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// lockAccountsInOrder takes the row locks for ids in ascending order so two
// operations touching the same pair can never deadlock each other.
func (e *Engine) lockAccountsInOrder(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := sortedIDs(ids)

	result := make(map[uuid.UUID]*domain.Account, len(sorted))
	for _, id := range sorted {
		acct, err := e.accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

func (e *Engine) lockAccount(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error) {
	locked, err := e.lockAccountsInOrder(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	return locked[userID], nil
}
