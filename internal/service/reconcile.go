package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
)

type snapshotRunner interface {
	WithinReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type accountLister interface {
	GetInTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error)
	List(ctx context.Context, tx *sql.Tx) ([]domain.Account, error)
}

type journalSummer interface {
	Sum(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (domain.Money, error)
}

type cashFlowReader interface {
	CashFlow(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (domain.Money, error)
}

// Reconciliation compares an account's stored balance with the balance
// rebuilt from its opening balance, journal and position lots.
type Reconciliation struct {
	UserID         uuid.UUID    `json:"user_id" yaml:"user_id"`
	IBAN           string       `json:"iban" yaml:"iban"`
	OpeningBalance domain.Money `json:"opening_balance" yaml:"opening_balance"`
	JournalTotal   domain.Money `json:"journal_total" yaml:"journal_total"`
	LotCashFlow    domain.Money `json:"lot_cash_flow" yaml:"lot_cash_flow"`
	Expected       domain.Money `json:"expected" yaml:"expected"`
	Balance        domain.Money `json:"balance" yaml:"balance"`
	Drift          domain.Money `json:"drift" yaml:"drift"`
	Balanced       bool         `json:"balanced" yaml:"balanced"`
}

// Reconciler reads every figure of a run from one database snapshot, so
// operations committing meanwhile cannot show up as drift.
type Reconciler struct {
	db        snapshotRunner
	accounts  accountLister
	journal   journalSummer
	positions cashFlowReader
}

func NewReconciler(db snapshotRunner, accounts accountLister, journal journalSummer, positions cashFlowReader) *Reconciler {
	return &Reconciler{db: db, accounts: accounts, journal: journal, positions: positions}
}

// ReconcileAll checks every account and returns one row per account.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	var results []Reconciliation
	err := r.db.WithinReadTx(ctx, func(tx *sql.Tx) error {
		accounts, err := r.accounts.List(ctx, tx)
		if err != nil {
			return err
		}

		results = make([]Reconciliation, 0, len(accounts))
		for i := range accounts {
			rec, err := r.reconcile(ctx, tx, &accounts[i])
			if err != nil {
				return err
			}
			results = append(results, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ReconcileAll: %w", err)
	}
	return results, nil
}

func (r *Reconciler) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	var rec *Reconciliation
	err := r.db.WithinReadTx(ctx, func(tx *sql.Tx) error {
		account, err := r.accounts.GetInTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		rec, err = r.reconcile(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}
	return rec, nil
}

func (r *Reconciler) reconcile(ctx context.Context, tx *sql.Tx, account *domain.Account) (*Reconciliation, error) {
	journalTotal, err := r.journal.Sum(ctx, tx, account.UserID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", account.UserID, err)
	}
	cashFlow, err := r.positions.CashFlow(ctx, tx, account.UserID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", account.UserID, err)
	}

	expected := account.OpeningBalance.Add(journalTotal).Add(cashFlow)
	rec := &Reconciliation{
		UserID:         account.UserID,
		IBAN:           account.IBAN,
		OpeningBalance: account.OpeningBalance,
		JournalTotal:   journalTotal,
		LotCashFlow:    cashFlow,
		Expected:       expected,
		Balance:        account.Balance,
		Drift:          account.Balance.Sub(expected),
		Balanced:       account.Balance.Equal(expected),
	}
	if !rec.Balanced {
		logging.FromContext(ctx).Error("balance drift detected",
			"user_id", account.UserID,
			"expected", expected,
			"balance", account.Balance,
		)
	}
	return rec, nil
}
