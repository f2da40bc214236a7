package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

const lotColumns = `id, seq, user_id, symbol, quantity, price, created_at`

type PositionRepository struct {
	db *sql.DB
}

func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// AppendLot inserts the lot and fills in Seq and CreatedAt from the database.
// Lots are ordered by seq, which is drawn under the account lock.
func (r *PositionRepository) AppendLot(ctx context.Context, tx *sql.Tx, lot *domain.PositionLot) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO position_lots (id, user_id, symbol, quantity, price, created_at)
		VALUES ($1, $2, $3, $4, $5, clock_timestamp())
		RETURNING seq, created_at`,
		lot.ID, lot.UserID, lot.Symbol, lot.Quantity, lot.Price,
	).Scan(&lot.Seq, &lot.CreatedAt)
	if err != nil {
		return fmt.Errorf("AppendLot: %w", classify(err))
	}
	return nil
}

// NetHoldings sums every lot for the pair. Unknown pairs hold zero. With a nil
// tx the read runs outside any transaction.
func (r *PositionRepository) NetHoldings(ctx context.Context, tx *sql.Tx, userID uuid.UUID, symbol string) (int64, error) {
	var net int64
	err := on(r.db, tx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0)::BIGINT FROM position_lots
		WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("NetHoldings: %w", classify(err))
	}
	return net, nil
}

func (r *PositionRepository) Lots(ctx context.Context, userID uuid.UUID, symbol string) ([]domain.PositionLot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+lotColumns+` FROM position_lots
		WHERE user_id = $1 AND symbol = $2 ORDER BY seq`,
		userID, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("Lots: %w", err)
	}
	lots, err := collectLots(rows)
	if err != nil {
		return nil, fmt.Errorf("Lots: %w", err)
	}
	return lots, nil
}

// AllLots returns every lot the user ever recorded across all symbols.
func (r *PositionRepository) AllLots(ctx context.Context, tx *sql.Tx, userID uuid.UUID) ([]domain.PositionLot, error) {
	rows, err := on(r.db, tx).QueryContext(ctx,
		`SELECT `+lotColumns+` FROM position_lots
		WHERE user_id = $1 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("AllLots: %w", err)
	}
	lots, err := collectLots(rows)
	if err != nil {
		return nil, fmt.Errorf("AllLots: %w", err)
	}
	return lots, nil
}

// Holdings lists symbols with a non-zero net quantity.
func (r *PositionRepository) Holdings(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT symbol, SUM(quantity)::BIGINT, COALESCE(SUM(quantity * price), 0), COUNT(*)
		FROM position_lots
		WHERE user_id = $1
		GROUP BY symbol
		HAVING SUM(quantity) <> 0
		ORDER BY symbol`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("Holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity, &h.NetInvested, &h.Lots); err != nil {
			return nil, fmt.Errorf("Holdings: scan: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Holdings: rows: %w", err)
	}
	return holdings, nil
}

// CashFlow is the total balance effect of all lots: sells minus buys.
func (r *PositionRepository) CashFlow(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (domain.Money, error) {
	var flow domain.Money
	err := on(r.db, tx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(-quantity * price), 0) FROM position_lots WHERE user_id = $1`,
		userID,
	).Scan(&flow)
	if err != nil {
		return domain.Zero, fmt.Errorf("CashFlow: %w", err)
	}
	return flow, nil
}

func collectLots(rows *sql.Rows) ([]domain.PositionLot, error) {
	defer rows.Close()

	var lots []domain.PositionLot
	for rows.Next() {
		var l domain.PositionLot
		err := rows.Scan(&l.ID, &l.Seq, &l.UserID, &l.Symbol, &l.Quantity, &l.Price, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return lots, nil
}
