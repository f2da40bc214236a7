package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

const transferColumns = `id, from_user_id, to_user_id, amount, created_at`

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, tx *sql.Tx, rec *domain.TransferRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (id, from_user_id, to_user_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.FromUserID, rec.ToUserID, rec.Amount, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", classify(err))
	}
	return nil
}

// ListForUser pages through transfers the user sent or received, newest first.
func (r *TransferRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransferRecord, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers WHERE from_user_id = $1 OR to_user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForUser: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForUser: %w", err)
	}
	defer rows.Close()

	var records []domain.TransferRecord
	for rows.Next() {
		var t domain.TransferRecord
		if err := rows.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.Amount, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("ListForUser: scan: %w", err)
		}
		records = append(records, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListForUser: rows: %w", err)
	}
	return records, total, nil
}
