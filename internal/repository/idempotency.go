package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

// IdempotencyRecord is a stored response to a mutating request, replayed when
// the same user retries with the same Idempotency-Key.
type IdempotencyRecord struct {
	Key          string
	UserID       uuid.UUID
	Path         string
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Pending reports whether the request holding the key has not finished yet.
func (r *IdempotencyRecord) Pending() bool {
	return r.StatusCode == 0
}

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Lookup returns nil, nil when nothing live is stored under the key. A pending
// claim is returned with a zero StatusCode.
func (r *IdempotencyRepository) Lookup(ctx context.Context, key string, userID uuid.UUID) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT idempotency_key, user_id, request_path, request_hash, status_code,
			response_body, created_at, expires_at
		FROM idempotency_cache
		WHERE idempotency_key = $1 AND user_id = $2 AND expires_at > now()`,
		key, userID,
	).Scan(
		&rec.Key, &rec.UserID, &rec.Path, &rec.RequestHash, &rec.StatusCode,
		&rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Lookup: %w", err)
	}
	return &rec, nil
}

// Claim reserves the key for rec.RequestHash before the request runs. It
// reports false when a live record, pending or complete, already holds the key.
// An expired record under the same key is taken over.
func (r *IdempotencyRepository) Claim(ctx context.Context, rec *IdempotencyRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_cache (
			idempotency_key, user_id, request_path, request_hash, status_code,
			response_body, created_at, expires_at
		) VALUES ($1, $2, $3, $4, 0, ''::BYTEA, $5, $6)
		ON CONFLICT (idempotency_key, user_id) DO UPDATE SET
			request_path = EXCLUDED.request_path,
			request_hash = EXCLUDED.request_hash,
			status_code = 0,
			response_body = ''::BYTEA,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_cache.expires_at <= now()`,
		rec.Key, rec.UserID, rec.Path, rec.RequestHash, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("Claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Claim: rows affected: %w", err)
	}
	return n == 1, nil
}

// Complete stores the response on a pending claim made with the same request hash.
func (r *IdempotencyRepository) Complete(ctx context.Context, rec *IdempotencyRecord) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_cache
		SET status_code = $4, response_body = $5, expires_at = $6
		WHERE idempotency_key = $1 AND user_id = $2 AND request_hash = $3 AND status_code = 0`,
		rec.Key, rec.UserID, rec.RequestHash, rec.StatusCode, rec.ResponseBody, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Complete: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Complete: no pending claim for %q: %w", rec.Key, domain.ErrNotFound)
	}
	return nil
}

// Release drops a pending claim so the client may retry under the same key.
func (r *IdempotencyRepository) Release(ctx context.Context, key string, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache
		WHERE idempotency_key = $1 AND user_id = $2 AND status_code = 0`,
		key, userID,
	)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

// Purge deletes records that expired before the cutoff and reports how many went.
func (r *IdempotencyRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache WHERE expires_at < $1`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("Purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Purge: rows affected: %w", err)
	}
	return n, nil
}
