package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

const TestPassword = "password123"

var ibanSeq atomic.Int64

// SeedAccount inserts a client user and its account holding balance. The
// opening balance equals the seeded balance.
func SeedAccount(t *testing.T, db *sql.DB, name, balance string) *domain.Account {
	t.Helper()

	u := SeedUser(t, db, fmt.Sprintf("%s-%s@test.com", strings.ToLower(name), uuid.NewString()[:8]), name)

	a := &domain.Account{
		UserID:         u.ID,
		IBAN:           fmt.Sprintf("NL00TEST%010d", ibanSeq.Add(1)),
		Name:           name,
		Balance:        domain.MustParseMoney(balance),
		OpeningBalance: domain.MustParseMoney(balance),
		CreatedAt:      time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO accounts (user_id, iban, name, balance, opening_balance, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		a.UserID, a.IBAN, a.Name, a.Balance, a.OpeningBalance, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account for %s: %v", name, err)
	}
	return a
}

func SeedUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         domain.UserRoleClient,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

func GetBalance(t *testing.T, db *sql.DB, userID uuid.UUID) string {
	t.Helper()

	var balance domain.Money
	err := db.QueryRow(`SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		t.Fatalf("get balance %s: %v", userID, err)
	}
	return balance.String()
}

func CountJournalEntries(t *testing.T, db *sql.DB, userID uuid.UUID) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM journal_entries WHERE user_id = $1`, userID)
}

func CountLots(t *testing.T, db *sql.DB, userID uuid.UUID) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM position_lots WHERE user_id = $1`, userID)
}

func CountTransfers(t *testing.T, db *sql.DB, userID uuid.UUID) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM transfers WHERE from_user_id = $1 OR to_user_id = $1`, userID)
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
