package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

type fakeSource struct {
	account   *domain.Account
	entries   []domain.JournalEntry
	lots      []domain.PositionLot
	snapshots int
}

func (f *fakeSource) WithinReadTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	f.snapshots++
	return fn(nil)
}

func (f *fakeSource) GetInTx(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	if f.account == nil || f.account.UserID != id {
		return nil, domain.ErrNotFound
	}
	return f.account, nil
}

func (f *fakeSource) All(context.Context, *sql.Tx, uuid.UUID) ([]domain.JournalEntry, error) {
	return f.entries, nil
}

func (f *fakeSource) AllLots(context.Context, *sql.Tx, uuid.UUID) ([]domain.PositionLot, error) {
	return f.lots, nil
}

func sampleSource() *fakeSource {
	userID := uuid.New()
	transferID := uuid.New()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &fakeSource{
		account: &domain.Account{
			UserID:         userID,
			IBAN:           "NL91GREY0000000001",
			Name:           "Ada",
			OpeningBalance: domain.Zero,
			Balance:        domain.MustParseMoney("55.00"),
		},
		entries: []domain.JournalEntry{
			{ID: "01A", Seq: 1, UserID: userID, Kind: domain.EntryKindDeposit, Amount: domain.MustParseMoney("100.00"), BalanceAfter: domain.MustParseMoney("100.00"), CreatedAt: t0},
			{ID: "01C", Seq: 2, UserID: userID, Kind: domain.EntryKindTransferOut, Amount: domain.MustParseMoney("-25.00"), BalanceAfter: domain.MustParseMoney("55.00"), TransferID: &transferID, CreatedAt: t0.Add(2 * time.Minute)},
		},
		lots: []domain.PositionLot{
			{ID: "01B", Seq: 1, UserID: userID, Symbol: "XYZ", Quantity: 4, Price: domain.MustParseMoney("5.00"), CreatedAt: t0.Add(time.Minute)},
		},
	}
}

func TestLoad(t *testing.T) {
	src := sampleSource()
	l := NewLoader(src, src, src, src)

	s, err := l.Load(context.Background(), src.account.UserID)
	require.NoError(t, err)
	assert.Equal(t, src.account.IBAN, s.Account.IBAN)
	assert.Len(t, s.Entries, 2)
	assert.Len(t, s.Lots, 1)
	assert.Equal(t, 1, src.snapshots)

	_, err = l.Load(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWriteCSV_InterleavesByTime(t *testing.T) {
	src := sampleSource()
	s := &Statement{Account: *src.account, Entries: src.entries, Lots: src.lots}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"journal", "01A", "deposit"}, records[1][1:4])
	assert.Equal(t, "100.00", records[1][7])
	assert.Equal(t, "100.00", records[1][8])

	assert.Equal(t, []string{"lot", "01B", "buy", "XYZ", "4", "5.00", "-20.00", ""}, records[2][1:])
	assert.Equal(t, []string{"journal", "01C", "transfer_out"}, records[3][1:4])
	assert.Equal(t, "-25.00", records[3][7])
}

func TestWriteSQLite(t *testing.T) {
	src := sampleSource()
	s := &Statement{Account: *src.account, Entries: src.entries, Lots: src.lots, GeneratedAt: time.Now()}
	path := filepath.Join(t.TempDir(), "statement.db")
	ctx := context.Background()

	require.NoError(t, WriteSQLite(ctx, path, s))
	// A second export of the same statement replaces rows instead of failing.
	require.NoError(t, WriteSQLite(ctx, path, s))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var balance string
	require.NoError(t, db.QueryRow(`SELECT balance FROM account WHERE user_id = ?`, src.account.UserID.String()).Scan(&balance))
	assert.Equal(t, "55.00", balance)

	var entries, lots int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&entries))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM position_lots`).Scan(&lots))
	assert.Equal(t, 2, entries)
	assert.Equal(t, 1, lots)

	var transferID sql.NullString
	require.NoError(t, db.QueryRow(`SELECT transfer_id FROM journal_entries WHERE id = '01C'`).Scan(&transferID))
	assert.True(t, transferID.Valid)

	var quantity int64
	var price string
	require.NoError(t, db.QueryRow(`SELECT quantity, price FROM position_lots WHERE id = '01B'`).Scan(&quantity, &price))
	assert.Equal(t, int64(4), quantity)
	assert.Equal(t, "5.00", price)
}

func TestWriteSQLite_KeepsAccountsApart(t *testing.T) {
	ada, bob := sampleSource(), sampleSource()
	bob.account.Name = "Bob"
	bob.account.IBAN = "NL91GREY0000000002"
	for i := range bob.entries {
		bob.entries[i].ID = "B" + bob.entries[i].ID
	}
	for i := range bob.lots {
		bob.lots[i].ID = "B" + bob.lots[i].ID
	}
	path := filepath.Join(t.TempDir(), "statements.db")
	ctx := context.Background()

	for _, src := range []*fakeSource{ada, bob} {
		s := &Statement{Account: *src.account, Entries: src.entries, Lots: src.lots, GeneratedAt: time.Now()}
		require.NoError(t, WriteSQLite(ctx, path, s))
	}

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, src := range []*fakeSource{ada, bob} {
		var entries, lots int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM journal_entries WHERE user_id = ?`, src.account.UserID.String()).Scan(&entries))
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM position_lots WHERE user_id = ?`, src.account.UserID.String()).Scan(&lots))
		assert.Equal(t, 2, entries, src.account.Name)
		assert.Equal(t, 1, lots, src.account.Name)
	}

	var owner string
	require.NoError(t, db.QueryRow(`SELECT a.name FROM journal_entries j JOIN account a ON a.user_id = j.user_id WHERE j.id = 'B01C'`).Scan(&owner))
	assert.Equal(t, "Bob", owner)
}
