package repository_test

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/id"
	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
	"github.com/josh-kwaku/brokerage-ledger/internal/testutil"
)

func TestRepositories(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	db := repository.NewDB(pool)
	ctx := context.Background()

	accounts := repository.NewAccountRepository(pool)
	users := repository.NewUserRepository(pool)
	positions := repository.NewPositionRepository(pool)
	journal := repository.NewJournalRepository(pool)
	idempotency := repository.NewIdempotencyRepository(pool)

	t.Run("adjust balance never goes negative", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		a := testutil.SeedAccount(t, pool, "Ada", "10.00")

		err := db.WithinTx(ctx, func(tx *sql.Tx) error {
			_, err := accounts.AdjustBalance(ctx, tx, a.UserID, domain.MustParseMoney("-20.00"))
			return err
		})
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, "10.00", testutil.GetBalance(t, pool, a.UserID))

		var updated *domain.Account
		err = db.WithinTx(ctx, func(tx *sql.Tx) error {
			var err error
			updated, err = accounts.AdjustBalance(ctx, tx, a.UserID, domain.MustParseMoney("-10.00"))
			return err
		})
		require.NoError(t, err)
		assert.True(t, updated.Balance.IsZero())
		assert.Equal(t, int64(1), updated.Version)
	})

	t.Run("balance overflow is an invalid amount", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		a := testutil.SeedAccount(t, pool, "Ada", "999999999999999999.00")

		err := db.WithinTx(ctx, func(tx *sql.Tx) error {
			_, err := accounts.AdjustBalance(ctx, tx, a.UserID, domain.MustParseMoney("1.00"))
			return err
		})
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
		assert.Equal(t, "999999999999999999.00", testutil.GetBalance(t, pool, a.UserID))
	})

	t.Run("adjust balance of unknown user", func(t *testing.T) {
		testutil.ResetDB(t, pool)

		err := db.WithinTx(ctx, func(tx *sql.Tx) error {
			_, err := accounts.AdjustBalance(ctx, tx, uuid.New(), domain.MustParseMoney("1.00"))
			return err
		})
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("receiver lookup normalizes iban and name", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		a := testutil.SeedAccount(t, pool, "Bob", "0.00")

		spaced := "  " + a.IBAN[:4] + " " + a.IBAN[4:8] + " " + a.IBAN[8:] + " "
		found, err := accounts.GetByIBANAndName(ctx, spaced, " Bob ")
		require.NoError(t, err)
		assert.Equal(t, a.UserID, found.UserID)

		_, err = accounts.GetByIBANAndName(ctx, a.IBAN, "Robert")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		existing := testutil.SeedUser(t, pool, "ada@example.com", "Ada")

		err := db.WithinTx(ctx, func(tx *sql.Tx) error {
			return users.Create(ctx, tx, &domain.User{
				ID:           uuid.New(),
				Email:        existing.Email,
				Name:         "Imposter",
				PasswordHash: "x",
				Role:         domain.UserRoleClient,
				CreatedAt:    time.Now().UTC(),
			})
		})
		require.ErrorIs(t, err, domain.ErrEmailTaken)

		got, err := users.GetByEmail(ctx, existing.Email)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, got.ID)
	})

	t.Run("lots aggregate into holdings", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		a := testutil.SeedAccount(t, pool, "Cy", "100.00")

		lots := []struct {
			symbol string
			qty    int64
			price  string
		}{
			{"XYZ", 10, "5.00"},
			{"ABC", 1, "2.00"},
			{"XYZ", -4, "6.00"},
			{"ABC", -1, "3.00"},
		}
		err := db.WithinTx(ctx, func(tx *sql.Tx) error {
			for _, l := range lots {
				now := time.Now().UTC()
				err := positions.AppendLot(ctx, tx, &domain.PositionLot{
					ID: id.New(now), UserID: a.UserID, Symbol: l.symbol,
					Quantity: l.qty, Price: domain.MustParseMoney(l.price), CreatedAt: now,
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		held, err := positions.NetHoldings(ctx, nil, a.UserID, "XYZ")
		require.NoError(t, err)
		assert.Equal(t, int64(6), held)

		holdings, err := positions.Holdings(ctx, a.UserID)
		require.NoError(t, err)
		require.Len(t, holdings, 1)
		assert.Equal(t, "XYZ", holdings[0].Symbol)
		assert.Equal(t, int64(6), holdings[0].Quantity)
		assert.Equal(t, "26.00", holdings[0].NetInvested.String())
		assert.Equal(t, 2, holdings[0].Lots)

		flow, err := positions.CashFlow(ctx, nil, a.UserID)
		require.NoError(t, err)
		assert.Equal(t, "-25.00", flow.String())

		xyz, err := positions.Lots(ctx, a.UserID, "XYZ")
		require.NoError(t, err)
		require.Len(t, xyz, 2)
		assert.Equal(t, domain.SideBuy, xyz[0].Side())
		assert.Equal(t, domain.SideSell, xyz[1].Side())
		assert.Less(t, xyz[0].Seq, xyz[1].Seq)
	})

	t.Run("journal pages oldest first", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		a := testutil.SeedAccount(t, pool, "Di", "0.00")

		balance := domain.Zero
		err := db.WithinTx(ctx, func(tx *sql.Tx) error {
			for i := 1; i <= 5; i++ {
				amount := domain.MoneyFromCents(int64(i) * 100)
				balance = balance.Add(amount)
				now := time.Now().UTC()
				err := journal.Append(ctx, tx, &domain.JournalEntry{
					ID: id.New(now), UserID: a.UserID, Kind: domain.EntryKindDeposit,
					Amount: amount, BalanceAfter: balance, CreatedAt: now,
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		page, total, err := journal.EntriesFor(ctx, a.UserID, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, "3.00", page[0].Amount.String())
		assert.Equal(t, "4.00", page[1].Amount.String())

		sum, err := journal.Sum(ctx, nil, a.UserID)
		require.NoError(t, err)
		assert.Equal(t, "15.00", sum.String())
	})

	t.Run("idempotency claims", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		u := testutil.SeedUser(t, pool, "eve@example.com", "Eve")
		now := time.Now().UTC()

		missing, err := idempotency.Lookup(ctx, "k1", u.ID)
		require.NoError(t, err)
		assert.Nil(t, missing)

		claim := &repository.IdempotencyRecord{
			Key: "k1", UserID: u.ID, Path: "/api/v1/users/x/deposits", RequestHash: "h1",
			CreatedAt: now, ExpiresAt: now.Add(time.Minute),
		}
		claimed, err := idempotency.Claim(ctx, claim)
		require.NoError(t, err)
		assert.True(t, claimed)

		pending, err := idempotency.Lookup(ctx, "k1", u.ID)
		require.NoError(t, err)
		require.NotNil(t, pending)
		assert.True(t, pending.Pending())

		other := *claim
		other.RequestHash = "h2"
		claimed, err = idempotency.Claim(ctx, &other)
		require.NoError(t, err)
		assert.False(t, claimed)

		claim.StatusCode = 200
		claim.ResponseBody = []byte(`{"success":true}`)
		claim.ExpiresAt = now.Add(time.Hour)
		require.NoError(t, idempotency.Complete(ctx, claim))
		require.ErrorIs(t, idempotency.Complete(ctx, claim), domain.ErrNotFound)

		got, err := idempotency.Lookup(ctx, "k1", u.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Pending())
		assert.Equal(t, "h1", got.RequestHash)
		assert.Equal(t, 200, got.StatusCode)
		assert.JSONEq(t, `{"success":true}`, string(got.ResponseBody))

		// Completed records survive Release; only pending claims are dropped.
		require.NoError(t, idempotency.Release(ctx, "k1", u.ID))
		got, err = idempotency.Lookup(ctx, "k1", u.ID)
		require.NoError(t, err)
		assert.NotNil(t, got)

		retry := &repository.IdempotencyRecord{
			Key: "k2", UserID: u.ID, Path: "/", RequestHash: "h",
			CreatedAt: now, ExpiresAt: now.Add(time.Minute),
		}
		claimed, err = idempotency.Claim(ctx, retry)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, idempotency.Release(ctx, "k2", u.ID))
		claimed, err = idempotency.Claim(ctx, retry)
		require.NoError(t, err)
		assert.True(t, claimed)

		expired := &repository.IdempotencyRecord{
			Key: "old", UserID: u.ID, Path: "/", RequestHash: "h",
			CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
		}
		claimed, err = idempotency.Claim(ctx, expired)
		require.NoError(t, err)
		require.True(t, claimed)

		gone, err := idempotency.Lookup(ctx, "old", u.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		takeover := *expired
		takeover.ExpiresAt = now.Add(time.Minute)
		claimed, err = idempotency.Claim(ctx, &takeover)
		require.NoError(t, err)
		assert.True(t, claimed)

		n, err := idempotency.Purge(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("concurrent claims on one key", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		u := testutil.SeedUser(t, pool, "fay@example.com", "Fay")
		now := time.Now().UTC()

		const n = 10
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := idempotency.Claim(ctx, &repository.IdempotencyRecord{
					Key: "dup", UserID: u.ID, Path: "/", RequestHash: "h",
					CreatedAt: now, ExpiresAt: now.Add(time.Minute),
				})
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("purge drops expired records", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		u := testutil.SeedUser(t, pool, "gus@example.com", "Gus")
		now := time.Now().UTC()

		_, err := idempotency.Claim(ctx, &repository.IdempotencyRecord{
			Key: "old", UserID: u.ID, Path: "/", RequestHash: "h",
			CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
		})
		require.NoError(t, err)

		n, err := idempotency.Purge(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("rows follow commit order, not the caller clock", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		a := testutil.SeedAccount(t, pool, "Hal", "100.00")
		later := time.Now().UTC().Add(time.Hour)
		earlier := later.Add(-2 * time.Hour)

		// The sell carries an older caller timestamp than the buy, as a
		// replica with a slow clock would produce.
		appendLot := func(qty int64, at time.Time) {
			err := db.WithinTx(ctx, func(tx *sql.Tx) error {
				return positions.AppendLot(ctx, tx, &domain.PositionLot{
					ID: id.New(at), UserID: a.UserID, Symbol: "XYZ",
					Quantity: qty, Price: domain.MustParseMoney("1.00"), CreatedAt: at,
				})
			})
			require.NoError(t, err)
		}
		appendLot(5, later)
		appendLot(-5, earlier)
		appendLot(2, earlier.Add(-time.Hour))

		lots, err := positions.Lots(ctx, a.UserID, "XYZ")
		require.NoError(t, err)
		require.Len(t, lots, 3)

		var held int64
		for i, l := range lots {
			held += l.Quantity
			assert.GreaterOrEqual(t, held, int64(0), "running holdings after lot %d", i)
			if i > 0 {
				assert.Less(t, lots[i-1].Seq, l.Seq)
				assert.False(t, l.CreatedAt.Before(lots[i-1].CreatedAt))
			}
		}
		assert.Equal(t, []int64{5, -5, 2}, []int64{lots[0].Quantity, lots[1].Quantity, lots[2].Quantity})
		assert.WithinDuration(t, time.Now(), lots[0].CreatedAt, time.Minute)

		for _, amount := range []string{"3.00", "-1.00"} {
			err := db.WithinTx(ctx, func(tx *sql.Tx) error {
				return journal.Append(ctx, tx, &domain.JournalEntry{
					ID: id.New(earlier), UserID: a.UserID, Kind: domain.EntryKindDeposit,
					Amount: domain.MustParseMoney(amount), BalanceAfter: domain.MustParseMoney("100.00"),
					CreatedAt: earlier,
				})
			})
			require.NoError(t, err)
		}
		entries, err := journal.All(ctx, nil, a.UserID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "3.00", entries[0].Amount.String())
		assert.False(t, entries[1].CreatedAt.Before(entries[0].CreatedAt))
		assert.WithinDuration(t, time.Now(), entries[0].CreatedAt, time.Minute)
	})

	t.Run("read transaction sees one snapshot", func(t *testing.T) {
		testutil.ResetDB(t, pool)
		a := testutil.SeedAccount(t, pool, "Ivy", "10.00")

		err := db.WithinReadTx(ctx, func(tx *sql.Tx) error {
			before, err := accounts.GetInTx(ctx, tx, a.UserID)
			require.NoError(t, err)

			_, err = pool.ExecContext(ctx, `UPDATE accounts SET balance = balance + 5 WHERE user_id = $1`, a.UserID)
			require.NoError(t, err)

			after, err := accounts.GetInTx(ctx, tx, a.UserID)
			require.NoError(t, err)
			assert.Equal(t, before.Balance.String(), after.Balance.String())

			listed, err := accounts.List(ctx, tx)
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, "10.00", listed[0].Balance.String())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "15.00", testutil.GetBalance(t, pool, a.UserID))
	})
}
