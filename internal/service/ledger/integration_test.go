package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/brokerage-ledger/internal/config"
	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
	"github.com/josh-kwaku/brokerage-ledger/internal/service/ledger"
	"github.com/josh-kwaku/brokerage-ledger/internal/testutil"
)

func setupEngine(t *testing.T, db *sql.DB) *ledger.Engine {
	t.Helper()
	return setupEngineWithLimit(t, db, "0")
}

func setupEngineWithLimit(t *testing.T, db *sql.DB, limit string) *ledger.Engine {
	t.Helper()
	return ledger.NewEngine(
		repository.NewDB(db),
		repository.NewAccountRepository(db),
		repository.NewPositionRepository(db),
		repository.NewJournalRepository(db),
		repository.NewTransferRepository(db),
		config.Ledger{
			Currency:     "EUR",
			MaxRetries:   10,
			RetryInitial: 5 * time.Millisecond,
			TxLimit:      decimal.RequireFromString(limit),
		},
	)
}

func money(s string) domain.Money { return domain.MustParseMoney(s) }

func TestDepositWithdrawTransfer_Scenario(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "Alice", "500.00")
	b := testutil.SeedAccount(t, db, "Bob", "50.00")

	balance, err := engine.Deposit(ctx, a.UserID, money("200.00"))
	require.NoError(t, err)
	assert.Equal(t, "700.00", balance.String())

	_, err = engine.Withdraw(ctx, a.UserID, money("750.00"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "700.00", testutil.GetBalance(t, db, a.UserID))

	rec, err := engine.Transfer(ctx, ledger.TransferRequest{
		FromUserID: a.UserID,
		ToIBAN:     b.IBAN,
		ToName:     "Bob",
		Amount:     money("300.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, a.UserID, rec.FromUserID)
	assert.Equal(t, b.UserID, rec.ToUserID)
	assert.Equal(t, "300.00", rec.Amount.String())

	assert.Equal(t, "400.00", testutil.GetBalance(t, db, a.UserID))
	assert.Equal(t, "350.00", testutil.GetBalance(t, db, b.UserID))
	assert.Equal(t, 1, testutil.CountTransfers(t, db, a.UserID))

	entries, total, err := engine.Journal(ctx, a.UserID, 50, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	assert.Equal(t, domain.EntryKindDeposit, entries[0].Kind)
	assert.Equal(t, domain.EntryKindTransferOut, entries[1].Kind)
	assert.Equal(t, "-300.00", entries[1].Amount.String())
	assert.Equal(t, "400.00", entries[1].BalanceAfter.String())
	require.NotNil(t, entries[1].TransferID)
	assert.Equal(t, rec.ID, *entries[1].TransferID)

	received, total, err := engine.Journal(ctx, b.UserID, 50, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, domain.EntryKindTransferIn, received[0].Kind)
	assert.Equal(t, "300.00", received[0].Amount.String())
}

func TestDepositThenWithdraw_RestoresBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "Alice", "12.34")

	_, err := engine.Deposit(ctx, a.UserID, money("0.66"))
	require.NoError(t, err)
	balance, err := engine.Withdraw(ctx, a.UserID, money("0.66"))
	require.NoError(t, err)

	assert.Equal(t, "12.34", balance.String())
	assert.Equal(t, 2, testutil.CountJournalEntries(t, db, a.UserID))
}

func TestWithdraw_ExactBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)

	a := testutil.SeedAccount(t, db, "Alice", "100.00")

	balance, err := engine.Withdraw(context.Background(), a.UserID, money("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "0.00", balance.String())
}

func TestOperations_UnknownUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()
	ghost := uuid.New()

	_, err := engine.Deposit(ctx, ghost, money("1.00"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = engine.Withdraw(ctx, ghost, money("1.00"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = engine.GetBalance(ctx, ghost)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = engine.BuyPosition(ctx, ledger.PositionRequest{UserID: ghost, Symbol: "XYZ", Quantity: 1, PricePerUnit: money("1.00")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvalidAmounts_LeaveNoTrace(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "Alice", "10.00")

	_, err := engine.Deposit(ctx, a.UserID, domain.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = engine.Withdraw(ctx, a.UserID, money("-1.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Equal(t, "10.00", testutil.GetBalance(t, db, a.UserID))
	assert.Equal(t, 0, testutil.CountJournalEntries(t, db, a.UserID))
}

func TestTransfer_InsufficientFunds_NoChange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)

	a := testutil.SeedAccount(t, db, "Alice", "100.00")
	b := testutil.SeedAccount(t, db, "Bob", "0.00")

	_, err := engine.Transfer(context.Background(), ledger.TransferRequest{
		FromUserID: a.UserID,
		ToIBAN:     b.IBAN,
		ToName:     "Bob",
		Amount:     money("150.00"),
	})

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "100.00", testutil.GetBalance(t, db, a.UserID))
	assert.Equal(t, "0.00", testutil.GetBalance(t, db, b.UserID))
	assert.Equal(t, 0, testutil.CountTransfers(t, db, a.UserID))
	assert.Equal(t, 0, testutil.CountJournalEntries(t, db, a.UserID))
	assert.Equal(t, 0, testutil.CountJournalEntries(t, db, b.UserID))
}

func TestTransfer_ReceiverResolution(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "Alice", "100.00")
	b := testutil.SeedAccount(t, db, "Bob", "0.00")

	t.Run("wrong name", func(t *testing.T) {
		_, err := engine.Transfer(ctx, ledger.TransferRequest{
			FromUserID: a.UserID, ToIBAN: b.IBAN, ToName: "Robert", Amount: money("1.00"),
		})
		require.ErrorIs(t, err, domain.ErrReceiverNotFound)
	})

	t.Run("unknown iban", func(t *testing.T) {
		_, err := engine.Transfer(ctx, ledger.TransferRequest{
			FromUserID: a.UserID, ToIBAN: "NL00NOPE0000000000", ToName: "Bob", Amount: money("1.00"),
		})
		require.ErrorIs(t, err, domain.ErrReceiverNotFound)
	})

	t.Run("self transfer", func(t *testing.T) {
		_, err := engine.Transfer(ctx, ledger.TransferRequest{
			FromUserID: a.UserID, ToIBAN: a.IBAN, ToName: "Alice", Amount: money("1.00"),
		})
		require.ErrorIs(t, err, domain.ErrSelfTransfer)
	})

	t.Run("iban typed with spaces and lower case", func(t *testing.T) {
		spaced := b.IBAN[:4] + " " + b.IBAN[4:8] + " " + b.IBAN[8:]
		rec, err := engine.Transfer(ctx, ledger.TransferRequest{
			FromUserID: a.UserID, ToIBAN: " " + strings.ToLower(spaced), ToName: "Bob", Amount: money("1.00"),
		})
		require.NoError(t, err)
		assert.Equal(t, b.UserID, rec.ToUserID)
	})

	assert.Equal(t, "99.00", testutil.GetBalance(t, db, a.UserID))
	assert.Equal(t, "1.00", testutil.GetBalance(t, db, b.UserID))
}

func TestTransfer_LimitExceeded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngineWithLimit(t, db, "100")

	a := testutil.SeedAccount(t, db, "Alice", "1000.00")
	b := testutil.SeedAccount(t, db, "Bob", "0.00")

	_, err := engine.Transfer(context.Background(), ledger.TransferRequest{
		FromUserID: a.UserID, ToIBAN: b.IBAN, ToName: "Bob", Amount: money("100.01"),
	})

	require.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Equal(t, "1000.00", testutil.GetBalance(t, db, a.UserID))
}

func TestBuySell_Scenario(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	c := testutil.SeedAccount(t, db, "Carol", "100.00")

	balance, err := engine.BuyPosition(ctx, ledger.PositionRequest{
		UserID: c.UserID, Symbol: "XYZ", Quantity: 10, PricePerUnit: money("5.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "50.00", balance.String())

	holdings, err := engine.Holdings(ctx, c.UserID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "XYZ", holdings[0].Symbol)
	assert.Equal(t, int64(10), holdings[0].Quantity)

	_, err = engine.SellPosition(ctx, ledger.PositionRequest{
		UserID: c.UserID, Symbol: "XYZ", Quantity: 15, PricePerUnit: money("6.00"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	assert.Equal(t, "50.00", testutil.GetBalance(t, db, c.UserID))
	assert.Equal(t, 1, testutil.CountLots(t, db, c.UserID))

	balance, err = engine.SellPosition(ctx, ledger.PositionRequest{
		UserID: c.UserID, Symbol: "xyz", Quantity: 10, PricePerUnit: money("6.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "110.00", balance.String())

	holdings, err = engine.Holdings(ctx, c.UserID)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	lots, err := engine.Lots(ctx, c.UserID, "XYZ")
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, int64(10), lots[0].Quantity)
	assert.Equal(t, int64(-10), lots[1].Quantity)
	assert.Equal(t, domain.SideSell, lots[1].Side())
	assert.Less(t, lots[0].Seq, lots[1].Seq)

	assert.Equal(t, 0, testutil.CountJournalEntries(t, db, c.UserID))
}

func TestBuy_InsufficientFunds_NoLot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)

	c := testutil.SeedAccount(t, db, "Carol", "49.99")

	_, err := engine.BuyPosition(context.Background(), ledger.PositionRequest{
		UserID: c.UserID, Symbol: "XYZ", Quantity: 10, PricePerUnit: money("5.00"),
	})

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "49.99", testutil.GetBalance(t, db, c.UserID))
	assert.Equal(t, 0, testutil.CountLots(t, db, c.UserID))
}

func TestSell_NeverHeld(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)

	c := testutil.SeedAccount(t, db, "Carol", "0.00")

	_, err := engine.SellPosition(context.Background(), ledger.PositionRequest{
		UserID: c.UserID, Symbol: "XYZ", Quantity: 1, PricePerUnit: money("1.00"),
	})

	require.ErrorIs(t, err, domain.ErrInsufficientHoldings)
	assert.Equal(t, 0, testutil.CountLots(t, db, c.UserID))
}

func TestConcurrentWithdrawals_NeverOverdraw(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "Alice", "100.00")

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded = domain.Zero
		failures  []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Withdraw(ctx, a.UserID, money("15.00"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded = succeeded.Add(money("15.00"))
		}()
	}
	wg.Wait()

	for _, err := range failures {
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	}
	assert.Equal(t, "90.00", succeeded.String())
	assert.Equal(t, "10.00", testutil.GetBalance(t, db, a.UserID))
	assert.Equal(t, 6, testutil.CountJournalEntries(t, db, a.UserID))
}

func TestConcurrentOpposingTransfers_NoDeadlock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "Alice", "1000.00")
	b := testutil.SeedAccount(t, db, "Bob", "1000.00")

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := ledger.TransferRequest{FromUserID: a.UserID, ToIBAN: b.IBAN, ToName: "Bob", Amount: money("1.00")}
			if i%2 == 1 {
				req = ledger.TransferRequest{FromUserID: b.UserID, ToIBAN: a.IBAN, ToName: "Alice", Amount: money("1.00")}
			}
			_, err := engine.Transfer(ctx, req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, "1000.00", testutil.GetBalance(t, db, a.UserID))
	assert.Equal(t, "1000.00", testutil.GetBalance(t, db, b.UserID))
	assert.Equal(t, 40, testutil.CountTransfers(t, db, a.UserID))
}

func TestConcurrentSells_NeverOversell(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	c := testutil.SeedAccount(t, db, "Carol", "100.00")
	_, err := engine.BuyPosition(ctx, ledger.PositionRequest{UserID: c.UserID, Symbol: "XYZ", Quantity: 10, PricePerUnit: money("1.00")})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int64
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.SellPosition(ctx, ledger.PositionRequest{UserID: c.UserID, Symbol: "XYZ", Quantity: 3, PricePerUnit: money("2.00")})
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)
				return
			}
			mu.Lock()
			sold += 3
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(9), sold)
	assertPrefixSumsNonNegative(t, engine, c.UserID, "XYZ")
	assert.Equal(t, "108.00", testutil.GetBalance(t, db, c.UserID))
}

// TestRandomOperations_HoldInvariants drives a random mix of operations and
// checks that balances stay non-negative, lot prefix sums stay non-negative
// and every balance reconciles with its journal and lots.
func TestRandomOperations_HoldInvariants(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := setupEngine(t, db)
	ctx := context.Background()

	accts := []*domain.Account{
		testutil.SeedAccount(t, db, "Alice", "200.00"),
		testutil.SeedAccount(t, db, "Bob", "50.00"),
		testutil.SeedAccount(t, db, "Carol", "0.00"),
	}
	symbols := []string{"XYZ", "ABC"}
	rng := rand.New(rand.NewSource(42))

	for range 200 {
		from := accts[rng.Intn(len(accts))]
		to := accts[rng.Intn(len(accts))]
		amount := domain.MoneyFromCents(int64(rng.Intn(5000) + 1))
		symbol := symbols[rng.Intn(len(symbols))]
		qty := int64(rng.Intn(5) + 1)

		var err error
		switch rng.Intn(5) {
		case 0:
			_, err = engine.Deposit(ctx, from.UserID, amount)
		case 1:
			_, err = engine.Withdraw(ctx, from.UserID, amount)
		case 2:
			_, err = engine.Transfer(ctx, ledger.TransferRequest{FromUserID: from.UserID, ToIBAN: to.IBAN, ToName: to.Name, Amount: amount})
		case 3:
			_, err = engine.BuyPosition(ctx, ledger.PositionRequest{UserID: from.UserID, Symbol: symbol, Quantity: qty, PricePerUnit: domain.MoneyFromCents(int64(rng.Intn(1000)))})
		case 4:
			_, err = engine.SellPosition(ctx, ledger.PositionRequest{UserID: from.UserID, Symbol: symbol, Quantity: qty, PricePerUnit: domain.MoneyFromCents(int64(rng.Intn(1000)))})
		}
		if err != nil {
			require.True(t,
				errors.Is(err, domain.ErrInsufficientFunds) ||
					errors.Is(err, domain.ErrInsufficientHoldings) ||
					errors.Is(err, domain.ErrSelfTransfer),
				"unexpected error: %v", err)
		}
	}

	journal := repository.NewJournalRepository(db)
	positions := repository.NewPositionRepository(db)
	for _, a := range accts {
		balance, err := engine.GetBalance(ctx, a.UserID)
		require.NoError(t, err)
		assert.False(t, balance.IsNegative())

		sum, err := journal.Sum(ctx, nil, a.UserID)
		require.NoError(t, err)
		flow, err := positions.CashFlow(ctx, nil, a.UserID)
		require.NoError(t, err)
		assert.Equal(t, balance.String(), a.OpeningBalance.Add(sum).Add(flow).String(), "reconcile %s", a.Name)

		for _, s := range symbols {
			assertPrefixSumsNonNegative(t, engine, a.UserID, s)
		}
	}
}

func assertPrefixSumsNonNegative(t *testing.T, engine *ledger.Engine, userID uuid.UUID, symbol string) {
	t.Helper()

	lots, err := engine.Lots(context.Background(), userID, symbol)
	require.NoError(t, err)

	var running int64
	for _, l := range lots {
		running += l.Quantity
		require.GreaterOrEqual(t, running, int64(0), "lot %s took %s negative", l.ID, symbol)
	}
}
