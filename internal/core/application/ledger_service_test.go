package application_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pablex-exchange/custody-daemon/internal/core/application"
	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
	"github.com/pablex-exchange/custody-daemon/internal/infrastructure/storage/db/inmemory"
)

func TestLedgerBalanceStartsAtZero(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := application.NewLedger(inmemory.NewBalanceRepositoryImpl())

	balance, err := ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestLedgerCreditDebit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := application.NewLedger(inmemory.NewBalanceRepositoryImpl())

	require.NoError(t, ledger.Credit(ctx, "user-1", "usdt", decimal.NewFromInt(30)))
	require.NoError(t, ledger.Debit(ctx, "user-1", "usdt", decimal.NewFromInt(10)))

	balance, err := ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(20)))
}

func TestFailingLedgerOps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := application.NewLedger(inmemory.NewBalanceRepositoryImpl())

	err := ledger.Debit(ctx, "user-1", "usdt", decimal.NewFromInt(1))
	require.EqualError(t, err, domain.ErrInsufficientFunds.Error())

	err = ledger.Credit(ctx, "user-1", "usdt", decimal.Zero)
	require.EqualError(t, err, domain.ErrInvalidAmount.Error())

	err = ledger.Debit(ctx, "user-1", "usdt", decimal.NewFromInt(-1))
	require.EqualError(t, err, domain.ErrInvalidAmount.Error())
}

func TestLedgerConcurrentDebits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := application.NewLedger(inmemory.NewBalanceRepositoryImpl())
	require.NoError(t, ledger.Credit(ctx, "user-1", "usdt", decimal.NewFromInt(100)))

	// 10 concurrent debits of 30 against a balance of 100: exactly 3 can
	// succeed, the balance never goes negative.
	numOfConcurrentRequests := 10
	succeeded := int32(0)

	wg := &sync.WaitGroup{}
	wg.Add(numOfConcurrentRequests)
	for i := 0; i < numOfConcurrentRequests; i++ {
		go func() {
			defer wg.Done()
			if err := ledger.Debit(
				ctx, "user-1", "usdt", decimal.NewFromInt(30),
			); err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(3), succeeded)

	balance, err := ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(10)))
}

func TestLedgerConcurrentCredits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := application.NewLedger(inmemory.NewBalanceRepositoryImpl())

	numOfConcurrentRequests := 50

	wg := &sync.WaitGroup{}
	wg.Add(numOfConcurrentRequests)
	for i := 0; i < numOfConcurrentRequests; i++ {
		go func() {
			defer wg.Done()
			require.NoError(
				t, ledger.Credit(ctx, "user-1", "usdt", decimal.NewFromInt(1)),
			)
		}()
	}
	wg.Wait()

	balance, err := ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(50)))
}

func TestLedgerBalancesForUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := application.NewLedger(inmemory.NewBalanceRepositoryImpl())

	require.NoError(t, ledger.Credit(ctx, "user-1", "usdt", decimal.NewFromInt(10)))
	require.NoError(t, ledger.Credit(ctx, "user-1", "bnb", decimal.NewFromInt(2)))
	require.NoError(t, ledger.Credit(ctx, "user-2", "usdt", decimal.NewFromInt(5)))

	balances, err := ledger.BalancesForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, balances, 2)
}
