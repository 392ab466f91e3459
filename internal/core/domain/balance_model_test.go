package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

func TestBalanceCreditDebit(t *testing.T) {
	t.Parallel()

	b := &domain.LedgerBalance{UserID: "user-1", AssetID: "usdt"}

	require.NoError(t, b.Credit(decimal.NewFromInt(30)))
	require.True(t, b.Balance.Equal(decimal.NewFromInt(30)))

	require.NoError(t, b.Debit(decimal.NewFromInt(10)))
	require.True(t, b.Balance.Equal(decimal.NewFromInt(20)))

	// debiting the whole remainder is allowed
	require.NoError(t, b.Debit(decimal.NewFromInt(20)))
	require.True(t, b.Balance.IsZero())
}

func TestFailingBalanceDebit(t *testing.T) {
	t.Parallel()

	b := &domain.LedgerBalance{UserID: "user-1", AssetID: "usdt"}
	require.NoError(t, b.Credit(decimal.NewFromInt(10)))

	err := b.Debit(decimal.NewFromInt(11))
	require.EqualError(t, err, domain.ErrInsufficientFunds.Error())
	require.True(t, b.Balance.Equal(decimal.NewFromInt(10)))

	err = b.Debit(decimal.Zero)
	require.EqualError(t, err, domain.ErrInvalidAmount.Error())

	err = b.Credit(decimal.NewFromInt(-1))
	require.EqualError(t, err, domain.ErrInvalidAmount.Error())
}

func TestBalanceKey(t *testing.T) {
	t.Parallel()

	b := domain.LedgerBalance{UserID: "user-1", AssetID: "usdt"}
	require.Equal(
		t, domain.BalanceKey{UserID: "user-1", AssetID: "usdt"}, b.Key(),
	)
}
