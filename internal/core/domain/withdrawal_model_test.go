package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

var (
	feeRate    = decimal.RequireFromString("0.005")
	minimumFee = decimal.RequireFromString("2.0")
)

func TestNewWithdrawal(t *testing.T) {
	t.Parallel()

	w, err := domain.NewWithdrawal(
		"user-1", "usdt", decimal.NewFromInt(1000),
		"0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		feeRate, minimumFee,
	)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NotEmpty(t, w.ID)
	require.Equal(t, domain.WithdrawalValidated, w.Status)
	// 1000 * 0.005 = 5.0 > 2.0 floor
	require.True(t, w.Commission.Equal(decimal.NewFromInt(5)))
	require.True(t, w.NetAmount.Equal(decimal.NewFromInt(995)))
}

func TestNewWithdrawalMinimumFeeFloor(t *testing.T) {
	t.Parallel()

	w, err := domain.NewWithdrawal(
		"user-1", "usdt", decimal.NewFromInt(10),
		"0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		feeRate, minimumFee,
	)
	require.NoError(t, err)
	// 10 * 0.005 = 0.05 < 2.0, floor applies
	require.True(t, w.Commission.Equal(decimal.RequireFromString("2.0")))
	require.True(t, w.NetAmount.Equal(decimal.RequireFromString("8.0")))
}

func TestFailingNewWithdrawal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		amount        decimal.Decimal
		expectedError error
	}{
		{
			name:          "zero_amount",
			amount:        decimal.Zero,
			expectedError: domain.ErrInvalidAmount,
		},
		{
			name:          "negative_amount",
			amount:        decimal.NewFromInt(-5),
			expectedError: domain.ErrInvalidAmount,
		},
		{
			name:          "amount_swallowed_by_commission",
			amount:        decimal.NewFromInt(1),
			expectedError: domain.ErrAmountTooSmall,
		},
		{
			name:          "amount_equal_to_commission",
			amount:        decimal.RequireFromString("2.0"),
			expectedError: domain.ErrAmountTooSmall,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w, err := domain.NewWithdrawal(
				"user-1", "usdt", tt.amount,
				"0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
				feeRate, minimumFee,
			)
			require.Nil(t, w)
			require.EqualError(t, err, tt.expectedError.Error())
		})
	}
}

func TestWithdrawalLifecycle(t *testing.T) {
	t.Parallel()

	w := newTestWithdrawal(t)

	require.NoError(t, w.MarkDebited())
	require.Equal(t, domain.WithdrawalDebited, w.Status)

	require.NoError(t, w.MarkBroadcast("0xdeadbeef"))
	require.Equal(t, domain.WithdrawalBroadcast, w.Status)
	require.Equal(t, "0xdeadbeef", w.TxHash)

	require.NoError(t, w.Complete(1234, 21000))
	require.Equal(t, domain.WithdrawalCompleted, w.Status)
	require.Equal(t, uint64(1234), w.BlockNumber)
	require.Equal(t, uint64(21000), w.GasUsed)
	require.False(t, w.CompletedAt.IsZero())
	require.True(t, w.Status.IsTerminal())
}

func TestWithdrawalCompleteAfterPendingConfirmation(t *testing.T) {
	t.Parallel()

	w := newTestWithdrawal(t)
	require.NoError(t, w.MarkDebited())
	require.NoError(t, w.MarkBroadcast("0xdeadbeef"))
	require.NoError(t, w.MarkPendingConfirmation())
	require.Equal(t, domain.WithdrawalPendingConfirmation, w.Status)

	require.NoError(t, w.Complete(1234, 21000))
	require.Equal(t, domain.WithdrawalCompleted, w.Status)
}

func TestWithdrawalFail(t *testing.T) {
	t.Parallel()

	w := newTestWithdrawal(t)
	require.NoError(t, w.MarkDebited())

	require.NoError(t, w.Fail("broadcast rejected"))
	require.Equal(t, domain.WithdrawalFailed, w.Status)
	require.Equal(t, "broadcast rejected", w.ErrorMessage)
	require.True(t, w.Status.IsTerminal())

	// terminal states are final
	require.EqualError(
		t, w.Fail("again"), domain.ErrInvalidStatusTransition.Error(),
	)
	require.EqualError(
		t, w.MarkDebited(), domain.ErrInvalidStatusTransition.Error(),
	)
}

func TestFailingWithdrawalTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(w *domain.Withdrawal) error
	}{
		{
			name: "broadcast_before_debit",
			fn: func(w *domain.Withdrawal) error {
				return w.MarkBroadcast("0xdeadbeef")
			},
		},
		{
			name: "complete_before_broadcast",
			fn: func(w *domain.Withdrawal) error {
				return w.Complete(1, 1)
			},
		},
		{
			name: "pending_confirmation_before_broadcast",
			fn: func(w *domain.Withdrawal) error {
				return w.MarkPendingConfirmation()
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := newTestWithdrawal(t)
			require.EqualError(
				t, tt.fn(w), domain.ErrInvalidStatusTransition.Error(),
			)
		})
	}
}

func newTestWithdrawal(t *testing.T) *domain.Withdrawal {
	t.Helper()

	w, err := domain.NewWithdrawal(
		"user-1", "usdt", decimal.NewFromInt(100),
		"0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		feeRate, minimumFee,
	)
	require.NoError(t, err)
	return w
}
