package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pablex-exchange/custody-daemon/internal/core/application"
	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
	"github.com/pablex-exchange/custody-daemon/internal/infrastructure/storage/db/inmemory"
	"github.com/pablex-exchange/custody-daemon/pkg/chain"
)

const (
	testToAddress = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	testTxHash    = "0x4e3a3754410177e6937ef1f84bba68ea139e8d1a2258c5f85db9f1cd715a1bdd"
)

type executorFixture struct {
	executor       application.WithdrawalExecutor
	vault          application.KeyVault
	ledger         application.Ledger
	withdrawalRepo domain.WithdrawalRepository
	chainSvc       *mockChainService
	hotAddress     string
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	ctx := context.Background()
	vault, err := application.NewKeyVault(
		inmemory.NewWalletRepositoryImpl(), testMasterKey,
	)
	require.NoError(t, err)
	hotAddress, err := vault.GetOrCreateAddress(ctx, "user-1", "usdt")
	require.NoError(t, err)

	ledger := application.NewLedger(inmemory.NewBalanceRepositoryImpl())
	require.NoError(t, ledger.Credit(ctx, "user-1", "usdt", decimal.NewFromInt(30)))

	withdrawalRepo := inmemory.NewWithdrawalRepositoryImpl()
	chainSvc := &mockChainService{}

	executor := application.NewWithdrawalExecutor(application.WithdrawalExecutorOpts{
		KeyVault:              vault,
		Ledger:                ledger,
		WithdrawalRepo:        withdrawalRepo,
		ChainSvc:              chainSvc,
		FeeRate:               decimal.RequireFromString("0.005"),
		MinimumFee:            decimal.RequireFromString("2.0"),
		BroadcastTimeout:      time.Second,
		ConfirmationThreshold: 6,
	})

	return &executorFixture{
		executor:       executor,
		vault:          vault,
		ledger:         ledger,
		withdrawalRepo: withdrawalRepo,
		chainSvc:       chainSvc,
		hotAddress:     hotAddress,
	}
}

func (f *executorFixture) expectHappyBroadcast() {
	f.chainSvc.On("IsValidAddress", testToAddress).Return(true)
	f.chainSvc.On(
		"EstimateFee", mock.Anything, f.hotAddress, testToAddress, mock.Anything, "usdt",
	).Return(&chain.Fee{
		Native: decimal.RequireFromString("0.0002"),
		Quote:  decimal.RequireFromString("0.116"),
	}, nil)
	f.chainSvc.On("NativeBalance", mock.Anything, f.hotAddress).
		Return(decimal.RequireFromString("0.05"), nil)
	f.chainSvc.On(
		"BuildAndSignTransfer",
		mock.Anything, mock.Anything, testToAddress, mock.Anything, "usdt",
	).Return(&chain.SignedIntent{AssetID: "usdt", RawTx: []byte{0x01}}, nil)
	f.chainSvc.On("Submit", mock.Anything, mock.Anything).Return(testTxHash, nil)
}

func TestRequestWithdrawal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newExecutorFixture(t)
	f.expectHappyBroadcast()
	f.chainSvc.On("Wait", mock.Anything, testTxHash, uint64(6)).
		Return(&chain.Confirmation{
			TxHash:      testTxHash,
			BlockNumber: 1000,
			GasUsed:     52000,
		}, nil)

	w, err := f.executor.RequestWithdrawal(
		ctx, "user-1", "usdt", decimal.NewFromInt(10), testToAddress,
	)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalCompleted, w.Status)
	require.Equal(t, testTxHash, w.TxHash)
	require.Equal(t, uint64(1000), w.BlockNumber)
	// 10 * 0.005 = 0.05 < 2.0 floor, net is 8.0
	require.True(t, w.Commission.Equal(decimal.RequireFromString("2.0")))
	require.True(t, w.NetAmount.Equal(decimal.RequireFromString("8.0")))

	// the ledger is debited the requested amount
	balance, err := f.ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(20)))

	// the persisted record matches the returned one
	stored, err := f.executor.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalCompleted, stored.Status)

	// the net amount is what goes on-chain
	calls := f.chainSvc.Calls
	for _, call := range calls {
		if call.Method == "BuildAndSignTransfer" {
			amount := call.Arguments.Get(3).(decimal.Decimal)
			require.True(t, amount.Equal(decimal.RequireFromString("8.0")))
		}
	}
}

func TestFailingRequestWithdrawal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		amount        decimal.Decimal
		toAddress     string
		validAddress  bool
		expectedError error
	}{
		{
			name:          "invalid_address",
			amount:        decimal.NewFromInt(10),
			toAddress:     "not-an-address",
			validAddress:  false,
			expectedError: domain.ErrInvalidAddress,
		},
		{
			name:          "amount_too_small",
			amount:        decimal.NewFromInt(1),
			toAddress:     testToAddress,
			validAddress:  true,
			expectedError: domain.ErrAmountTooSmall,
		},
		{
			name:          "insufficient_funds",
			amount:        decimal.NewFromInt(100),
			toAddress:     testToAddress,
			validAddress:  true,
			expectedError: domain.ErrInsufficientFunds,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			f := newExecutorFixture(t)
			f.chainSvc.On("IsValidAddress", tt.toAddress).Return(tt.validAddress)

			w, err := f.executor.RequestWithdrawal(
				ctx, "user-1", "usdt", tt.amount, tt.toAddress,
			)
			require.Nil(t, w)
			require.EqualError(t, err, tt.expectedError.Error())

			// a rejected request leaves the balance untouched
			balance, err := f.ledger.Balance(ctx, "user-1", "usdt")
			require.NoError(t, err)
			require.True(t, balance.Equal(decimal.NewFromInt(30)))
		})
	}
}

func TestRequestWithdrawalBroadcastRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newExecutorFixture(t)
	f.chainSvc.On("IsValidAddress", testToAddress).Return(true)
	f.chainSvc.On(
		"EstimateFee", mock.Anything, f.hotAddress, testToAddress, mock.Anything, "usdt",
	).Return(&chain.Fee{}, nil)
	f.chainSvc.On("NativeBalance", mock.Anything, f.hotAddress).
		Return(decimal.Zero, nil)
	f.chainSvc.On(
		"BuildAndSignTransfer",
		mock.Anything, mock.Anything, testToAddress, mock.Anything, "usdt",
	).Return(&chain.SignedIntent{AssetID: "usdt", RawTx: []byte{0x01}}, nil)
	f.chainSvc.On("Submit", mock.Anything, mock.Anything).
		Return("", chain.ErrBroadcastRejected)

	w, err := f.executor.RequestWithdrawal(
		ctx, "user-1", "usdt", decimal.NewFromInt(10), testToAddress,
	)
	require.EqualError(t, err, chain.ErrBroadcastRejected.Error())
	require.NotNil(t, w)
	require.Equal(t, domain.WithdrawalFailed, w.Status)

	// the debit was compensated
	balance, err := f.ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(30)))

	stored, err := f.executor.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalFailed, stored.Status)
	require.NotEmpty(t, stored.ErrorMessage)
}

func TestRequestWithdrawalUnaffordableGas(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newExecutorFixture(t)
	f.chainSvc.On("IsValidAddress", testToAddress).Return(true)
	f.chainSvc.On(
		"EstimateFee", mock.Anything, f.hotAddress, testToAddress, mock.Anything, "usdt",
	).Return(&chain.Fee{
		Native: decimal.RequireFromString("0.0002"),
		Quote:  decimal.RequireFromString("0.116"),
	}, nil)
	// the hot wallet holds no native coin to pay for gas
	f.chainSvc.On("NativeBalance", mock.Anything, f.hotAddress).
		Return(decimal.Zero, nil)

	w, err := f.executor.RequestWithdrawal(
		ctx, "user-1", "usdt", decimal.NewFromInt(10), testToAddress,
	)
	require.EqualError(t, err, domain.ErrInsufficientGas.Error())
	require.NotNil(t, w)
	require.Equal(t, domain.WithdrawalFailed, w.Status)

	// nothing reached the network
	for _, call := range f.chainSvc.Calls {
		require.NotEqual(t, "BuildAndSignTransfer", call.Method)
		require.NotEqual(t, "Submit", call.Method)
	}

	// the debit was compensated
	balance, err := f.ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(30)))
}

func TestRequestWithdrawalParksOnSlowConfirmation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newExecutorFixture(t)
	f.expectHappyBroadcast()
	f.chainSvc.On("Wait", mock.Anything, testTxHash, uint64(6)).
		Return(nil, context.DeadlineExceeded).Once()

	w, err := f.executor.RequestWithdrawal(
		ctx, "user-1", "usdt", decimal.NewFromInt(10), testToAddress,
	)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalPendingConfirmation, w.Status)
	require.Equal(t, testTxHash, w.TxHash)

	// the transfer is on the network, the debit must stand
	balance, err := f.ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(20)))

	// once the confirmation depth is there, the recheck completes it
	f.chainSvc.On("Confirmations", mock.Anything, testTxHash).
		Return(uint64(7), nil)
	f.chainSvc.On("Wait", mock.Anything, testTxHash, uint64(6)).
		Return(&chain.Confirmation{
			TxHash:      testTxHash,
			BlockNumber: 1200,
			GasUsed:     52000,
		}, nil)

	f.executor.RecheckPending(ctx)

	stored, err := f.executor.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalCompleted, stored.Status)
	require.Equal(t, uint64(1200), stored.BlockNumber)

	balance, err = f.ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(20)))
}

func TestRecheckPendingBelowThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newExecutorFixture(t)
	f.expectHappyBroadcast()
	f.chainSvc.On("Wait", mock.Anything, testTxHash, uint64(6)).
		Return(nil, context.DeadlineExceeded).Once()

	w, err := f.executor.RequestWithdrawal(
		ctx, "user-1", "usdt", decimal.NewFromInt(10), testToAddress,
	)
	require.NoError(t, err)

	// not deep enough yet, the withdrawal stays parked
	f.chainSvc.On("Confirmations", mock.Anything, testTxHash).
		Return(uint64(2), nil)

	f.executor.RecheckPending(ctx)

	stored, err := f.executor.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalPendingConfirmation, stored.Status)
}

func TestRecheckPendingDroppedTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newExecutorFixture(t)
	executor := application.NewWithdrawalExecutor(application.WithdrawalExecutorOpts{
		KeyVault:              f.vault,
		Ledger:                f.ledger,
		WithdrawalRepo:        f.withdrawalRepo,
		ChainSvc:              f.chainSvc,
		FeeRate:               decimal.RequireFromString("0.005"),
		MinimumFee:            decimal.RequireFromString("2.0"),
		BroadcastTimeout:      time.Second,
		ConfirmationThreshold: 6,
		PendingTimeout:        50 * time.Millisecond,
	})
	f.expectHappyBroadcast()
	f.chainSvc.On("Wait", mock.Anything, testTxHash, uint64(6)).
		Return(nil, context.DeadlineExceeded).Once()

	w, err := executor.RequestWithdrawal(
		ctx, "user-1", "usdt", decimal.NewFromInt(10), testToAddress,
	)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalPendingConfirmation, w.Status)

	// the tx stays unknown to the network past the pending timeout, it was
	// dropped from the mempool and will never confirm
	f.chainSvc.On("Confirmations", mock.Anything, testTxHash).
		Return(uint64(0), nil)
	time.Sleep(60 * time.Millisecond)

	executor.RecheckPending(ctx)

	stored, err := executor.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalFailed, stored.Status)
	require.Equal(t, domain.ErrConfirmationTimeout.Error(), stored.ErrorMessage)

	// the debit was compensated
	balance, err := f.ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(30)))
}

func TestConcurrentWithdrawalsSamePair(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newExecutorFixture(t)
	f.expectHappyBroadcast()

	firstInFlight := make(chan struct{})
	release := make(chan struct{})
	f.chainSvc.On("Wait", mock.Anything, testTxHash, uint64(6)).
		Run(func(args mock.Arguments) {
			close(firstInFlight)
			<-release
		}).
		Return(&chain.Confirmation{
			TxHash:      testTxHash,
			BlockNumber: 1000,
			GasUsed:     52000,
		}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.executor.RequestWithdrawal(
			ctx, "user-1", "usdt", decimal.NewFromInt(10), testToAddress,
		)
		require.NoError(t, err)
	}()

	<-firstInFlight

	// a second request for the same pair while one is in flight is refused
	w, err := f.executor.RequestWithdrawal(
		ctx, "user-1", "usdt", decimal.NewFromInt(10), testToAddress,
	)
	require.Nil(t, w)
	require.EqualError(t, err, domain.ErrWithdrawalInProgress.Error())

	close(release)
	<-done

	// only the first request's debit happened
	balance, err := f.ledger.Balance(ctx, "user-1", "usdt")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(20)))
}

func TestListWithdrawalsForUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newExecutorFixture(t)
	f.expectHappyBroadcast()
	f.chainSvc.On("Wait", mock.Anything, testTxHash, uint64(6)).
		Return(&chain.Confirmation{
			TxHash:      testTxHash,
			BlockNumber: 1000,
			GasUsed:     52000,
		}, nil)

	for i := 0; i < 3; i++ {
		_, err := f.executor.RequestWithdrawal(
			ctx, "user-1", "usdt", decimal.NewFromInt(5), testToAddress,
		)
		require.NoError(t, err)
	}

	withdrawals, err := f.executor.ListWithdrawalsForUser(
		ctx, "user-1", domain.Page{Number: 1, Size: 2},
	)
	require.NoError(t, err)
	require.Len(t, withdrawals, 2)

	withdrawals, err = f.executor.ListWithdrawalsForUser(
		ctx, "user-1", domain.Page{Number: 2, Size: 2},
	)
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)

	withdrawals, err = f.executor.ListWithdrawalsForUser(
		ctx, "user-2", domain.Page{Number: 1, Size: 10},
	)
	require.NoError(t, err)
	require.Len(t, withdrawals, 0)
}
