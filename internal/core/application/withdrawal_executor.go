package application

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
	"github.com/pablex-exchange/custody-daemon/pkg/chain"
)

// WithdrawalExecutor validates withdrawal requests, debits the ledger and
// settles the transfer on-chain. It is the only writer allowed to reduce a
// balance for off-chain movement, and the one place a debit is reversible:
// a failure after the debit is always compensated with a re-credit.
type WithdrawalExecutor interface {
	// RequestWithdrawal runs the request through the
	// validated -> debited -> broadcast -> completed|failed state machine.
	// The returned withdrawal is terminal or pending confirmation.
	RequestWithdrawal(
		ctx context.Context, userID, assetID string,
		amount decimal.Decimal, toAddress string,
	) (*domain.Withdrawal, error)
	// GetWithdrawal returns the current state of a withdrawal.
	GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error)
	// ListWithdrawalsForUser returns a user's withdrawal history.
	ListWithdrawalsForUser(
		ctx context.Context, userID string, page domain.Page,
	) ([]domain.Withdrawal, error)
	// RecheckPending re-checks withdrawals parked in pending confirmation.
	RecheckPending(ctx context.Context)
}

// WithdrawalExecutorOpts defines the parameters needed for creating an
// executor with NewWithdrawalExecutor.
type WithdrawalExecutorOpts struct {
	KeyVault       KeyVault
	Ledger         Ledger
	WithdrawalRepo domain.WithdrawalRepository
	ChainSvc       chain.Service
	// FeeRate is the proportional commission rate, MinimumFee the floor
	// covering network gas, both in the withdrawn asset's units.
	FeeRate    decimal.Decimal
	MinimumFee decimal.Decimal
	// BroadcastTimeout bounds the synchronous wait for confirmation, after
	// which the withdrawal parks in pending confirmation.
	BroadcastTimeout      time.Duration
	ConfirmationThreshold uint64
	// PendingTimeout is the maximum age of a parked withdrawal that never
	// got mined before it is failed and compensated. Defaults to one hour.
	PendingTimeout time.Duration
}

type withdrawalExecutor struct {
	keyVault              KeyVault
	ledger                Ledger
	withdrawalRepo        domain.WithdrawalRepository
	chainSvc              chain.Service
	feeRate               decimal.Decimal
	minimumFee            decimal.Decimal
	broadcastTimeout      time.Duration
	confirmationThreshold uint64
	pendingTimeout        time.Duration

	// one active withdrawal per (user, asset): two concurrent requests must
	// not both read the pre-debit balance as sufficient.
	activeMtx sync.Mutex
	active    map[domain.BalanceKey]struct{}
}

// NewWithdrawalExecutor returns a WithdrawalExecutor.
func NewWithdrawalExecutor(opts WithdrawalExecutorOpts) WithdrawalExecutor {
	pendingTimeout := opts.PendingTimeout
	if pendingTimeout <= 0 {
		pendingTimeout = time.Hour
	}
	return &withdrawalExecutor{
		keyVault:              opts.KeyVault,
		ledger:                opts.Ledger,
		withdrawalRepo:        opts.WithdrawalRepo,
		chainSvc:              opts.ChainSvc,
		feeRate:               opts.FeeRate,
		minimumFee:            opts.MinimumFee,
		broadcastTimeout:      opts.BroadcastTimeout,
		confirmationThreshold: opts.ConfirmationThreshold,
		pendingTimeout:        pendingTimeout,
		active:                map[domain.BalanceKey]struct{}{},
	}
}

func (e *withdrawalExecutor) RequestWithdrawal(
	ctx context.Context, userID, assetID string,
	amount decimal.Decimal, toAddress string,
) (*domain.Withdrawal, error) {
	// validation, no side effects on rejection.
	if !e.chainSvc.IsValidAddress(toAddress) {
		return nil, domain.ErrInvalidAddress
	}
	withdrawal, err := domain.NewWithdrawal(
		userID, assetID, amount, toAddress, e.feeRate, e.minimumFee,
	)
	if err != nil {
		return nil, err
	}

	key := domain.BalanceKey{UserID: userID, AssetID: assetID}
	if !e.acquire(key) {
		return nil, domain.ErrWithdrawalInProgress
	}
	defer e.release(key)

	// debit before any on-chain action. InsufficientFunds aborts cleanly.
	if err := e.ledger.Debit(ctx, userID, assetID, amount); err != nil {
		return nil, err
	}
	if err := withdrawal.MarkDebited(); err != nil {
		e.compensate(ctx, withdrawal)
		return nil, err
	}
	if err := e.withdrawalRepo.AddWithdrawal(ctx, *withdrawal); err != nil {
		e.compensate(ctx, withdrawal)
		return nil, err
	}

	return e.broadcast(ctx, withdrawal)
}

func (e *withdrawalExecutor) broadcast(
	ctx context.Context, withdrawal *domain.Withdrawal,
) (*domain.Withdrawal, error) {
	from, err := e.keyVault.GetOrCreateAddress(
		ctx, withdrawal.UserID, withdrawal.AssetID,
	)
	if err != nil {
		return e.fail(ctx, withdrawal, err)
	}

	fee, err := e.chainSvc.EstimateFee(
		ctx, from, withdrawal.ToAddress, withdrawal.NetAmount, withdrawal.AssetID,
	)
	if err != nil {
		return e.fail(ctx, withdrawal, err)
	}
	log.Debugf(
		"withdrawal %s network fee estimate: %s native (%s quote)",
		withdrawal.ID, fee.Native, fee.Quote,
	)

	// a transfer the sender cannot pay gas for must never reach the network.
	gasBalance, err := e.chainSvc.NativeBalance(ctx, from)
	if err != nil {
		return e.fail(ctx, withdrawal, err)
	}
	if gasBalance.LessThan(fee.Native) {
		log.Warnf(
			"withdrawal %s: wallet %s holds %s native, fee estimate is %s",
			withdrawal.ID, from, gasBalance, fee.Native,
		)
		return e.fail(ctx, withdrawal, domain.ErrInsufficientGas)
	}

	// the key is decrypted just-in-time and dropped right after signing.
	privateKey, err := e.keyVault.Decrypt(
		ctx, withdrawal.UserID, withdrawal.AssetID,
	)
	if err != nil {
		return e.fail(ctx, withdrawal, err)
	}
	intent, err := e.chainSvc.BuildAndSignTransfer(
		ctx, privateKey, withdrawal.ToAddress,
		withdrawal.NetAmount, withdrawal.AssetID,
	)
	if err != nil {
		return e.fail(ctx, withdrawal, err)
	}

	txHash, err := e.chainSvc.Submit(ctx, intent)
	if err != nil {
		return e.fail(ctx, withdrawal, err)
	}
	if err := e.update(ctx, withdrawal, func(w *domain.Withdrawal) error {
		return w.MarkBroadcast(txHash)
	}); err != nil {
		return nil, err
	}
	log.Infof("withdrawal %s broadcast as %s", withdrawal.ID, txHash)

	waitCtx, cancel := context.WithTimeout(ctx, e.broadcastTimeout)
	defer cancel()
	confirmation, err := e.chainSvc.Wait(waitCtx, txHash, e.confirmationThreshold)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, chain.ErrProviderUnavailable) {
			// not a failure: the transfer is on the network, park it and
			// let the sweep recheck it instead of blocking indefinitely.
			if err := e.update(ctx, withdrawal, func(w *domain.Withdrawal) error {
				return w.MarkPendingConfirmation()
			}); err != nil {
				return nil, err
			}
			log.Infof("withdrawal %s pending confirmation", withdrawal.ID)
			return withdrawal, nil
		}
		return e.fail(ctx, withdrawal, err)
	}

	if err := e.update(ctx, withdrawal, func(w *domain.Withdrawal) error {
		return w.Complete(confirmation.BlockNumber, confirmation.GasUsed)
	}); err != nil {
		return nil, err
	}
	log.Infof(
		"withdrawal %s completed in block %d",
		withdrawal.ID, confirmation.BlockNumber,
	)
	return withdrawal, nil
}

func (e *withdrawalExecutor) GetWithdrawal(
	ctx context.Context, id string,
) (*domain.Withdrawal, error) {
	return e.withdrawalRepo.GetWithdrawal(ctx, id)
}

func (e *withdrawalExecutor) ListWithdrawalsForUser(
	ctx context.Context, userID string, page domain.Page,
) ([]domain.Withdrawal, error) {
	return e.withdrawalRepo.ListWithdrawalsForUser(ctx, userID, page)
}

// RecheckPending drives parked withdrawals to a terminal state once their
// confirmation depth can be established.
func (e *withdrawalExecutor) RecheckPending(ctx context.Context) {
	pending, err := e.withdrawalRepo.ListPendingConfirmation(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to list pending withdrawals")
		return
	}

	for _, w := range pending {
		w := w
		confirmations, err := e.chainSvc.Confirmations(ctx, w.TxHash)
		if err != nil {
			continue
		}
		// a tx still unknown to the network past the pending timeout was
		// dropped from the mempool and will never confirm. A mined tx
		// (confirmations > 0) is only slow and is never failed here: its
		// transfer may still land, so compensating it could double spend.
		if confirmations == 0 && time.Since(w.CreatedAt) > e.pendingTimeout {
			//nolint:errcheck
			e.fail(ctx, &w, domain.ErrConfirmationTimeout)
			continue
		}
		if confirmations < e.confirmationThreshold {
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		confirmation, err := e.chainSvc.Wait(
			waitCtx, w.TxHash, e.confirmationThreshold,
		)
		cancel()
		if err != nil {
			if errors.Is(err, chain.ErrBroadcastRejected) {
				//nolint:errcheck
				e.fail(ctx, &w, err)
			}
			continue
		}

		if err := e.update(ctx, &w, func(w *domain.Withdrawal) error {
			return w.Complete(confirmation.BlockNumber, confirmation.GasUsed)
		}); err != nil {
			continue
		}
		log.Infof(
			"withdrawal %s completed in block %d after recheck",
			w.ID, confirmation.BlockNumber,
		)
	}
}

// fail marks the withdrawal failed and compensates the ledger debit.
func (e *withdrawalExecutor) fail(
	ctx context.Context, withdrawal *domain.Withdrawal, cause error,
) (*domain.Withdrawal, error) {
	log.WithError(cause).Warnf("withdrawal %s failed", withdrawal.ID)

	if err := e.update(ctx, withdrawal, func(w *domain.Withdrawal) error {
		return w.Fail(cause.Error())
	}); err != nil {
		log.WithError(err).Errorf(
			"failed to mark withdrawal %s as failed", withdrawal.ID,
		)
	}
	e.compensate(ctx, withdrawal)
	return withdrawal, cause
}

// compensate re-credits the requested amount after a failure that happened
// past the debit. A reversible debit that is never reversed is a fund-loss
// bug, so this retries until the credit lands.
func (e *withdrawalExecutor) compensate(
	ctx context.Context, withdrawal *domain.Withdrawal,
) {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		err := e.ledger.Credit(
			ctx, withdrawal.UserID, withdrawal.AssetID,
			withdrawal.RequestedAmount,
		)
		if err == nil {
			log.Infof(
				"compensated withdrawal %s: re-credited %s %s",
				withdrawal.ID, withdrawal.RequestedAmount, withdrawal.AssetID,
			)
			return
		}

		log.WithError(err).Errorf(
			"failed to compensate withdrawal %s (attempt %d), retrying",
			withdrawal.ID, attempt,
		)
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (e *withdrawalExecutor) update(
	ctx context.Context, withdrawal *domain.Withdrawal,
	updateFn func(w *domain.Withdrawal) error,
) error {
	if err := e.withdrawalRepo.UpdateWithdrawal(
		ctx, withdrawal.ID,
		func(w *domain.Withdrawal) (*domain.Withdrawal, error) {
			if err := updateFn(w); err != nil {
				return nil, err
			}
			*withdrawal = *w
			return w, nil
		},
	); err != nil {
		return err
	}
	return nil
}

func (e *withdrawalExecutor) acquire(key domain.BalanceKey) bool {
	e.activeMtx.Lock()
	defer e.activeMtx.Unlock()
	if _, busy := e.active[key]; busy {
		return false
	}
	e.active[key] = struct{}{}
	return true
}

func (e *withdrawalExecutor) release(key domain.BalanceKey) {
	e.activeMtx.Lock()
	defer e.activeMtx.Unlock()
	delete(e.active, key)
}
