package application

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

// Ledger is the single source of truth for user balances. Mutations for one
// (user, asset) pair are serialized, different pairs proceed independently.
// The ledger itself has no notion of "already applied": idempotency of
// credits lives with the deposit scanner's tx hash dedup.
type Ledger interface {
	// Balance returns the current balance, zero if the pair was never
	// referenced before. It never fails on a missing row.
	Balance(ctx context.Context, userID, assetID string) (decimal.Decimal, error)
	// Credit increases the balance by the given positive amount.
	Credit(ctx context.Context, userID, assetID string, amount decimal.Decimal) error
	// Debit decreases the balance by the given positive amount, failing with
	// ErrInsufficientFunds if the result would be negative. The check and
	// the decrement are one atomic unit.
	Debit(ctx context.Context, userID, assetID string, amount decimal.Decimal) error
	// BalancesForUser returns all balances of a user.
	BalancesForUser(ctx context.Context, userID string) ([]domain.LedgerBalance, error)
}

type ledgerService struct {
	balanceRepo domain.BalanceRepository

	locksMtx sync.Mutex
	locks    map[domain.BalanceKey]*sync.Mutex
}

// NewLedger returns a Ledger backed by the given repository.
func NewLedger(balanceRepo domain.BalanceRepository) Ledger {
	return &ledgerService{
		balanceRepo: balanceRepo,
		locks:       map[domain.BalanceKey]*sync.Mutex{},
	}
}

func (l *ledgerService) Balance(
	ctx context.Context, userID, assetID string,
) (decimal.Decimal, error) {
	balance, err := l.balanceRepo.GetOrCreateBalance(ctx, userID, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Balance, nil
}

func (l *ledgerService) Credit(
	ctx context.Context, userID, assetID string, amount decimal.Decimal,
) error {
	if amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	return l.mutate(ctx, userID, assetID, func(b *domain.LedgerBalance) error {
		return b.Credit(amount)
	})
}

func (l *ledgerService) Debit(
	ctx context.Context, userID, assetID string, amount decimal.Decimal,
) error {
	if amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	return l.mutate(ctx, userID, assetID, func(b *domain.LedgerBalance) error {
		return b.Debit(amount)
	})
}

func (l *ledgerService) BalancesForUser(
	ctx context.Context, userID string,
) ([]domain.LedgerBalance, error) {
	return l.balanceRepo.ListBalancesForUser(ctx, userID)
}

// mutate runs the read-modify-write under the pair's lock so that no caller
// ever observes a transient negative balance or a lost update.
func (l *ledgerService) mutate(
	ctx context.Context, userID, assetID string,
	mutateFn func(b *domain.LedgerBalance) error,
) error {
	lock := l.lockFor(domain.BalanceKey{UserID: userID, AssetID: assetID})
	lock.Lock()
	defer lock.Unlock()

	if _, err := l.balanceRepo.GetOrCreateBalance(ctx, userID, assetID); err != nil {
		return err
	}
	return l.balanceRepo.UpdateBalance(
		ctx, userID, assetID,
		func(b *domain.LedgerBalance) (*domain.LedgerBalance, error) {
			if err := mutateFn(b); err != nil {
				return nil, err
			}
			return b, nil
		},
	)
}

func (l *ledgerService) lockFor(key domain.BalanceKey) *sync.Mutex {
	l.locksMtx.Lock()
	defer l.locksMtx.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}
