package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

type balanceRepositoryImpl struct {
	balances map[domain.BalanceKey]domain.LedgerBalance
	lock     *sync.RWMutex
}

// NewBalanceRepositoryImpl returns a new empty in-memory balance repository.
func NewBalanceRepositoryImpl() domain.BalanceRepository {
	return &balanceRepositoryImpl{
		balances: map[domain.BalanceKey]domain.LedgerBalance{},
		lock:     &sync.RWMutex{},
	}
}

func (r *balanceRepositoryImpl) GetOrCreateBalance(
	ctx context.Context, userID, assetID string,
) (*domain.LedgerBalance, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := domain.BalanceKey{UserID: userID, AssetID: assetID}
	balance, ok := r.balances[key]
	if !ok {
		balance = domain.LedgerBalance{
			UserID:    userID,
			AssetID:   assetID,
			Balance:   decimal.Zero,
			UpdatedAt: time.Now(),
		}
		r.balances[key] = balance
	}
	return &balance, nil
}

func (r *balanceRepositoryImpl) UpdateBalance(
	ctx context.Context, userID, assetID string,
	updateFn func(b *domain.LedgerBalance) (*domain.LedgerBalance, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := domain.BalanceKey{UserID: userID, AssetID: assetID}
	balance, ok := r.balances[key]
	if !ok {
		balance = domain.LedgerBalance{
			UserID:    userID,
			AssetID:   assetID,
			Balance:   decimal.Zero,
			UpdatedAt: time.Now(),
		}
	}
	updated, err := updateFn(&balance)
	if err != nil {
		return err
	}
	r.balances[key] = *updated
	return nil
}

func (r *balanceRepositoryImpl) ListBalancesForUser(
	ctx context.Context, userID string,
) ([]domain.LedgerBalance, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	balances := make([]domain.LedgerBalance, 0)
	for key, b := range r.balances {
		if key.UserID == userID {
			balances = append(balances, b)
		}
	}
	return balances, nil
}
