package dbbadger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

type balanceRepositoryImpl struct {
	store *badgerhold.Store
	mtx   sync.Mutex
}

// NewBalanceRepositoryImpl initializes a badger implementation of the
// domain.BalanceRepository.
func NewBalanceRepositoryImpl(store *badgerhold.Store) domain.BalanceRepository {
	return &balanceRepositoryImpl{store: store}
}

func balanceKey(userID, assetID string) string {
	return fmt.Sprintf("%s:%s", userID, assetID)
}

func (r *balanceRepositoryImpl) GetOrCreateBalance(
	ctx context.Context, userID, assetID string,
) (*domain.LedgerBalance, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.getOrCreateBalance(userID, assetID)
}

func (r *balanceRepositoryImpl) getOrCreateBalance(
	userID, assetID string,
) (*domain.LedgerBalance, error) {
	var balance domain.LedgerBalance
	err := r.store.Get(balanceKey(userID, assetID), &balance)
	if err == nil {
		return &balance, nil
	}
	if err != badgerhold.ErrNotFound {
		return nil, err
	}

	balance = domain.LedgerBalance{
		UserID:    userID,
		AssetID:   assetID,
		Balance:   decimal.Zero,
		UpdatedAt: time.Now(),
	}
	if err := r.store.Insert(balanceKey(userID, assetID), &balance); err != nil {
		if err == badgerhold.ErrKeyExists {
			if err := r.store.Get(balanceKey(userID, assetID), &balance); err != nil {
				return nil, err
			}
			return &balance, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *balanceRepositoryImpl) UpdateBalance(
	ctx context.Context, userID, assetID string,
	updateFn func(b *domain.LedgerBalance) (*domain.LedgerBalance, error),
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	balance, err := r.getOrCreateBalance(userID, assetID)
	if err != nil {
		return err
	}
	updated, err := updateFn(balance)
	if err != nil {
		return err
	}
	return r.store.Update(balanceKey(userID, assetID), updated)
}

func (r *balanceRepositoryImpl) ListBalancesForUser(
	ctx context.Context, userID string,
) ([]domain.LedgerBalance, error) {
	var balances []domain.LedgerBalance
	query := badgerhold.Where("UserID").Eq(userID)
	if err := r.store.Find(&balances, query); err != nil {
		return nil, err
	}
	return balances, nil
}
