package inmemory

import (
	"context"
	"sync"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

type walletRepositoryImpl struct {
	wallets map[domain.WalletKey]domain.UserWallet
	lock    *sync.RWMutex
}

// NewWalletRepositoryImpl returns a new empty in-memory wallet repository.
func NewWalletRepositoryImpl() domain.WalletRepository {
	return &walletRepositoryImpl{
		wallets: map[domain.WalletKey]domain.UserWallet{},
		lock:    &sync.RWMutex{},
	}
}

func (r *walletRepositoryImpl) AddWallet(
	ctx context.Context, wallet domain.UserWallet,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.wallets[wallet.Key()]; ok {
		return domain.ErrWalletAlreadyExists
	}
	r.wallets[wallet.Key()] = wallet
	return nil
}

func (r *walletRepositoryImpl) GetWallet(
	ctx context.Context, userID, assetID string,
) (*domain.UserWallet, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	wallet, ok := r.wallets[domain.WalletKey{UserID: userID, AssetID: assetID}]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return &wallet, nil
}

func (r *walletRepositoryImpl) ListActiveWallets(
	ctx context.Context,
) ([]domain.UserWallet, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	wallets := make([]domain.UserWallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		if w.IsActive {
			wallets = append(wallets, w)
		}
	}
	return wallets, nil
}

func (r *walletRepositoryImpl) UpdateWallet(
	ctx context.Context, userID, assetID string,
	updateFn func(w *domain.UserWallet) (*domain.UserWallet, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := domain.WalletKey{UserID: userID, AssetID: assetID}
	wallet, ok := r.wallets[key]
	if !ok {
		return domain.ErrWalletNotFound
	}
	updated, err := updateFn(&wallet)
	if err != nil {
		return err
	}
	r.wallets[key] = *updated
	return nil
}
