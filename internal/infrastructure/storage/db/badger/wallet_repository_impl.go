package dbbadger

import (
	"context"
	"sync"

	"github.com/timshannon/badgerhold/v4"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

type walletRepositoryImpl struct {
	store *badgerhold.Store
	// serializes closure updates on the same store; uniqueness of the
	// (user, asset) key is enforced by badgerhold's Insert.
	mtx sync.Mutex
}

// NewWalletRepositoryImpl initializes a badger implementation of the
// domain.WalletRepository.
func NewWalletRepositoryImpl(store *badgerhold.Store) domain.WalletRepository {
	return &walletRepositoryImpl{store: store}
}

func (r *walletRepositoryImpl) AddWallet(
	ctx context.Context, wallet domain.UserWallet,
) error {
	if err := r.store.Insert(wallet.Key().String(), &wallet); err != nil {
		if err == badgerhold.ErrKeyExists {
			return domain.ErrWalletAlreadyExists
		}
		return err
	}
	return nil
}

func (r *walletRepositoryImpl) GetWallet(
	ctx context.Context, userID, assetID string,
) (*domain.UserWallet, error) {
	key := domain.WalletKey{UserID: userID, AssetID: assetID}
	var wallet domain.UserWallet
	if err := r.store.Get(key.String(), &wallet); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepositoryImpl) ListActiveWallets(
	ctx context.Context,
) ([]domain.UserWallet, error) {
	var wallets []domain.UserWallet
	query := badgerhold.Where("IsActive").Eq(true)
	if err := r.store.Find(&wallets, query); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *walletRepositoryImpl) UpdateWallet(
	ctx context.Context, userID, assetID string,
	updateFn func(w *domain.UserWallet) (*domain.UserWallet, error),
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	wallet, err := r.GetWallet(ctx, userID, assetID)
	if err != nil {
		return err
	}
	updated, err := updateFn(wallet)
	if err != nil {
		return err
	}
	return r.store.Update(updated.Key().String(), updated)
}
