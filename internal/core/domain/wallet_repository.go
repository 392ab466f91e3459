package domain

import "context"

// WalletRepository is the abstraction for any kind of database intended to
// persist UserWallets. Implementations must enforce the uniqueness of the
// (user, asset) pair and return ErrWalletAlreadyExists on a violation.
type WalletRepository interface {
	// AddWallet persists a new wallet. It returns ErrWalletAlreadyExists if
	// a wallet for the same (user, asset) pair was inserted first.
	AddWallet(ctx context.Context, wallet UserWallet) error
	// GetWallet returns the wallet of the given (user, asset) pair, or
	// ErrWalletNotFound.
	GetWallet(ctx context.Context, userID, assetID string) (*UserWallet, error)
	// ListActiveWallets returns every wallet still being scanned for
	// deposits.
	ListActiveWallets(ctx context.Context) ([]UserWallet, error)
	// UpdateWallet applies updateFn to the stored wallet and persists the
	// result atomically.
	UpdateWallet(
		ctx context.Context, userID, assetID string,
		updateFn func(w *UserWallet) (*UserWallet, error),
	) error
}
