package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
	"github.com/pablex-exchange/custody-daemon/pkg/wallet"
)

// KeyVault generates, encrypts and serves the custodial keypairs. It is the
// only component that ever sees decrypted key material, and only in memory.
type KeyVault interface {
	// GetOrCreateAddress returns the deposit address of the (user, asset)
	// pair, lazily generating and persisting a keypair on first request.
	// Safe to call concurrently for the same pair: the first writer wins and
	// every caller observes the same address.
	GetOrCreateAddress(ctx context.Context, userID, assetID string) (string, error)
	// Decrypt returns the hex encoded private key of the pair's wallet. The
	// caller must hold it only for the duration of signing.
	Decrypt(ctx context.Context, userID, assetID string) (string, error)
	// ListActiveWallets returns every wallet to be scanned for deposits.
	ListActiveWallets(ctx context.Context) ([]domain.UserWallet, error)
	// DeactivateWallet stops a wallet from being scanned. Wallets are never
	// deleted.
	DeactivateWallet(ctx context.Context, userID, assetID string) error
}

type keyVaultService struct {
	walletRepo domain.WalletRepository
	// masterKey is process-wide read-only state, supplied out of band at
	// startup. Key material at rest is inert without it.
	masterKey string
}

// NewKeyVault returns a KeyVault backed by the given repository and master
// passphrase. The passphrase must not be empty: running without it would be
// silently insecure.
func NewKeyVault(
	walletRepo domain.WalletRepository, masterKey string,
) (KeyVault, error) {
	if len(masterKey) <= 0 {
		return nil, fmt.Errorf("master key must not be empty")
	}
	return &keyVaultService{
		walletRepo: walletRepo,
		masterKey:  masterKey,
	}, nil
}

func (k *keyVaultService) GetOrCreateAddress(
	ctx context.Context, userID, assetID string,
) (string, error) {
	existing, err := k.walletRepo.GetWallet(ctx, userID, assetID)
	if err != nil && !errors.Is(err, domain.ErrWalletNotFound) {
		return "", err
	}
	if existing != nil {
		if existing.IsActive {
			return existing.Address, nil
		}
		// a deactivated wallet goes back under scanning before its address
		// is handed out again, deposits to an unwatched address would never
		// be credited.
		if err := k.walletRepo.UpdateWallet(
			ctx, userID, assetID,
			func(w *domain.UserWallet) (*domain.UserWallet, error) {
				w.Activate()
				return w, nil
			},
		); err != nil {
			return "", err
		}
		log.Debugf(
			"reactivated wallet %s for user %s asset %s",
			existing.Address, userID, assetID,
		)
		return existing.Address, nil
	}

	keypair, err := wallet.NewKeypair()
	if err != nil {
		return "", fmt.Errorf("generating keypair: %w", err)
	}
	encryptedKey, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  keypair.PrivateKey,
		Passphrase: k.masterKey,
	})
	if err != nil {
		return "", fmt.Errorf("encrypting private key: %w", err)
	}

	newWallet := domain.UserWallet{
		UserID:       userID,
		AssetID:      assetID,
		Address:      keypair.Address,
		EncryptedKey: encryptedKey,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := k.walletRepo.AddWallet(ctx, newWallet); err != nil {
		if errors.Is(err, domain.ErrWalletAlreadyExists) {
			// lost the race, the first writer's wallet is the one.
			winner, err := k.walletRepo.GetWallet(ctx, userID, assetID)
			if err != nil {
				return "", err
			}
			return winner.Address, nil
		}
		return "", err
	}

	log.Debugf(
		"created wallet %s for user %s asset %s",
		newWallet.Address, userID, assetID,
	)
	return newWallet.Address, nil
}

func (k *keyVaultService) Decrypt(
	ctx context.Context, userID, assetID string,
) (string, error) {
	w, err := k.walletRepo.GetWallet(ctx, userID, assetID)
	if err != nil {
		return "", err
	}

	privateKey, err := wallet.Decrypt(wallet.DecryptOpts{
		CypherText: w.EncryptedKey,
		Passphrase: k.masterKey,
	})
	if err != nil {
		return "", domain.ErrDecryptionFailure
	}
	return privateKey, nil
}

func (k *keyVaultService) ListActiveWallets(
	ctx context.Context,
) ([]domain.UserWallet, error) {
	return k.walletRepo.ListActiveWallets(ctx)
}

func (k *keyVaultService) DeactivateWallet(
	ctx context.Context, userID, assetID string,
) error {
	return k.walletRepo.UpdateWallet(
		ctx, userID, assetID,
		func(w *domain.UserWallet) (*domain.UserWallet, error) {
			w.Deactivate()
			return w, nil
		},
	)
}
