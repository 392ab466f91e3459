package domain

import (
	"fmt"
	"time"
)

// UserWallet is a custodial keypair held on behalf of a user for one asset.
// The private key is stored encrypted and is only ever decrypted in memory
// by the key vault. LastScannedBlock is the deposit scanning watermark for
// the wallet's address.
type UserWallet struct {
	UserID           string
	AssetID          string
	Address          string
	EncryptedKey     string
	IsActive         bool
	LastScannedBlock uint64
	CreatedAt        time.Time
}

// WalletKey is the identity of a UserWallet. There is at most one wallet
// per (user, asset) pair.
type WalletKey struct {
	UserID  string
	AssetID string
}

func (w UserWallet) Key() WalletKey {
	return WalletKey{
		UserID:  w.UserID,
		AssetID: w.AssetID,
	}
}

func (k WalletKey) String() string {
	return fmt.Sprintf("%s:%s", k.UserID, k.AssetID)
}

// Deactivate marks the wallet as no longer scanned for deposits. Wallets are
// never deleted.
func (w *UserWallet) Deactivate() {
	w.IsActive = false
}

// Activate puts the wallet back under deposit scanning. An address handed
// out to a user must always be watched.
func (w *UserWallet) Activate() {
	w.IsActive = true
}

// AdvanceWatermark moves the scanning watermark forward. It never moves it
// back.
func (w *UserWallet) AdvanceWatermark(block uint64) {
	if block > w.LastScannedBlock {
		w.LastScannedBlock = block
	}
}
