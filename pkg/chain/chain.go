package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrProviderUnavailable is returned when the underlying RPC or scan
	// provider is rate limiting or otherwise unreachable. Callers must treat
	// it as transient and retry, never as a transaction failure.
	ErrProviderUnavailable = errors.New("chain provider unavailable")
	// ErrTxNotFound is returned when a transaction hash is unknown to the
	// network.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrBroadcastRejected is returned when the network refuses a signed
	// transaction. This is terminal for the submitted intent.
	ErrBroadcastRejected = errors.New("transaction broadcast rejected")
	// ErrUnsupportedAsset is returned when no contract is known for the
	// given asset id.
	ErrUnsupportedAsset = errors.New("unsupported asset")
)

// TransferEvent is an incoming transfer observed for a watched address.
type TransferEvent struct {
	TxHash      string
	From        string
	To          string
	Amount      decimal.Decimal
	BlockNumber uint64
}

// Fee is a network fee estimate expressed both in the chain's native unit
// and in quote currency.
type Fee struct {
	Native decimal.Decimal
	Quote  decimal.Decimal
}

// SignedIntent is a fully signed transfer ready for broadcast, opaque to
// everything but the Service implementation that built it.
type SignedIntent struct {
	AssetID string
	RawTx   []byte
}

// Confirmation is the terminal outcome of waiting on a broadcast
// transaction.
type Confirmation struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Service abstracts the underlying network so that deposit scanning and
// withdrawal execution stay chain agnostic.
type Service interface {
	// ListIncomingTransfers returns the transfers received by the given
	// address since the given block, in ascending block order. The listing
	// is finite and restartable from any watermark.
	ListIncomingTransfers(
		ctx context.Context, address, assetID string, sinceBlock uint64,
	) ([]TransferEvent, error)
	// Confirmations returns the current confirmation depth of the given
	// transaction, 0 if unknown or unconfirmed.
	Confirmations(ctx context.Context, txHash string) (uint64, error)
	// NativeBalance returns the address' balance of the chain's native coin,
	// expressed in full units.
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	// EstimateFee returns the network cost of transferring the given amount,
	// both in native unit and in quote currency.
	EstimateFee(
		ctx context.Context, from, to string,
		amount decimal.Decimal, assetID string,
	) (*Fee, error)
	// BuildAndSignTransfer builds a transfer of the given amount to the
	// destination and signs it with the given hex encoded private key. The
	// key is only used for the duration of the call.
	BuildAndSignTransfer(
		ctx context.Context, privateKey, to string,
		amount decimal.Decimal, assetID string,
	) (*SignedIntent, error)
	// Submit broadcasts a signed intent and returns its transaction hash.
	Submit(ctx context.Context, intent *SignedIntent) (string, error)
	// Wait blocks until the transaction reaches minConfirmations or the
	// context expires.
	Wait(
		ctx context.Context, txHash string, minConfirmations uint64,
	) (*Confirmation, error)
	// IsValidAddress reports whether the address is well formed for the
	// chain. It is a format-only check and implies nothing about the address
	// being reachable or funded.
	IsValidAddress(address string) bool
}
