package domain

import "errors"

var (
	// ErrWalletNotFound is returned when no wallet exists for a
	// (user, asset) pair.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletAlreadyExists is returned by repositories on a violated
	// (user, asset) uniqueness constraint. The first writer wins.
	ErrWalletAlreadyExists = errors.New("wallet already exists")
	// ErrDecryptionFailure is returned when stored key material cannot be
	// decrypted, either because it is malformed or because the master key
	// does not match.
	ErrDecryptionFailure = errors.New("failed to decrypt key material")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientFunds is returned when a debit would make a balance
	// negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAddress is returned when a destination address fails the
	// chain format check.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrAmountTooSmall is returned when the commission eats the whole
	// requested amount.
	ErrAmountTooSmall = errors.New("amount too small to cover commission")
	// ErrWithdrawalInProgress is returned when another withdrawal for the
	// same (user, asset) pair is still in flight.
	ErrWithdrawalInProgress = errors.New("another withdrawal is in progress for this asset")
	// ErrInsufficientGas is returned when the sending wallet does not hold
	// enough native coin to pay the estimated network fee.
	ErrInsufficientGas = errors.New("wallet cannot cover the network fee")
	// ErrConfirmationTimeout is returned when a broadcast withdrawal was
	// never mined within the maximum pending age.
	ErrConfirmationTimeout = errors.New("confirmation timeout exceeded")
	// ErrWithdrawalNotFound ...
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	// ErrDepositAlreadyExists is returned by repositories when a deposit
	// with the same tx hash was already recorded.
	ErrDepositAlreadyExists = errors.New("deposit already exists")
	// ErrDepositNotFound ...
	ErrDepositNotFound = errors.New("deposit not found")
	// ErrInvalidStatusTransition is returned on an attempt to move a record
	// to a state unreachable from its current one.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)
