package domain

import "context"

// DepositRepository is the abstraction for any kind of database intended to
// persist Deposits. The tx hash is the unique key.
type DepositRepository interface {
	// AddDeposit persists a newly observed deposit. It returns
	// ErrDepositAlreadyExists if the tx hash is already recorded.
	AddDeposit(ctx context.Context, deposit Deposit) error
	// GetDeposit returns the deposit with the given tx hash, or nil if
	// unknown.
	GetDeposit(ctx context.Context, txHash string) (*Deposit, error)
	// UpdateDeposit applies updateFn to the stored deposit and persists the
	// result atomically.
	UpdateDeposit(
		ctx context.Context, txHash string,
		updateFn func(d *Deposit) (*Deposit, error),
	) error
	// ListUncreditedDeposits returns the deposits still in observed or
	// confirmed state, oldest block first.
	ListUncreditedDeposits(ctx context.Context) ([]Deposit, error)
	// ListDepositsForUser returns the deposits of a user, paginated.
	ListDepositsForUser(
		ctx context.Context, userID string, page Page,
	) ([]Deposit, error)
}
