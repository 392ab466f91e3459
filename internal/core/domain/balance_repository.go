package domain

import "context"

// BalanceRepository is the abstraction for any kind of database intended to
// persist LedgerBalances. Reads on a missing row return an implicit zero
// balance, they never fail.
type BalanceRepository interface {
	// GetOrCreateBalance returns the balance of the given (user, asset)
	// pair, creating a zero row if absent.
	GetOrCreateBalance(
		ctx context.Context, userID, assetID string,
	) (*LedgerBalance, error)
	// UpdateBalance applies updateFn to the stored balance and persists the
	// result atomically with respect to concurrent updates on the same key.
	UpdateBalance(
		ctx context.Context, userID, assetID string,
		updateFn func(b *LedgerBalance) (*LedgerBalance, error),
	) error
	// ListBalancesForUser returns all balances of a user.
	ListBalancesForUser(ctx context.Context, userID string) ([]LedgerBalance, error)
}
