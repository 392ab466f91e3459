package domain

import "context"

// WithdrawalRepository is the abstraction for any kind of database intended
// to persist Withdrawals.
type WithdrawalRepository interface {
	AddWithdrawal(ctx context.Context, withdrawal Withdrawal) error
	// GetWithdrawal returns the withdrawal with the given id, or
	// ErrWithdrawalNotFound.
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	// UpdateWithdrawal applies updateFn to the stored withdrawal and
	// persists the result atomically.
	UpdateWithdrawal(
		ctx context.Context, id string,
		updateFn func(w *Withdrawal) (*Withdrawal, error),
	) error
	// ListWithdrawalsForUser returns the withdrawals of a user, newest
	// first, paginated.
	ListWithdrawalsForUser(
		ctx context.Context, userID string, page Page,
	) ([]Withdrawal, error)
	// ListPendingConfirmation returns the withdrawals parked waiting for
	// on-chain confirmation.
	ListPendingConfirmation(ctx context.Context) ([]Withdrawal, error)
}
