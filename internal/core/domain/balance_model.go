package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerBalance is the off-chain balance of a user for one asset. It is
// created at zero on first reference and only ever mutated through relative
// credit/debit operations, never overwritten with absolute values.
type LedgerBalance struct {
	UserID    string
	AssetID   string
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// BalanceKey is the identity of a LedgerBalance.
type BalanceKey struct {
	UserID  string
	AssetID string
}

func (b LedgerBalance) Key() BalanceKey {
	return BalanceKey{
		UserID:  b.UserID,
		AssetID: b.AssetID,
	}
}

// Credit increases the balance by the given positive amount.
func (b *LedgerBalance) Credit(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.Balance = b.Balance.Add(amount)
	b.UpdatedAt = time.Now()
	return nil
}

// Debit decreases the balance by the given positive amount. The balance
// check and the decrement are one unit, the balance never goes negative.
func (b *LedgerBalance) Debit(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if b.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	b.Balance = b.Balance.Sub(amount)
	b.UpdatedAt = time.Now()
	return nil
}
