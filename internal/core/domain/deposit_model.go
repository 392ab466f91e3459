package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DepositObserved means the transfer has been seen on-chain but has not
	// reached the confirmation threshold yet.
	DepositObserved DepositStatus = "observed"
	// DepositConfirmed means the confirmation threshold is met but the
	// ledger has not been credited yet.
	DepositConfirmed DepositStatus = "confirmed"
	// DepositCredited means the ledger credit succeeded. Terminal.
	DepositCredited DepositStatus = "credited"
)

type DepositStatus string

// Deposit records an incoming on-chain transfer to a custodial address. The
// transaction hash is the natural idempotency key: observing the same hash
// twice must never credit the ledger twice.
type Deposit struct {
	TxHash        string
	UserID        string
	AssetID       string
	FromAddress   string
	ToAddress     string
	Amount        decimal.Decimal
	BlockNumber   uint64
	Confirmations uint64
	Status        DepositStatus
	CreatedAt     time.Time
	CreditedAt    time.Time
}

func (d Deposit) Key() string {
	return d.TxHash
}

// Confirm transitions the deposit to confirmed once the threshold is met.
func (d *Deposit) Confirm(confirmations uint64) error {
	if d.Status == DepositCredited {
		return ErrInvalidStatusTransition
	}
	d.Confirmations = confirmations
	d.Status = DepositConfirmed
	return nil
}

// MarkCredited transitions the deposit to its terminal state. Only allowed
// after a successful ledger credit of a confirmed deposit.
func (d *Deposit) MarkCredited() error {
	if d.Status != DepositConfirmed {
		return ErrInvalidStatusTransition
	}
	d.Status = DepositCredited
	d.CreditedAt = time.Now()
	return nil
}

// IsCredited ...
func (d Deposit) IsCredited() bool {
	return d.Status == DepositCredited
}
