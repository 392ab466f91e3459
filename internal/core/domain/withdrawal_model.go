package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// WithdrawalValidated means the request passed validation, nothing has
	// been debited yet.
	WithdrawalValidated WithdrawalStatus = "validated"
	// WithdrawalDebited means the requested amount has been taken from the
	// ledger.
	WithdrawalDebited WithdrawalStatus = "debited"
	// WithdrawalBroadcast means the on-chain transfer has been submitted.
	WithdrawalBroadcast WithdrawalStatus = "broadcast"
	// WithdrawalPendingConfirmation means the broadcast transfer did not
	// confirm within the bounded wait and is re-checked on later ticks.
	WithdrawalPendingConfirmation WithdrawalStatus = "pending_confirmation"
	// WithdrawalCompleted is terminal, the transfer confirmed on-chain.
	WithdrawalCompleted WithdrawalStatus = "completed"
	// WithdrawalFailed is terminal, the debit has been compensated.
	WithdrawalFailed WithdrawalStatus = "failed"
)

type WithdrawalStatus string

// IsTerminal ...
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed
}

// Withdrawal is a request to move funds off the platform. Commission is
// max(requestedAmount * feeRate, minimumFee), both expressed in the
// withdrawn asset's units; what actually leaves the hot wallet is the net
// amount, while the ledger is debited the requested amount.
type Withdrawal struct {
	ID              string
	UserID          string
	AssetID         string
	RequestedAmount decimal.Decimal
	ToAddress       string
	Commission      decimal.Decimal
	NetAmount       decimal.Decimal
	Status          WithdrawalStatus
	TxHash          string
	BlockNumber     uint64
	GasUsed         uint64
	ErrorMessage    string
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// NewWithdrawal validates a withdrawal request and returns it in validated
// state. No side effects happen here: a rejected request has touched
// nothing.
func NewWithdrawal(
	userID, assetID string,
	requestedAmount decimal.Decimal,
	toAddress string,
	feeRate, minimumFee decimal.Decimal,
) (*Withdrawal, error) {
	if requestedAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	commission := decimal.Max(requestedAmount.Mul(feeRate), minimumFee)
	netAmount := requestedAmount.Sub(commission)
	if netAmount.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}

	return &Withdrawal{
		ID:              uuid.New().String(),
		UserID:          userID,
		AssetID:         assetID,
		RequestedAmount: requestedAmount,
		ToAddress:       toAddress,
		Commission:      commission,
		NetAmount:       netAmount,
		Status:          WithdrawalValidated,
		CreatedAt:       time.Now(),
	}, nil
}

// MarkDebited records that the ledger debit succeeded.
func (w *Withdrawal) MarkDebited() error {
	if w.Status != WithdrawalValidated {
		return ErrInvalidStatusTransition
	}
	w.Status = WithdrawalDebited
	return nil
}

// MarkBroadcast records the tx hash returned by the network.
func (w *Withdrawal) MarkBroadcast(txHash string) error {
	if w.Status != WithdrawalDebited {
		return ErrInvalidStatusTransition
	}
	w.Status = WithdrawalBroadcast
	w.TxHash = txHash
	return nil
}

// MarkPendingConfirmation parks a broadcast withdrawal whose confirmation
// did not arrive within the bounded wait.
func (w *Withdrawal) MarkPendingConfirmation() error {
	if w.Status != WithdrawalBroadcast {
		return ErrInvalidStatusTransition
	}
	w.Status = WithdrawalPendingConfirmation
	return nil
}

// Complete transitions the withdrawal to its successful terminal state.
func (w *Withdrawal) Complete(blockNumber, gasUsed uint64) error {
	if w.Status != WithdrawalBroadcast && w.Status != WithdrawalPendingConfirmation {
		return ErrInvalidStatusTransition
	}
	w.Status = WithdrawalCompleted
	w.BlockNumber = blockNumber
	w.GasUsed = gasUsed
	w.CompletedAt = time.Now()
	return nil
}

// Fail transitions the withdrawal to its failed terminal state. If the
// ledger was already debited the caller owes a compensating credit.
func (w *Withdrawal) Fail(reason string) error {
	if w.Status.IsTerminal() {
		return ErrInvalidStatusTransition
	}
	w.Status = WithdrawalFailed
	w.ErrorMessage = reason
	w.CompletedAt = time.Now()
	return nil
}
