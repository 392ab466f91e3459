package bsc

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Asset describes a transferable asset on the chain. Native coins have an
// empty contract address, BEP-20 tokens carry the address of their contract.
type Asset struct {
	Symbol   string
	Contract string
	Decimals int32
}

// IsNative reports whether the asset is the chain's native coin.
func (a Asset) IsNative() bool {
	return len(a.Contract) <= 0
}

// toBaseUnit converts a decimal amount to the asset's integer base unit
// (wei for 18 decimals).
func (a Asset) toBaseUnit(amount decimal.Decimal) *big.Int {
	return amount.Shift(a.Decimals).BigInt()
}

// fromBaseUnit converts an integer base unit amount to a decimal amount.
func (a Asset) fromBaseUnit(value *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(value, 0).Shift(-a.Decimals)
}

type scanResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Result  []scanTx `json:"result"`
}

type scanTx struct {
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	BlockNumber  string `json:"blockNumber"`
	TokenDecimal string `json:"tokenDecimal"`
}
