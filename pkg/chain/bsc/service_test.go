package bsc

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/pablex-exchange/custody-daemon/pkg/chain"
)

func TestTransferCalldata(t *testing.T) {
	t.Parallel()

	to := common.HexToAddress("0x71C7656EC7ab88b098defB751B7401B5f6d8976F")
	amount, ok := new(big.Int).SetString("1000000000000000000", 10)
	require.True(t, ok)

	data := transferCalldata(to, amount)
	require.Len(t, data, 4+32+32)

	expected := "a9059cbb" +
		"00000000000000000000000071c7656ec7ab88b098defb751b7401b5f6d8976f" +
		"0000000000000000000000000000000000000000000000000de0b6b3a7640000"
	require.Equal(t, expected, hex.EncodeToString(data))
}

func TestIsValidAddress(t *testing.T) {
	t.Parallel()

	svc := &service{}

	tests := []struct {
		address string
		valid   bool
	}{
		{address: "0x71C7656EC7ab88b098defB751B7401B5f6d8976F", valid: true},
		{address: "0x0000000000000000000000000000000000000000", valid: true},
		{address: "71C7656EC7ab88b098defB751B7401B5f6d8976F", valid: false},
		{address: "0x71C7656EC7ab88b098defB751B7401B5f6d8976", valid: false},
		{address: "0xZZC7656EC7ab88b098defB751B7401B5f6d8976F", valid: false},
		{address: "", valid: false},
		{address: "not an address", valid: false},
	}
	for _, tt := range tests {
		require.Equal(
			t, tt.valid, svc.IsValidAddress(tt.address),
			"address %q", tt.address,
		)
	}
}

func TestUnsupportedAsset(t *testing.T) {
	t.Parallel()

	svc := &service{assets: map[string]Asset{
		"usdt": {Symbol: "USDT", Decimals: 18},
	}}

	asset, err := svc.asset("USDT")
	require.NoError(t, err)
	require.Equal(t, "USDT", asset.Symbol)

	_, err = svc.asset("doge")
	require.EqualError(t, err, chain.ErrUnsupportedAsset.Error())
}
