package bsc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/pablex-exchange/custody-daemon/pkg/chain"
	"github.com/pablex-exchange/custody-daemon/pkg/wallet"
)

const (
	nativeGasLimit = uint64(21000)
	tokenGasLimit  = uint64(65000)

	waitPollInterval = 3 * time.Second
)

// transferFnSignature is the 4-byte selector of the BEP-20
// transfer(address,uint256) method.
var transferFnSignature = []byte{0xa9, 0x05, 0x9c, 0xbb}

// ServiceOpts defines the parameters needed for creating a BSC chain service
// with the NewService method.
type ServiceOpts struct {
	RPCURL      string
	ScanAPIURL  string
	ScanAPIKey  string
	ChainID     int64
	ScanRPS     int
	Assets      map[string]Asset
	// NativeQuotePrice is the quote currency price of the native coin, used
	// to express fee estimates in quote terms.
	NativeQuotePrice decimal.Decimal
}

type service struct {
	client      *ethclient.Client
	scan        *scanClient
	chainID     *big.Int
	assets      map[string]Asset
	nativeQuote decimal.Decimal
}

// NewService dials the RPC endpoint and returns a BSC implementation of the
// chain.Service interface. It fails fast if the node is unreachable or
// reports an unexpected chain id.
func NewService(opts ServiceOpts) (chain.Service, error) {
	client, err := ethclient.Dial(opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc node: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	if chainID.Int64() != opts.ChainID {
		return nil, fmt.Errorf(
			"health check: node is on chain %d, expected %d",
			chainID.Int64(), opts.ChainID,
		)
	}

	return &service{
		client:      client,
		scan:        newScanClient(opts.ScanAPIURL, opts.ScanAPIKey, opts.ChainID, opts.ScanRPS),
		chainID:     chainID,
		assets:      opts.Assets,
		nativeQuote: opts.NativeQuotePrice,
	}, nil
}

func (s *service) ListIncomingTransfers(
	ctx context.Context, address, assetID string, sinceBlock uint64,
) ([]chain.TransferEvent, error) {
	asset, err := s.asset(assetID)
	if err != nil {
		return nil, err
	}
	return s.scan.listIncomingTransfers(ctx, address, asset, sinceBlock)
}

func (s *service) Confirmations(
	ctx context.Context, txHash string,
) (uint64, error) {
	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
	}
	if receipt.BlockNumber == nil {
		return 0, nil
	}

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
	}
	if head < receipt.BlockNumber.Uint64() {
		return 0, nil
	}
	return head - receipt.BlockNumber.Uint64() + 1, nil
}

func (s *service) NativeBalance(
	ctx context.Context, address string,
) (decimal.Decimal, error) {
	balance, err := s.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
	}
	return decimal.NewFromBigInt(balance, 0).Shift(-18), nil
}

func (s *service) EstimateFee(
	ctx context.Context, from, to string,
	amount decimal.Decimal, assetID string,
) (*chain.Fee, error) {
	asset, err := s.asset(assetID)
	if err != nil {
		return nil, err
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
	}

	gasLimit := nativeGasLimit
	if !asset.IsNative() {
		gasLimit = tokenGasLimit
	}

	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	native := decimal.NewFromBigInt(cost, 0).Shift(-18)
	return &chain.Fee{
		Native: native,
		Quote:  native.Mul(s.nativeQuote),
	}, nil
}

func (s *service) BuildAndSignTransfer(
	ctx context.Context, privateKey, to string,
	amount decimal.Decimal, assetID string,
) (*chain.SignedIntent, error) {
	asset, err := s.asset(assetID)
	if err != nil {
		return nil, err
	}
	prvkey, err := wallet.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	from := common.HexToAddress(wallet.AddressFromPrivateKey(prvkey))

	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
	}

	var tx *types.Transaction
	if asset.IsNative() {
		tx = types.NewTransaction(
			nonce, common.HexToAddress(to),
			asset.toBaseUnit(amount), nativeGasLimit, gasPrice, nil,
		)
	} else {
		data := transferCalldata(common.HexToAddress(to), asset.toBaseUnit(amount))
		tx = types.NewTransaction(
			nonce, common.HexToAddress(asset.Contract),
			big.NewInt(0), tokenGasLimit, gasPrice, data,
		)
	}

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), prvkey)
	if err != nil {
		return nil, fmt.Errorf("signing transfer: %w", err)
	}
	rawTx, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serializing transfer: %w", err)
	}

	return &chain.SignedIntent{AssetID: assetID, RawTx: rawTx}, nil
}

func (s *service) Submit(
	ctx context.Context, intent *chain.SignedIntent,
) (string, error) {
	tx := &types.Transaction{}
	if err := tx.UnmarshalBinary(intent.RawTx); err != nil {
		return "", fmt.Errorf("%w: %s", chain.ErrBroadcastRejected, err)
	}
	if err := s.client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("%w: %s", chain.ErrBroadcastRejected, err)
	}
	return tx.Hash().Hex(), nil
}

func (s *service) Wait(
	ctx context.Context, txHash string, minConfirmations uint64,
) (*chain.Confirmation, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
		}
		if receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, fmt.Errorf(
					"%w: transaction reverted", chain.ErrBroadcastRejected,
				)
			}
			confirmations, err := s.Confirmations(ctx, txHash)
			if err != nil {
				return nil, err
			}
			if confirmations >= minConfirmations {
				return &chain.Confirmation{
					TxHash:      txHash,
					BlockNumber: receipt.BlockNumber.Uint64(),
					GasUsed:     receipt.GasUsed,
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *service) IsValidAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	return common.IsHexAddress(address)
}

func (s *service) asset(assetID string) (Asset, error) {
	asset, ok := s.assets[strings.ToLower(assetID)]
	if !ok {
		return Asset{}, chain.ErrUnsupportedAsset
	}
	return asset, nil
}

// transferCalldata packs the calldata of a BEP-20 transfer(address,uint256)
// call.
func transferCalldata(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferFnSignature...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
