package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/pablex-exchange/custody-daemon/pkg/chain/bsc"
)

const (
	// DatadirKey is the local data directory to store the internal state of the daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// RPCURLKey is the JSON-RPC endpoint of the chain node
	RPCURLKey = "RPC_URL"
	// ScanAPIURLKey is the etherscan compatible API used to list account transfers
	ScanAPIURLKey = "SCAN_API_URL"
	// ScanAPIKeyKey is the API key for the scan API
	ScanAPIKeyKey = "SCAN_API_KEY"
	// ChainIDKey is the expected chain id of the RPC node
	ChainIDKey = "CHAIN_ID"
	// PollIntervalKey is the deposit scanning interval in seconds
	PollIntervalKey = "POLL_INTERVAL"
	// ConfirmationThresholdKey is the block depth required before a transfer is treated as final
	ConfirmationThresholdKey = "CONFIRMATION_THRESHOLD"
	// FeeRateKey is the proportional withdrawal commission rate
	FeeRateKey = "FEE_RATE"
	// MinimumFeeKey is the withdrawal commission floor, covering network gas
	MinimumFeeKey = "MINIMUM_FEE"
	// DustThresholdKey is the smallest deposit amount worth recording
	DustThresholdKey = "DUST_THRESHOLD"
	// MasterKeyKey is the vault master passphrase. Prefer MasterKeyFileKey in production.
	MasterKeyKey = "MASTER_KEY"
	// MasterKeyFileKey is the path of a file containing the vault master passphrase
	MasterKeyFileKey = "MASTER_KEY_FILE"
	// BroadcastTimeoutKey bounds the synchronous wait for withdrawal confirmation, in seconds
	BroadcastTimeoutKey = "BROADCAST_TIMEOUT"
	// PendingTimeoutKey is the maximum age, in seconds, of a parked withdrawal that
	// never got mined before it is failed and compensated
	PendingTimeoutKey = "PENDING_TIMEOUT"
	// MaxConcurrentScansKey bounds the parallelism of the confirmation sweep
	MaxConcurrentScansKey = "MAX_CONCURRENT_SCANS"
	// ScanRPSKey bounds the scan API request rate
	ScanRPSKey = "SCAN_RPS"
	// NativeQuotePriceKey is the quote currency price of the native coin used for fee estimates
	NativeQuotePriceKey = "NATIVE_QUOTE_PRICE"
	// TokenContractsKey extends or overrides the supported token contracts,
	// as a comma separated list of assetid:contract pairs
	TokenContractsKey = "TOKEN_CONTRACTS"

	DbLocation = "db"
)

var vip *viper.Viper

// defaultAssets are the assets supported out of the box: the native coin and
// the BEP-20 tokens traded on the platform.
var defaultAssets = map[string]bsc.Asset{
	"bnb": {Symbol: "BNB", Decimals: 18},
	"usdt": {
		Symbol:   "USDT",
		Contract: "0x55d398326f99059fF775485246999027B3197955",
		Decimals: 18,
	},
	"pablex": {
		Symbol:   "PABLEX",
		Contract: "0x6d71CF100cC5dECe979AB27559BEA08891226743",
		Decimals: 18,
	},
}

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("CUSTODY")
	vip.AutomaticEnv()

	homeDir, _ := os.UserHomeDir()
	vip.SetDefault(DatadirKey, filepath.Join(homeDir, ".custody-daemon"))
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(RPCURLKey, "https://bsc-dataseed1.binance.org")
	vip.SetDefault(ScanAPIURLKey, "https://api.etherscan.io/v2/api")
	vip.SetDefault(ChainIDKey, 56)
	vip.SetDefault(PollIntervalKey, 30)
	vip.SetDefault(ConfirmationThresholdKey, 6)
	vip.SetDefault(FeeRateKey, "0.005")
	vip.SetDefault(MinimumFeeKey, "2.0")
	vip.SetDefault(DustThresholdKey, "0.000001")
	vip.SetDefault(BroadcastTimeoutKey, 120)
	vip.SetDefault(PendingTimeoutKey, 3600)
	vip.SetDefault(MaxConcurrentScansKey, 4)
	vip.SetDefault(ScanRPSKey, 4)
	vip.SetDefault(NativeQuotePriceKey, "580")
}

// Validate checks the config surface and prepares the datadir. It must be
// called before anything else at startup and is fatal on a missing master
// key: running without one would be silently insecure.
func Validate() error {
	if _, err := GetMasterKey(); err != nil {
		return err
	}
	if len(GetString(RPCURLKey)) <= 0 {
		return fmt.Errorf("%s must not be empty", RPCURLKey)
	}
	if len(GetString(ScanAPIURLKey)) <= 0 {
		return fmt.Errorf("%s must not be empty", ScanAPIURLKey)
	}
	if GetInt(ConfirmationThresholdKey) <= 0 {
		return fmt.Errorf("%s must be positive", ConfirmationThresholdKey)
	}
	if GetDecimal(FeeRateKey).Sign() < 0 {
		return fmt.Errorf("%s must not be negative", FeeRateKey)
	}
	if GetDecimal(MinimumFeeKey).Sign() < 0 {
		return fmt.Errorf("%s must not be negative", MinimumFeeKey)
	}

	return initDatadir()
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetDuration(key string) time.Duration {
	return time.Duration(vip.GetInt(key)) * time.Second
}

// GetDecimal parses the value of the given key as an arbitrary precision
// decimal, zero if malformed.
func GetDecimal(key string) decimal.Decimal {
	value, err := decimal.NewFromString(vip.GetString(key))
	if err != nil {
		return decimal.Zero
	}
	return value
}

// GetMasterKey returns the vault master passphrase, reading it from the
// configured file if one is set, from the environment otherwise.
func GetMasterKey() (string, error) {
	if file := GetString(MasterKeyFileKey); len(file) > 0 {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading master key file: %w", err)
		}
		key := strings.TrimSpace(string(raw))
		if len(key) <= 0 {
			return "", fmt.Errorf("master key file is empty")
		}
		return key, nil
	}
	if key := GetString(MasterKeyKey); len(key) > 0 {
		return key, nil
	}
	return "", fmt.Errorf(
		"master key is not configured, set CUSTODY_%s or CUSTODY_%s",
		MasterKeyKey, MasterKeyFileKey,
	)
}

// GetAssets returns the supported assets keyed by lowercase asset id, the
// defaults merged with any contracts configured through TokenContractsKey.
func GetAssets() map[string]bsc.Asset {
	assets := make(map[string]bsc.Asset, len(defaultAssets))
	for id, asset := range defaultAssets {
		assets[id] = asset
	}

	for _, entry := range strings.Split(GetString(TokenContractsKey), ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 || len(parts[0]) <= 0 || len(parts[1]) <= 0 {
			continue
		}
		id := strings.ToLower(parts[0])
		assets[id] = bsc.Asset{
			Symbol:   strings.ToUpper(id),
			Contract: parts[1],
			Decimals: 18,
		}
	}
	return assets
}

// GetDbDir returns the directory holding the badger store.
func GetDbDir() string {
	return filepath.Join(GetString(DatadirKey), DbLocation)
}

func initDatadir() error {
	return os.MkdirAll(GetDbDir(), os.ModeDir|0755)
}
