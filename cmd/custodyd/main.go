package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/pablex-exchange/custody-daemon/internal/config"
	"github.com/pablex-exchange/custody-daemon/internal/core/application"
	dbbadger "github.com/pablex-exchange/custody-daemon/internal/infrastructure/storage/db/badger"
	"github.com/pablex-exchange/custody-daemon/pkg/chain/bsc"
	"github.com/pablex-exchange/custody-daemon/pkg/crawler"
)

func main() {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	if err := config.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	masterKey, err := config.GetMasterKey()
	if err != nil {
		log.WithError(err).Fatal("master key unavailable")
	}

	dbManager, err := dbbadger.NewDbManager(config.GetDbDir(), nil)
	if err != nil {
		log.WithError(err).Fatal("error while opening db")
	}
	defer dbManager.Close()

	chainSvc, err := bsc.NewService(bsc.ServiceOpts{
		RPCURL:           config.GetString(config.RPCURLKey),
		ScanAPIURL:       config.GetString(config.ScanAPIURLKey),
		ScanAPIKey:       config.GetString(config.ScanAPIKeyKey),
		ChainID:          int64(config.GetInt(config.ChainIDKey)),
		ScanRPS:          config.GetInt(config.ScanRPSKey),
		Assets:           config.GetAssets(),
		NativeQuotePrice: config.GetDecimal(config.NativeQuotePriceKey),
	})
	if err != nil {
		log.WithError(err).Fatal("error while connecting to chain")
	}

	keyVault, err := application.NewKeyVault(
		dbManager.WalletRepository(), masterKey,
	)
	if err != nil {
		log.WithError(err).Fatal("error while initializing key vault")
	}
	ledger := application.NewLedger(dbManager.BalanceRepository())

	executor := application.NewWithdrawalExecutor(application.WithdrawalExecutorOpts{
		KeyVault:              keyVault,
		Ledger:                ledger,
		WithdrawalRepo:        dbManager.WithdrawalRepository(),
		ChainSvc:              chainSvc,
		FeeRate:               config.GetDecimal(config.FeeRateKey),
		MinimumFee:            config.GetDecimal(config.MinimumFeeKey),
		BroadcastTimeout:      config.GetDuration(config.BroadcastTimeoutKey),
		ConfirmationThreshold: uint64(config.GetInt(config.ConfirmationThresholdKey)),
		PendingTimeout:        config.GetDuration(config.PendingTimeoutKey),
	})

	crawlerSvc := crawler.NewService(crawler.Opts{
		ChainSvc: chainSvc,
		Interval: config.GetDuration(config.PollIntervalKey),
		ErrorHandler: func(err error) {
			log.WithError(err).Warn("crawler error")
		},
		RequestsPerSecond: config.GetInt(config.ScanRPSKey),
	})

	scanner := application.NewDepositScanner(application.DepositScannerOpts{
		KeyVault:              keyVault,
		Ledger:                ledger,
		WalletRepo:            dbManager.WalletRepository(),
		DepositRepo:           dbManager.DepositRepository(),
		ChainSvc:              chainSvc,
		CrawlerSvc:            crawlerSvc,
		PollInterval:          config.GetDuration(config.PollIntervalKey),
		ConfirmationThreshold: uint64(config.GetInt(config.ConfirmationThresholdKey)),
		DustThreshold:         config.GetDecimal(config.DustThresholdKey),
		MaxConcurrentChecks:   config.GetInt(config.MaxConcurrentScansKey),
		Rechecker:             executor,
	})

	if err := scanner.Start(); err != nil {
		log.WithError(err).Fatal("error while starting deposit scanner")
	}
	log.Info("custody daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	scanner.Stop()
	log.Info("exiting")
}
