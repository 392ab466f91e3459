package application

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
	"github.com/pablex-exchange/custody-daemon/pkg/chain"
	"github.com/pablex-exchange/custody-daemon/pkg/crawler"
)

// PendingWithdrawalRechecker re-checks withdrawals parked waiting for
// on-chain confirmation. Implemented by the withdrawal executor and driven
// by the scanner's sweep ticks.
type PendingWithdrawalRechecker interface {
	RecheckPending(ctx context.Context)
}

// DepositScanner watches every active custodial address for incoming
// transfers and turns confirmed ones into ledger credits, exactly once per
// tx hash.
type DepositScanner interface {
	Start() error
	Stop()
	// GetDeposit returns the deposit with the given tx hash, nil if unknown.
	GetDeposit(ctx context.Context, txHash string) (*domain.Deposit, error)
	// ListDepositsForUser returns a user's deposit history.
	ListDepositsForUser(
		ctx context.Context, userID string, page domain.Page,
	) ([]domain.Deposit, error)
}

// DepositScannerOpts defines the parameters needed for creating a scanner
// with NewDepositScanner.
type DepositScannerOpts struct {
	KeyVault              KeyVault
	Ledger                Ledger
	WalletRepo            domain.WalletRepository
	DepositRepo           domain.DepositRepository
	ChainSvc              chain.Service
	CrawlerSvc            crawler.Service
	PollInterval          time.Duration
	ConfirmationThreshold uint64
	// DustThreshold filters out transfers too small to be worth recording.
	DustThreshold decimal.Decimal
	// MaxConcurrentChecks bounds the parallelism of the confirmation sweep.
	MaxConcurrentChecks int
	// Rechecker, when set, is invoked on every sweep tick.
	Rechecker PendingWithdrawalRechecker
}

type depositScanner struct {
	keyVault              KeyVault
	ledger                Ledger
	walletRepo            domain.WalletRepository
	depositRepo           domain.DepositRepository
	chainSvc              chain.Service
	crawlerSvc            crawler.Service
	pollInterval          time.Duration
	confirmationThreshold uint64
	dustThreshold         decimal.Decimal
	maxConcurrentChecks   int
	rechecker             PendingWithdrawalRechecker

	quitChan chan struct{}
	doneWg   sync.WaitGroup
}

// NewDepositScanner returns a DepositScanner ready to be started.
func NewDepositScanner(opts DepositScannerOpts) DepositScanner {
	maxChecks := opts.MaxConcurrentChecks
	if maxChecks <= 0 {
		maxChecks = 4
	}
	return &depositScanner{
		keyVault:              opts.KeyVault,
		ledger:                opts.Ledger,
		walletRepo:            opts.WalletRepo,
		depositRepo:           opts.DepositRepo,
		chainSvc:              opts.ChainSvc,
		crawlerSvc:            opts.CrawlerSvc,
		pollInterval:          opts.PollInterval,
		confirmationThreshold: opts.ConfirmationThreshold,
		dustThreshold:         opts.DustThreshold,
		maxConcurrentChecks:   maxChecks,
		rechecker:             opts.Rechecker,
	}
}

func (s *depositScanner) Start() error {
	ctx := context.Background()
	wallets, err := s.keyVault.ListActiveWallets(ctx)
	if err != nil {
		return err
	}
	for _, w := range wallets {
		s.crawlerSvc.AddObservable(crawler.NewAddressObservable(
			w.UserID, w.AssetID, w.Address, w.LastScannedBlock,
		))
	}
	log.Infof("deposit scanner watching %d addresses", len(wallets))

	s.quitChan = make(chan struct{})
	go s.crawlerSvc.Start()
	s.doneWg.Add(2)
	go s.handleEvents()
	go s.sweepLoop()
	return nil
}

// Stop lets the in-flight tick finish before returning; watermarks only
// advance after a clean pass, so nothing is silently dropped.
func (s *depositScanner) Stop() {
	close(s.quitChan)
	s.crawlerSvc.Stop()
	s.doneWg.Wait()
	log.Info("deposit scanner stopped")
}

func (s *depositScanner) GetDeposit(
	ctx context.Context, txHash string,
) (*domain.Deposit, error) {
	return s.depositRepo.GetDeposit(ctx, txHash)
}

func (s *depositScanner) ListDepositsForUser(
	ctx context.Context, userID string, page domain.Page,
) ([]domain.Deposit, error) {
	return s.depositRepo.ListDepositsForUser(ctx, userID, page)
}

func (s *depositScanner) handleEvents() {
	defer s.doneWg.Done()

	for event := range s.crawlerSvc.GetEventChannel() {
		switch e := event.(type) {
		case crawler.QuitEvent:
			return
		case crawler.AddressEvent:
			s.ingestTransfers(context.Background(), e)
		}
	}
}

// ingestTransfers records the observed transfers of one address event and,
// only if the whole pass succeeded, advances the address watermark. A
// partial failure leaves the watermark untouched so unprocessed events are
// re-observed on the next tick.
func (s *depositScanner) ingestTransfers(
	ctx context.Context, event crawler.AddressEvent,
) {
	cleanPass := true
	maxBlock := event.Watermark

	for _, transfer := range event.Transfers {
		// an ignored transfer still consumes its block: dust must not pin
		// the watermark and be re-fetched forever.
		if transfer.BlockNumber > maxBlock {
			maxBlock = transfer.BlockNumber
		}
		if transfer.Amount.LessThan(s.dustThreshold) {
			continue
		}

		deposit := domain.Deposit{
			TxHash:      transfer.TxHash,
			UserID:      event.UserID,
			AssetID:     event.AssetID,
			FromAddress: transfer.From,
			ToAddress:   transfer.To,
			Amount:      transfer.Amount,
			BlockNumber: transfer.BlockNumber,
			Status:      domain.DepositObserved,
			CreatedAt:   time.Now(),
		}
		if err := s.depositRepo.AddDeposit(ctx, deposit); err != nil {
			// re-observing a known hash is a no-op, not an error.
			if !errors.Is(err, domain.ErrDepositAlreadyExists) {
				log.WithError(err).Warnf(
					"failed to record deposit %s", transfer.TxHash,
				)
				cleanPass = false
				break
			}
		} else {
			log.Infof(
				"observed deposit %s: %s %s to %s",
				transfer.TxHash, transfer.Amount, event.AssetID, event.Address,
			)
		}
	}

	if !cleanPass || maxBlock <= event.Watermark {
		return
	}

	if err := s.walletRepo.UpdateWallet(
		ctx, event.UserID, event.AssetID,
		func(w *domain.UserWallet) (*domain.UserWallet, error) {
			w.AdvanceWatermark(maxBlock)
			return w, nil
		},
	); err != nil {
		log.WithError(err).Warnf(
			"failed to persist watermark for address %s", event.Address,
		)
		return
	}
	s.crawlerSvc.AdvanceWatermark(
		crawler.ObservableKey(event.AssetID, event.Address), maxBlock,
	)
}

func (s *depositScanner) sweepLoop() {
	defer s.doneWg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quitChan:
			return
		case <-ticker.C:
			ctx := context.Background()
			s.watchNewWallets(ctx)
			s.sweepUncredited(ctx)
			if s.rechecker != nil {
				s.rechecker.RecheckPending(ctx)
			}
		}
	}
}

// watchNewWallets picks up wallets created after the scanner started.
// AddObservable is a no-op for addresses already being watched.
func (s *depositScanner) watchNewWallets(ctx context.Context) {
	wallets, err := s.keyVault.ListActiveWallets(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to list active wallets")
		return
	}
	for _, w := range wallets {
		s.crawlerSvc.AddObservable(crawler.NewAddressObservable(
			w.UserID, w.AssetID, w.Address, w.LastScannedBlock,
		))
	}
}

// sweepUncredited re-checks the confirmation depth of every deposit not yet
// credited and credits the ledger for those past the threshold. Deposits of
// the same (user, asset) pair are processed sequentially in block order so
// credits land in the order their transfers confirmed; distinct pairs are
// swept in parallel, bounded to respect provider limits.
func (s *depositScanner) sweepUncredited(ctx context.Context) {
	deposits, err := s.depositRepo.ListUncreditedDeposits(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to list uncredited deposits")
		return
	}
	if len(deposits) <= 0 {
		return
	}

	groups := map[domain.BalanceKey][]domain.Deposit{}
	for _, d := range deposits {
		key := domain.BalanceKey{UserID: d.UserID, AssetID: d.AssetID}
		groups[key] = append(groups[key], d)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrentChecks)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			for _, deposit := range group {
				s.processDeposit(gctx, deposit)
			}
			return nil
		})
	}
	//nolint:errcheck
	g.Wait()
}

func (s *depositScanner) processDeposit(
	ctx context.Context, deposit domain.Deposit,
) {
	if deposit.Status == domain.DepositObserved {
		confirmations, err := s.chainSvc.Confirmations(ctx, deposit.TxHash)
		if err != nil {
			// transient, retried on the next tick.
			log.WithError(err).Debugf(
				"failed to check confirmations for %s", deposit.TxHash,
			)
			return
		}
		if confirmations < s.confirmationThreshold {
			return
		}
		if err := s.depositRepo.UpdateDeposit(
			ctx, deposit.TxHash,
			func(d *domain.Deposit) (*domain.Deposit, error) {
				if err := d.Confirm(confirmations); err != nil {
					return nil, err
				}
				return d, nil
			},
		); err != nil {
			log.WithError(err).Warnf("failed to confirm deposit %s", deposit.TxHash)
			return
		}
		deposit.Status = domain.DepositConfirmed
	}

	if deposit.Status != domain.DepositConfirmed {
		return
	}

	// credit first, mark after: a transient credit failure leaves the
	// deposit confirmed for retry on the next tick. The tx hash dedup above
	// guarantees the credit is attempted at most once per observed transfer.
	if err := s.ledger.Credit(
		ctx, deposit.UserID, deposit.AssetID, deposit.Amount,
	); err != nil {
		log.WithError(err).Warnf(
			"failed to credit deposit %s, will retry", deposit.TxHash,
		)
		return
	}
	if err := s.depositRepo.UpdateDeposit(
		ctx, deposit.TxHash,
		func(d *domain.Deposit) (*domain.Deposit, error) {
			if err := d.MarkCredited(); err != nil {
				return nil, err
			}
			return d, nil
		},
	); err != nil {
		log.WithError(err).Errorf(
			"deposit %s credited but not marked, manual check required",
			deposit.TxHash,
		)
		return
	}

	log.Infof(
		"credited deposit %s: %s %s to user %s",
		deposit.TxHash, deposit.Amount, deposit.AssetID, deposit.UserID,
	)
}
