package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	log "github.com/sirupsen/logrus"

	"github.com/pablex-exchange/custody-daemon/pkg/chain"
)

const (
	New       Status = "NEW"
	Waiting   Status = "WAITING"
	Processed Status = "PROCESSED"
)

type Status string

type observableStatus struct {
	sync.RWMutex
	status Status
}

func NewObservableStatus() *observableStatus {
	return &observableStatus{
		status: New,
	}
}

func (o *observableStatus) Get() Status {
	o.RLock()
	defer o.RUnlock()
	return o.status
}

func (o *observableStatus) Set(status Status) {
	o.Lock()
	defer o.Unlock()
	o.status = status
}

// AddressObservable watches a deposit address of a custodial wallet for
// incoming transfers of one asset. The watermark is the last block already
// processed by the consumer and is only advanced from the outside, through
// Service.AdvanceWatermark.
type AddressObservable struct {
	UserID  string
	AssetID string
	Address string

	watermarkMtx sync.RWMutex
	watermark    uint64
}

// NewAddressObservable returns an observable for the given wallet address
// starting from the given watermark.
func NewAddressObservable(
	userID, assetID, address string, watermark uint64,
) *AddressObservable {
	return &AddressObservable{
		UserID:    userID,
		AssetID:   assetID,
		Address:   address,
		watermark: watermark,
	}
}

func (a *AddressObservable) Watermark() uint64 {
	a.watermarkMtx.RLock()
	defer a.watermarkMtx.RUnlock()
	return a.watermark
}

func (a *AddressObservable) advanceWatermark(block uint64) {
	a.watermarkMtx.Lock()
	defer a.watermarkMtx.Unlock()
	if block > a.watermark {
		a.watermark = block
	}
}

func (a *AddressObservable) observe(
	chainSvc chain.Service,
	errChan chan error,
	eventChan chan Event,
	observableStatus *observableStatus,
	rateLimiter *rate.Limiter,
) {
	if a == nil {
		return
	}

	observableStatus.Set(Waiting)
	if err := rateLimiter.Wait(context.Background()); err != nil {
		errChan <- err
		return
	}

	watermark := a.Watermark()
	sinceBlock := uint64(0)
	if watermark > 0 {
		sinceBlock = watermark + 1
	}

	transfers, err := chainSvc.ListIncomingTransfers(
		context.Background(), a.Address, a.AssetID, sinceBlock,
	)
	if err != nil {
		observableStatus.Set(Processed)
		errChan <- err
		return
	}

	observableStatus.Set(Processed)

	if len(transfers) <= 0 {
		return
	}

	eventChan <- AddressEvent{
		UserID:    a.UserID,
		AssetID:   a.AssetID,
		Address:   a.Address,
		Watermark: watermark,
		Transfers: transfers,
	}
}

func (a *AddressObservable) key() string {
	return ObservableKey(a.AssetID, a.Address)
}

// ObservableKey builds the identity of an observable. The same address may
// be watched for more than one asset, so the asset is part of the key.
func ObservableKey(assetID, address string) string {
	return assetID + ":" + address
}

type observableHandler struct {
	observable       Observable
	chainSvc         chain.Service
	wg               *sync.WaitGroup
	ticker           *time.Ticker
	eventChan        chan Event
	errChan          chan error
	stopChan         chan int
	observableStatus *observableStatus
	rateLimiter      *rate.Limiter
}

func newObservableHandler(
	observable Observable,
	chainSvc chain.Service,
	wg *sync.WaitGroup,
	interval time.Duration,
	eventChan chan Event,
	errChan chan error,
	rateLimiter *rate.Limiter,
) *observableHandler {
	ticker := time.NewTicker(interval)
	stopChan := make(chan int, 1)

	return &observableHandler{
		observable,
		chainSvc,
		wg,
		ticker,
		eventChan,
		errChan,
		stopChan,
		NewObservableStatus(),
		rateLimiter,
	}
}

func (oh *observableHandler) start() {
	log.Debugf("start observing: %v", oh.observable.key())
	oh.wg.Add(1)
	for {
		select {
		case <-oh.ticker.C:
			if oh.observableStatus.Get() != Waiting {
				oh.observable.observe(
					oh.chainSvc,
					oh.errChan,
					oh.eventChan,
					oh.observableStatus,
					oh.rateLimiter,
				)
			}
		case <-oh.stopChan:
			oh.ticker.Stop()
			close(oh.stopChan)
			return
		}
	}
}

func (oh *observableHandler) stop() {
	log.Debugf("stop observing: %v", oh.observable.key())
	oh.stopChan <- 1
	oh.wg.Done()
}
