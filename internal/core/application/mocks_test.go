package application_test

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/pablex-exchange/custody-daemon/pkg/chain"
	"github.com/pablex-exchange/custody-daemon/pkg/crawler"
)

// **** chain.Service ****

type mockChainService struct {
	mock.Mock
}

func (m *mockChainService) ListIncomingTransfers(
	ctx context.Context, address, assetID string, sinceBlock uint64,
) ([]chain.TransferEvent, error) {
	args := m.Called(ctx, address, assetID, sinceBlock)

	var res []chain.TransferEvent
	if a := args.Get(0); a != nil {
		res = a.([]chain.TransferEvent)
	}
	return res, args.Error(1)
}

func (m *mockChainService) Confirmations(
	ctx context.Context, txHash string,
) (uint64, error) {
	args := m.Called(ctx, txHash)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockChainService) NativeBalance(
	ctx context.Context, address string,
) (decimal.Decimal, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockChainService) EstimateFee(
	ctx context.Context, from, to string,
	amount decimal.Decimal, assetID string,
) (*chain.Fee, error) {
	args := m.Called(ctx, from, to, amount, assetID)

	var res *chain.Fee
	if a := args.Get(0); a != nil {
		res = a.(*chain.Fee)
	}
	return res, args.Error(1)
}

func (m *mockChainService) BuildAndSignTransfer(
	ctx context.Context, privateKey, to string,
	amount decimal.Decimal, assetID string,
) (*chain.SignedIntent, error) {
	args := m.Called(ctx, privateKey, to, amount, assetID)

	var res *chain.SignedIntent
	if a := args.Get(0); a != nil {
		res = a.(*chain.SignedIntent)
	}
	return res, args.Error(1)
}

func (m *mockChainService) Submit(
	ctx context.Context, intent *chain.SignedIntent,
) (string, error) {
	args := m.Called(ctx, intent)
	return args.Get(0).(string), args.Error(1)
}

func (m *mockChainService) Wait(
	ctx context.Context, txHash string, minConfirmations uint64,
) (*chain.Confirmation, error) {
	args := m.Called(ctx, txHash, minConfirmations)

	var res *chain.Confirmation
	if a := args.Get(0); a != nil {
		res = a.(*chain.Confirmation)
	}
	return res, args.Error(1)
}

func (m *mockChainService) IsValidAddress(address string) bool {
	args := m.Called(address)
	return args.Get(0).(bool)
}

// **** crawler.Service ****

// fakeCrawlerService lets tests feed address events straight into the
// scanner, bypassing the tickers of the real crawler.
type fakeCrawlerService struct {
	eventChan chan crawler.Event

	lock       sync.Mutex
	watermarks map[string]uint64
	observed   map[string]struct{}
}

func newFakeCrawlerService() *fakeCrawlerService {
	return &fakeCrawlerService{
		eventChan:  make(chan crawler.Event, 100),
		watermarks: map[string]uint64{},
		observed:   map[string]struct{}{},
	}
}

func (f *fakeCrawlerService) Start() {}

func (f *fakeCrawlerService) Stop() {
	f.eventChan <- crawler.QuitEvent{}
}

func (f *fakeCrawlerService) AddObservable(observable crawler.Observable) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if addrObs, ok := observable.(*crawler.AddressObservable); ok {
		f.observed[crawler.ObservableKey(addrObs.AssetID, addrObs.Address)] = struct{}{}
	}
}

func (f *fakeCrawlerService) RemoveObservable(observable crawler.Observable) {}

func (f *fakeCrawlerService) AdvanceWatermark(key string, block uint64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if block > f.watermarks[key] {
		f.watermarks[key] = block
	}
}

func (f *fakeCrawlerService) GetEventChannel() chan crawler.Event {
	return f.eventChan
}

func (f *fakeCrawlerService) watermark(key string) uint64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.watermarks[key]
}

func (f *fakeCrawlerService) isObserved(key string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.observed[key]
	return ok
}
