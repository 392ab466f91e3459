package crawler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pablex-exchange/custody-daemon/pkg/chain"
)

const (
	eventQueueMaxSize = 100
	errorQueueMaxSize = 10
)

type blockchainCrawler struct {
	interval     time.Duration
	chainSvc     chain.Service
	errChan      chan error
	eventChan    chan Event
	observables  map[string]*observableHandler
	errorHandler func(err error)
	rateLimiter  *rate.Limiter
	mutex        *sync.RWMutex
	wg           *sync.WaitGroup
}

// Opts defines the parameters needed for creating a crawler service with the
// NewService method.
type Opts struct {
	ChainSvc     chain.Service
	Interval     time.Duration
	ErrorHandler func(err error)
	// RequestsPerSecond bounds how often observables may hit the chain
	// provider, shared across all of them.
	RequestsPerSecond int
}

// NewService returns a crawler that is ready to watch for blockchain
// activity on custodial deposit addresses. Use Start and Stop methods to
// manage it.
func NewService(opts Opts) Service {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &blockchainCrawler{
		interval:     opts.Interval,
		chainSvc:     opts.ChainSvc,
		errChan:      make(chan error, errorQueueMaxSize),
		eventChan:    make(chan Event, eventQueueMaxSize),
		observables:  map[string]*observableHandler{},
		errorHandler: opts.ErrorHandler,
		rateLimiter:  rate.NewLimiter(rate.Limit(rps), rps),
		mutex:        &sync.RWMutex{},
		wg:           &sync.WaitGroup{},
	}
}

// Start starts the crawler which periodically scans the blockchain for
// incoming transfers to the watched addresses.
func (bc *blockchainCrawler) Start() {
	for {
		err, more := <-bc.errChan
		if !more {
			return
		}
		go bc.errorHandler(err)
	}
}

// Stop stops the crawler. In-flight observations complete their current pass
// before the event channel receives the quit event.
func (bc *blockchainCrawler) Stop() {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	for _, obsHandler := range bc.observables {
		go obsHandler.stop()
	}
	bc.wg.Wait()
	bc.eventChan <- QuitEvent{}
	close(bc.errChan)
}

// GetEventChannel returns the channel consumers listen to for blockchain
// events.
func (bc *blockchainCrawler) GetEventChannel() chan Event {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.eventChan
}

// AddObservable adds a new Observable to the list of watched ones, only if
// it is not already there.
func (bc *blockchainCrawler) AddObservable(observable Observable) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if _, ok := bc.observables[observable.key()]; !ok {
		obsHandler := newObservableHandler(
			observable,
			bc.chainSvc,
			bc.wg,
			bc.interval,
			bc.eventChan,
			bc.errChan,
			bc.rateLimiter,
		)

		bc.observables[observable.key()] = obsHandler
		go obsHandler.start()
	}
}

// RemoveObservable stops watching the given Observable.
func (bc *blockchainCrawler) RemoveObservable(observable Observable) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if obsHandler, ok := bc.observables[observable.key()]; ok {
		obsHandler.stop()
		delete(bc.observables, observable.key())
	}
}

// AdvanceWatermark moves the watermark of the observable identified by key.
func (bc *blockchainCrawler) AdvanceWatermark(key string, block uint64) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	if obsHandler, ok := bc.observables[key]; ok {
		if addrObs, ok := obsHandler.observable.(*AddressObservable); ok {
			addrObs.advanceWatermark(block)
		}
	}
}
