package crawler

import (
	"github.com/pablex-exchange/custody-daemon/pkg/chain"
	"golang.org/x/time/rate"
)

// Event are emitted through a channel during observation.
type Event interface {
	Type() EventType
}

// Observable represents an object that can be observed on the blockchain.
type Observable interface {
	observe(
		chainSvc chain.Service,
		errChan chan error,
		eventChan chan Event,
		observableStatus *observableStatus,
		rateLimiter *rate.Limiter,
	)
	key() string
}

// Service is the interface for the crawler.
type Service interface {
	Start()
	Stop()
	AddObservable(observable Observable)
	RemoveObservable(observable Observable)
	// AdvanceWatermark moves the block watermark of the observable
	// identified by key forward. Consumers call it only after a clean
	// processing pass, so a partial failure never skips history.
	AdvanceWatermark(key string, block uint64)
	GetEventChannel() chan Event
}
