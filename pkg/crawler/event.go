package crawler

import "github.com/pablex-exchange/custody-daemon/pkg/chain"

const (
	QuitSignal EventType = iota
	IncomingTransfers
)

type EventType int

func (et EventType) String() string {
	switch et {
	case QuitSignal:
		return "QuitSignal"
	case IncomingTransfers:
		return "IncomingTransfers"
	default:
		return "Unknown"
	}
}

type QuitEvent struct{}

func (q QuitEvent) Type() EventType {
	return QuitSignal
}

// AddressEvent carries the transfers received by a watched address since its
// watermark.
type AddressEvent struct {
	UserID    string
	AssetID   string
	Address   string
	Watermark uint64
	Transfers []chain.TransferEvent
}

func (a AddressEvent) Type() EventType {
	return IncomingTransfers
}
