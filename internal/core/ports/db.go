package ports

import (
	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

// DbManager gives access to the repositories backed by one store.
type DbManager interface {
	WalletRepository() domain.WalletRepository
	BalanceRepository() domain.BalanceRepository
	DepositRepository() domain.DepositRepository
	WithdrawalRepository() domain.WithdrawalRepository

	Close()
}
