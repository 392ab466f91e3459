package inmemory

import (
	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
	"github.com/pablex-exchange/custody-daemon/internal/core/ports"
)

// DbManager is an in-memory implementation of ports.DbManager, used by tests
// and local development.
type DbManager struct {
	walletRepo     domain.WalletRepository
	balanceRepo    domain.BalanceRepository
	depositRepo    domain.DepositRepository
	withdrawalRepo domain.WithdrawalRepository
}

// NewDbManager returns an in-memory DbManager with empty repositories.
func NewDbManager() ports.DbManager {
	return &DbManager{
		walletRepo:     NewWalletRepositoryImpl(),
		balanceRepo:    NewBalanceRepositoryImpl(),
		depositRepo:    NewDepositRepositoryImpl(),
		withdrawalRepo: NewWithdrawalRepositoryImpl(),
	}
}

func (d *DbManager) WalletRepository() domain.WalletRepository {
	return d.walletRepo
}

func (d *DbManager) BalanceRepository() domain.BalanceRepository {
	return d.balanceRepo
}

func (d *DbManager) DepositRepository() domain.DepositRepository {
	return d.depositRepo
}

func (d *DbManager) WithdrawalRepository() domain.WithdrawalRepository {
	return d.withdrawalRepo
}

func (d *DbManager) Close() {}
