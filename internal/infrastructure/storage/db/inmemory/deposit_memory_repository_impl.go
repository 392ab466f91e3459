package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

type depositRepositoryImpl struct {
	deposits map[string]domain.Deposit
	lock     *sync.RWMutex
}

// NewDepositRepositoryImpl returns a new empty in-memory deposit repository.
func NewDepositRepositoryImpl() domain.DepositRepository {
	return &depositRepositoryImpl{
		deposits: map[string]domain.Deposit{},
		lock:     &sync.RWMutex{},
	}
}

func (r *depositRepositoryImpl) AddDeposit(
	ctx context.Context, deposit domain.Deposit,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.deposits[deposit.Key()]; ok {
		return domain.ErrDepositAlreadyExists
	}
	r.deposits[deposit.Key()] = deposit
	return nil
}

func (r *depositRepositoryImpl) GetDeposit(
	ctx context.Context, txHash string,
) (*domain.Deposit, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	deposit, ok := r.deposits[txHash]
	if !ok {
		return nil, nil
	}
	return &deposit, nil
}

func (r *depositRepositoryImpl) UpdateDeposit(
	ctx context.Context, txHash string,
	updateFn func(d *domain.Deposit) (*domain.Deposit, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	deposit, ok := r.deposits[txHash]
	if !ok {
		return domain.ErrDepositNotFound
	}
	updated, err := updateFn(&deposit)
	if err != nil {
		return err
	}
	r.deposits[txHash] = *updated
	return nil
}

func (r *depositRepositoryImpl) ListUncreditedDeposits(
	ctx context.Context,
) ([]domain.Deposit, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	deposits := make([]domain.Deposit, 0)
	for _, d := range r.deposits {
		if d.Status == domain.DepositObserved ||
			d.Status == domain.DepositConfirmed {
			deposits = append(deposits, d)
		}
	}
	sort.Slice(deposits, func(i, j int) bool {
		return deposits[i].BlockNumber < deposits[j].BlockNumber
	})
	return deposits, nil
}

func (r *depositRepositoryImpl) ListDepositsForUser(
	ctx context.Context, userID string, page domain.Page,
) ([]domain.Deposit, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	deposits := make([]domain.Deposit, 0)
	for _, d := range r.deposits {
		if d.UserID == userID {
			deposits = append(deposits, d)
		}
	}
	sort.Slice(deposits, func(i, j int) bool {
		return deposits[i].BlockNumber < deposits[j].BlockNumber
	})

	from := page.Number*page.Size - page.Size
	if from >= len(deposits) {
		return nil, nil
	}
	to := from + page.Size
	if to > len(deposits) {
		to = len(deposits)
	}
	return deposits[from:to], nil
}
