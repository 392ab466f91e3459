package dbbadger

import (
	"context"
	"sort"
	"sync"

	"github.com/timshannon/badgerhold/v4"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

type depositRepositoryImpl struct {
	store *badgerhold.Store
	mtx   sync.Mutex
}

// NewDepositRepositoryImpl initializes a badger implementation of the
// domain.DepositRepository.
func NewDepositRepositoryImpl(store *badgerhold.Store) domain.DepositRepository {
	return &depositRepositoryImpl{store: store}
}

func (r *depositRepositoryImpl) AddDeposit(
	ctx context.Context, deposit domain.Deposit,
) error {
	if err := r.store.Insert(deposit.Key(), &deposit); err != nil {
		if err == badgerhold.ErrKeyExists {
			return domain.ErrDepositAlreadyExists
		}
		return err
	}
	return nil
}

func (r *depositRepositoryImpl) GetDeposit(
	ctx context.Context, txHash string,
) (*domain.Deposit, error) {
	var deposit domain.Deposit
	if err := r.store.Get(txHash, &deposit); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &deposit, nil
}

func (r *depositRepositoryImpl) UpdateDeposit(
	ctx context.Context, txHash string,
	updateFn func(d *domain.Deposit) (*domain.Deposit, error),
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var deposit domain.Deposit
	if err := r.store.Get(txHash, &deposit); err != nil {
		if err == badgerhold.ErrNotFound {
			return domain.ErrDepositNotFound
		}
		return err
	}
	updated, err := updateFn(&deposit)
	if err != nil {
		return err
	}
	return r.store.Update(txHash, updated)
}

func (r *depositRepositoryImpl) ListUncreditedDeposits(
	ctx context.Context,
) ([]domain.Deposit, error) {
	var deposits []domain.Deposit
	query := badgerhold.Where("Status").In(
		domain.DepositObserved, domain.DepositConfirmed,
	)
	if err := r.store.Find(&deposits, query); err != nil {
		return nil, err
	}
	sort.Slice(deposits, func(i, j int) bool {
		return deposits[i].BlockNumber < deposits[j].BlockNumber
	})
	return deposits, nil
}

func (r *depositRepositoryImpl) ListDepositsForUser(
	ctx context.Context, userID string, page domain.Page,
) ([]domain.Deposit, error) {
	var deposits []domain.Deposit
	from := page.Number*page.Size - page.Size
	query := badgerhold.Where("UserID").Eq(userID).
		Skip(from).Limit(page.Size)
	if err := r.store.Find(&deposits, query); err != nil {
		return nil, err
	}
	return deposits, nil
}
