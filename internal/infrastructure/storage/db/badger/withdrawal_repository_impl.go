package dbbadger

import (
	"context"
	"sort"
	"sync"

	"github.com/timshannon/badgerhold/v4"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

type withdrawalRepositoryImpl struct {
	store *badgerhold.Store
	mtx   sync.Mutex
}

// NewWithdrawalRepositoryImpl initializes a badger implementation of the
// domain.WithdrawalRepository.
func NewWithdrawalRepositoryImpl(
	store *badgerhold.Store,
) domain.WithdrawalRepository {
	return &withdrawalRepositoryImpl{store: store}
}

func (r *withdrawalRepositoryImpl) AddWithdrawal(
	ctx context.Context, withdrawal domain.Withdrawal,
) error {
	return r.store.Insert(withdrawal.ID, &withdrawal)
}

func (r *withdrawalRepositoryImpl) GetWithdrawal(
	ctx context.Context, id string,
) (*domain.Withdrawal, error) {
	var withdrawal domain.Withdrawal
	if err := r.store.Get(id, &withdrawal); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

func (r *withdrawalRepositoryImpl) UpdateWithdrawal(
	ctx context.Context, id string,
	updateFn func(w *domain.Withdrawal) (*domain.Withdrawal, error),
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	withdrawal, err := r.GetWithdrawal(ctx, id)
	if err != nil {
		return err
	}
	updated, err := updateFn(withdrawal)
	if err != nil {
		return err
	}
	return r.store.Update(id, updated)
}

func (r *withdrawalRepositoryImpl) ListWithdrawalsForUser(
	ctx context.Context, userID string, page domain.Page,
) ([]domain.Withdrawal, error) {
	var withdrawals []domain.Withdrawal
	if err := r.store.Find(
		&withdrawals, badgerhold.Where("UserID").Eq(userID),
	); err != nil {
		return nil, err
	}
	sort.Slice(withdrawals, func(i, j int) bool {
		return withdrawals[i].CreatedAt.After(withdrawals[j].CreatedAt)
	})

	from := page.Number*page.Size - page.Size
	if from >= len(withdrawals) {
		return nil, nil
	}
	to := from + page.Size
	if to > len(withdrawals) {
		to = len(withdrawals)
	}
	return withdrawals[from:to], nil
}

func (r *withdrawalRepositoryImpl) ListPendingConfirmation(
	ctx context.Context,
) ([]domain.Withdrawal, error) {
	var withdrawals []domain.Withdrawal
	query := badgerhold.Where("Status").Eq(domain.WithdrawalPendingConfirmation)
	if err := r.store.Find(&withdrawals, query); err != nil {
		return nil, err
	}
	return withdrawals, nil
}
