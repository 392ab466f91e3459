package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
)

type withdrawalRepositoryImpl struct {
	withdrawals map[string]domain.Withdrawal
	lock        *sync.RWMutex
}

// NewWithdrawalRepositoryImpl returns a new empty in-memory withdrawal
// repository.
func NewWithdrawalRepositoryImpl() domain.WithdrawalRepository {
	return &withdrawalRepositoryImpl{
		withdrawals: map[string]domain.Withdrawal{},
		lock:        &sync.RWMutex{},
	}
}

func (r *withdrawalRepositoryImpl) AddWithdrawal(
	ctx context.Context, withdrawal domain.Withdrawal,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.withdrawals[withdrawal.ID] = withdrawal
	return nil
}

func (r *withdrawalRepositoryImpl) GetWithdrawal(
	ctx context.Context, id string,
) (*domain.Withdrawal, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	withdrawal, ok := r.withdrawals[id]
	if !ok {
		return nil, domain.ErrWithdrawalNotFound
	}
	return &withdrawal, nil
}

func (r *withdrawalRepositoryImpl) UpdateWithdrawal(
	ctx context.Context, id string,
	updateFn func(w *domain.Withdrawal) (*domain.Withdrawal, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	withdrawal, ok := r.withdrawals[id]
	if !ok {
		return domain.ErrWithdrawalNotFound
	}
	updated, err := updateFn(&withdrawal)
	if err != nil {
		return err
	}
	r.withdrawals[id] = *updated
	return nil
}

func (r *withdrawalRepositoryImpl) ListWithdrawalsForUser(
	ctx context.Context, userID string, page domain.Page,
) ([]domain.Withdrawal, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	withdrawals := make([]domain.Withdrawal, 0)
	for _, w := range r.withdrawals {
		if w.UserID == userID {
			withdrawals = append(withdrawals, w)
		}
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
	r.lock.RLock()
	defer r.lock.RUnlock()

	withdrawals := make([]domain.Withdrawal, 0)
	for _, w := range r.withdrawals {
		if w.Status == domain.WithdrawalPendingConfirmation {
			withdrawals = append(withdrawals, w)
		}
	}
	return withdrawals, nil
}
