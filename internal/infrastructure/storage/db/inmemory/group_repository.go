package inmemory

import (
	"context"
	"sync"

	"github.com/vulpemventures/cosigner/internal/core/domain"
)

type groupRepository struct {
	groups map[string]*domain.TransactionGroup
	txRepo *txRepository
	lock   *sync.RWMutex
}

func NewTransactionGroupRepository(
	txRepo domain.TransactionRepository,
) domain.TransactionGroupRepository {
	return newGroupRepository(txRepo.(*txRepository))
}

func newGroupRepository(txRepo *txRepository) *groupRepository {
	return &groupRepository{
		groups: make(map[string]*domain.TransactionGroup),
		txRepo: txRepo,
		lock:   &sync.RWMutex{},
	}
}

func (r *groupRepository) AddGroup(
	ctx context.Context, group *domain.TransactionGroup,
) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.groups[group.ID]; ok {
		return false, nil
	}

	r.txRepo.store.lock.Lock()
	defer r.txRepo.store.lock.Unlock()

	for _, item := range group.Items {
		if _, err := r.txRepo.getTx(ctx, item.TransactionID); err != nil {
			return false, err
		}
	}
	for _, item := range group.Items {
		_ = r.txRepo.setGroup(ctx, item.TransactionID, group.ID, item.Seq)
	}

	r.groups[group.ID] = cloneGroup(group)
	return true, nil
}

func (r *groupRepository) GetGroup(
	_ context.Context, id string,
) (*domain.TransactionGroup, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	group, ok := r.groups[id]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return cloneGroup(group), nil
}

func (r *groupRepository) reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.groups = make(map[string]*domain.TransactionGroup)
}

func cloneGroup(group *domain.TransactionGroup) *domain.TransactionGroup {
	clone := *group
	clone.Items = append([]domain.TransactionGroupItem{}, group.Items...)
	return &clone
}
