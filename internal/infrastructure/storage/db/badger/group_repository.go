package dbbadger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

type groupRepository struct {
	store *badgerhold.Store
}

func NewTransactionGroupRepository(
	store *badgerhold.Store,
) domain.TransactionGroupRepository {
	return newGroupRepository(store)
}

func newGroupRepository(store *badgerhold.Store) *groupRepository {
	return &groupRepository{store}
}

// AddGroup stores the group and tags its members in the same badger
// transaction. Unknown members make the whole operation fail.
func (r *groupRepository) AddGroup(
	ctx context.Context, group *domain.TransactionGroup,
) (bool, error) {
	added := false
	err := r.store.Badger().Update(func(txn *badger.Txn) error {
		if err := r.store.TxInsert(txn, group.ID, *group); err != nil {
			if err == badgerhold.ErrKeyExists {
				return nil
			}
			return err
		}

		for _, item := range group.Items {
			tx := &domain.Transaction{}
			if err := r.store.TxGet(txn, item.TransactionID, tx); err != nil {
				if err == badgerhold.ErrNotFound {
					return fmt.Errorf(
						"%w: %s", domain.ErrTransactionNotFound, item.TransactionID,
					)
				}
				return err
			}
			tx.GroupID = group.ID
			tx.GroupSeq = item.Seq
			if err := r.store.TxUpdate(txn, tx.ID, *tx); err != nil {
				return err
			}
		}
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func (r *groupRepository) GetGroup(
	ctx context.Context, id string,
) (*domain.TransactionGroup, error) {
	var group domain.TransactionGroup
	if err := r.store.Get(id, &group); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

func (r *groupRepository) reset() {
	if err := r.store.DeleteMatching(domain.TransactionGroup{}, nil); err != nil {
		log.Debugf("group repository: failed to reset store: %s", err)
	}
}
