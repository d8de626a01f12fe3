package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

const maxConflictRetries = 5

type transactionRepository struct {
	store            *badgerhold.Store
	chEvents         chan domain.TransactionEvent
	externalChEvents chan domain.TransactionEvent
	lock             *sync.Mutex
	closed           bool

	log func(format string, a ...interface{})
}

func NewTransactionRepository(
	store *badgerhold.Store,
) domain.TransactionRepository {
	return newTransactionRepository(store)
}

func newTransactionRepository(
	store *badgerhold.Store,
) *transactionRepository {
	chEvents := make(chan domain.TransactionEvent)
	extrernalChEvents := make(chan domain.TransactionEvent)
	lock := &sync.Mutex{}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("transaction repository: %s", format)
		log.Debugf(format, a...)
	}
	return &transactionRepository{
		store:            store,
		chEvents:         chEvents,
		externalChEvents: extrernalChEvents,
		lock:             lock,
		log:              logFn,
	}
}

func (r *transactionRepository) AddTransaction(
	ctx context.Context, tx *domain.Transaction,
) (bool, error) {
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	done, err := r.insertTx(ctx, tx)
	if done {
		go r.publishEvent(domain.TransactionEvent{
			EventType:   domain.TransactionAdded,
			Transaction: tx,
		})
	}
	return done, err
}

func (r *transactionRepository) GetTransaction(
	ctx context.Context, id string,
) (*domain.Transaction, error) {
	return r.getTx(ctx, id)
}

func (r *transactionRepository) GetTransactions(
	ctx context.Context, filter domain.TransactionFilter,
) ([]*domain.Transaction, error) {
	query := statusQuery(filter.Statuses)

	var txs []domain.Transaction
	var err error
	if ctx.Value("tx") != nil {
		t := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxFind(t, &txs, query)
	} else {
		err = r.store.Find(&txs, query)
	}
	if err != nil {
		return nil, err
	}

	return matching(txs, filter), nil
}

func (r *transactionRepository) UpdateTransaction(
	ctx context.Context, id string,
	updateFn func(*domain.Transaction) (*domain.Transaction, error),
) error {
	var prev, updatedTx *domain.Transaction

	if err := r.withTxn(ctx, func(txn *badger.Txn) error {
		tx := &domain.Transaction{}
		if err := r.store.TxGet(txn, id, tx); err != nil {
			if err == badgerhold.ErrNotFound {
				return domain.ErrTransactionNotFound
			}
			return err
		}
		prev = cloneTx(tx)

		updated, err := updateFn(tx)
		if err != nil {
			return err
		}
		updated.UpdatedAt = time.Now()
		updatedTx = updated

		return r.store.TxUpdate(txn, id, *updated)
	}); err != nil {
		return err
	}

	if event, ok := domain.UpdateEvent(prev, updatedTx); ok {
		go r.publishEvent(event)
	}
	return nil
}

func (r *transactionRepository) ExpireTransactions(
	ctx context.Context, validStartBefore time.Time,
) ([]*domain.Transaction, error) {
	filter := domain.TransactionFilter{
		Statuses: domain.ActiveStatuses,
		Window: domain.ValidStartWindow{
			To:            validStartBefore.Add(-time.Nanosecond),
			FromInclusive: true,
		},
	}

	var expired []*domain.Transaction
	if err := r.withTxn(ctx, func(txn *badger.Txn) error {
		var txs []domain.Transaction
		if err := r.store.TxFind(txn, &txs, statusQuery(filter.Statuses)); err != nil {
			return err
		}

		expired = matching(txs, filter)
		now := time.Now()
		for _, tx := range expired {
			if err := tx.Expire(); err != nil {
				return err
			}
			tx.UpdatedAt = now
			if err := r.store.TxUpdate(txn, tx.ID, *tx); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	for _, tx := range expired {
		go r.publishEvent(domain.TransactionEvent{
			EventType:   domain.TransactionExpired,
			Transaction: cloneTx(tx),
		})
	}
	return expired, nil
}

func (r *transactionRepository) GetEventChannel() chan domain.TransactionEvent {
	return r.externalChEvents
}

func (r *transactionRepository) insertTx(
	ctx context.Context, tx *domain.Transaction,
) (bool, error) {
	var err error
	if ctx.Value("tx") != nil {
		t := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxInsert(t, tx.ID, *tx)
	} else {
		err = r.store.Insert(tx.ID, *tx)
	}

	if err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *transactionRepository) getTx(
	ctx context.Context, id string,
) (*domain.Transaction, error) {
	var err error
	var tx domain.Transaction

	if ctx.Value("tx") != nil {
		t := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxGet(t, id, &tx)
	} else {
		err = r.store.Get(id, &tx)
	}

	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}

	return &tx, nil
}

// withTxn runs fn in the badger transaction carried by ctx if any, otherwise
// in a new read-write one that is retried on conflicts.
func (r *transactionRepository) withTxn(
	ctx context.Context, fn func(txn *badger.Txn) error,
) error {
	if ctx.Value("tx") != nil {
		return fn(ctx.Value("tx").(*badger.Txn))
	}

	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = r.store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log("conflict on attempt %d, retrying", i+1)
	}
	return err
}

func (r *transactionRepository) publishEvent(event domain.TransactionEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return
	}

	r.log("publish event %s", event.EventType)
	r.chEvents <- event

	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *transactionRepository) reset() {
	if err := r.store.DeleteMatching(domain.Transaction{}, nil); err != nil {
		r.log("failed to reset store: %s", err)
	}
}

func (r *transactionRepository) close() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.chEvents)
	close(r.externalChEvents)
}

func statusQuery(statuses []domain.TransactionStatus) *badgerhold.Query {
	values := make([]interface{}, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, s)
	}
	return badgerhold.Where("Status").In(values...)
}

func matching(
	txs []domain.Transaction, filter domain.TransactionFilter,
) []*domain.Transaction {
	list := make([]*domain.Transaction, 0, len(txs))
	for i := range txs {
		tx := txs[i]
		if filter.Match(&tx) {
			list = append(list, &tx)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ValidStart.Before(list[j].ValidStart)
	})
	return list
}

func cloneTx(tx *domain.Transaction) *domain.Transaction {
	clone := *tx
	clone.Body = append([]byte{}, tx.Body...)
	clone.ObserverIDs = append([]string{}, tx.ObserverIDs...)
	if tx.StatusCode != nil {
		code := *tx.StatusCode
		clone.StatusCode = &code
	}
	if tx.ExecutedAt != nil {
		at := *tx.ExecutedAt
		clone.ExecutedAt = &at
	}
	return &clone
}
