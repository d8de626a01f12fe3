package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vulpemventures/cosigner/internal/core/domain"
)

type txInmemoryStore struct {
	txs  map[string]*domain.Transaction
	lock *sync.RWMutex
}

type txRepository struct {
	store            *txInmemoryStore
	chEvents         chan domain.TransactionEvent
	externalChEvents chan domain.TransactionEvent
	chLock           *sync.Mutex
	closed           bool
}

func NewTransactionRepository() domain.TransactionRepository {
	return newTransactionRepository()
}

func newTransactionRepository() *txRepository {
	return &txRepository{
		store: &txInmemoryStore{
			txs:  make(map[string]*domain.Transaction),
			lock: &sync.RWMutex{},
		},
		chEvents:         make(chan domain.TransactionEvent),
		externalChEvents: make(chan domain.TransactionEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *txRepository) AddTransaction(
	ctx context.Context, tx *domain.Transaction,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	return r.addTx(ctx, tx)
}

func (r *txRepository) GetTransaction(
	ctx context.Context, id string,
) (*domain.Transaction, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	tx, err := r.getTx(ctx, id)
	if err != nil {
		return nil, err
	}
	return cloneTx(tx), nil
}

func (r *txRepository) GetTransactions(
	_ context.Context, filter domain.TransactionFilter,
) ([]*domain.Transaction, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	txs := make([]*domain.Transaction, 0)
	for _, tx := range r.store.txs {
		if filter.Match(tx) {
			txs = append(txs, cloneTx(tx))
		}
	}
	sortByValidStart(txs)
	return txs, nil
}

func (r *txRepository) UpdateTransaction(
	ctx context.Context, id string,
	updateFn func(tx *domain.Transaction) (*domain.Transaction, error),
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	tx, err := r.getTx(ctx, id)
	if err != nil {
		return err
	}

	updatedTx, err := updateFn(cloneTx(tx))
	if err != nil {
		return err
	}
	updatedTx.UpdatedAt = time.Now()

	r.store.txs[id] = cloneTx(updatedTx)

	if event, ok := domain.UpdateEvent(tx, updatedTx); ok {
		event.Transaction = cloneTx(updatedTx)
		go r.publishEvent(event)
	}
	return nil
}

func (r *txRepository) ExpireTransactions(
	_ context.Context, validStartBefore time.Time,
) ([]*domain.Transaction, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	filter := domain.TransactionFilter{
		Statuses: domain.ActiveStatuses,
		Window: domain.ValidStartWindow{
			From:          time.Time{},
			To:            validStartBefore.Add(-time.Nanosecond),
			FromInclusive: true,
		},
	}
	now := time.Now()
	expired := make([]*domain.Transaction, 0)
	for id, tx := range r.store.txs {
		if !filter.Match(tx) {
			continue
		}
		updated := cloneTx(tx)
		if err := updated.Expire(); err != nil {
			return nil, err
		}
		updated.UpdatedAt = now
		r.store.txs[id] = updated
		expired = append(expired, cloneTx(updated))
	}
	sortByValidStart(expired)

	for _, tx := range expired {
		go r.publishEvent(domain.TransactionEvent{
			EventType:   domain.TransactionExpired,
			Transaction: tx,
		})
	}
	return expired, nil
}

func (r *txRepository) GetEventChannel() chan domain.TransactionEvent {
	return r.externalChEvents
}

func (r *txRepository) addTx(
	_ context.Context, tx *domain.Transaction,
) (bool, error) {
	if _, ok := r.store.txs[tx.ID]; ok {
		return false, nil
	}

	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	r.store.txs[tx.ID] = cloneTx(tx)

	go r.publishEvent(domain.TransactionEvent{
		EventType:   domain.TransactionAdded,
		Transaction: cloneTx(tx),
	})

	return true, nil
}

func (r *txRepository) getTx(
	_ context.Context, id string,
) (*domain.Transaction, error) {
	tx, ok := r.store.txs[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, nil
}

func (r *txRepository) setGroup(
	ctx context.Context, id, groupID string, seq int,
) error {
	tx, err := r.getTx(ctx, id)
	if err != nil {
		return err
	}
	tx.GroupID = groupID
	tx.GroupSeq = seq
	return nil
}

func (r *txRepository) publishEvent(event domain.TransactionEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	if r.closed {
		return
	}

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *txRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.txs = make(map[string]*domain.Transaction)
}

func (r *txRepository) close() {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.chEvents)
	close(r.externalChEvents)
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

func sortByValidStart(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].ValidStart.Before(txs[j].ValidStart)
	})
}
