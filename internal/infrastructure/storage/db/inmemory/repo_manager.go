package inmemory

import (
	"sync"
	"time"

	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
)

type repoManager struct {
	txRepository    *txRepository
	groupRepository *groupRepository

	txEventHandlers *handlerMap
}

func NewRepoManager() ports.RepoManager {
	txRepo := newTransactionRepository()
	groupRepo := newGroupRepository(txRepo)

	rm := &repoManager{
		txRepository:    txRepo,
		groupRepository: groupRepo,
		txEventHandlers: newHandlerMap(),
	}

	go rm.listenToTxEvents()

	return rm
}

func (rm *repoManager) TransactionRepository() domain.TransactionRepository {
	return rm.txRepository
}

func (rm *repoManager) TransactionGroupRepository() domain.TransactionGroupRepository {
	return rm.groupRepository
}

func (rm *repoManager) RegisterHandlerForTxEvent(
	eventType domain.TransactionEventType, handler ports.TxEventHandler,
) {
	rm.txEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) Reset() {
	rm.txRepository.reset()
	rm.groupRepository.reset()
}

func (rm *repoManager) listenToTxEvents() {
	for event := range rm.txRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.txEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.TxEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) Close() {
	rm.txRepository.close()
}

// handlerMap is a util type to prevent race conditions when registering
// or retrieving handlers for events.
type handlerMap struct {
	handlersByEventType map[int][]interface{}
	lock                *sync.RWMutex
}

func newHandlerMap() *handlerMap {
	return &handlerMap{
		handlersByEventType: make(map[int][]interface{}),
		lock:                &sync.RWMutex{},
	}
}

func (m *handlerMap) set(key int, val interface{}) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handlersByEventType[key] = append(m.handlersByEventType[key], val)
}

func (m *handlerMap) get(key int) ([]interface{}, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	val, ok := m.handlersByEventType[key]
	return val, ok
}
