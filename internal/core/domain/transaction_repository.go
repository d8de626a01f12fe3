package domain

import (
	"context"
	"time"
)

const (
	TransactionAdded TransactionEventType = iota
	TransactionStatusChanged
	TransactionBodyUpdated
	TransactionExpired
)

var (
	txTypeString = map[TransactionEventType]string{
		TransactionAdded:         "TransactionAdded",
		TransactionStatusChanged: "TransactionStatusChanged",
		TransactionBodyUpdated:   "TransactionBodyUpdated",
		TransactionExpired:       "TransactionExpired",
	}
)

type TransactionEventType int

func (t TransactionEventType) String() string {
	return txTypeString[t]
}

// TransactionEvent holds info about an event occured within the repository.
type TransactionEvent struct {
	EventType   TransactionEventType
	Transaction *Transaction
}

// ValidStartWindow is a range of valid start instants. To is always
// included, From only if FromInclusive is set.
type ValidStartWindow struct {
	From          time.Time
	To            time.Time
	FromInclusive bool
}

func (w ValidStartWindow) Contains(t time.Time) bool {
	if t.After(w.To) {
		return false
	}
	if w.FromInclusive {
		return !t.Before(w.From)
	}
	return t.After(w.From)
}

// TransactionFilter selects transactions by status and valid start.
type TransactionFilter struct {
	Statuses []TransactionStatus
	Window   ValidStartWindow
}

func (f TransactionFilter) Match(tx *Transaction) bool {
	return containsStatus(f.Statuses, tx.Status) && f.Window.Contains(tx.ValidStart)
}

// TransactionRepository is the abstraction for any kind of database intended
// to persist Transactions.
type TransactionRepository interface {
	// AddTransaction adds the provided transaction to the repository by
	// preventing duplicates.
	// Generates a TransactionAdded event if successful.
	AddTransaction(ctx context.Context, tx *Transaction) (bool, error)
	// GetTransaction returns the Transaction identified by the given id.
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	// GetTransactions returns the transactions matching the given filter,
	// ordered by valid start.
	GetTransactions(
		ctx context.Context, filter TransactionFilter,
	) ([]*Transaction, error)
	// UpdateTransaction allows to commit multiple changes to the same
	// Transaction in a transactional way.
	// Generates a TransactionStatusChanged or TransactionBodyUpdated event if
	// the status or the bytes changed.
	UpdateTransaction(
		ctx context.Context, id string,
		updateFn func(tx *Transaction) (*Transaction, error),
	) error
	// ExpireTransactions atomically moves to EXPIRED every transaction in one
	// of the ActiveStatuses whose valid start is before the given instant,
	// and returns them.
	// Generates a TransactionExpired event for each of them.
	ExpireTransactions(
		ctx context.Context, validStartBefore time.Time,
	) ([]*Transaction, error)
	// GetEventChannel retunrs the channel of TransactionEvents.
	GetEventChannel() chan TransactionEvent
}

// TransactionGroupRepository persists TransactionGroups. Adding a group also
// records the membership on every member transaction.
type TransactionGroupRepository interface {
	AddGroup(ctx context.Context, group *TransactionGroup) (bool, error)
	GetGroup(ctx context.Context, id string) (*TransactionGroup, error)
}

// UpdateEvent returns the event an update from prev to next generates, if
// any.
func UpdateEvent(prev, next *Transaction) (TransactionEvent, bool) {
	switch {
	case prev.Status != next.Status:
		return TransactionEvent{TransactionStatusChanged, next}, true
	case string(prev.Body) != string(next.Body):
		return TransactionEvent{TransactionBodyUpdated, next}, true
	default:
		return TransactionEvent{}, false
	}
}
