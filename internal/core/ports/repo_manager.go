package ports

import (
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

type TxEventHandler func(event domain.TransactionEvent)

// RepoManager is the abstraction for any kind of service intended to manage
// domain repositories implementations of the same concrete type.
type RepoManager interface {
	// TransactionRepository returns the tx repository.
	TransactionRepository() domain.TransactionRepository
	// TransactionGroupRepository returns the tx group repository.
	TransactionGroupRepository() domain.TransactionGroupRepository

	// RegisterHandlerForTxEvent registers an handler function, executed
	// whenever the given event type occurs.
	RegisterHandlerForTxEvent(
		eventType domain.TransactionEventType, handler TxEventHandler,
	)

	// Reset brings all the repos to their initial state by deleting any persisted data.
	Reset()

	// Close closes the connection with all concrete repositories
	// implementations.
	Close()
}
