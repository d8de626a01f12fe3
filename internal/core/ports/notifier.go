package ports

import (
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

// Notifier publishes lifecycle notifications. All methods are fire and
// forget, implementations log their own failures.
type Notifier interface {
	NotifyStatusChanged(txID string, status domain.TransactionStatus, network string)
	NotifyReadyForExecution(txID, network string, userIDs []string)
	NotifyWaitingForSignatures(txID, network string, userIDs []string)
	// NotifyExecutionAction signals that one or more transactions changed.
	NotifyExecutionAction()
}
