package application

import (
	"fmt"

	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

var (
	ErrInvalidState               = fmt.Errorf("invalid state")
	ErrUnsupportedTransactionType = fmt.Errorf("cannot execute file update or append transactions")
	ErrInvalidSignature           = fmt.Errorf("transaction signature key is not satisfied")

	invalidStateReasons = map[domain.TransactionStatus]string{
		domain.StatusNew:                  "transaction has not been signed yet",
		domain.StatusWaitingForSignatures: "transaction is waiting for signatures",
		domain.StatusFailed:               "transaction has already been executed, but failed",
		domain.StatusExecuted:             "transaction has already been executed",
		domain.StatusRejected:             "transaction has already been rejected",
		domain.StatusExpired:              "transaction has expired",
		domain.StatusCanceled:             "transaction has been canceled",
	}
)

// validateExecutable returns an error if the transaction cannot be
// submitted in its current state.
func validateExecutable(tx *domain.Transaction) error {
	if tx.Status != domain.StatusWaitingForExecution {
		reason, ok := invalidStateReasons[tx.Status]
		if !ok {
			reason = fmt.Sprintf("unexpected status %s", tx.Status)
		}
		return fmt.Errorf("%w: %s", ErrInvalidState, reason)
	}
	if tx.Type == ledger.TypeFileUpdate || tx.Type == ledger.TypeFileAppend {
		return ErrUnsupportedTransactionType
	}
	return nil
}
