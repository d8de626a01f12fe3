package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is a network response code.
type Status int32

const (
	StatusOk                       Status = 22
	StatusInvalidTransaction       Status = 1
	StatusPayerAccountNotFound     Status = 2
	StatusInvalidNodeAccount       Status = 3
	StatusTransactionExpired       Status = 4
	StatusInvalidTransactionStart  Status = 5
	StatusInvalidSignature         Status = 7
	StatusInsufficientTxFee        Status = 9
	StatusInsufficientPayerBalance Status = 10
	StatusDuplicateTransaction     Status = 11
	StatusBusy                     Status = 12
	StatusUnknown                  Status = 21
	StatusInvalidAccountID         Status = 15
	StatusAccountDeleted           Status = 72
	StatusTransactionOversize      Status = 306
	// StatusGroupAborted is not a network code. It marks members of an atomic
	// group that were never submitted because a previous member failed.
	StatusGroupAborted Status = -1
)

var statusNames = map[Status]string{
	StatusOk:                       "SUCCESS",
	StatusInvalidTransaction:       "INVALID_TRANSACTION",
	StatusPayerAccountNotFound:     "PAYER_ACCOUNT_NOT_FOUND",
	StatusInvalidNodeAccount:       "INVALID_NODE_ACCOUNT",
	StatusTransactionExpired:       "TRANSACTION_EXPIRED",
	StatusInvalidTransactionStart:  "INVALID_TRANSACTION_START",
	StatusInvalidSignature:         "INVALID_SIGNATURE",
	StatusInsufficientTxFee:        "INSUFFICIENT_TX_FEE",
	StatusInsufficientPayerBalance: "INSUFFICIENT_PAYER_BALANCE",
	StatusDuplicateTransaction:     "DUPLICATE_TRANSACTION",
	StatusBusy:                     "BUSY",
	StatusUnknown:                  "UNKNOWN",
	StatusInvalidAccountID:         "INVALID_ACCOUNT_ID",
	StatusAccountDeleted:           "ACCOUNT_DELETED",
	StatusTransactionOversize:      "TRANSACTION_OVERSIZE",
	StatusGroupAborted:             "GROUP_ABORTED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%d", int32(s))
}

// ParseStatus returns the status with the given name.
func ParseStatus(name string) (Status, bool) {
	for s, n := range statusNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// StatusError is returned by a ledger client when the network rejects a
// transaction with a known code.
type StatusError struct {
	Status  Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transaction failed with status %s", e.Status)
	}
	return fmt.Sprintf("transaction failed with status %s: %s", e.Status, e.Message)
}

// StatusFromError extracts the response code carried by err. Errors that are
// not a *StatusError are searched for a status name in their message, and
// fall back to StatusUnknown.
func StatusFromError(err error) Status {
	if err == nil {
		return StatusOk
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}

	msg := err.Error()
	found, foundName := StatusUnknown, ""
	for s, name := range statusNames {
		if s == StatusOk || s == StatusGroupAborted {
			continue
		}
		// Longest match wins, INVALID_TRANSACTION_START must not be read as
		// INVALID_TRANSACTION.
		if strings.Contains(msg, name) && len(name) > len(foundName) {
			found, foundName = s, name
		}
	}
	return found
}

// Receipt is the outcome of a transaction reached consensus.
type Receipt struct {
	TransactionID TransactionID
	Status        Status
	ConsensusAt   time.Time
}
