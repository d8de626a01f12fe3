package domain

import "strings"

const (
	StatusNew TransactionStatus = iota
	StatusWaitingForSignatures
	StatusWaitingForExecution
	StatusExecuted
	StatusFailed
	StatusRejected
	StatusExpired
	StatusCanceled
)

var (
	statusString = map[TransactionStatus]string{
		StatusNew:                  "NEW",
		StatusWaitingForSignatures: "WAITING_FOR_SIGNATURES",
		StatusWaitingForExecution:  "WAITING_FOR_EXECUTION",
		StatusExecuted:             "EXECUTED",
		StatusFailed:               "FAILED",
		StatusRejected:             "REJECTED",
		StatusExpired:              "EXPIRED",
		StatusCanceled:             "CANCELED",
	}

	// allowedTransitions lists, for every non terminal status, the statuses
	// it can move to.
	allowedTransitions = map[TransactionStatus][]TransactionStatus{
		StatusNew: {
			StatusWaitingForSignatures, StatusWaitingForExecution, StatusFailed,
			StatusRejected, StatusExpired, StatusCanceled,
		},
		StatusWaitingForSignatures: {
			StatusWaitingForExecution, StatusFailed,
			StatusRejected, StatusExpired, StatusCanceled,
		},
		StatusWaitingForExecution: {
			StatusWaitingForSignatures, StatusExecuted, StatusFailed,
			StatusRejected, StatusExpired, StatusCanceled,
		},
	}

	// ActiveStatuses are those the expiry sweep moves to EXPIRED.
	ActiveStatuses = []TransactionStatus{
		StatusNew, StatusWaitingForSignatures, StatusWaitingForExecution,
	}
	// PendingStatuses are those periodically rechecked.
	PendingStatuses = []TransactionStatus{
		StatusWaitingForSignatures, StatusWaitingForExecution,
	}
)

type TransactionStatus int

func (s TransactionStatus) String() string {
	if str, ok := statusString[s]; ok {
		return str
	}
	return "UNKNOWN"
}

// ParseTransactionStatus is the inverse of String, case insensitive.
func ParseTransactionStatus(str string) (TransactionStatus, bool) {
	str = strings.ToUpper(strings.TrimSpace(str))
	for s, name := range statusString {
		if name == str {
			return s, true
		}
	}
	return 0, false
}

// IsTerminal returns whether no transition is defined out of the status.
func (s TransactionStatus) IsTerminal() bool {
	_, ok := allowedTransitions[s]
	return !ok
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, st := range allowedTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// HasOutcome returns whether a transaction in this status carries a status
// code.
func (s TransactionStatus) HasOutcome() bool {
	return s == StatusExecuted || s == StatusFailed
}

func containsStatus(list []TransactionStatus, s TransactionStatus) bool {
	for _, st := range list {
		if st == s {
			return true
		}
	}
	return false
}
