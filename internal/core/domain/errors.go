package domain

import "fmt"

var (
	ErrTransactionNotFound     = fmt.Errorf("transaction not found")
	ErrGroupNotFound           = fmt.Errorf("transaction group not found")
	ErrInvalidStatusTransition = fmt.Errorf("invalid status transition")
	ErrNoRequirementModel      = fmt.Errorf("no model registered for type")
	ErrInsufficientSignatures  = fmt.Errorf("signature key not satisfied by attached signatures")
	ErrTransactionOversize     = fmt.Errorf("minimal signature set exceeds max transaction size")
	ErrMismatchingBody         = fmt.Errorf("transaction bytes do not match the stored body")
	ErrEmptySignatureKey       = fmt.Errorf("signature key has no entries")
)
