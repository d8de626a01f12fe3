package ledger

import "fmt"

var (
	ErrInvalidEntityID        = fmt.Errorf("invalid entity id")
	ErrInvalidKey             = fmt.Errorf("invalid key")
	ErrInvalidSignature       = fmt.Errorf("invalid signature")
	ErrUnknownKeyType         = fmt.Errorf("unknown key type")
	ErrUnknownTransactionType = fmt.Errorf("unknown transaction type")
	ErrMissingTransactionData = fmt.Errorf("missing transaction data")
	ErrMissingPayer           = fmt.Errorf("missing transaction payer account")
	ErrMissingValidStart      = fmt.Errorf("missing transaction valid start")
	ErrMalformedTransaction   = fmt.Errorf("malformed transaction bytes")
)
