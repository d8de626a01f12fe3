package domain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vulpemventures/cosigner/pkg/ledger"
)

// Transaction is a ledger transaction being co-signed, together with the
// lifecycle info needed to schedule and track its submission.
type Transaction struct {
	ID            string
	Name          string
	Description   string
	Type          ledger.TransactionType
	LedgerTxID    string
	Status        TransactionStatus
	ValidStart    time.Time
	Body          []byte
	StatusCode    *int32
	ExecutedAt    *time.Time
	IsManual      bool
	MirrorNetwork string
	CreatorID     string
	ObserverIDs   []string
	GroupID       string
	GroupSeq      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type NewTransactionArgs struct {
	ID            string
	Name          string
	Description   string
	Body          []byte
	IsManual      bool
	MirrorNetwork string
	CreatorID     string
	ObserverIDs   []string
}

// NewTransaction returns a NEW transaction for the given serialized ledger
// transaction. Type, ledger id and valid start are read from the bytes.
func NewTransaction(args NewTransactionArgs) (*Transaction, error) {
	if args.ID == "" {
		return nil, fmt.Errorf("missing transaction id")
	}
	if args.MirrorNetwork == "" {
		return nil, fmt.Errorf("missing mirror network")
	}
	tx, err := ledger.Decode(args.Body)
	if err != nil {
		return nil, err
	}
	if _, ok := requirementFactories[tx.Type()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRequirementModel, tx.Type())
	}

	return &Transaction{
		ID:            args.ID,
		Name:          args.Name,
		Description:   args.Description,
		Type:          tx.Type(),
		LedgerTxID:    tx.ID().String(),
		Status:        StatusNew,
		ValidStart:    tx.ID().ValidStart,
		Body:          append([]byte{}, args.Body...),
		IsManual:      args.IsManual,
		MirrorNetwork: args.MirrorNetwork,
		CreatorID:     args.CreatorID,
		ObserverIDs:   args.ObserverIDs,
		CreatedAt:     time.Now(),
	}, nil
}

// Decode parses the stored bytes.
func (t *Transaction) Decode() (*ledger.Transaction, error) {
	return ledger.Decode(t.Body)
}

// SetStatus moves the transaction to a status that carries no outcome. Use
// Execute or Fail for the others.
func (t *Transaction) SetStatus(status TransactionStatus) error {
	if status.HasOutcome() {
		return fmt.Errorf(
			"%w: %s requires a status code", ErrInvalidStatusTransition, status,
		)
	}
	if t.Status == status {
		return nil
	}
	if !t.Status.CanTransitionTo(status) {
		return fmt.Errorf(
			"%w: %s -> %s", ErrInvalidStatusTransition, t.Status, status,
		)
	}
	t.Status = status
	return nil
}

// Execute records a successful submission.
func (t *Transaction) Execute(code ledger.Status, at time.Time) error {
	return t.setOutcome(StatusExecuted, code, at)
}

// Fail records a failed submission or collation.
func (t *Transaction) Fail(code ledger.Status, at time.Time) error {
	return t.setOutcome(StatusFailed, code, at)
}

// Expire marks the transaction as expired. Only transactions still waiting
// for signatures or execution can expire.
func (t *Transaction) Expire() error {
	if !containsStatus(ActiveStatuses, t.Status) {
		return fmt.Errorf(
			"%w: %s -> %s", ErrInvalidStatusTransition, t.Status, StatusExpired,
		)
	}
	t.Status = StatusExpired
	return nil
}

func (t *Transaction) setOutcome(
	status TransactionStatus, code ledger.Status, at time.Time,
) error {
	if !t.Status.CanTransitionTo(status) {
		return fmt.Errorf(
			"%w: %s -> %s", ErrInvalidStatusTransition, t.Status, status,
		)
	}
	c := int32(code)
	t.Status = status
	t.StatusCode = &c
	t.ExecutedAt = &at
	return nil
}

// UpdateBody replaces the stored bytes with a re-signed version of the same
// body.
func (t *Transaction) UpdateBody(body []byte) error {
	current, err := t.Decode()
	if err != nil {
		return err
	}
	next, err := ledger.Decode(body)
	if err != nil {
		return err
	}
	if !bytes.Equal(current.BodyBytes(), next.BodyBytes()) {
		return ErrMismatchingBody
	}
	t.Body = append([]byte{}, body...)
	return nil
}

func (t *Transaction) IsInGroup() bool {
	return t.GroupID != ""
}

// IsExpiredAt returns whether the grace period after valid start has elapsed.
func (t *Transaction) IsExpiredAt(now time.Time, grace time.Duration) bool {
	return t.ValidStart.Before(now.Add(-grace))
}

// UserIDs returns the users interested in the transaction, creator first.
func (t *Transaction) UserIDs() []string {
	ids := make([]string, 0, len(t.ObserverIDs)+1)
	seen := make(map[string]struct{})
	for _, id := range append([]string{t.CreatorID}, t.ObserverIDs...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
