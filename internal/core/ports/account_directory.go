package ports

import (
	"context"
	"fmt"

	"github.com/vulpemventures/cosigner/pkg/ledger"
)

var (
	// ErrAccountNotFound is returned when the network does not know the
	// account, or the account has no key.
	ErrAccountNotFound = fmt.Errorf("account not found")
	// ErrNodeNotFound is returned when the network does not know the node, or
	// the node has no admin key.
	ErrNodeNotFound = fmt.Errorf("node not found")
)

type AccountInfo struct {
	Key                       ledger.Key
	ReceiverSignatureRequired bool
}

// AccountDirectory resolves the current on-chain keys of accounts and nodes.
// Lookups of unknown accounts or nodes fail with ErrAccountNotFound or
// ErrNodeNotFound, any other error is transient.
type AccountDirectory interface {
	GetAccountInfo(
		ctx context.Context, network string, account ledger.AccountID,
	) (*AccountInfo, error)
	GetNodeAdminKey(
		ctx context.Context, network string, nodeID uint64,
	) (ledger.Key, error)
	// InvalidateAccount drops any cached info about the account.
	InvalidateAccount(
		ctx context.Context, network string, account ledger.AccountID,
	) error
}
