package ports

import (
	"context"

	"github.com/vulpemventures/cosigner/pkg/ledger"
)

type NodeInfo struct {
	NodeID   uint64
	Account  ledger.AccountID
	AdminKey ledger.Key
}

// LedgerClient talks to the network (or to a gateway in front of it).
type LedgerClient interface {
	// SubmitTransaction submits the signed transaction and waits for its
	// receipt. Network rejections are returned as *ledger.StatusError.
	SubmitTransaction(
		ctx context.Context, network string, tx []byte,
	) (*ledger.Receipt, error)
	GetAccountInfo(
		ctx context.Context, network string, account ledger.AccountID,
	) (*AccountInfo, error)
	GetNodeInfo(
		ctx context.Context, network string, nodeID uint64,
	) (*NodeInfo, error)
	Close()
}
