package domain

import (
	"fmt"

	"github.com/vulpemventures/cosigner/pkg/ledger"
)

var (
	// CouncilAccounts are exempt from re-adding the node admin key when
	// deleting a node.
	CouncilAccounts = []ledger.AccountID{
		ledger.NewAccountID(2), ledger.NewAccountID(50), ledger.NewAccountID(55),
	}
	// privilegedAccounts can update system accounts without their keys.
	privilegedAccounts = []ledger.AccountID{
		ledger.NewAccountID(2), ledger.NewAccountID(50),
	}

	minSystemAccount uint64 = 3
	maxSystemAccount uint64 = 1000
)

// SignatureRequirement tells which accounts and keys must sign a transaction
// of a specific type.
type SignatureRequirement interface {
	// SigningAccounts are the accounts whose on-chain key must sign.
	SigningAccounts() []ledger.AccountID
	// ReceiverAccounts must sign only if they require receiver signatures.
	ReceiverAccounts() []ledger.AccountID
	// NewKeys are keys introduced by the transaction body itself.
	NewKeys() []ledger.Key
	NodeID() (uint64, bool)
	FeePayerAccount() (ledger.AccountID, bool)
}

type requirementFactory func(base baseRequirement, data ledger.TransactionData) SignatureRequirement

var requirementFactories = map[ledger.TransactionType]requirementFactory{
	ledger.TypeAccountCreate: func(b baseRequirement, _ ledger.TransactionData) SignatureRequirement {
		return b
	},
	ledger.TypeAccountUpdate: func(b baseRequirement, d ledger.TransactionData) SignatureRequirement {
		return accountUpdateRequirement{b, d.(*ledger.AccountUpdate)}
	},
	ledger.TypeAccountDelete: func(b baseRequirement, d ledger.TransactionData) SignatureRequirement {
		return accountDeleteRequirement{b, d.(*ledger.AccountDelete)}
	},
	ledger.TypeAccountAllowanceApprove: func(b baseRequirement, d ledger.TransactionData) SignatureRequirement {
		return allowanceApproveRequirement{b, d.(*ledger.AccountAllowanceApprove)}
	},
	ledger.TypeTransfer: func(b baseRequirement, d ledger.TransactionData) SignatureRequirement {
		return newTransferRequirement(b, d.(*ledger.Transfer))
	},
	ledger.TypeFileCreate: func(b baseRequirement, d ledger.TransactionData) SignatureRequirement {
		return fileCreateRequirement{b, d.(*ledger.FileCreate)}
	},
	// File updates and appends cannot be executed, their requirement is
	// never computed.
	ledger.TypeFileUpdate: func(b baseRequirement, _ ledger.TransactionData) SignatureRequirement {
		return b
	},
	ledger.TypeFileAppend: func(b baseRequirement, _ ledger.TransactionData) SignatureRequirement {
		return b
	},
	ledger.TypeNodeCreate: func(b baseRequirement, d ledger.TransactionData) SignatureRequirement {
		return nodeRequirement{b, d.(*ledger.NodeCreate).AdminKey, nil}
	},
	ledger.TypeNodeUpdate: func(b baseRequirement, d ledger.TransactionData) SignatureRequirement {
		data := d.(*ledger.NodeUpdate)
		nodeID := data.NodeID
		return nodeRequirement{b, data.AdminKey, &nodeID}
	},
	ledger.TypeNodeDelete: func(b baseRequirement, d ledger.TransactionData) SignatureRequirement {
		return nodeDeleteRequirement{b, d.(*ledger.NodeDelete)}
	},
	ledger.TypeFreeze: func(b baseRequirement, _ ledger.TransactionData) SignatureRequirement {
		return b
	},
	ledger.TypeSystemDelete: func(b baseRequirement, _ ledger.TransactionData) SignatureRequirement {
		return b
	},
	ledger.TypeSystemUndelete: func(b baseRequirement, _ ledger.TransactionData) SignatureRequirement {
		return b
	},
}

// NewSignatureRequirement returns the requirement model for the type of the
// given transaction.
func NewSignatureRequirement(tx *ledger.Transaction) (SignatureRequirement, error) {
	factory, ok := requirementFactories[tx.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRequirementModel, tx.Type())
	}
	return factory(baseRequirement{tx.ID().Payer}, tx.Data()), nil
}

type baseRequirement struct {
	payer ledger.AccountID
}

func (baseRequirement) SigningAccounts() []ledger.AccountID  { return nil }
func (baseRequirement) ReceiverAccounts() []ledger.AccountID { return nil }
func (baseRequirement) NewKeys() []ledger.Key                { return nil }
func (baseRequirement) NodeID() (uint64, bool)               { return 0, false }

func (r baseRequirement) FeePayerAccount() (ledger.AccountID, bool) {
	return r.payer, !r.payer.IsZero()
}

type accountUpdateRequirement struct {
	baseRequirement
	data *ledger.AccountUpdate
}

// isWaived returns whether a privileged payer is updating a system account.
func (r accountUpdateRequirement) isWaived() bool {
	acc := r.data.Account
	isSystem := acc.Shard == 0 && acc.Realm == 0 &&
		acc.Num >= minSystemAccount && acc.Num <= maxSystemAccount
	return isSystem && containsAccount(privilegedAccounts, r.payer)
}

func (r accountUpdateRequirement) SigningAccounts() []ledger.AccountID {
	if r.isWaived() {
		return nil
	}
	return []ledger.AccountID{r.data.Account}
}

func (r accountUpdateRequirement) NewKeys() []ledger.Key {
	if r.data.Key == nil || r.isWaived() {
		return nil
	}
	return []ledger.Key{r.data.Key}
}

type accountDeleteRequirement struct {
	baseRequirement
	data *ledger.AccountDelete
}

func (r accountDeleteRequirement) SigningAccounts() []ledger.AccountID {
	return []ledger.AccountID{r.data.Account}
}

func (r accountDeleteRequirement) ReceiverAccounts() []ledger.AccountID {
	if r.data.TransferAccount.IsZero() {
		return nil
	}
	return []ledger.AccountID{r.data.TransferAccount}
}

type allowanceApproveRequirement struct {
	baseRequirement
	data *ledger.AccountAllowanceApprove
}

func (r allowanceApproveRequirement) SigningAccounts() []ledger.AccountID {
	owners := newAccountSet()
	for _, a := range r.data.HbarAllowances {
		owners.add(a.Owner)
	}
	for _, a := range r.data.TokenAllowances {
		owners.add(a.Owner)
	}
	for _, a := range r.data.NftAllowances {
		owners.add(a.Owner)
	}
	return owners.list
}

// transferRequirement nets every transfer per account and currency. Accounts
// sending value sign unless they only move approved allowances, the others
// are receivers.
type transferRequirement struct {
	baseRequirement
	signers   []ledger.AccountID
	receivers []ledger.AccountID
}

type transferBucket struct {
	token   ledger.TokenID
	account ledger.AccountID
}

func newTransferRequirement(
	b baseRequirement, data *ledger.Transfer,
) transferRequirement {
	order := make([]transferBucket, 0)
	net := make(map[transferBucket]int64)
	approved := make(map[transferBucket]bool)
	add := func(k transferBucket, amount int64, isApproval bool) {
		if _, ok := net[k]; !ok {
			order = append(order, k)
		}
		net[k] += amount
		approved[k] = approved[k] || isApproval
	}

	for _, t := range data.HbarTransfers {
		add(transferBucket{account: t.Account}, t.Amount, t.IsApproval)
	}
	for _, t := range data.TokenTransfers {
		add(transferBucket{t.Token, t.Account}, t.Amount, t.IsApproval)
	}
	for _, t := range data.NftTransfers {
		add(transferBucket{t.Token, t.Sender}, -1, t.IsApproval)
		add(transferBucket{t.Token, t.Receiver}, 0, false)
	}

	signers, receivers := newAccountSet(), newAccountSet()
	for _, k := range order {
		if net[k] < 0 {
			if !approved[k] {
				signers.add(k.account)
			}
			continue
		}
		receivers.add(k.account)
	}

	filtered := make([]ledger.AccountID, 0, len(receivers.list))
	for _, acc := range receivers.list {
		if !signers.has(acc) {
			filtered = append(filtered, acc)
		}
	}
	return transferRequirement{b, signers.list, filtered}
}

func (r transferRequirement) SigningAccounts() []ledger.AccountID {
	return r.signers
}

func (r transferRequirement) ReceiverAccounts() []ledger.AccountID {
	return r.receivers
}

type fileCreateRequirement struct {
	baseRequirement
	data *ledger.FileCreate
}

func (r fileCreateRequirement) NewKeys() []ledger.Key {
	return append([]ledger.Key{}, r.data.Keys.Keys...)
}

type nodeRequirement struct {
	baseRequirement
	adminKey ledger.Key
	nodeID   *uint64
}

func (r nodeRequirement) NewKeys() []ledger.Key {
	if r.adminKey == nil {
		return nil
	}
	return []ledger.Key{r.adminKey}
}

func (r nodeRequirement) NodeID() (uint64, bool) {
	if r.nodeID == nil {
		return 0, false
	}
	return *r.nodeID, true
}

type nodeDeleteRequirement struct {
	baseRequirement
	data *ledger.NodeDelete
}

func (r nodeDeleteRequirement) NodeID() (uint64, bool) {
	if containsAccount(CouncilAccounts, r.payer) {
		return 0, false
	}
	return r.data.NodeID, true
}

type accountSet struct {
	list []ledger.AccountID
	seen map[ledger.AccountID]struct{}
}

func newAccountSet() *accountSet {
	return &accountSet{
		list: make([]ledger.AccountID, 0),
		seen: make(map[ledger.AccountID]struct{}),
	}
}

func (s *accountSet) add(acc ledger.AccountID) {
	if s.has(acc) {
		return
	}
	s.seen[acc] = struct{}{}
	s.list = append(s.list, acc)
}

func (s *accountSet) has(acc ledger.AccountID) bool {
	_, ok := s.seen[acc]
	return ok
}

func containsAccount(list []ledger.AccountID, acc ledger.AccountID) bool {
	for _, a := range list {
		if a == acc {
			return true
		}
	}
	return false
}
