package ledger

import (
	"time"
)

type TransactionType int

const (
	TypeUnknown TransactionType = iota
	TypeAccountCreate
	TypeAccountUpdate
	TypeAccountDelete
	TypeAccountAllowanceApprove
	TypeTransfer
	TypeFileCreate
	TypeFileUpdate
	TypeFileAppend
	TypeNodeCreate
	TypeNodeUpdate
	TypeNodeDelete
	TypeFreeze
	TypeSystemDelete
	TypeSystemUndelete
	TypeTokenAssociate
)

var transactionTypeString = map[TransactionType]string{
	TypeAccountCreate:           "ACCOUNT_CREATE",
	TypeAccountUpdate:           "ACCOUNT_UPDATE",
	TypeAccountDelete:           "ACCOUNT_DELETE",
	TypeAccountAllowanceApprove: "ACCOUNT_ALLOWANCE_APPROVE",
	TypeTransfer:                "TRANSFER",
	TypeFileCreate:              "FILE_CREATE",
	TypeFileUpdate:              "FILE_UPDATE",
	TypeFileAppend:              "FILE_APPEND",
	TypeNodeCreate:              "NODE_CREATE",
	TypeNodeUpdate:              "NODE_UPDATE",
	TypeNodeDelete:              "NODE_DELETE",
	TypeFreeze:                  "FREEZE",
	TypeSystemDelete:            "SYSTEM_DELETE",
	TypeSystemUndelete:          "SYSTEM_UNDELETE",
	TypeTokenAssociate:          "TOKEN_ASSOCIATE",
}

func (t TransactionType) String() string {
	if s, ok := transactionTypeString[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// TransactionData is the type-specific part of a transaction body.
type TransactionData interface {
	Type() TransactionType

	marshal(e *encoder)
	unmarshal(buf []byte) error
}

var dataFactories = map[TransactionType]func() TransactionData{
	TypeAccountCreate:           func() TransactionData { return &AccountCreate{} },
	TypeAccountUpdate:           func() TransactionData { return &AccountUpdate{} },
	TypeAccountDelete:           func() TransactionData { return &AccountDelete{} },
	TypeAccountAllowanceApprove: func() TransactionData { return &AccountAllowanceApprove{} },
	TypeTransfer:                func() TransactionData { return &Transfer{} },
	TypeFileCreate:              func() TransactionData { return &FileCreate{} },
	TypeFileUpdate:              func() TransactionData { return &FileUpdate{} },
	TypeFileAppend:              func() TransactionData { return &FileAppend{} },
	TypeNodeCreate:              func() TransactionData { return &NodeCreate{} },
	TypeNodeUpdate:              func() TransactionData { return &NodeUpdate{} },
	TypeNodeDelete:              func() TransactionData { return &NodeDelete{} },
	TypeFreeze:                  func() TransactionData { return &Freeze{} },
	TypeSystemDelete:            func() TransactionData { return &SystemDelete{} },
	TypeSystemUndelete:          func() TransactionData { return &SystemUndelete{} },
	TypeTokenAssociate:          func() TransactionData { return &TokenAssociate{} },
}

type AccountCreate struct {
	Key                       Key
	InitialBalance            uint64
	ReceiverSignatureRequired bool
	Memo                      string
}

func (*AccountCreate) Type() TransactionType { return TypeAccountCreate }

type AccountUpdate struct {
	Account AccountID
	// Key is nil when the update leaves the account key untouched.
	Key                       Key
	ReceiverSignatureRequired bool
	Memo                      string
}

func (*AccountUpdate) Type() TransactionType { return TypeAccountUpdate }

type AccountDelete struct {
	Account         AccountID
	TransferAccount AccountID
}

func (*AccountDelete) Type() TransactionType { return TypeAccountDelete }

type HbarAllowance struct {
	Owner   AccountID
	Spender AccountID
	Amount  int64
}

type TokenAllowance struct {
	Token   TokenID
	Owner   AccountID
	Spender AccountID
	Amount  int64
}

type NftAllowance struct {
	Token          TokenID
	Owner          AccountID
	Spender        AccountID
	Serials        []int64
	ApprovedForAll bool
}

type AccountAllowanceApprove struct {
	HbarAllowances  []HbarAllowance
	TokenAllowances []TokenAllowance
	NftAllowances   []NftAllowance
}

func (*AccountAllowanceApprove) Type() TransactionType {
	return TypeAccountAllowanceApprove
}

type HbarTransfer struct {
	Account    AccountID
	Amount     int64
	IsApproval bool
}

type TokenTransfer struct {
	Token      TokenID
	Account    AccountID
	Amount     int64
	IsApproval bool
}

type NftTransfer struct {
	Token      TokenID
	Sender     AccountID
	Receiver   AccountID
	Serial     int64
	IsApproval bool
}

type Transfer struct {
	HbarTransfers  []HbarTransfer
	TokenTransfers []TokenTransfer
	NftTransfers   []NftTransfer
}

func (*Transfer) Type() TransactionType { return TypeTransfer }

type FileCreate struct {
	Keys           KeyList
	Contents       []byte
	Memo           string
	ExpirationTime time.Time
}

func (*FileCreate) Type() TransactionType { return TypeFileCreate }

type FileUpdate struct {
	File FileID
	// Keys is nil when the update leaves the file keys untouched.
	Keys     *KeyList
	Contents []byte
}

func (*FileUpdate) Type() TransactionType { return TypeFileUpdate }

type FileAppend struct {
	File     FileID
	Contents []byte
}

func (*FileAppend) Type() TransactionType { return TypeFileAppend }

type NodeCreate struct {
	Account     AccountID
	Description string
	// AdminKey is optional.
	AdminKey Key
}

func (*NodeCreate) Type() TransactionType { return TypeNodeCreate }

type NodeUpdate struct {
	NodeID      uint64
	Description string
	AdminKey    Key
}

func (*NodeUpdate) Type() TransactionType { return TypeNodeUpdate }

type NodeDelete struct {
	NodeID uint64
}

func (*NodeDelete) Type() TransactionType { return TypeNodeDelete }

type FreezeType int

const (
	FreezeOnly FreezeType = iota + 1
	PrepareUpgrade
	FreezeUpgrade
	FreezeAbort
	TelemetryUpgrade
)

type Freeze struct {
	StartTime  time.Time
	FreezeType FreezeType
	File       FileID
	FileHash   []byte
}

func (*Freeze) Type() TransactionType { return TypeFreeze }

type SystemDelete struct {
	File           FileID
	ExpirationTime time.Time
}

func (*SystemDelete) Type() TransactionType { return TypeSystemDelete }

type SystemUndelete struct {
	File FileID
}

func (*SystemUndelete) Type() TransactionType { return TypeSystemUndelete }

type TokenAssociate struct {
	Account AccountID
	Tokens  []TokenID
}

func (*TokenAssociate) Type() TransactionType { return TypeTokenAssociate }
