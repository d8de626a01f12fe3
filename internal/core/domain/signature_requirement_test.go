package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

var (
	validStart = time.Unix(1700000000, 0).UTC()
	acc        = ledger.NewAccountID
)

func TestAccountUpdateRequirement(t *testing.T) {
	key := newKey(t).PublicKey()

	tests := []struct {
		name           string
		payer          ledger.AccountID
		target         ledger.AccountID
		expectedWaived bool
	}{
		{"lower bound waived", acc(2), acc(3), true},
		{"upper bound waived", acc(50), acc(1000), true},
		{"treasury target not waived", acc(2), acc(2), false},
		{"above range not waived", acc(2), acc(1001), false},
		{"regular payer not waived", acc(1001), acc(500), false},
		{"council member not privileged", acc(55), acc(500), false},
		{"other realm not waived", acc(2), ledger.AccountID{Realm: 1, Num: 500}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := requirementFor(t, tt.payer, &ledger.AccountUpdate{
				Account: tt.target, Key: key,
			})
			if tt.expectedWaived {
				require.Empty(t, req.SigningAccounts())
				require.Empty(t, req.NewKeys())
				return
			}
			require.Equal(t, []ledger.AccountID{tt.target}, req.SigningAccounts())
			require.Equal(t, []ledger.Key{key}, req.NewKeys())
		})
	}

	t.Run("no new key", func(t *testing.T) {
		req := requirementFor(t, acc(1001), &ledger.AccountUpdate{Account: acc(1002)})
		require.Equal(t, []ledger.AccountID{acc(1002)}, req.SigningAccounts())
		require.Empty(t, req.NewKeys())
	})
}

func TestSignatureRequirements(t *testing.T) {
	k1 := newKey(t).PublicKey()
	k2 := newKey(t).PublicKey()
	token := ledger.EntityID{Num: 7000}
	nodeID := uint64(4)

	tests := []struct {
		name              string
		payer             ledger.AccountID
		data              ledger.TransactionData
		expectedSigners   []ledger.AccountID
		expectedReceivers []ledger.AccountID
		expectedNewKeys   []ledger.Key
		expectedNodeID    *uint64
	}{
		{
			name:  "account create",
			payer: acc(1001),
			data:  &ledger.AccountCreate{Key: k1, ReceiverSignatureRequired: true},
		},
		{
			name:              "account delete",
			payer:             acc(1001),
			data:              &ledger.AccountDelete{Account: acc(1002), TransferAccount: acc(1003)},
			expectedSigners:   []ledger.AccountID{acc(1002)},
			expectedReceivers: []ledger.AccountID{acc(1003)},
		},
		{
			name:  "allowance approve",
			payer: acc(1001),
			data: &ledger.AccountAllowanceApprove{
				HbarAllowances: []ledger.HbarAllowance{
					{Owner: acc(1002), Spender: acc(1005), Amount: 1},
				},
				TokenAllowances: []ledger.TokenAllowance{
					{Token: token, Owner: acc(1003), Spender: acc(1005), Amount: 1},
					{Token: token, Owner: acc(1002), Spender: acc(1006), Amount: 1},
				},
				NftAllowances: []ledger.NftAllowance{
					{Token: token, Owner: acc(1004), Spender: acc(1005), ApprovedForAll: true},
				},
			},
			expectedSigners: []ledger.AccountID{acc(1002), acc(1003), acc(1004)},
		},
		{
			name:  "transfer",
			payer: acc(1001),
			data: &ledger.Transfer{
				HbarTransfers: []ledger.HbarTransfer{
					{Account: acc(1002), Amount: -100},
					{Account: acc(1003), Amount: 60},
					{Account: acc(1004), Amount: 40},
					{Account: acc(1005), Amount: -10, IsApproval: true},
					{Account: acc(1006), Amount: 10},
					// nets to zero, it only receives
					{Account: acc(1007), Amount: -5},
					{Account: acc(1007), Amount: 5},
				},
				TokenTransfers: []ledger.TokenTransfer{
					{Token: token, Account: acc(1003), Amount: -1},
					{Token: token, Account: acc(1008), Amount: 1},
				},
				NftTransfers: []ledger.NftTransfer{
					{Token: token, Sender: acc(1009), Receiver: acc(1010), Serial: 1},
				},
			},
			expectedSigners: []ledger.AccountID{acc(1002), acc(1003), acc(1009)},
			expectedReceivers: []ledger.AccountID{
				acc(1004), acc(1006), acc(1007), acc(1008), acc(1010),
			},
		},
		{
			name:            "file create",
			payer:           acc(1001),
			data:            &ledger.FileCreate{Keys: ledger.NewKeyList(k1, k2)},
			expectedNewKeys: []ledger.Key{k1, k2},
		},
		{
			name:  "file update",
			payer: acc(1001),
			data:  &ledger.FileUpdate{File: acc(150), Keys: &ledger.KeyList{Keys: []ledger.Key{k1}}},
		},
		{
			name:  "file append",
			payer: acc(1001),
			data:  &ledger.FileAppend{File: acc(150)},
		},
		{
			name:            "node create",
			payer:           acc(1001),
			data:            &ledger.NodeCreate{Account: acc(1002), AdminKey: k1},
			expectedNewKeys: []ledger.Key{k1},
		},
		{
			name:  "node create without admin key",
			payer: acc(1001),
			data:  &ledger.NodeCreate{Account: acc(1002)},
		},
		{
			name:            "node update",
			payer:           acc(1001),
			data:            &ledger.NodeUpdate{NodeID: nodeID, AdminKey: k2},
			expectedNewKeys: []ledger.Key{k2},
			expectedNodeID:  &nodeID,
		},
		{
			name:           "node delete",
			payer:          acc(1001),
			data:           &ledger.NodeDelete{NodeID: nodeID},
			expectedNodeID: &nodeID,
		},
		{
			name:  "node delete by council",
			payer: acc(55),
			data:  &ledger.NodeDelete{NodeID: nodeID},
		},
		{
			name:  "freeze",
			payer: acc(58),
			data:  &ledger.Freeze{StartTime: validStart, FreezeType: ledger.FreezeOnly},
		},
		{
			name:  "system delete",
			payer: acc(50),
			data:  &ledger.SystemDelete{File: acc(150)},
		},
		{
			name:  "system undelete",
			payer: acc(50),
			data:  &ledger.SystemUndelete{File: acc(150)},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := requirementFor(t, tt.payer, tt.data)

			require.ElementsMatch(t, tt.expectedSigners, req.SigningAccounts())
			require.ElementsMatch(t, tt.expectedReceivers, req.ReceiverAccounts())
			require.ElementsMatch(t, tt.expectedNewKeys, req.NewKeys())

			nodeID, ok := req.NodeID()
			require.Equal(t, tt.expectedNodeID != nil, ok)
			if ok {
				require.Equal(t, *tt.expectedNodeID, nodeID)
			}

			payer, ok := req.FeePayerAccount()
			require.True(t, ok)
			require.Equal(t, tt.payer, payer)
		})
	}
}

func TestNoRequirementModel(t *testing.T) {
	tx := newLedgerTx(t, acc(1001), validStart, &ledger.TokenAssociate{
		Account: acc(1001), Tokens: []ledger.TokenID{{Num: 7000}},
	})
	_, err := domain.NewSignatureRequirement(tx)
	require.ErrorIs(t, err, domain.ErrNoRequirementModel)
	require.EqualError(t, err, "no model registered for type: TOKEN_ASSOCIATE")
}

func requirementFor(
	t *testing.T, payer ledger.AccountID, data ledger.TransactionData,
) domain.SignatureRequirement {
	req, err := domain.NewSignatureRequirement(newLedgerTx(t, payer, validStart, data))
	require.NoError(t, err)
	return req
}
