package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

func TestIsSatisfiedBy(t *testing.T) {
	keys := newPublicKeys(t, 5)
	a, b, c, d, e := keys[0], keys[1], keys[2], keys[3], keys[4]

	// all of: a, 1-of(b, c), 2-of(d, e, 1-of(b))
	sigKey := domain.NewSignatureKey([]ledger.Key{
		a,
		ledger.NewThresholdKey(1, b, c),
		ledger.NewThresholdKey(2, d, e, ledger.NewThresholdKey(1, b)),
	})

	tests := []struct {
		signers  []ledger.PublicKey
		expected bool
	}{
		{nil, false},
		{[]ledger.PublicKey{a}, false},
		{[]ledger.PublicKey{a, b}, false},
		{[]ledger.PublicKey{a, b, d}, true},
		{[]ledger.PublicKey{a, c, d, e}, true},
		{[]ledger.PublicKey{a, c, d}, false},
		{[]ledger.PublicKey{b, c, d, e}, false},
	}
	for i, tt := range tests {
		require.Equal(t, tt.expected, sigKey.IsSatisfiedBy(tt.signers), i)
	}

	require.False(t, domain.NewSignatureKey(nil).IsSatisfiedBy(nil))
	require.False(t, domain.NewSignatureKey(nil).IsSatisfiedBy(keys))
}

func TestMalformedKeyListNeverSatisfied(t *testing.T) {
	keys := newPublicKeys(t, 3)
	a, b, c := keys[0], keys[1], keys[2]

	tests := []struct {
		name   string
		sigKey domain.SignatureKey
	}{
		{
			name: "threshold_above_keys",
			sigKey: domain.NewSignatureKey([]ledger.Key{
				ledger.NewThresholdKey(3, a, b),
			}),
		},
		{
			name: "nested_empty_list",
			sigKey: domain.NewSignatureKey([]ledger.Key{
				a, ledger.NewKeyList(),
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, tt.sigKey.IsSatisfiedBy([]ledger.PublicKey{a, b, c}))
			_, err := tt.sigKey.MinimalSigners([]ledger.PublicKey{a, b, c})
			require.ErrorIs(t, err, domain.ErrInsufficientSignatures)
		})
	}
}

func TestSignatureKeyRoundTrip(t *testing.T) {
	keys := newPublicKeys(t, 4)
	entries := make([]ledger.Key, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, k)
	}
	sigKey := domain.NewSignatureKey(entries)

	require.True(t, sigKey.IsSatisfiedBy(keys))
	for i := range keys {
		missing := append(append([]ledger.PublicKey{}, keys[:i]...), keys[i+1:]...)
		require.False(t, sigKey.IsSatisfiedBy(missing))
	}
}

func TestMinimalSigners(t *testing.T) {
	ed := newPublicKeys(t, 2)
	ec := newPrivateKeys(t, ledger.KeyTypeECDSASecp256k1, 1)[0].PublicKey()

	sigKey := domain.NewSignatureKey([]ledger.Key{
		ledger.NewThresholdKey(2, ec, ed[0], ed[1]),
	})
	signers := []ledger.PublicKey{ec, ed[0], ed[1]}

	minimal, err := sigKey.MinimalSigners(signers)
	require.NoError(t, err)
	require.Len(t, minimal, 2)
	require.ElementsMatch(t, ed, minimal)

	again, err := sigKey.MinimalSigners([]ledger.PublicKey{ed[1], ec, ed[0]})
	require.NoError(t, err)
	require.Equal(t, minimal, again)

	_, err = sigKey.MinimalSigners([]ledger.PublicKey{ec})
	require.ErrorIs(t, err, domain.ErrInsufficientSignatures)
}

func TestCollate(t *testing.T) {
	t.Run("threshold reduction", func(t *testing.T) {
		prvkeys := newPrivateKeys(t, ledger.KeyTypeEd25519, 50)
		tx, entries := signedTx(t, prvkeys)
		sigKey := domain.NewSignatureKey([]ledger.Key{
			ledger.NewThresholdKey(5, entries...),
		})

		collated, err := sigKey.Collate(tx.Bytes())
		require.NoError(t, err)

		reduced, err := ledger.Decode(collated)
		require.NoError(t, err)
		require.Len(t, reduced.Signatures(), 5)
		require.True(t, sigKey.IsSatisfiedBy(reduced.SignerKeys()))
		require.Equal(t, tx.Hash(), reduced.Hash())
	})

	t.Run("already minimal", func(t *testing.T) {
		prvkeys := newPrivateKeys(t, ledger.KeyTypeEd25519, 3)
		tx, entries := signedTx(t, prvkeys)
		sigKey := domain.NewSignatureKey(entries)

		body := tx.Bytes()
		collated, err := sigKey.Collate(body)
		require.NoError(t, err)
		require.Equal(t, body, collated)

		collatedAgain, err := sigKey.Collate(collated)
		require.NoError(t, err)
		require.Equal(t, collated, collatedAgain)
	})

	t.Run("insufficient", func(t *testing.T) {
		prvkeys := newPrivateKeys(t, ledger.KeyTypeEd25519, 3)
		tx, entries := signedTx(t, prvkeys[:1])
		sigKey := domain.NewSignatureKey(append(entries, prvkeys[1].PublicKey()))

		_, err := sigKey.Collate(tx.Bytes())
		require.ErrorIs(t, err, domain.ErrInsufficientSignatures)
	})

	t.Run("oversize", func(t *testing.T) {
		prvkeys := newPrivateKeys(t, ledger.KeyTypeEd25519, 70)
		tx, entries := signedTx(t, prvkeys)
		sigKey := domain.NewSignatureKey([]ledger.Key{
			ledger.NewThresholdKey(65, entries...),
		})

		for i := 0; i < 2; i++ {
			_, err := sigKey.Collate(tx.Bytes())
			require.ErrorIs(t, err, domain.ErrTransactionOversize)
		}
	})
}

func signedTx(
	t *testing.T, prvkeys []ledger.PrivateKey,
) (*ledger.Transaction, []ledger.Key) {
	tx := newLedgerTx(t, acc(1001), validStart, &ledger.Transfer{
		HbarTransfers: []ledger.HbarTransfer{
			{Account: acc(1001), Amount: -1}, {Account: acc(1002), Amount: 1},
		},
	})
	entries := make([]ledger.Key, 0, len(prvkeys))
	for _, k := range prvkeys {
		tx.Sign(k)
		entries = append(entries, k.PublicKey())
	}
	return tx, entries
}

func newPrivateKeys(
	t *testing.T, keyType ledger.KeyType, n int,
) []ledger.PrivateKey {
	keys := make([]ledger.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		key, err := ledger.GeneratePrivateKey(keyType)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}

func newPublicKeys(t *testing.T, n int) []ledger.PublicKey {
	keys := make([]ledger.PublicKey, 0, n)
	for _, k := range newPrivateKeys(t, ledger.KeyTypeEd25519, n) {
		keys = append(keys, k.PublicKey())
	}
	return keys
}
