package domain

import (
	"sort"
	"strings"

	"github.com/vulpemventures/cosigner/pkg/ledger"
)

// SignatureKey is the threshold structure a transaction's signatures must
// satisfy. It is built fresh for every evaluation and never persisted.
type SignatureKey struct {
	key ledger.KeyList
}

// NewSignatureKey returns a key requiring all the given entries.
func NewSignatureKey(entries []ledger.Key) SignatureKey {
	return SignatureKey{ledger.KeyList{Threshold: len(entries), Keys: entries}}
}

func (k SignatureKey) Key() ledger.KeyList {
	return k.key
}

func (k SignatureKey) IsEmpty() bool {
	return len(k.key.Keys) == 0
}

// IsSatisfiedBy returns whether the given signers satisfy the key.
func (k SignatureKey) IsSatisfiedBy(signers []ledger.PublicKey) bool {
	return isSatisfied(k.key, newKeySet(signers))
}

// MinimalSigners returns the cheapest subset of signers that still satisfies
// the key. For every list the cheapest satisfiable children are picked, cost
// being the serialized size of their signatures. Ties are broken on key
// bytes, so the result is deterministic.
func (k SignatureKey) MinimalSigners(
	signers []ledger.PublicKey,
) ([]ledger.PublicKey, error) {
	set := newKeySet(signers)
	if !isSatisfied(k.key, set) {
		return nil, ErrInsufficientSignatures
	}
	chosen, _ := cheapestSigners(k.key, set)
	return chosen.keys(), nil
}

// Collate reduces the signatures attached to the given serialized transaction
// to the minimal set satisfying the key. The input is returned untouched if
// nothing can be dropped.
func (k SignatureKey) Collate(body []byte) ([]byte, error) {
	tx, err := ledger.Decode(body)
	if err != nil {
		return nil, err
	}

	minimal, err := k.MinimalSigners(tx.SignerKeys())
	if err != nil {
		return nil, err
	}

	chosen := newKeySet(minimal)
	attached := tx.Signatures()
	unchanged := len(attached) == len(minimal)
	for _, s := range attached {
		if !chosen.has(s.PublicKey) {
			unchanged = false
			break
		}
	}
	if unchanged {
		if len(body) > ledger.MaxTransactionSize {
			return nil, ErrTransactionOversize
		}
		return body, nil
	}

	reduced := tx.WithSignatures(minimal)
	if reduced.Size() > ledger.MaxTransactionSize {
		return nil, ErrTransactionOversize
	}
	return reduced.Bytes(), nil
}

func isSatisfied(key ledger.Key, signers *keySet) bool {
	switch k := key.(type) {
	case ledger.PublicKey:
		return signers.has(k)
	case ledger.KeyList:
		if !k.IsValid() {
			return false
		}
		count := 0
		for _, child := range k.Keys {
			if isSatisfied(child, signers) {
				count++
			}
		}
		return count >= k.RequiredCount()
	default:
		return false
	}
}

// cheapestSigners returns the cheapest set of signers satisfying key, and
// false if the key cannot be satisfied.
func cheapestSigners(key ledger.Key, signers *keySet) (*keySet, bool) {
	switch k := key.(type) {
	case ledger.PublicKey:
		if !signers.has(k) {
			return nil, false
		}
		return newKeySet([]ledger.PublicKey{k}), true
	case ledger.KeyList:
		if !k.IsValid() {
			return nil, false
		}
		options := make([]*keySet, 0, len(k.Keys))
		for _, child := range k.Keys {
			if set, ok := cheapestSigners(child, signers); ok {
				options = append(options, set)
			}
		}
		required := k.RequiredCount()
		if len(options) < required {
			return nil, false
		}
		sort.SliceStable(options, func(i, j int) bool {
			ci, cj := options[i].cost(), options[j].cost()
			if ci != cj {
				return ci < cj
			}
			return options[i].id() < options[j].id()
		})

		chosen := newKeySet(nil)
		for _, o := range options[:required] {
			chosen.merge(o)
		}
		return chosen, true
	default:
		return nil, false
	}
}

type keySet struct {
	list []ledger.PublicKey
	seen map[string]struct{}
}

func newKeySet(keys []ledger.PublicKey) *keySet {
	s := &keySet{
		list: make([]ledger.PublicKey, 0, len(keys)),
		seen: make(map[string]struct{}),
	}
	for _, k := range keys {
		s.add(k)
	}
	return s
}

func (s *keySet) add(k ledger.PublicKey) {
	if s.has(k) {
		return
	}
	s.seen[k.String()] = struct{}{}
	s.list = append(s.list, k)
}

func (s *keySet) has(k ledger.PublicKey) bool {
	_, ok := s.seen[k.String()]
	return ok
}

func (s *keySet) merge(other *keySet) {
	for _, k := range other.list {
		s.add(k)
	}
}

// cost is the number of bytes the signatures of this set add to a
// transaction.
func (s *keySet) cost() int {
	cost := 0
	for _, k := range s.list {
		cost += len(k.Bytes) + k.SignatureSize()
	}
	return cost
}

func (s *keySet) id() string {
	ids := make([]string, 0, len(s.list))
	for _, k := range s.list {
		ids = append(ids, k.String())
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func (s *keySet) keys() []ledger.PublicKey {
	return append([]ledger.PublicKey{}, s.list...)
}
