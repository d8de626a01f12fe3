package application

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

// SignatureService builds the signature key of a transaction by resolving
// the keys of the accounts involved through the account directory, and
// evaluates or reduces the signatures attached to it.
//
// The key requires, all together:
//   - the fee payer account key;
//   - the keys introduced by the transaction body;
//   - the keys of the signing accounts;
//   - the keys of the receiver accounts that require receiver signatures;
//   - the admin key of the target node, if any.
//
// Accounts and nodes the network does not know are skipped with a warning.
// Any other directory error aborts the computation, as does a key left with
// no entries.
type SignatureService struct {
	directory ports.AccountDirectory

	warn func(err error, format string, a ...interface{})
}

func NewSignatureService(directory ports.AccountDirectory) *SignatureService {
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("signature service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &SignatureService{directory, warnFn}
}

func (ss *SignatureService) ComputeSignatureKey(
	ctx context.Context, tx *ledger.Transaction, network string,
) (domain.SignatureKey, error) {
	req, err := domain.NewSignatureRequirement(tx)
	if err != nil {
		return domain.SignatureKey{}, err
	}

	entries := append([]ledger.Key{}, req.NewKeys()...)
	resolved := make(map[ledger.AccountID]struct{})

	signingAccounts := req.SigningAccounts()
	if payer, ok := req.FeePayerAccount(); ok {
		signingAccounts = append([]ledger.AccountID{payer}, signingAccounts...)
	}
	for _, account := range signingAccounts {
		if _, ok := resolved[account]; ok {
			continue
		}
		resolved[account] = struct{}{}

		info, err := ss.getAccountInfo(ctx, network, account)
		if err != nil {
			if !errors.Is(err, ports.ErrAccountNotFound) {
				return domain.SignatureKey{}, err
			}
			ss.warn(err, "skipping unresolved signing account %s", account)
			continue
		}
		entries = append(entries, info.Key)
	}

	for _, account := range req.ReceiverAccounts() {
		if _, ok := resolved[account]; ok {
			continue
		}
		resolved[account] = struct{}{}

		info, err := ss.getAccountInfo(ctx, network, account)
		if err != nil {
			if !errors.Is(err, ports.ErrAccountNotFound) {
				return domain.SignatureKey{}, err
			}
			ss.warn(err, "skipping unresolved receiver account %s", account)
			continue
		}
		if info.ReceiverSignatureRequired {
			entries = append(entries, info.Key)
		}
	}

	if nodeID, ok := req.NodeID(); ok {
		key, err := ss.directory.GetNodeAdminKey(ctx, network, nodeID)
		switch {
		case err == nil && key != nil:
			entries = append(entries, key)
		case err == nil || errors.Is(err, ports.ErrNodeNotFound):
			ss.warn(err, "skipping unresolved admin key of node %d", nodeID)
		default:
			return domain.SignatureKey{}, err
		}
	}

	if len(entries) == 0 {
		return domain.SignatureKey{}, domain.ErrEmptySignatureKey
	}
	return domain.NewSignatureKey(entries), nil
}

// HasValidSignatureKey returns whether the verified signatures attached to
// the transaction satisfy its signature key.
func (ss *SignatureService) HasValidSignatureKey(
	ctx context.Context, tx *domain.Transaction,
) (bool, error) {
	ltx, err := tx.Decode()
	if err != nil {
		return false, err
	}
	key, err := ss.ComputeSignatureKey(ctx, ltx, tx.MirrorNetwork)
	if err != nil {
		return false, err
	}
	return key.IsSatisfiedBy(ltx.SignerKeys()), nil
}

// Collate returns the stored bytes of the transaction reduced to the minimal
// set of signatures satisfying its signature key.
func (ss *SignatureService) Collate(
	ctx context.Context, tx *domain.Transaction,
) ([]byte, error) {
	ltx, err := tx.Decode()
	if err != nil {
		return nil, err
	}
	key, err := ss.ComputeSignatureKey(ctx, ltx, tx.MirrorNetwork)
	if err != nil {
		return nil, err
	}
	return key.Collate(tx.Body)
}

func (ss *SignatureService) getAccountInfo(
	ctx context.Context, network string, account ledger.AccountID,
) (*ports.AccountInfo, error) {
	info, err := ss.directory.GetAccountInfo(ctx, network, account)
	if err != nil {
		return nil, err
	}
	if info == nil || info.Key == nil {
		return nil, fmt.Errorf("%w: %s has no key", ports.ErrAccountNotFound, account)
	}
	return info, nil
}
