package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/internal/metrics"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

func transactionLockKey(txID string) string {
	return fmt.Sprintf("transaction:%s", txID)
}

func groupLockKey(groupID string) string {
	return fmt.Sprintf("transaction_group:%s", groupID)
}

// SubmissionService submits transactions to the network and records their
// outcome.
//
// Every submission runs under a cluster-wide lock keyed by transaction (or
// group) id, so that at most one instance submits it. When the lock is held
// by someone else the attempt is skipped.
//
// Before submitting, the status of the transaction must be
// WAITING_FOR_EXECUTION and its signature key is verified again. Ledger
// rejections are not returned as errors: they are recorded as FAILED with the
// best matching status code.
type SubmissionService struct {
	repoManager ports.RepoManager
	signatures  *SignatureService
	ledger      ports.LedgerClient
	directory   ports.AccountDirectory
	locker      ports.Locker
	notifier    ports.Notifier
	clock       clock.Clock

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewSubmissionService(
	repoManager ports.RepoManager, signatures *SignatureService,
	ledgerClient ports.LedgerClient, directory ports.AccountDirectory,
	locker ports.Locker, notifier ports.Notifier, clk clock.Clock,
) *SubmissionService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("submission service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("submission service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &SubmissionService{
		repoManager, signatures, ledgerClient, directory, locker, notifier, clk,
		logFn, warnFn,
	}
}

func (ss *SubmissionService) ExecuteTransaction(
	ctx context.Context, txID string,
) error {
	acquired, err := ss.locker.WithLock(
		ctx, transactionLockKey(txID), func(ctx context.Context) error {
			return ss.executeTransaction(ctx, txID)
		},
	)
	if err != nil {
		return err
	}
	if !acquired {
		metrics.SkippedLocks.Inc()
		ss.log("tx %s is being executed elsewhere, skipping", txID)
	}
	return nil
}

// ExecuteTransactionGroup submits all members of a group. Members of an
// atomic group are all validated before submitting any of them. Sequential
// groups are submitted in seq order, and if atomic the submission stops at
// the first failure, marking the remaining members as FAILED. The others are
// submitted concurrently.
func (ss *SubmissionService) ExecuteTransactionGroup(
	ctx context.Context, groupID string,
) error {
	var groupErr error
	acquired, err := ss.locker.WithLock(
		ctx, groupLockKey(groupID), func(ctx context.Context) error {
			groupErr = ss.executeTransactionGroup(ctx, groupID)
			return nil
		},
	)
	if err != nil {
		return err
	}
	if !acquired {
		metrics.SkippedLocks.Inc()
		ss.log("group %s is being executed elsewhere, skipping", groupID)
	}
	return groupErr
}

func (ss *SubmissionService) executeTransaction(
	ctx context.Context, txID string,
) error {
	tx, err := ss.repoManager.TransactionRepository().GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if err := ss.validate(ctx, tx); err != nil {
		return err
	}
	_, err = ss.submit(ctx, tx)
	return err
}

func (ss *SubmissionService) executeTransactionGroup(
	ctx context.Context, groupID string,
) error {
	group, err := ss.repoManager.TransactionGroupRepository().GetGroup(
		ctx, groupID,
	)
	if err != nil {
		return err
	}
	txs, err := loadGroupTransactions(ctx, ss.repoManager, group)
	if err != nil {
		return err
	}

	var result *multierror.Error
	valid := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if err := ss.validate(ctx, tx); err != nil {
			if group.Atomic {
				return fmt.Errorf("atomic group %s: tx %s: %w", groupID, tx.ID, err)
			}
			result = multierror.Append(result, fmt.Errorf("tx %s: %w", tx.ID, err))
			continue
		}
		valid = append(valid, tx)
	}

	if group.Sequential {
		for i, tx := range valid {
			executed, err := ss.submit(ctx, tx)
			if err != nil {
				result = multierror.Append(result, err)
			}
			if !executed && group.Atomic {
				ss.abortTransactions(ctx, valid[i+1:])
				break
			}
		}
		return result.ErrorOrNil()
	}

	wg := &sync.WaitGroup{}
	mu := &sync.Mutex{}
	wg.Add(len(valid))
	for _, tx := range valid {
		go func(tx *domain.Transaction) {
			defer wg.Done()
			if _, err := ss.submit(ctx, tx); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}(tx)
	}
	wg.Wait()

	return result.ErrorOrNil()
}

// validate returns an error if the transaction cannot be submitted.
func (ss *SubmissionService) validate(
	ctx context.Context, tx *domain.Transaction,
) error {
	if err := validateExecutable(tx); err != nil {
		return err
	}
	ok, err := ss.signatures.HasValidSignatureKey(ctx, tx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

// submit sends the transaction to the network and persists the outcome. It
// returns whether the transaction was executed, and an error only if the
// outcome could not be persisted.
func (ss *SubmissionService) submit(
	ctx context.Context, tx *domain.Transaction,
) (bool, error) {
	receipt, submitErr := ss.ledger.SubmitTransaction(
		ctx, tx.MirrorNetwork, tx.Body,
	)
	now := ss.clock.Now()

	code := ledger.StatusOk
	if submitErr != nil {
		code = ledger.StatusFromError(submitErr)
		ss.warn(submitErr, "tx %s failed with status %s", tx.ID, code)
	} else if receipt != nil && receipt.Status != 0 {
		code = receipt.Status
	}

	status := domain.StatusExecuted
	if err := ss.repoManager.TransactionRepository().UpdateTransaction(
		ctx, tx.ID, func(t *domain.Transaction) (*domain.Transaction, error) {
			var err error
			if submitErr != nil {
				status = domain.StatusFailed
				err = t.Fail(code, now)
			} else {
				err = t.Execute(code, now)
			}
			if err != nil {
				return nil, err
			}
			return t, nil
		},
	); err != nil {
		return false, fmt.Errorf("failed to persist outcome of tx %s: %w", tx.ID, err)
	}

	metrics.Submissions.WithLabelValues(code.String()).Inc()
	metrics.StatusTransitions.WithLabelValues(
		tx.Status.String(), status.String(),
	).Inc()
	ss.log("tx %s %s with status %s", tx.ID, status, code)

	ss.notifier.NotifyStatusChanged(tx.ID, status, tx.MirrorNetwork)
	ss.notifier.NotifyExecutionAction()

	if submitErr == nil && tx.Type == ledger.TypeAccountUpdate {
		go ss.invalidateUpdatedAccount(tx)
	}
	return submitErr == nil, nil
}

// abortTransactions marks as FAILED the members of an atomic group that were
// not submitted because of a previous failure.
func (ss *SubmissionService) abortTransactions(
	ctx context.Context, txs []*domain.Transaction,
) {
	if len(txs) == 0 {
		return
	}
	now := ss.clock.Now()
	for _, tx := range txs {
		if err := ss.repoManager.TransactionRepository().UpdateTransaction(
			ctx, tx.ID, func(t *domain.Transaction) (*domain.Transaction, error) {
				if err := t.Fail(ledger.StatusGroupAborted, now); err != nil {
					return nil, err
				}
				return t, nil
			},
		); err != nil {
			ss.warn(err, "failed to abort tx %s", tx.ID)
			continue
		}
		metrics.StatusTransitions.WithLabelValues(
			tx.Status.String(), domain.StatusFailed.String(),
		).Inc()
		ss.notifier.NotifyStatusChanged(tx.ID, domain.StatusFailed, tx.MirrorNetwork)
	}
	ss.notifier.NotifyExecutionAction()
}

func (ss *SubmissionService) invalidateUpdatedAccount(tx *domain.Transaction) {
	ltx, err := tx.Decode()
	if err != nil {
		ss.warn(err, "failed to decode executed tx %s", tx.ID)
		return
	}
	data, ok := ltx.Data().(*ledger.AccountUpdate)
	if !ok {
		ss.warn(errors.New("unexpected transaction data"), "tx %s", tx.ID)
		return
	}
	if err := ss.directory.InvalidateAccount(
		context.Background(), tx.MirrorNetwork, data.Account,
	); err != nil {
		ss.warn(err, "failed to refresh account %s", data.Account)
	}
}
