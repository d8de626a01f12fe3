package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/internal/metrics"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

const (
	// CollateOffset is how long before valid start a transaction is collated.
	CollateOffset = 10 * time.Second
	// SubmitOffset is how long after valid start a transaction is submitted.
	SubmitOffset = 5 * time.Second
	// ExpiryGracePeriod is how long after valid start a transaction can
	// still be submitted.
	ExpiryGracePeriod = 180 * time.Second
)

func collateTimerName(txID string) string {
	return fmt.Sprintf("collate_timeout_%s", txID)
}

func groupCollateTimerName(groupID string) string {
	return fmt.Sprintf("smart_collate_group_timeout_%s", groupID)
}

func executionTimerName(txID string) string {
	return fmt.Sprintf("execution_timeout_%s", txID)
}

func groupExecutionTimerName(groupID string) string {
	return fmt.Sprintf("group_execution_timeout_%s", groupID)
}

// ExecutionService schedules, for every transaction (or group) ready for
// execution, the collation of its signatures right before valid start and
// its submission right after.
//
// Scheduling is per process and idempotent: every step is a named timer of
// the scheduler registry, and a step is never registered twice. Exclusive
// submission across instances is enforced by the SubmissionService.
//
// Collation re-reads the transaction when the timer fires so that signatures
// added in the meantime are taken into account. If the signatures do not
// satisfy the key anymore, or the minimal set doesn't fit the max
// transaction size, the transaction is marked FAILED. Unexpected errors
// leave it untouched.
type ExecutionService struct {
	repoManager ports.RepoManager
	signatures  *SignatureService
	submission  *SubmissionService
	scheduler   ports.Scheduler
	notifier    ports.Notifier
	clock       clock.Clock

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewExecutionService(
	repoManager ports.RepoManager, signatures *SignatureService,
	submission *SubmissionService, scheduler ports.Scheduler,
	notifier ports.Notifier, clk clock.Clock,
) *ExecutionService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("execution service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("execution service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &ExecutionService{
		repoManager, signatures, submission, scheduler, notifier, clk,
		logFn, warnFn,
	}
}

// IsValidStartExecutable returns whether the network accepts a transaction
// with the given valid start right now, ie. valid start is past but by no
// more than the grace period.
func (es *ExecutionService) IsValidStartExecutable(validStart time.Time) bool {
	now := es.clock.Now()
	return !validStart.After(now) && now.Sub(validStart) <= ExpiryGracePeriod
}

// PrepareTransactions schedules the collation and submission of those
// transactions that are waiting for execution and can be executed now.
func (es *ExecutionService) PrepareTransactions(
	ctx context.Context, txs []*domain.Transaction,
) {
	ready := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Status == domain.StatusWaitingForExecution &&
			es.IsValidStartExecutable(tx.ValidStart) {
			ready = append(ready, tx)
		}
	}
	es.dispatch(ctx, ready)
}

// ScheduleUpcoming is like PrepareTransactions, for transactions whose valid
// start is still in the future.
func (es *ExecutionService) ScheduleUpcoming(
	ctx context.Context, txs []*domain.Transaction,
) {
	now := es.clock.Now()
	upcoming := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Status == domain.StatusWaitingForExecution &&
			tx.ValidStart.After(now) {
			upcoming = append(upcoming, tx)
		}
	}
	es.dispatch(ctx, upcoming)
}

// dispatch schedules every ungrouped transaction on its own, and every group
// once, however many of its members are in the list.
func (es *ExecutionService) dispatch(
	ctx context.Context, txs []*domain.Transaction,
) {
	groups := make(map[string]struct{})
	for _, tx := range txs {
		if !tx.IsInGroup() {
			es.CollateAndExecute(ctx, tx)
			continue
		}
		if _, ok := groups[tx.GroupID]; ok {
			continue
		}
		groups[tx.GroupID] = struct{}{}

		group, err := es.repoManager.TransactionGroupRepository().GetGroup(
			ctx, tx.GroupID,
		)
		if err != nil {
			es.warn(err, "failed to get group %s", tx.GroupID)
			continue
		}
		if err := es.CollateGroupAndExecute(ctx, group); err != nil {
			es.warn(err, "failed to schedule group %s", group.ID)
		}
	}
}

// CollateAndExecute registers the collation of the given transaction at
// valid start minus CollateOffset.
func (es *ExecutionService) CollateAndExecute(
	_ context.Context, tx *domain.Transaction,
) {
	name := collateTimerName(tx.ID)
	if es.scheduler.Exists(name) {
		return
	}

	txID := tx.ID
	fireAt := tx.ValidStart.Add(-CollateOffset)
	if es.scheduler.Register(name, fireAt, func() {
		es.collate(context.Background(), txID)
	}) {
		es.log("scheduled collation of tx %s at %s", txID, fireAt)
	}
}

// CollateGroupAndExecute registers the collation of all members of the given
// group at the valid start of the first one minus CollateOffset.
func (es *ExecutionService) CollateGroupAndExecute(
	ctx context.Context, group *domain.TransactionGroup,
) error {
	name := groupCollateTimerName(group.ID)
	if es.scheduler.Exists(name) {
		return nil
	}

	txs, err := es.groupTransactions(ctx, group)
	if err != nil {
		return err
	}

	groupID := group.ID
	fireAt := txs[0].ValidStart.Add(-CollateOffset)
	if es.scheduler.Register(name, fireAt, func() {
		es.collateGroup(context.Background(), groupID)
	}) {
		es.log("scheduled collation of group %s at %s", groupID, fireAt)
	}
	return nil
}

// AddExecutionTimeout registers the submission of the given transaction at
// valid start plus SubmitOffset. Manual transactions are never submitted
// automatically.
func (es *ExecutionService) AddExecutionTimeout(
	_ context.Context, tx *domain.Transaction,
) {
	if tx.IsManual {
		return
	}
	name := executionTimerName(tx.ID)
	if es.scheduler.Exists(name) {
		return
	}

	txID := tx.ID
	fireAt := tx.ValidStart.Add(SubmitOffset)
	if es.scheduler.Register(name, fireAt, func() {
		if err := es.submission.ExecuteTransaction(
			context.Background(), txID,
		); err != nil {
			es.warn(err, "failed to execute tx %s", txID)
		}
	}) {
		es.log("scheduled execution of tx %s at %s", txID, fireAt)
	}
}

// AddGroupExecutionTimeout registers the submission of the given group at
// the valid start of its first member plus SubmitOffset. Groups with manual
// members are never submitted automatically.
func (es *ExecutionService) AddGroupExecutionTimeout(
	ctx context.Context, group *domain.TransactionGroup,
) error {
	txs, err := es.groupTransactions(ctx, group)
	if err != nil {
		return err
	}
	es.addGroupExecutionTimeout(group.ID, txs)
	return nil
}

func (es *ExecutionService) addGroupExecutionTimeout(
	groupID string, txs []*domain.Transaction,
) {
	for _, tx := range txs {
		if tx.IsManual {
			return
		}
	}
	name := groupExecutionTimerName(groupID)
	if es.scheduler.Exists(name) {
		return
	}

	fireAt := txs[0].ValidStart.Add(SubmitOffset)
	if es.scheduler.Register(name, fireAt, func() {
		if err := es.submission.ExecuteTransactionGroup(
			context.Background(), groupID,
		); err != nil {
			es.warn(err, "failed to execute group %s", groupID)
		}
	}) {
		es.log("scheduled execution of group %s at %s", groupID, fireAt)
	}
}

// Cancel drops any pending timer of the given transaction.
func (es *ExecutionService) Cancel(_ context.Context, txID string) {
	for _, name := range []string{
		collateTimerName(txID), executionTimerName(txID),
	} {
		if es.scheduler.Cancel(name) {
			es.log("canceled timer %s", name)
		}
	}
}

// CancelGroup drops any pending timer of the given group.
func (es *ExecutionService) CancelGroup(_ context.Context, groupID string) {
	for _, name := range []string{
		groupCollateTimerName(groupID), groupExecutionTimerName(groupID),
	} {
		if es.scheduler.Cancel(name) {
			es.log("canceled timer %s", name)
		}
	}
}

func (es *ExecutionService) collate(ctx context.Context, txID string) {
	repo := es.repoManager.TransactionRepository()
	tx, err := repo.GetTransaction(ctx, txID)
	if err != nil {
		es.warn(err, "abandoning collation of tx %s", txID)
		metrics.Collations.WithLabelValues(metrics.ResultError).Inc()
		return
	}
	if tx.Status.IsTerminal() {
		es.log("skipping collation of tx %s in status %s", txID, tx.Status)
		return
	}

	body, err := es.signatures.Collate(ctx, tx)
	if err != nil {
		if isCollationFailure(err) {
			es.warn(err, "collation of tx %s failed", txID)
			es.failTransactions(ctx, []*domain.Transaction{tx}, err)
			return
		}
		es.warn(err, "abandoning collation of tx %s", txID)
		metrics.Collations.WithLabelValues(metrics.ResultError).Inc()
		return
	}

	var collated *domain.Transaction
	if err := repo.UpdateTransaction(
		ctx, txID, func(t *domain.Transaction) (*domain.Transaction, error) {
			if err := t.UpdateBody(body); err != nil {
				return nil, err
			}
			collated = t
			return t, nil
		},
	); err != nil {
		es.warn(err, "abandoning collation of tx %s", txID)
		metrics.Collations.WithLabelValues(metrics.ResultError).Inc()
		return
	}
	metrics.Collations.WithLabelValues(metrics.ResultOk).Inc()
	es.log("collated tx %s", txID)

	es.AddExecutionTimeout(ctx, collated)
}

func (es *ExecutionService) collateGroup(ctx context.Context, groupID string) {
	group, err := es.repoManager.TransactionGroupRepository().GetGroup(
		ctx, groupID,
	)
	if err != nil {
		es.warn(err, "abandoning collation of group %s", groupID)
		return
	}
	txs, err := es.groupTransactions(ctx, group)
	if err != nil {
		es.warn(err, "abandoning collation of group %s", groupID)
		return
	}

	bodies := make(map[string][]byte)
	for _, tx := range txs {
		if tx.Status != domain.StatusWaitingForExecution {
			err := fmt.Errorf(
				"%w: member %s is %s", domain.ErrInsufficientSignatures, tx.ID, tx.Status,
			)
			es.warn(err, "collation of group %s failed", groupID)
			es.failTransactions(ctx, txs, err)
			return
		}

		body, err := es.signatures.Collate(ctx, tx)
		if err != nil {
			if isCollationFailure(err) {
				es.warn(err, "collation of group %s failed at tx %s", groupID, tx.ID)
				es.failTransactions(ctx, txs, err)
				return
			}
			es.warn(err, "abandoning collation of group %s", groupID)
			metrics.Collations.WithLabelValues(metrics.ResultError).Inc()
			return
		}
		bodies[tx.ID] = body
	}

	repo := es.repoManager.TransactionRepository()
	collated := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		body := bodies[tx.ID]
		if err := repo.UpdateTransaction(
			ctx, tx.ID, func(t *domain.Transaction) (*domain.Transaction, error) {
				if err := t.UpdateBody(body); err != nil {
					return nil, err
				}
				collated = append(collated, t)
				return t, nil
			},
		); err != nil {
			es.warn(err, "abandoning collation of group %s", groupID)
			metrics.Collations.WithLabelValues(metrics.ResultError).Inc()
			return
		}
	}
	metrics.Collations.WithLabelValues(metrics.ResultOk).Add(float64(len(txs)))
	es.log("collated group %s", groupID)

	es.addGroupExecutionTimeout(groupID, collated)
}

// failTransactions marks the given transactions as FAILED because their
// signatures could not be collated.
func (es *ExecutionService) failTransactions(
	ctx context.Context, txs []*domain.Transaction, cause error,
) {
	result := metrics.ResultOversize
	if errors.Is(cause, domain.ErrInsufficientSignatures) {
		result = metrics.ResultInsufficient
	}

	now := es.clock.Now()
	repo := es.repoManager.TransactionRepository()
	failed := 0
	for _, tx := range txs {
		var from domain.TransactionStatus
		if err := repo.UpdateTransaction(
			ctx, tx.ID, func(t *domain.Transaction) (*domain.Transaction, error) {
				from = t.Status
				if err := t.Fail(ledger.StatusTransactionOversize, now); err != nil {
					return nil, err
				}
				return t, nil
			},
		); err != nil {
			es.warn(err, "failed to mark tx %s as failed", tx.ID)
			continue
		}
		failed++
		metrics.Collations.WithLabelValues(result).Inc()
		metrics.StatusTransitions.WithLabelValues(
			from.String(), domain.StatusFailed.String(),
		).Inc()
		es.notifier.NotifyStatusChanged(tx.ID, domain.StatusFailed, tx.MirrorNetwork)
	}
	if failed > 0 {
		es.notifier.NotifyExecutionAction()
	}
}

// groupTransactions returns the members of the group ordered by seq.
func (es *ExecutionService) groupTransactions(
	ctx context.Context, group *domain.TransactionGroup,
) ([]*domain.Transaction, error) {
	return loadGroupTransactions(ctx, es.repoManager, group)
}

func loadGroupTransactions(
	ctx context.Context, repoManager ports.RepoManager,
	group *domain.TransactionGroup,
) ([]*domain.Transaction, error) {
	ids := group.TransactionIDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("group %s has no transactions", group.ID)
	}
	repo := repoManager.TransactionRepository()
	txs := make([]*domain.Transaction, 0, len(ids))
	for _, id := range ids {
		tx, err := repo.GetTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func isCollationFailure(err error) bool {
	return errors.Is(err, domain.ErrInsufficientSignatures) ||
		errors.Is(err, domain.ErrTransactionOversize)
}
