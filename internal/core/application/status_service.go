package application

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/internal/metrics"
)

type handOff int

const (
	handOffNone handOff = iota
	handOffUpcoming
	handOffPrepare
)

// recheckJob describes a periodic recheck of the pending transactions whose
// valid start falls in (now+from, now+to], or [now+from, now+to] if
// inclusive.
type recheckJob struct {
	name      string
	schedule  string
	from      time.Duration
	to        time.Duration
	inclusive bool
	handOff   handOff
}

var (
	recheckJobs = []recheckJob{
		{"one-week", "0 0 * * * *", 24 * time.Hour, 7 * 24 * time.Hour, false, handOffNone},
		{"one-day", "0 */10 * * * *", time.Hour, 24 * time.Hour, false, handOffNone},
		{"one-hour", "0 * * * * *", 10 * time.Minute, time.Hour, false, handOffNone},
		{"ten-minutes", "*/30 * * * * *", 3 * time.Minute, 10 * time.Minute, false, handOffNone},
		{"three-minutes", "*/5 * * * * *", 0, 3 * time.Minute, false, handOffUpcoming},
		{"stragglers", "*/5 * * * * *", -ExpiryGracePeriod, 0, true, handOffPrepare},
	}
	expirySchedule = "*/10 * * * * *"

	// executionHorizon is how far in the future a transaction that becomes
	// ready for execution is handed to the execution service straight away.
	executionHorizon = 3 * time.Minute
)

// StatusService owns the lifecycle of the transactions waiting for
// signatures or execution.
//
// A transaction is rechecked whenever it's added to the repository, on demand
// (ie. after a new signature has been attached), and periodically by cron
// jobs scanning progressively narrower windows of valid start. Rechecking
// moves it to WAITING_FOR_EXECUTION if its signature key is satisfied, to
// WAITING_FOR_SIGNATURES otherwise. Nothing is written nor notified if the
// status doesn't change.
//
// Transactions ready for execution with a close enough valid start are
// handed to the ExecutionService.
//
// Another cron job expires all the transactions not executed yet whose valid
// start is past by more than ExpiryGracePeriod.
type StatusService struct {
	repoManager ports.RepoManager
	signatures  *SignatureService
	execution   *ExecutionService
	notifier    ports.Notifier
	clock       clock.Clock
	cron        *cron.Cron

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewStatusService(
	repoManager ports.RepoManager, signatures *SignatureService,
	execution *ExecutionService, notifier ports.Notifier, clk clock.Clock,
) (*StatusService, error) {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("status service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("status service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	svc := &StatusService{
		repoManager, signatures, execution, notifier, clk, c, logFn, warnFn,
	}

	for _, job := range recheckJobs {
		job := job
		if _, err := c.AddFunc(job.schedule, func() {
			svc.runRecheckJob(context.Background(), job)
		}); err != nil {
			return nil, fmt.Errorf("invalid schedule for job %s: %w", job.name, err)
		}
	}
	if _, err := c.AddFunc(expirySchedule, func() {
		if _, err := svc.ExpireTransactions(context.Background()); err != nil {
			svc.warn(err, "expiry sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid schedule for expiry job: %w", err)
	}

	svc.registerHandlerForTxEvents()
	return svc, nil
}

// Start runs the cron jobs.
func (ss *StatusService) Start() {
	ss.cron.Start()
	ss.log("started %d cron jobs", len(ss.cron.Entries()))
}

// Stop stops the cron jobs and waits for running ones to complete.
func (ss *StatusService) Stop() {
	<-ss.cron.Stop().Done()
	ss.log("stopped")
}

// RecheckTransaction recomputes the status of the given transaction and
// returns it.
func (ss *StatusService) RecheckTransaction(
	ctx context.Context, txID string,
) (domain.TransactionStatus, error) {
	tx, err := ss.repoManager.TransactionRepository().GetTransaction(ctx, txID)
	if err != nil {
		return 0, err
	}
	updated, err := ss.recheck(ctx, tx)
	if err != nil {
		return 0, err
	}

	if updated.Status == domain.StatusWaitingForExecution &&
		!updated.ValidStart.After(ss.clock.Now().Add(executionHorizon)) {
		txs := []*domain.Transaction{updated}
		ss.execution.PrepareTransactions(ctx, txs)
		ss.execution.ScheduleUpcoming(ctx, txs)
	}
	return updated.Status, nil
}

// RecheckWindow rechecks all pending transactions whose valid start is in
// the given window and returns those ready for execution.
func (ss *StatusService) RecheckWindow(
	ctx context.Context, window domain.ValidStartWindow,
) ([]*domain.Transaction, error) {
	txs, err := ss.repoManager.TransactionRepository().GetTransactions(
		ctx, domain.TransactionFilter{
			Statuses: domain.PendingStatuses,
			Window:   window,
		},
	)
	if err != nil {
		return nil, err
	}

	ready := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		updated, err := ss.recheck(ctx, tx)
		if err != nil {
			ss.warn(err, "failed to recheck tx %s", tx.ID)
			continue
		}
		if updated.Status == domain.StatusWaitingForExecution {
			ready = append(ready, updated)
		}
	}
	return ready, nil
}

// ExpireTransactions moves to EXPIRED all transactions not executed yet
// whose valid start is past by more than the grace period, and returns
// them.
func (ss *StatusService) ExpireTransactions(
	ctx context.Context,
) ([]*domain.Transaction, error) {
	before := ss.clock.Now().Add(-ExpiryGracePeriod)
	expired, err := ss.repoManager.TransactionRepository().ExpireTransactions(
		ctx, before,
	)
	if err != nil {
		return nil, err
	}
	if len(expired) <= 0 {
		return expired, nil
	}

	for _, tx := range expired {
		ss.execution.Cancel(ctx, tx.ID)
		ss.notifier.NotifyStatusChanged(tx.ID, domain.StatusExpired, tx.MirrorNetwork)
	}
	ss.notifier.NotifyExecutionAction()

	metrics.ExpiredTransactions.Add(float64(len(expired)))
	ss.log("expired %d transaction(s)", len(expired))
	return expired, nil
}

func (ss *StatusService) runRecheckJob(ctx context.Context, job recheckJob) {
	now := ss.clock.Now()
	window := domain.ValidStartWindow{
		From:          now.Add(job.from),
		To:            now.Add(job.to),
		FromInclusive: job.inclusive,
	}
	ready, err := ss.RecheckWindow(ctx, window)
	if err != nil {
		ss.warn(err, "recheck job %s failed", job.name)
		return
	}

	switch job.handOff {
	case handOffUpcoming:
		ss.execution.ScheduleUpcoming(ctx, ready)
	case handOffPrepare:
		ss.execution.PrepareTransactions(ctx, ready)
	}
}

// recheck evaluates the signature key of the transaction and updates its
// status accordingly. It returns the transaction as stored after the
// recheck.
func (ss *StatusService) recheck(
	ctx context.Context, tx *domain.Transaction,
) (*domain.Transaction, error) {
	if tx.Status != domain.StatusNew &&
		tx.Status != domain.StatusWaitingForSignatures &&
		tx.Status != domain.StatusWaitingForExecution {
		return tx, nil
	}

	ok, err := ss.signatures.HasValidSignatureKey(ctx, tx)
	if err != nil {
		return nil, err
	}
	next := domain.StatusWaitingForSignatures
	if ok {
		next = domain.StatusWaitingForExecution
	}
	if next == tx.Status {
		return tx, nil
	}

	var (
		updated *domain.Transaction
		from    domain.TransactionStatus
		changed bool
	)
	if err := ss.repoManager.TransactionRepository().UpdateTransaction(
		ctx, tx.ID, func(t *domain.Transaction) (*domain.Transaction, error) {
			updated, from = t, t.Status
			if t.Status == next {
				return t, nil
			}
			if err := t.SetStatus(next); err != nil {
				return nil, err
			}
			changed = true
			return t, nil
		},
	); err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	metrics.StatusTransitions.WithLabelValues(from.String(), next.String()).Inc()
	ss.log("tx %s moved from %s to %s", tx.ID, from, next)

	if next == domain.StatusWaitingForExecution {
		ss.notifier.NotifyReadyForExecution(
			updated.ID, updated.MirrorNetwork, updated.UserIDs(),
		)
	} else {
		ss.notifier.NotifyWaitingForSignatures(
			updated.ID, updated.MirrorNetwork, updated.UserIDs(),
		)
	}
	ss.notifier.NotifyExecutionAction()

	return updated, nil
}

func (ss *StatusService) registerHandlerForTxEvents() {
	ss.repoManager.RegisterHandlerForTxEvent(
		domain.TransactionAdded, func(event domain.TransactionEvent) {
			if _, err := ss.RecheckTransaction(
				context.Background(), event.Transaction.ID,
			); err != nil {
				ss.warn(err, "failed to check new tx %s", event.Transaction.ID)
			}
		},
	)
}
