package application_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

func TestRecheckTransaction(t *testing.T) {
	t.Run("unchanged_status", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)
		svc := env.newStatusService(t)

		tx := env.newTransfer(t, now.Add(time.Hour), 1)
		env.addTransaction(t, tx, domain.StatusWaitingForSignatures)

		status, err := svc.RecheckTransaction(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusWaitingForSignatures, status)

		require.Never(t, func() bool {
			return env.notifier.count(notifiedWaitingForSignatures, "") > 0 ||
				env.notifier.count(notifiedExecutionAction, "") > 0
		}, 200*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("new_transaction_waits_for_signatures", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)
		env.newStatusService(t)

		tx := env.newTransfer(t, now.Add(time.Hour), 1)
		env.addTransaction(t, tx, domain.StatusNew)

		env.requireStatus(t, tx.ID, domain.StatusWaitingForSignatures)
		require.Eventually(t, func() bool {
			return env.notifier.count(notifiedWaitingForSignatures, tx.ID) == 1 &&
				env.notifier.count(notifiedExecutionAction, "") == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("ready_for_execution_notified_once", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)
		svc := env.newStatusService(t)

		tx := env.newTransfer(t, now.Add(time.Hour), 1)
		env.addTransaction(t, tx, domain.StatusWaitingForSignatures)
		env.addSignatures(t, tx.ID, env.payerKeys[1])

		statuses := make([]domain.TransactionStatus, 3)
		errs := make([]error, 3)
		wg := &sync.WaitGroup{}
		wg.Add(3)
		for i := 0; i < 3; i++ {
			go func(i int) {
				defer wg.Done()
				statuses[i], errs[i] = svc.RecheckTransaction(ctx, tx.ID)
			}(i)
		}
		wg.Wait()

		for i := range statuses {
			require.NoError(t, errs[i])
			require.Equal(t, domain.StatusWaitingForExecution, statuses[i])
		}

		env.requireStatus(t, tx.ID, domain.StatusWaitingForExecution)
		require.Never(t, func() bool {
			return env.notifier.count(notifiedReadyForExecution, tx.ID) > 1 ||
				env.notifier.count(notifiedExecutionAction, "") > 1
		}, 200*time.Millisecond, 10*time.Millisecond)
		require.Equal(t, 1, env.notifier.count(notifiedReadyForExecution, tx.ID))
		require.Equal(t, 1, env.notifier.count(notifiedExecutionAction, ""))
	})

	t.Run("back_to_waiting_for_signatures", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)
		svc := env.newStatusService(t)

		tx := env.newTransfer(t, now.Add(time.Hour), 1)
		env.addTransaction(t, tx, domain.StatusWaitingForExecution)

		status, err := svc.RecheckTransaction(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusWaitingForSignatures, status)
		require.Eventually(t, func() bool {
			return env.notifier.count(notifiedWaitingForSignatures, tx.ID) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("unknown_transaction", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)
		svc := env.newStatusService(t)

		_, err := svc.RecheckTransaction(ctx, "unknown")
		require.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})
}

func TestRecheckWindow(t *testing.T) {
	env := newTestEnv(t, 2, 3)
	svc := env.newStatusService(t)

	inside := env.newTransfer(t, now.Add(2*time.Minute), 2)
	outside := env.newTransfer(t, now.Add(time.Hour), 2)
	unsigned := env.newTransfer(t, now.Add(time.Minute), 1)
	for _, tx := range []*domain.Transaction{inside, outside, unsigned} {
		env.addTransaction(t, tx, domain.StatusWaitingForSignatures)
	}

	ready, err := svc.RecheckWindow(ctx, domain.ValidStartWindow{
		From: now,
		To:   now.Add(3 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, inside.ID, ready[0].ID)
	require.Equal(t, domain.StatusWaitingForExecution, ready[0].Status)

	require.Equal(
		t, domain.StatusWaitingForSignatures,
		env.getTransaction(t, unsigned.ID).Status,
	)
}

func TestExpireTransactions(t *testing.T) {
	env := newTestEnv(t, 2, 3)
	svc := env.newStatusService(t)

	expired := env.newTransfer(t, now.Add(-181*time.Second), 1)
	inGrace := env.newTransfer(t, now.Add(-179*time.Second), 1)
	executed := env.newTransfer(t, now.Add(-time.Hour), 2)
	env.addTransaction(t, expired, domain.StatusWaitingForSignatures)
	env.addTransaction(t, inGrace, domain.StatusWaitingForSignatures)
	env.addTransaction(t, executed, domain.StatusExecuted)

	txs, err := svc.ExpireTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, expired.ID, txs[0].ID)

	require.Equal(t, domain.StatusExpired, env.getTransaction(t, expired.ID).Status)
	require.Equal(
		t, domain.StatusWaitingForSignatures,
		env.getTransaction(t, inGrace.ID).Status,
	)
	require.Equal(t, domain.StatusExecuted, env.getTransaction(t, executed.ID).Status)
	require.Equal(
		t, []domain.TransactionStatus{domain.StatusExpired},
		env.notifier.statuses(expired.ID),
	)
	require.Equal(t, 1, env.notifier.count(notifiedExecutionAction, ""))

	txs, err = svc.ExpireTransactions(ctx)
	require.NoError(t, err)
	require.Empty(t, txs)
	require.Equal(t, 1, env.notifier.count(notifiedExecutionAction, ""))
}

func TestTwoOfThreeEndToEnd(t *testing.T) {
	env := newTestEnv(t, 2, 3)
	svc := env.newStatusService(t)
	env.mockSubmission(&ledger.Receipt{Status: ledger.StatusOk}, nil)

	tx := env.newTransfer(t, now.Add(time.Minute), 1)
	env.addTransaction(t, tx, domain.StatusNew)
	env.requireStatus(t, tx.ID, domain.StatusWaitingForSignatures)

	env.addSignatures(t, tx.ID, env.payerKeys[1], env.payerKeys[2])
	status, err := svc.RecheckTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaitingForExecution, status)

	collateTimer := fmt.Sprintf("collate_timeout_%s", tx.ID)
	require.Eventually(t, func() bool {
		return env.scheduler.Exists(collateTimer)
	}, 2*time.Second, 10*time.Millisecond)

	env.clock.Add(50 * time.Second)
	require.Eventually(t, func() bool {
		return signatureCount(t, env.getTransaction(t, tx.ID).Body) == 2
	}, 2*time.Second, 10*time.Millisecond)

	env.clock.Add(15 * time.Second)
	env.requireStatus(t, tx.ID, domain.StatusExecuted)

	stored := env.getTransaction(t, tx.ID)
	require.NotNil(t, stored.StatusCode)
	require.Equal(t, int32(ledger.StatusOk), *stored.StatusCode)
	env.ledger.AssertNumberOfCalls(t, "SubmitTransaction", 1)
	require.Eventually(t, func() bool {
		statuses := env.notifier.statuses(tx.ID)
		return len(statuses) == 1 && statuses[0] == domain.StatusExecuted
	}, 2*time.Second, 10*time.Millisecond)
}
