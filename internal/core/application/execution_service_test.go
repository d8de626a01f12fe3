package application_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

func TestIsValidStartExecutable(t *testing.T) {
	env := newTestEnv(t, 2, 3)

	tests := []struct {
		name       string
		validStart time.Time
		expected   bool
	}{
		{"past", now.Add(-time.Second), true},
		{"now", now, true},
		{"future", now.Add(time.Second), false},
		{"end_of_grace_period", now.Add(-180 * time.Second), true},
		{"after_grace_period", now.Add(-181 * time.Second), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, env.execution.IsValidStartExecutable(tt.validStart))
		})
	}
}

func TestCollateAndExecute(t *testing.T) {
	t.Run("idempotent_scheduling", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)

		tx := env.newTransfer(t, now.Add(time.Hour), 2)
		env.addTransaction(t, tx, domain.StatusWaitingForExecution)

		timer := fmt.Sprintf("collate_timeout_%s", tx.ID)
		env.execution.CollateAndExecute(ctx, tx)
		env.execution.CollateAndExecute(ctx, tx)
		env.execution.ScheduleUpcoming(ctx, []*domain.Transaction{tx})
		require.True(t, env.scheduler.Exists(timer))
		require.False(t, env.scheduler.Register(timer, now, func() {}))

		env.execution.Cancel(ctx, tx.ID)
		require.False(t, env.scheduler.Exists(timer))
	})

	t.Run("prepare_skips_not_executable", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)

		future := env.newTransfer(t, now.Add(time.Minute), 2)
		waiting := env.newTransfer(t, now.Add(-time.Second), 1)
		env.addTransaction(t, future, domain.StatusWaitingForExecution)
		env.addTransaction(t, waiting, domain.StatusWaitingForSignatures)

		env.execution.PrepareTransactions(ctx, []*domain.Transaction{future, waiting})
		require.False(t, env.scheduler.Exists(fmt.Sprintf("collate_timeout_%s", future.ID)))
		require.False(t, env.scheduler.Exists(fmt.Sprintf("collate_timeout_%s", waiting.ID)))
	})

	t.Run("collates_minimal_signatures", func(t *testing.T) {
		env := newTestEnv(t, 5, 50)

		var submitted []byte
		env.ledger.On("SubmitTransaction", mock.Anything, network, mock.Anything).
			Run(func(args mock.Arguments) {
				submitted = args.Get(2).([]byte)
			}).
			Return(&ledger.Receipt{Status: ledger.StatusOk}, nil)

		tx := env.newTransfer(t, now.Add(5*time.Second), 50)
		env.addTransaction(t, tx, domain.StatusWaitingForExecution)

		env.execution.CollateAndExecute(ctx, tx)
		require.Eventually(t, func() bool {
			return signatureCount(t, env.getTransaction(t, tx.ID).Body) == 5
		}, 2*time.Second, 10*time.Millisecond)

		env.clock.Add(10 * time.Second)
		env.requireStatus(t, tx.ID, domain.StatusExecuted)
		env.ledger.AssertNumberOfCalls(t, "SubmitTransaction", 1)
		require.Equal(t, 5, signatureCount(t, submitted))
	})

	t.Run("oversize_fails", func(t *testing.T) {
		env := newTestEnv(t, 60, 60)

		tx := env.newTransfer(t, now.Add(5*time.Second), 60)
		env.addTransaction(t, tx, domain.StatusWaitingForExecution)

		env.execution.CollateAndExecute(ctx, tx)
		env.requireStatus(t, tx.ID, domain.StatusFailed)

		stored := env.getTransaction(t, tx.ID)
		require.NotNil(t, stored.StatusCode)
		require.Equal(t, int32(ledger.StatusTransactionOversize), *stored.StatusCode)
		require.Equal(
			t, []domain.TransactionStatus{domain.StatusFailed},
			env.notifier.statuses(tx.ID),
		)
		require.False(t, env.scheduler.Exists(fmt.Sprintf("execution_timeout_%s", tx.ID)))
		env.ledger.AssertNotCalled(t, "SubmitTransaction", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("skips_terminal_transaction", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)

		tx := env.newTransfer(t, now.Add(5*time.Second), 3)
		env.addTransaction(t, tx, domain.StatusCanceled)

		env.execution.CollateAndExecute(ctx, tx)
		require.Never(t, func() bool {
			stored := env.getTransaction(t, tx.ID)
			return stored.Status != domain.StatusCanceled ||
				signatureCount(t, stored.Body) != 3
		}, 200*time.Millisecond, 10*time.Millisecond)
		require.Empty(t, env.notifier.statuses(tx.ID))
	})

	t.Run("manual_transaction_not_submitted", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)

		tx := env.newTransfer(t, now.Add(5*time.Second), 3)
		tx.IsManual = true
		env.addTransaction(t, tx, domain.StatusWaitingForExecution)

		env.execution.CollateAndExecute(ctx, tx)
		require.Eventually(t, func() bool {
			return signatureCount(t, env.getTransaction(t, tx.ID).Body) == 2
		}, 2*time.Second, 10*time.Millisecond)
		require.False(t, env.scheduler.Exists(fmt.Sprintf("execution_timeout_%s", tx.ID)))
	})
}

func TestCollateGroupAndExecute(t *testing.T) {
	// addGroup stores an atomic group of three transfers, the i-th one
	// signed by numSigners[i] payer keys.
	addGroup := func(
		t *testing.T, env *testEnv, numSigners []int,
	) (*domain.TransactionGroup, []*domain.Transaction) {
		txs := make([]*domain.Transaction, 0, len(numSigners))
		ids := make([]string, 0, len(numSigners))
		for i, n := range numSigners {
			tx := env.newTransfer(t, now.Add(time.Duration(5+i)*time.Second), n)
			env.addTransaction(t, tx, domain.StatusWaitingForExecution)
			ids = append(ids, tx.ID)
		}
		group, err := domain.NewTransactionGroup("group", "", true, true, ids)
		require.NoError(t, err)
		added, err := env.repoManager.TransactionGroupRepository().AddGroup(ctx, group)
		require.NoError(t, err)
		require.True(t, added)

		for _, id := range ids {
			txs = append(txs, env.getTransaction(t, id))
		}
		return group, txs
	}

	t.Run("executes_all_members", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)
		env.mockSubmission(&ledger.Receipt{Status: ledger.StatusOk}, nil)

		group, txs := addGroup(t, env, []int{3, 3, 3})

		// Members are dispatched once for the whole group.
		env.execution.ScheduleUpcoming(ctx, txs)
		require.Eventually(t, func() bool {
			for _, tx := range txs {
				if signatureCount(t, env.getTransaction(t, tx.ID).Body) != 2 {
					return false
				}
			}
			return true
		}, 2*time.Second, 10*time.Millisecond)
		for _, tx := range txs {
			require.False(t, env.scheduler.Exists(fmt.Sprintf("collate_timeout_%s", tx.ID)))
		}
		require.Eventually(t, func() bool {
			return env.scheduler.Exists(fmt.Sprintf("group_execution_timeout_%s", group.ID))
		}, 2*time.Second, 10*time.Millisecond)

		env.clock.Add(10 * time.Second)
		for _, tx := range txs {
			env.requireStatus(t, tx.ID, domain.StatusExecuted)
		}
		env.ledger.AssertNumberOfCalls(t, "SubmitTransaction", 3)
	})

	t.Run("insufficient_member_fails_group", func(t *testing.T) {
		env := newTestEnv(t, 2, 3)

		group, txs := addGroup(t, env, []int{3, 1, 3})

		env.execution.ScheduleUpcoming(ctx, txs)
		for _, tx := range txs {
			env.requireStatus(t, tx.ID, domain.StatusFailed)
		}
		require.Eventually(t, func() bool {
			return env.notifier.count(notifiedExecutionAction, "") == 1
		}, 2*time.Second, 10*time.Millisecond)
		for _, tx := range txs {
			stored := env.getTransaction(t, tx.ID)
			require.NotNil(t, stored.StatusCode)
			require.Equal(t, int32(ledger.StatusTransactionOversize), *stored.StatusCode)
			require.Equal(
				t, []domain.TransactionStatus{domain.StatusFailed},
				env.notifier.statuses(tx.ID),
			)
		}
		require.False(t, env.scheduler.Exists(
			fmt.Sprintf("group_execution_timeout_%s", group.ID),
		))
		env.ledger.AssertNotCalled(t, "SubmitTransaction", mock.Anything, mock.Anything, mock.Anything)
	})
}
