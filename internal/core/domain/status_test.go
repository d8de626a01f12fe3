package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

func TestStatusTransitions(t *testing.T) {
	terminal := []domain.TransactionStatus{
		domain.StatusExecuted, domain.StatusFailed, domain.StatusRejected,
		domain.StatusExpired, domain.StatusCanceled,
	}
	for _, s := range terminal {
		require.True(t, s.IsTerminal(), s.String())
		for _, next := range []domain.TransactionStatus{
			domain.StatusNew, domain.StatusWaitingForSignatures,
			domain.StatusWaitingForExecution, domain.StatusExpired,
		} {
			require.False(t, s.CanTransitionTo(next))
		}
	}

	require.True(t, domain.StatusWaitingForSignatures.CanTransitionTo(
		domain.StatusWaitingForExecution,
	))
	require.True(t, domain.StatusWaitingForExecution.CanTransitionTo(
		domain.StatusWaitingForSignatures,
	))
	require.False(t, domain.StatusWaitingForSignatures.CanTransitionTo(
		domain.StatusExecuted,
	))

	s, ok := domain.ParseTransactionStatus("waiting_for_execution")
	require.True(t, ok)
	require.Equal(t, domain.StatusWaitingForExecution, s)
}

func TestTransactionOutcome(t *testing.T) {
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		tx := &domain.Transaction{Status: domain.StatusWaitingForExecution}
		require.Nil(t, tx.StatusCode)

		err := tx.Execute(ledger.StatusOk, now)
		require.NoError(t, err)
		require.Equal(t, domain.StatusExecuted, tx.Status)
		require.NotNil(t, tx.StatusCode)
		require.Equal(t, int32(ledger.StatusOk), *tx.StatusCode)
		require.Equal(t, now, *tx.ExecutedAt)

		tx = &domain.Transaction{Status: domain.StatusWaitingForSignatures}
		err = tx.Fail(ledger.StatusTransactionOversize, now)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFailed, tx.Status)
		require.Equal(t, int32(ledger.StatusTransactionOversize), *tx.StatusCode)
	})

	t.Run("invalid", func(t *testing.T) {
		tx := &domain.Transaction{Status: domain.StatusExecuted}
		err := tx.Fail(ledger.StatusUnknown, now)
		require.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

		err = tx.SetStatus(domain.StatusWaitingForExecution)
		require.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

		err = tx.Expire()
		require.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

		tx = &domain.Transaction{Status: domain.StatusWaitingForExecution}
		err = tx.SetStatus(domain.StatusExecuted)
		require.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
		require.Nil(t, tx.StatusCode)
	})
}

func TestValidStartWindow(t *testing.T) {
	now := time.Now()
	open := domain.ValidStartWindow{From: now, To: now.Add(time.Minute)}
	closed := domain.ValidStartWindow{
		From: now, To: now.Add(time.Minute), FromInclusive: true,
	}

	require.False(t, open.Contains(now))
	require.True(t, closed.Contains(now))
	require.True(t, open.Contains(now.Add(time.Minute)))
	require.False(t, open.Contains(now.Add(time.Minute+time.Nanosecond)))
	require.False(t, closed.Contains(now.Add(-time.Nanosecond)))
}

func TestTransactionGroup(t *testing.T) {
	_, err := domain.NewTransactionGroup("g", "", true, true, nil)
	require.Error(t, err)

	_, err = domain.NewTransactionGroup("g", "", true, true, []string{"a", "a"})
	require.Error(t, err)

	group, err := domain.NewTransactionGroup("g", "", true, true, []string{"a", "b"})
	require.NoError(t, err)
	group.Items[0].Seq, group.Items[1].Seq = 2, 1
	require.Equal(t, []string{"b", "a"}, group.TransactionIDs())
}

func TestUserIDs(t *testing.T) {
	tx := &domain.Transaction{CreatorID: "alice", ObserverIDs: []string{"bob", "alice", ""}}
	require.Equal(t, []string{"alice", "bob"}, tx.UserIDs())
}
