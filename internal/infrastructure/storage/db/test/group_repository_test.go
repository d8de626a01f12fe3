package db_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

func TestTransactionGroupRepository(t *testing.T) {
	for name, repoManager := range newRepoManagers(t) {
		txRepo := repoManager.TransactionRepository()
		groupRepo := repoManager.TransactionGroupRepository()

		t.Run(name, func(t *testing.T) {
			first := addTxWithStatus(t, txRepo, time.Minute, domain.StatusNew)
			second := addTxWithStatus(t, txRepo, 0, domain.StatusNew)

			group, err := domain.NewTransactionGroup(
				uuid.New().String(), "payroll", true, true,
				[]string{first.ID, second.ID},
			)
			require.NoError(t, err)
			group.CreatedAt = time.Now().UTC().Truncate(time.Second)

			t.Run("add_group", func(t *testing.T) {
				done, err := groupRepo.AddGroup(ctx, group)
				require.NoError(t, err)
				require.True(t, done)

				done, err = groupRepo.AddGroup(ctx, group)
				require.NoError(t, err)
				require.False(t, done)

				for i, id := range []string{first.ID, second.ID} {
					tx, err := txRepo.GetTransaction(ctx, id)
					require.NoError(t, err)
					require.True(t, tx.IsInGroup())
					require.Equal(t, group.ID, tx.GroupID)
					require.Equal(t, i, tx.GroupSeq)
				}
			})

			t.Run("add_group_with_unknown_member", func(t *testing.T) {
				other := addTxWithStatus(t, txRepo, 0, domain.StatusNew)
				invalid, err := domain.NewTransactionGroup(
					uuid.New().String(), "", false, false,
					[]string{other.ID, "unknown"},
				)
				require.NoError(t, err)

				done, err := groupRepo.AddGroup(ctx, invalid)
				require.ErrorIs(t, err, domain.ErrTransactionNotFound)
				require.False(t, done)

				tx, err := txRepo.GetTransaction(ctx, other.ID)
				require.NoError(t, err)
				require.False(t, tx.IsInGroup())

				_, err = groupRepo.GetGroup(ctx, invalid.ID)
				require.ErrorIs(t, err, domain.ErrGroupNotFound)
			})

			t.Run("get_group", func(t *testing.T) {
				got, err := groupRepo.GetGroup(ctx, group.ID)
				require.NoError(t, err)
				require.Equal(t, group.ID, got.ID)
				require.Equal(t, "payroll", got.Description)
				require.True(t, got.Atomic)
				require.True(t, got.Sequential)
				require.Equal(t, group.Items, got.Items)
				require.Equal(t, []string{first.ID, second.ID}, got.TransactionIDs())

				_, err = groupRepo.GetGroup(ctx, "unknown")
				require.ErrorIs(t, err, domain.ErrGroupNotFound)
			})
		})
	}
}
