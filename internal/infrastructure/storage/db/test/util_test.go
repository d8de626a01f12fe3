package db_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	dbbadger "github.com/vulpemventures/cosigner/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/cosigner/internal/infrastructure/storage/db/inmemory"
	postgresdb "github.com/vulpemventures/cosigner/internal/infrastructure/storage/db/postgres"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

var (
	ctx                   = context.Background()
	errSomethingWentWrong = errors.New("something went wrong")
	baseValidStart        = time.Unix(1700000000, 0).UTC()
)

// newRepoManagers returns a fresh repo manager for every available backend.
// Postgres is included only if COSIGNER_TEST_DB_HOST is set.
func newRepoManagers(t *testing.T) map[string]ports.RepoManager {
	badgerRepoManager, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)

	repoManagers := map[string]ports.RepoManager{
		"inmemory": inmemory.NewRepoManager(),
		"badger":   badgerRepoManager,
	}

	if host := os.Getenv("COSIGNER_TEST_DB_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("COSIGNER_TEST_DB_PORT"))
		if port == 0 {
			port = 5432
		}
		pgRepoManager, err := postgresdb.NewRepoManager(postgresdb.DbConfig{
			DbUser:             "root",
			DbPassword:         "secret",
			DbHost:             host,
			DbPort:             port,
			DbName:             "cosignerd-db-test",
			MigrationSourceURL: "file://../postgres/migration",
		})
		require.NoError(t, err)
		pgRepoManager.Reset()
		repoManagers["postgres"] = pgRepoManager
	}

	t.Cleanup(func() {
		for _, rm := range repoManagers {
			rm.Close()
		}
	})
	return repoManagers
}

// randomTx returns a NEW transfer transaction with the given valid start
// offset from baseValidStart.
func randomTx(t *testing.T, offset time.Duration) *domain.Transaction {
	payer := ledger.NewAccountID(1001)
	body := ledger.Body{
		TransactionID: ledger.TransactionID{
			Payer:      payer,
			ValidStart: baseValidStart.Add(offset),
		},
		NodeAccount:   ledger.NewAccountID(3),
		MaxFee:        100000000,
		ValidDuration: 120 * time.Second,
		Memo:          uuid.New().String(),
		Data: &ledger.Transfer{
			HbarTransfers: []ledger.HbarTransfer{
				{Account: payer, Amount: -10},
				{Account: ledger.NewAccountID(1002), Amount: 10},
			},
		},
	}
	ledgerTx, err := ledger.NewTransaction(body)
	require.NoError(t, err)

	tx, err := domain.NewTransaction(domain.NewTransactionArgs{
		ID:            uuid.New().String(),
		Name:          fmt.Sprintf("transfer %s", offset),
		Body:          ledgerTx.Bytes(),
		MirrorNetwork: "testnet",
		CreatorID:     "creator",
		ObserverIDs:   []string{"observer"},
	})
	require.NoError(t, err)
	return tx
}

func addTxWithStatus(
	t *testing.T, repo domain.TransactionRepository,
	offset time.Duration, status domain.TransactionStatus,
) *domain.Transaction {
	tx := randomTx(t, offset)
	tx.Status = status
	done, err := repo.AddTransaction(ctx, tx)
	require.NoError(t, err)
	require.True(t, done)
	return tx
}

func txIDs(txs []*domain.Transaction) []string {
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	return ids
}
