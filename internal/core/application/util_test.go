package application_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/application"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	inmemory_lock "github.com/vulpemventures/cosigner/internal/infrastructure/lock/inmemory"
	inmemory_scheduler "github.com/vulpemventures/cosigner/internal/infrastructure/scheduler/inmemory"
	"github.com/vulpemventures/cosigner/internal/infrastructure/storage/db/inmemory"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

const network = "testnet"

var (
	ctx                   = context.Background()
	errSomethingWentWrong = fmt.Errorf("something went wrong")

	now      = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	payer    = ledger.NewAccountID(1001)
	receiver = ledger.NewAccountID(1002)
)

type testEnv struct {
	clock       *clock.Mock
	repoManager ports.RepoManager
	directory   *mockDirectory
	ledger      *mockLedgerClient
	notifier    *recordingNotifier
	scheduler   ports.Scheduler

	signatures *application.SignatureService
	submission *application.SubmissionService
	execution  *application.ExecutionService

	// payerKeys are the private keys of the payer threshold key.
	payerKeys []ledger.PrivateKey
}

// newTestEnv returns services wired to in-memory adapters. The payer account
// is controlled by a threshold-of-len(payerKeys) key.
func newTestEnv(t *testing.T, threshold, numKeys int) *testEnv {
	return newTestEnvWithLocker(t, threshold, numKeys, inmemory_lock.NewLocker())
}

func newTestEnvWithLocker(
	t *testing.T, threshold, numKeys int, locker ports.Locker,
) *testEnv {
	clk := clock.NewMock()
	clk.Set(now)

	payerKeys := newPrivateKeys(t, numKeys)
	pubkeys := make([]ledger.Key, 0, numKeys)
	for _, k := range payerKeys {
		pubkeys = append(pubkeys, k.PublicKey())
	}

	directory := &mockDirectory{}
	directory.On("GetAccountInfo", mock.Anything, network, payer).Return(
		&ports.AccountInfo{Key: ledger.NewThresholdKey(threshold, pubkeys...)}, nil,
	)
	directory.On("GetAccountInfo", mock.Anything, network, receiver).Return(
		&ports.AccountInfo{Key: newPrivateKeys(t, 1)[0].PublicKey()}, nil,
	)
	directory.On("InvalidateAccount", mock.Anything, network, mock.Anything).Return(nil)

	repoManager := inmemory.NewRepoManager()
	notifier := newRecordingNotifier()
	ledgerClient := &mockLedgerClient{}
	sched := inmemory_scheduler.NewScheduler(clk)

	signatures := application.NewSignatureService(directory)
	submission := application.NewSubmissionService(
		repoManager, signatures, ledgerClient, directory, locker, notifier, clk,
	)
	execution := application.NewExecutionService(
		repoManager, signatures, submission, sched, notifier, clk,
	)

	t.Cleanup(func() {
		sched.Stop()
		repoManager.Close()
	})

	return &testEnv{
		clock:       clk,
		repoManager: repoManager,
		directory:   directory,
		ledger:      ledgerClient,
		notifier:    notifier,
		scheduler:   sched,
		signatures:  signatures,
		submission:  submission,
		execution:   execution,
		payerKeys:   payerKeys,
	}
}

// failDirectory makes every account and node lookup fail with err. It must
// be called before any service reads the directory.
func (e *testEnv) failDirectory(err error) {
	e.directory.ExpectedCalls = nil
	e.directory.On("GetAccountInfo", mock.Anything, network, mock.Anything).Return(nil, err)
	e.directory.On("GetNodeAdminKey", mock.Anything, network, mock.Anything).Return(nil, err)
	e.directory.On("InvalidateAccount", mock.Anything, network, mock.Anything).Return(nil)
}

// failAccountRefresh makes account invalidation fail with err and returns
// a channel receiving every invalidated account.
func (e *testEnv) failAccountRefresh(err error) <-chan ledger.AccountID {
	calls := make([]*mock.Call, 0, len(e.directory.ExpectedCalls))
	for _, c := range e.directory.ExpectedCalls {
		if c.Method != "InvalidateAccount" {
			calls = append(calls, c)
		}
	}
	e.directory.ExpectedCalls = calls

	refreshed := make(chan ledger.AccountID, 10)
	e.directory.On("InvalidateAccount", mock.Anything, network, mock.Anything).
		Run(func(args mock.Arguments) {
			refreshed <- args.Get(2).(ledger.AccountID)
		}).
		Return(err)
	return refreshed
}

func (e *testEnv) newStatusService(t *testing.T) *application.StatusService {
	svc, err := application.NewStatusService(
		e.repoManager, e.signatures, e.execution, e.notifier, e.clock,
	)
	require.NoError(t, err)
	return svc
}

// newTransfer returns a transfer from payer to receiver signed by the
// first numSigners payer keys.
func (e *testEnv) newTransfer(
	t *testing.T, validStart time.Time, numSigners int,
) *domain.Transaction {
	return e.newTransaction(t, validStart, numSigners, &ledger.Transfer{
		HbarTransfers: []ledger.HbarTransfer{
			{Account: payer, Amount: -10},
			{Account: receiver, Amount: 10},
		},
	})
}

func (e *testEnv) newTransaction(
	t *testing.T, validStart time.Time, numSigners int,
	data ledger.TransactionData,
) *domain.Transaction {
	ltx, err := ledger.NewTransaction(ledger.Body{
		TransactionID: ledger.TransactionID{Payer: payer, ValidStart: validStart},
		NodeAccount:   ledger.NewAccountID(3),
		MaxFee:        100000000,
		ValidDuration: 180 * time.Second,
		Memo:          uuid.New().String()[:8],
		Data:          data,
	})
	require.NoError(t, err)
	for _, key := range e.payerKeys[:numSigners] {
		ltx.Sign(key)
	}

	tx, err := domain.NewTransaction(domain.NewTransactionArgs{
		ID:            uuid.New().String(),
		Body:          ltx.Bytes(),
		MirrorNetwork: network,
		CreatorID:     "creator",
		ObserverIDs:   []string{"observer"},
	})
	require.NoError(t, err)
	return tx
}

// addTransaction stores the transaction with the given status.
func (e *testEnv) addTransaction(
	t *testing.T, tx *domain.Transaction, status domain.TransactionStatus,
) {
	tx.Status = status
	done, err := e.repoManager.TransactionRepository().AddTransaction(ctx, tx)
	require.NoError(t, err)
	require.True(t, done)
}

// addSignatures attaches the signatures of the given payer keys to the
// stored transaction.
func (e *testEnv) addSignatures(t *testing.T, txID string, keys ...ledger.PrivateKey) {
	err := e.repoManager.TransactionRepository().UpdateTransaction(
		ctx, txID, func(tx *domain.Transaction) (*domain.Transaction, error) {
			ltx, err := tx.Decode()
			if err != nil {
				return nil, err
			}
			for _, key := range keys {
				ltx.Sign(key)
			}
			if err := tx.UpdateBody(ltx.Bytes()); err != nil {
				return nil, err
			}
			return tx, nil
		},
	)
	require.NoError(t, err)
}

func (e *testEnv) getTransaction(t *testing.T, txID string) *domain.Transaction {
	tx, err := e.repoManager.TransactionRepository().GetTransaction(ctx, txID)
	require.NoError(t, err)
	return tx
}

func (e *testEnv) requireStatus(
	t *testing.T, txID string, status domain.TransactionStatus,
) {
	require.Eventually(t, func() bool {
		return e.getTransaction(t, txID).Status == status
	}, 2*time.Second, 10*time.Millisecond)
}

func (e *testEnv) mockSubmission(receipt *ledger.Receipt, err error) {
	e.ledger.On("SubmitTransaction", mock.Anything, network, mock.Anything).
		Return(receipt, err)
}

func newPrivateKeys(t *testing.T, n int) []ledger.PrivateKey {
	keys := make([]ledger.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		key, err := ledger.GeneratePrivateKey(ledger.KeyTypeEd25519)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}

func signatureCount(t *testing.T, body []byte) int {
	ltx, err := ledger.Decode(body)
	require.NoError(t, err)
	return len(ltx.Signatures())
}
