package application_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

// ports.AccountDirectory
type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetAccountInfo(
	ctx context.Context, network string, account ledger.AccountID,
) (*ports.AccountInfo, error) {
	args := m.Called(ctx, network, account)
	var res *ports.AccountInfo
	if a := args.Get(0); a != nil {
		res = a.(*ports.AccountInfo)
	}
	return res, args.Error(1)
}

func (m *mockDirectory) GetNodeAdminKey(
	ctx context.Context, network string, nodeID uint64,
) (ledger.Key, error) {
	args := m.Called(ctx, network, nodeID)
	var res ledger.Key
	if a := args.Get(0); a != nil {
		res = a.(ledger.Key)
	}
	return res, args.Error(1)
}

func (m *mockDirectory) InvalidateAccount(
	ctx context.Context, network string, account ledger.AccountID,
) error {
	args := m.Called(ctx, network, account)
	return args.Error(0)
}

// ports.LedgerClient
type mockLedgerClient struct {
	mock.Mock
}

func (m *mockLedgerClient) SubmitTransaction(
	ctx context.Context, network string, tx []byte,
) (*ledger.Receipt, error) {
	args := m.Called(ctx, network, tx)
	var res *ledger.Receipt
	if a := args.Get(0); a != nil {
		res = a.(*ledger.Receipt)
	}
	return res, args.Error(1)
}

func (m *mockLedgerClient) GetAccountInfo(
	ctx context.Context, network string, account ledger.AccountID,
) (*ports.AccountInfo, error) {
	args := m.Called(ctx, network, account)
	var res *ports.AccountInfo
	if a := args.Get(0); a != nil {
		res = a.(*ports.AccountInfo)
	}
	return res, args.Error(1)
}

func (m *mockLedgerClient) GetNodeInfo(
	ctx context.Context, network string, nodeID uint64,
) (*ports.NodeInfo, error) {
	args := m.Called(ctx, network, nodeID)
	var res *ports.NodeInfo
	if a := args.Get(0); a != nil {
		res = a.(*ports.NodeInfo)
	}
	return res, args.Error(1)
}

func (m *mockLedgerClient) Close() {}

// ports.Locker
type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) WithLock(
	ctx context.Context, key string, fn func(ctx context.Context) error,
) (bool, error) {
	args := m.Called(ctx, key, fn)
	return args.Bool(0), args.Error(1)
}

// ports.Notifier recording every notification.
type notification struct {
	kind    string
	txID    string
	status  domain.TransactionStatus
	network string
	userIDs []string
}

const (
	notifiedStatusChanged        = "status_changed"
	notifiedReadyForExecution    = "ready_for_execution"
	notifiedWaitingForSignatures = "waiting_for_signatures"
	notifiedExecutionAction      = "execution_action"
)

type recordingNotifier struct {
	lock          *sync.Mutex
	notifications []notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{lock: &sync.Mutex{}}
}

func (n *recordingNotifier) record(notif notification) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.notifications = append(n.notifications, notif)
}

func (n *recordingNotifier) NotifyStatusChanged(
	txID string, status domain.TransactionStatus, network string,
) {
	n.record(notification{
		kind: notifiedStatusChanged, txID: txID, status: status, network: network,
	})
}

func (n *recordingNotifier) NotifyReadyForExecution(
	txID, network string, userIDs []string,
) {
	n.record(notification{
		kind: notifiedReadyForExecution, txID: txID, network: network,
		userIDs: userIDs,
	})
}

func (n *recordingNotifier) NotifyWaitingForSignatures(
	txID, network string, userIDs []string,
) {
	n.record(notification{
		kind: notifiedWaitingForSignatures, txID: txID, network: network,
		userIDs: userIDs,
	})
}

func (n *recordingNotifier) NotifyExecutionAction() {
	n.record(notification{kind: notifiedExecutionAction})
}

// count returns how many notifications of the given kind were sent, for
// the given transaction if txID is not empty.
func (n *recordingNotifier) count(kind, txID string) int {
	n.lock.Lock()
	defer n.lock.Unlock()

	count := 0
	for _, notif := range n.notifications {
		if notif.kind == kind && (txID == "" || notif.txID == txID) {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) statuses(txID string) []domain.TransactionStatus {
	n.lock.Lock()
	defer n.lock.Unlock()

	statuses := make([]domain.TransactionStatus, 0)
	for _, notif := range n.notifications {
		if notif.kind == notifiedStatusChanged && notif.txID == txID {
			statuses = append(statuses, notif.status)
		}
	}
	return statuses
}
