package ws_gateway

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

const (
	methodSubmitTransaction = "transaction.submit"
	methodGetAccountInfo    = "account.info"
	methodGetNodeInfo       = "node.info"
)

type request struct {
	Id     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type response struct {
	Id     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *responseErr    `json:"error,omitempty"`
}

type responseErr struct {
	// Status is the name of the network response code, if the error comes
	// from the network.
	Status  string `json:"status,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *responseErr) Error() string {
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// statusError converts a gateway error carrying a known network status into
// a *ledger.StatusError.
func (e *responseErr) statusError() error {
	if status, ok := ledger.ParseStatus(e.Status); ok {
		return &ledger.StatusError{Status: status, Message: e.Message}
	}
	return e
}

type receiptInfo struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	ConsensusAt   int64  `json:"consensusTimestamp"`
}

func (r receiptInfo) toReceipt(txID ledger.TransactionID) (*ledger.Receipt, error) {
	status, ok := ledger.ParseStatus(r.Status)
	if !ok {
		return nil, fmt.Errorf("unknown receipt status %q", r.Status)
	}
	receipt := &ledger.Receipt{TransactionID: txID, Status: status}
	if r.ConsensusAt > 0 {
		receipt.ConsensusAt = time.Unix(0, r.ConsensusAt).UTC()
	}
	return receipt, nil
}

type accountInfo struct {
	Key                       string `json:"key"`
	ReceiverSignatureRequired bool   `json:"receiverSignatureRequired"`
}

func (i accountInfo) toPort() (*ports.AccountInfo, error) {
	key, err := decodeKey(i.Key)
	if err != nil {
		return nil, err
	}
	return &ports.AccountInfo{
		Key:                       key,
		ReceiverSignatureRequired: i.ReceiverSignatureRequired,
	}, nil
}

type nodeInfo struct {
	NodeID   uint64 `json:"nodeId"`
	Account  string `json:"accountId"`
	AdminKey string `json:"adminKey"`
}

func (i nodeInfo) toPort() (*ports.NodeInfo, error) {
	account, err := ledger.ParseEntityID(i.Account)
	if err != nil {
		return nil, err
	}
	info := &ports.NodeInfo{NodeID: i.NodeID, Account: account}
	if i.AdminKey != "" {
		if info.AdminKey, err = decodeKey(i.AdminKey); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func decodeKey(str string) (ledger.Key, error) {
	buf, err := hex.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("invalid key hex: %w", err)
	}
	return ledger.UnmarshalKey(buf)
}

// chHandler routes responses to the goroutine waiting for them.
type chHandler struct {
	lock             *sync.RWMutex
	chReportsByReqId map[uint64]chan response
}

func newChHandler() *chHandler {
	return &chHandler{
		lock:             &sync.RWMutex{},
		chReportsByReqId: make(map[uint64]chan response),
	}
}

func (h *chHandler) addRequest(req request) chan response {
	h.lock.Lock()
	defer h.lock.Unlock()

	ch := make(chan response, 1)
	h.chReportsByReqId[req.Id] = ch
	return ch
}

func (h *chHandler) getChReportsForReqId(id uint64) chan response {
	h.lock.RLock()
	defer h.lock.RUnlock()

	return h.chReportsByReqId[id]
}

func (h *chHandler) clearRequest(id uint64) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.chReportsByReqId, id)
}

func (h *chHandler) clear() {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.chReportsByReqId = make(map[uint64]chan response)
}
