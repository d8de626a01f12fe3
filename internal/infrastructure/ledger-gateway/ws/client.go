package ws_gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

const defaultRequestTimeout = 15 * time.Second

var ErrClientClosed = fmt.Errorf("gateway client closed")

// client is a JSON-RPC over websocket client for a ledger gateway. The
// connection is dialed lazily and dialed again after it drops.
type client struct {
	addr           string
	requestTimeout time.Duration

	conn      *websocket.Conn
	connLock  *sync.Mutex
	writeLock *sync.Mutex
	nextId    uint64
	chHandler *chHandler
	closed    bool

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewClient(addr string, requestTimeout time.Duration) (ports.LedgerClient, error) {
	return newClient(addr, requestTimeout)
}

func newClient(addr string, requestTimeout time.Duration) (*client, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing gateway address")
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("ledger gateway: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("ledger gateway: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	c := &client{
		addr:           addr,
		requestTimeout: requestTimeout,
		connLock:       &sync.Mutex{},
		writeLock:      &sync.Mutex{},
		chHandler:      newChHandler(),
		log:            logFn,
		warn:           warnFn,
	}
	// The gateway may come up later, requests redial on demand.
	if _, err := c.connect(); err != nil {
		c.warn(err, "failed to connect to %s", addr)
	}
	return c, nil
}

func (c *client) SubmitTransaction(
	ctx context.Context, network string, txBytes []byte,
) (*ledger.Receipt, error) {
	tx, err := ledger.Decode(txBytes)
	if err != nil {
		return nil, err
	}

	resp, err := c.request(
		ctx, methodSubmitTransaction, network, hex.EncodeToString(txBytes),
	)
	if err != nil {
		return nil, err
	}

	var info receiptInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return nil, fmt.Errorf("invalid receipt: %w", err)
	}
	receipt, err := info.toReceipt(tx.ID())
	if err != nil {
		return nil, err
	}
	if receipt.Status != ledger.StatusOk {
		return receipt, &ledger.StatusError{Status: receipt.Status}
	}
	return receipt, nil
}

func (c *client) GetAccountInfo(
	ctx context.Context, network string, account ledger.AccountID,
) (*ports.AccountInfo, error) {
	resp, err := c.request(ctx, methodGetAccountInfo, network, account.String())
	if err != nil {
		return nil, err
	}

	var info accountInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return nil, fmt.Errorf("invalid account info: %w", err)
	}
	return info.toPort()
}

func (c *client) GetNodeInfo(
	ctx context.Context, network string, nodeID uint64,
) (*ports.NodeInfo, error) {
	resp, err := c.request(ctx, methodGetNodeInfo, network, nodeID)
	if err != nil {
		return nil, err
	}

	var info nodeInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return nil, fmt.Errorf("invalid node info: %w", err)
	}
	return info.toPort()
}

func (c *client) Close() {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.chHandler.clear()
}

func (c *client) connect() (*websocket.Conn, error) {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.addr, nil)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	go c.listen(conn)

	c.log("connected to %s", c.addr)
	return conn, nil
}

func (c *client) dropConn(conn *websocket.Conn) {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *client) listen(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.connLock.Lock()
			closed := c.closed
			c.connLock.Unlock()
			if !closed {
				c.warn(err, "connection dropped")
			}
			c.dropConn(conn)
			return
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.warn(err, "failed to parse message")
			continue
		}

		chReports := c.chHandler.getChReportsForReqId(resp.Id)
		if chReports == nil {
			c.log("dropping response for unknown request %d", resp.Id)
			continue
		}
		chReports <- resp
	}
}

func (c *client) request(
	ctx context.Context, method string, params ...interface{},
) (*response, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}

	req := c.newRequest(method, params...)
	chReports := c.chHandler.addRequest(req)
	defer c.chHandler.clearRequest(req.Id)

	c.writeLock.Lock()
	err = conn.WriteJSON(req)
	c.writeLock.Unlock()
	if err != nil {
		c.dropConn(conn)
		return nil, fmt.Errorf("failed to send request for method %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	select {
	case resp := <-chReports:
		if resp.Error != nil {
			return nil, resp.Error.statusError()
		}
		return &resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request %s timed out: %w", method, ctx.Err())
	}
}

func (c *client) newRequest(method string, params ...interface{}) request {
	params = append([]interface{}{}, params...)
	return request{atomic.AddUint64(&c.nextId, 1), method, params}
}
