package kafka_notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
)

const (
	EventStatusChanged        = "transaction.status_changed"
	EventReadyForExecution    = "transaction.ready_for_execution"
	EventWaitingForSignatures = "transaction.waiting_for_signatures"
	EventExecutionAction      = "transactions.action"

	writeTimeout = 10 * time.Second
	queueSize    = 1024
)

var errQueueFull = fmt.Errorf("publish queue is full")

// Event is the payload of every message published on the topic.
type Event struct {
	Type          string   `json:"type"`
	TransactionID string   `json:"transactionId,omitempty"`
	Status        string   `json:"status,omitempty"`
	Network       string   `json:"network,omitempty"`
	UserIDs       []string `json:"userIds,omitempty"`
	Timestamp     int64    `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// notifier publishes events one at a time from a single goroutine, in the
// order they are notified. Messages are keyed by transaction so that events
// of the same transaction land on the same partition.
type notifier struct {
	writer messageWriter
	queue  chan Event
	done   chan struct{}
	lock   *sync.RWMutex
	closed bool

	warn func(err error, format string, a ...interface{})
}

func NewNotifier(brokers []string, topic string) (ports.Notifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("missing kafka brokers")
	}
	if topic == "" {
		return nil, fmt.Errorf("missing kafka topic")
	}
	return newNotifier(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}), nil
}

func newNotifier(writer messageWriter) *notifier {
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("kafka notifier: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	n := &notifier{
		writer: writer,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
		lock:   &sync.RWMutex{},
		warn:   warnFn,
	}
	go n.listen()
	return n
}

func (n *notifier) NotifyStatusChanged(
	txID string, status domain.TransactionStatus, network string,
) {
	n.enqueue(Event{
		Type:          EventStatusChanged,
		TransactionID: txID,
		Status:        status.String(),
		Network:       network,
	})
}

func (n *notifier) NotifyReadyForExecution(txID, network string, userIDs []string) {
	n.enqueue(Event{
		Type:          EventReadyForExecution,
		TransactionID: txID,
		Network:       network,
		UserIDs:       userIDs,
	})
}

func (n *notifier) NotifyWaitingForSignatures(txID, network string, userIDs []string) {
	n.enqueue(Event{
		Type:          EventWaitingForSignatures,
		TransactionID: txID,
		Network:       network,
		UserIDs:       userIDs,
	})
}

func (n *notifier) NotifyExecutionAction() {
	n.enqueue(Event{Type: EventExecutionAction})
}

// Close publishes the events still queued and closes the writer. Events
// notified afterwards are dropped.
func (n *notifier) Close() error {
	n.lock.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.lock.Unlock()

	<-n.done
	return n.writer.Close()
}

func (n *notifier) enqueue(event Event) {
	n.lock.RLock()
	defer n.lock.RUnlock()

	if n.closed {
		return
	}
	event.Timestamp = time.Now().UnixMilli()
	select {
	case n.queue <- event:
	default:
		n.warn(errQueueFull, "dropping %s event for %s", event.Type, event.TransactionID)
	}
}

func (n *notifier) listen() {
	defer close(n.done)
	for event := range n.queue {
		n.publish(event)
	}
}

func (n *notifier) publish(event Event) {
	buf, err := json.Marshal(event)
	if err != nil {
		n.warn(err, "failed to serialize %s event", event.Type)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: buf,
	}); err != nil {
		n.warn(err, "failed to publish %s event for %s", event.Type, event.TransactionID)
	}
}
