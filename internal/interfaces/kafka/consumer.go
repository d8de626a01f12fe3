package kafka_interface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

// SignatureEvent is published by the intake every time new signatures are
// attached to a stored transaction.
type SignatureEvent struct {
	TransactionID string `json:"transactionId"`
}

// Rechecker recomputes the status of a transaction.
type Rechecker interface {
	RecheckTransaction(ctx context.Context, txID string) (domain.TransactionStatus, error)
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (c ConsumerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("missing kafka brokers")
	}
	if c.Topic == "" {
		return fmt.Errorf("missing signature topic")
	}
	if c.GroupID == "" {
		return fmt.Errorf("missing consumer group")
	}
	return nil
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// consumer rechecks a transaction for every signature event. Messages are
// committed once handled, malformed ones and unknown transactions included,
// so that they are never redelivered.
type consumer struct {
	reader    messageReader
	rechecker Rechecker

	cancel func()
	done   chan struct{}
	lock   *sync.Mutex

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewConsumer(config ConsumerConfig, rechecker Rechecker) (*consumer, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  config.Brokers,
		GroupID:  config.GroupID,
		Topic:    config.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return newConsumer(reader, rechecker), nil
}

func newConsumer(reader messageReader, rechecker Rechecker) *consumer {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("signature consumer: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("signature consumer: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &consumer{
		reader:    reader,
		rechecker: rechecker,
		lock:      &sync.Mutex{},
		log:       logFn,
		warn:      warnFn,
	}
}

func (c *consumer) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("consumer already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.listen(ctx)
	log.Info("signature consumer: started")
	return nil
}

func (c *consumer) Stop() {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil

	if err := c.reader.Close(); err != nil {
		c.warn(err, "failed to close reader")
	}
	log.Info("signature consumer: stopped")
}

func (c *consumer) listen(ctx context.Context) {
	defer close(c.done)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.warn(err, "failed to fetch message, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.warn(err, "failed to commit offset %d", msg.Offset)
		}
	}
}

func (c *consumer) handle(ctx context.Context, msg kafka.Message) {
	var event SignatureEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.warn(err, "dropping malformed message at offset %d", msg.Offset)
		return
	}
	if event.TransactionID == "" {
		c.warn(
			fmt.Errorf("missing transaction id"),
			"dropping message at offset %d", msg.Offset,
		)
		return
	}

	status, err := c.rechecker.RecheckTransaction(ctx, event.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			c.log("dropping event for unknown tx %s", event.TransactionID)
			return
		}
		c.warn(err, "failed to recheck tx %s", event.TransactionID)
		return
	}
	c.log("tx %s rechecked, status %s", event.TransactionID, status)
}
