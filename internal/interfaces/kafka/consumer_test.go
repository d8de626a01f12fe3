package kafka_interface

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

type fakeReader struct {
	messages  chan kafka.Message
	lock      *sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(values ...string) *fakeReader {
	messages := make(chan kafka.Message, len(values))
	for i, v := range values {
		messages <- kafka.Message{Offset: int64(i), Value: []byte(v)}
	}
	return &fakeReader{messages: messages, lock: &sync.Mutex{}}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case msg := <-r.messages:
		return msg, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committedCount() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.committed)
}

type mockRechecker struct {
	mock.Mock
}

func (m *mockRechecker) RecheckTransaction(
	ctx context.Context, txID string,
) (domain.TransactionStatus, error) {
	args := m.Called(ctx, txID)
	return args.Get(0).(domain.TransactionStatus), args.Error(1)
}

func TestConsumer(t *testing.T) {
	rechecker := &mockRechecker{}
	rechecker.On("RecheckTransaction", mock.Anything, "tx1").
		Return(domain.StatusWaitingForExecution, nil)
	rechecker.On("RecheckTransaction", mock.Anything, "unknown").
		Return(domain.TransactionStatus(0), domain.ErrTransactionNotFound)
	rechecker.On("RecheckTransaction", mock.Anything, "tx2").
		Return(domain.TransactionStatus(0), fmt.Errorf("something went wrong"))

	reader := newFakeReader(
		`{"transactionId":"tx1"}`,
		`not json`,
		`{}`,
		`{"transactionId":"unknown"}`,
		`{"transactionId":"tx2"}`,
	)
	c := newConsumer(reader, rechecker)

	require.NoError(t, c.Start())
	require.Error(t, c.Start())

	require.Eventually(t, func() bool {
		return reader.committedCount() == 5
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	require.True(t, reader.closed)
	rechecker.AssertNumberOfCalls(t, "RecheckTransaction", 3)
	rechecker.AssertCalled(t, "RecheckTransaction", mock.Anything, "tx1")

	// Stopping twice is a no-op.
	c.Stop()
}

func TestNewConsumer(t *testing.T) {
	tests := []struct {
		name   string
		config ConsumerConfig
	}{
		{"missing_brokers", ConsumerConfig{Topic: "t", GroupID: "g"}},
		{"missing_topic", ConsumerConfig{Brokers: []string{"b"}, GroupID: "g"}},
		{"missing_group", ConsumerConfig{Brokers: []string{"b"}, Topic: "t"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConsumer(tt.config, &mockRechecker{})
			require.Error(t, err)
			require.Nil(t, c)
		})
	}
}
