package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/ledger"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []published
	publishErr error
	declareErr error
	deliveries chan amqp.Delivery
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

type fakeAck struct {
	mu       sync.Mutex
	acked    []uint64
	rejected []uint64
	requeued []uint64
}

func (a *fakeAck) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAck) Nack(tag uint64, _ bool, _ bool) error { return a.Reject(tag, false) }

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
		return nil
	}
	a.rejected = append(a.rejected, tag)
	return nil
}

func receipt() ledger.Receipt {
	return ledger.Receipt{
		ID:     uuid.MustParse("7b0c5b4e-8f0f-4c35-9f5a-1f2d3c4b5a69"),
		Seq:    3,
		From:   common.HexToAddress("0xa11ce"),
		To:     common.HexToAddress("0xbeef"),
		Method: "buyTicketFromOrganizer",
		Value:  uint256.NewInt(500),
		Logs: []ledger.Log{{
			Component: common.HexToAddress("0xbeef"),
			Name:      "TicketsSold",
			Attrs:     map[string]string{"event_id": "0"},
		}},
		ExecutedAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_SaveReceipt(t *testing.T) {
	t.Parallel()

	t.Run("publishes a persistent json message", func(t *testing.T) {
		ch := &fakeChannel{}
		p, err := NewPublisher(ch, "")
		require.NoError(t, err)
		assert.Equal(t, []string{DefaultQueue}, ch.declared)

		require.NoError(t, p.SaveReceipt(context.Background(), receipt()))
		require.Len(t, ch.published, 1)

		got := ch.published[0]
		assert.Equal(t, "", got.exchange)
		assert.Equal(t, DefaultQueue, got.key)
		assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
		assert.Equal(t, "application/json", got.msg.ContentType)
		assert.Equal(t, "buyTicketFromOrganizer", got.msg.Type)

		var msg ReceiptMessage
		require.NoError(t, json.Unmarshal(got.msg.Body, &msg))
		assert.Equal(t, "7b0c5b4e-8f0f-4c35-9f5a-1f2d3c4b5a69", msg.ID)
		assert.Equal(t, uint64(3), msg.Seq)
		assert.Equal(t, "500", msg.Value)
		assert.Equal(t, common.HexToAddress("0xa11ce").Hex(), msg.From)
		require.Len(t, msg.Logs, 1)
		assert.Equal(t, "TicketsSold", msg.Logs[0].Name)
	})

	t.Run("reports publish failures", func(t *testing.T) {
		ch := &fakeChannel{publishErr: errors.New("channel closed")}
		p, err := NewPublisher(ch, "custom")
		require.NoError(t, err)

		err = p.SaveReceipt(context.Background(), receipt())
		require.ErrorIs(t, err, ch.publishErr)
	})

	t.Run("reports declare failures", func(t *testing.T) {
		ch := &fakeChannel{declareErr: errors.New("access refused")}
		_, err := NewPublisher(ch, "")
		require.ErrorIs(t, err, ch.declareErr)
	})
}

func TestNewReceiptMessage_NilValue(t *testing.T) {
	t.Parallel()

	msg := NewReceiptMessage(ledger.Receipt{})
	assert.Equal(t, "0", msg.Value)
	assert.NotNil(t, msg.Logs)
}

func TestReceiptMessage_Receipt(t *testing.T) {
	t.Parallel()

	want := receipt()
	got, err := NewReceiptMessage(want).Receipt()
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.From, got.From)
	assert.Equal(t, want.To, got.To)
	assert.Equal(t, want.Value.Dec(), got.Value.Dec())
	assert.Equal(t, want.Logs, got.Logs)
	assert.True(t, want.ExecutedAt.Equal(got.ExecutedAt))

	bad := NewReceiptMessage(want)
	bad.Value = "-1"
	_, err = bad.Receipt()
	assert.Error(t, err)

	bad = NewReceiptMessage(want)
	bad.ID = "nope"
	_, err = bad.Receipt()
	assert.Error(t, err)
}

func TestConsume(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(NewReceiptMessage(receipt()))
	require.NoError(t, err)

	ack := &fakeAck{}
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 5)}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: body}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, Body: body, Redelivered: true}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 5, Body: body, Redelivered: true}
	close(ch.deliveries)

	var seen []uint64
	calls := 0
	err = Consume(context.Background(), ch, "", nil, func(m ReceiptMessage) error {
		calls++
		if calls == 2 || calls == 3 {
			return errors.New("store down")
		}
		seen = append(seen, m.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []uint64{3, 3}, seen)
	assert.Equal(t, []uint64{1, 5}, ack.acked)
	// A first failure goes back on the queue, a failed redelivery is dropped.
	assert.Equal(t, []uint64{3}, ack.requeued)
	assert.Equal(t, []uint64{2, 4}, ack.rejected)
}

func TestConsume_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Consume(ctx, ch, "", nil, func(ReceiptMessage) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
