package bus

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
)

type publishCall struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

type fakeChannel struct {
	calls []publishCall
	err   error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.calls = append(f.calls, publishCall{Exchange: exchange, Key: key, Msg: msg})
	return f.err
}

func TestPublisher_Notify(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch}

	err := p.Notify(context.Background(), fulfillment.Notification{
		OrderID: "ord-1", Message: "Your order ord-1 has been shipped.",
	})

	require.NoError(t, err)
	require.Len(t, ch.calls, 1)
	assert.Equal(t, ExchangeName, ch.calls[0].Exchange)
	assert.Equal(t, "fulfillment.notify", ch.calls[0].Key)
	assert.Equal(t, "application/json", ch.calls[0].Msg.ContentType)

	var got notifyEvent
	require.NoError(t, json.Unmarshal(ch.calls[0].Msg.Body, &got))
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Contains(t, got.Message, "shipped")
}

func TestPublisher_Restock(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch}

	err := p.Restock(context.Background(), "ord-2", []fulfillment.RestockItem{
		{SKU: "MUG-01", Quantity: 2},
	})

	require.NoError(t, err)
	require.Len(t, ch.calls, 1)
	assert.Equal(t, "inventory.restock", ch.calls[0].Key)

	var got restockEvent
	require.NoError(t, json.Unmarshal(ch.calls[0].Msg.Body, &got))
	assert.Equal(t, "ord-2", got.OrderID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "MUG-01", got.Items[0].SKU)
}

func TestPublisher_Refund(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch}

	err := p.RefundPayment(context.Background(), "ord-3", 40.0)

	require.NoError(t, err)
	require.Len(t, ch.calls, 1)
	assert.Equal(t, "payment.refund", ch.calls[0].Key)

	var got refundEvent
	require.NoError(t, json.Unmarshal(ch.calls[0].Msg.Body, &got))
	assert.Equal(t, 40.0, got.Amount)
}

func TestPublisher_PropagatesBrokerError(t *testing.T) {
	ch := &fakeChannel{err: assert.AnError}
	p := &Publisher{ch: ch}

	err := p.RefundPayment(context.Background(), "ord-4", 1.0)

	assert.ErrorIs(t, err, assert.AnError)
}
