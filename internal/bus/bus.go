// Package bus publishes fulfillment side effects to RabbitMQ so the
// notification, inventory and payment services consume them off a topic
// exchange instead of being called inline.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
)

const (
	ExchangeName = "fulfillment"
	ExchangeType = "topic"

	routingNotify  = "fulfillment.notify"
	routingRestock = "inventory.restock"
	routingRefund  = "payment.refund"
)

// Connect dials RabbitMQ, opens a channel and declares the topic
// exchange. Connection attempts are retried to ride out broker startup.
func Connect(url string) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher emits fulfillment events onto the exchange. It implements
// the Notifier, Restocker and Refunder collaborator interfaces.
type Publisher struct {
	ch channel
}

func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal %s event: %w", routingKey, err)
	}
	return p.ch.PublishWithContext(ctx,
		ExchangeName, // exchange
		routingKey,   // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		},
	)
}

type notifyEvent struct {
	OrderID       string `json:"orderId"`
	Message       string `json:"message"`
	EmailOverride string `json:"emailOverride,omitempty"`
	PhoneOverride string `json:"phoneOverride,omitempty"`
}

func (p *Publisher) Notify(ctx context.Context, n fulfillment.Notification) error {
	return p.publish(ctx, routingNotify, notifyEvent{
		OrderID:       n.OrderID,
		Message:       n.Message,
		EmailOverride: n.EmailOverride,
		PhoneOverride: n.PhoneOverride,
	})
}

type restockEvent struct {
	OrderID string                    `json:"orderId"`
	Items   []fulfillment.RestockItem `json:"items"`
}

func (p *Publisher) Restock(ctx context.Context, orderID string, items []fulfillment.RestockItem) error {
	return p.publish(ctx, routingRestock, restockEvent{OrderID: orderID, Items: items})
}

type refundEvent struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

func (p *Publisher) RefundPayment(ctx context.Context, orderID string, amount float64) error {
	return p.publish(ctx, routingRefund, refundEvent{OrderID: orderID, Amount: amount})
}

// LogSink is the broker-less fallback used in development. Events are
// logged and dropped.
type LogSink struct {
	Logger *otelzap.Logger
}

func (l LogSink) Notify(ctx context.Context, n fulfillment.Notification) error {
	l.Logger.Info("Notification (no broker configured)",
		zap.String("order_id", n.OrderID), zap.String("message", n.Message))
	return nil
}

func (l LogSink) Restock(ctx context.Context, orderID string, items []fulfillment.RestockItem) error {
	l.Logger.Info("Restock request (no broker configured)",
		zap.String("order_id", orderID), zap.Int("items", len(items)))
	return nil
}

func (l LogSink) RefundPayment(ctx context.Context, orderID string, amount float64) error {
	l.Logger.Info("Refund request (no broker configured)",
		zap.String("order_id", orderID), zap.Float64("amount", amount))
	return nil
}

var (
	_ fulfillment.Notifier  = (*Publisher)(nil)
	_ fulfillment.Restocker = (*Publisher)(nil)
	_ fulfillment.Refunder  = (*Publisher)(nil)
	_ fulfillment.Notifier  = LogSink{}
	_ fulfillment.Restocker = LogSink{}
	_ fulfillment.Refunder  = LogSink{}
)
