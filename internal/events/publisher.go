package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/useristn/Toy-Store-Web-sub000/internal/order"
)

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare queues so publish never fails due to missing infra
	for _, q := range []string{OrderCreatedQueue, OrderPaidQueue, OrderPaymentFailedQueue, OrderCancelledQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare %s: %w", q, err)
		}
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	ev := OrderCreated{
		EventType:     "OrderCreated",
		OrderID:       o.ID,
		Reference:     o.Reference,
		UserID:        o.UserID,
		PaymentMethod: string(o.PaymentMethod),
		TotalAmount:   o.TotalAmount,
		Timestamp:     time.Now().UTC(),
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return p.publishJSON(ctx, OrderCreatedQueue, ev)
}

func (p *Publisher) PublishOrderPaid(ctx context.Context, o *order.Order) error {
	return p.publishJSON(ctx, OrderPaidQueue, OrderPaid{
		EventType:   "OrderPaid",
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Timestamp:   time.Now().UTC(),
	})
}

func (p *Publisher) PublishOrderPaymentFailed(ctx context.Context, orderID, userID, respCode string) error {
	return p.publishJSON(ctx, OrderPaymentFailedQueue, OrderPaymentFailed{
		EventType:    "OrderPaymentFailed",
		OrderID:      orderID,
		UserID:       userID,
		ResponseCode: respCode,
		Timestamp:    time.Now().UTC(),
	})
}

func (p *Publisher) PublishOrderCancelled(ctx context.Context, orderID, userID string) error {
	return p.publishJSON(ctx, OrderCancelledQueue, OrderCancelled{
		EventType: "OrderCancelled",
		OrderID:   orderID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) publishJSON(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(pubCtx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// MustDialRabbit connects to RabbitMQ or panics; main treats a missing broker
// as a startup failure, the same as a missing database.
func MustDialRabbit(url string) *amqp.Connection {
	conn, err := amqp.Dial(url)
	if err != nil {
		panic(fmt.Sprintf("dial rabbitmq: %v", err))
	}
	return conn
}
