package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"geo-export-service/internal/entity"
)

// RabbitQueue uses a durable RabbitMQ queue. Messages are fetched with manual
// ack; an unacked message is requeued by the broker when the channel closes
// (worker crash) or the broker's delivery acknowledgement timeout fires, which
// plays the role of the visibility window.
type RabbitQueue struct {
	conn         *amqp.Connection
	ch           *amqp.Channel
	queue        string
	pollInterval time.Duration

	mu sync.Mutex
}

func DialRabbit(url, queue string) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq declare %s: %w", queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq qos: %w", err)
	}

	return &RabbitQueue{
		conn:         conn,
		ch:           ch,
		queue:        queue,
		pollInterval: 500 * time.Millisecond,
	}, nil
}

func (q *RabbitQueue) Send(ctx context.Context, msg entity.Message) error {
	body, err := encode(msg)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (q *RabbitQueue) Receive(ctx context.Context, wait time.Duration) (*Delivery, error) {
	deadline := time.Now().Add(wait)
	for {
		q.mu.Lock()
		msg, ok, err := q.ch.Get(q.queue, false)
		q.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Delivery{Body: msg.Body, Receipt: strconv.FormatUint(msg.DeliveryTag, 10)}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrEmpty
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *RabbitQueue) Ack(_ context.Context, d *Delivery) error {
	tag, err := strconv.ParseUint(d.Receipt, 10, 64)
	if err != nil {
		return fmt.Errorf("bad delivery tag %q: %w", d.Receipt, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.Ack(tag, false)
}

func (q *RabbitQueue) Close() error {
	_ = q.ch.Close()
	return q.conn.Close()
}
