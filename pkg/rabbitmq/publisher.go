package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"renderqueue/config"
)

// Publisher emits queue lifecycle events on the render exchange. Events
// are advisory; callers treat publish failures as log-and-continue.
type Publisher struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQ
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) *Publisher {
	return &Publisher{
		conn: conn,
		cfg:  cfg,
	}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, body any) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	exchange := exchangeName(p.cfg)
	err = ch.ExchangeDeclare(exchange, p.cfg.Kind, true, false, false, false, nil)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         raw,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
}
