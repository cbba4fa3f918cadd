package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPGateway publishes notifications to a RabbitMQ topic exchange. The
// actual push/SMS/email senders consume from queues bound per channel;
// routing key is "notifications.<channel>".
type AMQPGateway struct {
	ch       *amqp.Channel
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger
}

func NewAMQPGateway(url, exchange string, logger *slog.Logger) (*AMQPGateway, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPGateway{ch: ch, conn: conn, exchange: exchange, logger: logger}, nil
}

func (g *AMQPGateway) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = g.ch.PublishWithContext(ctx, g.exchange, "notifications."+string(msg.Channel), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		g.logger.Warn("notification publish failed", "to", msg.To, "channel", string(msg.Channel), "error", err)
	}
	return err
}

func (g *AMQPGateway) Close() error {
	if err := g.ch.Close(); err != nil {
		return err
	}
	return g.conn.Close()
}
