// Package broker moves outbox events through RabbitMQ: a publisher sink on a
// topic exchange keyed by event type, and a consumer feeding a handler.
package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/parkgo/internal/domain"
)

type Config struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = "parkgo.events"
	}
	if c.Queue == "" {
		c.Queue = "parkgo.notifications"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 50
	}
	return c
}

// bindings are the routing keys the notification queue listens to.
var bindings = []string{"reservation.*", "payment.*"}

// declare sets up the exchange, the queue and its bindings. All of them are
// durable and declaring them again is harmless.
func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	for _, key := range bindings {
		if err := ch.QueueBind(cfg.Queue, key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", key, err)
		}
	}

	return nil
}

func publishing(ev domain.OutboxEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID.String(),
		Type:         string(ev.Type),
		Timestamp:    ev.CreatedAt.UTC(),
		Body:         body,
	}, nil
}

func decode(body []byte) (domain.OutboxEvent, error) {
	var ev domain.OutboxEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.OutboxEvent{}, err
	}
	if ev.Type == "" {
		return domain.OutboxEvent{}, errors.New("message without event type")
	}
	return ev, nil
}
