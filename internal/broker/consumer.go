package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v3"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/parkgo/internal/domain"
)

// Handler processes one delivered event. An error puts the message back on
// the queue.
type Handler func(ctx context.Context, ev domain.OutboxEvent) error

type Consumer struct {
	cfg     Config
	handler Handler
	log     *slog.Logger
}

func NewConsumer(cfg Config, handler Handler, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}

	return &Consumer{
		cfg:     cfg.withDefaults(),
		handler: handler,
		log:     log.With("component", "amqp-consumer"),
	}
}

// Run consumes until ctx is done, reconnecting with exponential backoff
// whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		err := c.session(ctx, b.Reset)
		if ctx.Err() != nil {
			return nil
		}

		wait := b.NextBackOff()
		c.log.WarnContext(ctx, "consumer disconnected, retrying", "err", err, "in", wait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session runs one connection's worth of consuming. connected is called
// once the subscription is established.
func (c *Consumer) session(ctx context.Context, connected func()) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	if err := declare(ch, c.cfg); err != nil {
		return err
	}

	msgs, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	connected()
	c.log.InfoContext(ctx, "consuming", "queue", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	ev, err := decode(d.Body)
	if err != nil {
		c.log.ErrorContext(ctx, "dropping malformed message", "message_id", d.MessageId, "err", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.handler(ctx, ev); err != nil {
		c.log.WarnContext(ctx, "handler failed, requeueing", "event_id", ev.ID, "err", err)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}
