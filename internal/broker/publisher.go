package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/parkgo/internal/domain"
)

// Publisher is an outbox sink. It keeps one confirm-mode channel open and
// redials on the next event after the connection drops.
type Publisher struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(cfg Config, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}

	return &Publisher{cfg: cfg.withDefaults(), log: log.With("component", "amqp-publisher")}
}

func (p *Publisher) Name() string { return "amqp" }

// Handle publishes ev and waits for the broker to confirm it.
func (p *Publisher) Handle(ctx context.Context, ev domain.OutboxEvent) error {
	const op = "broker.Publisher.Handle"

	msg, err := publishing(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.cfg.Exchange, string(ev.Type), false, false, msg)
	if err != nil {
		p.reset()
		return fmt.Errorf("%s:%w", op, err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if !acked {
		return fmt.Errorf("%s: %w", op, errors.New("broker nacked message"))
	}

	return nil
}

// channel returns the open channel, dialing first when needed. mu is held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	p.reset()

	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if err := declare(ch, p.cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}

	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker", "exchange", p.cfg.Exchange)

	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()

	return nil
}
