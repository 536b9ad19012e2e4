// Package stripe adapts Stripe payment intents, refunds and webhooks to the
// payment provider used by the reconciler.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	circuit "github.com/rubyist/circuitbreaker"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/service/payment"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// BreakerThreshold is the number of consecutive failed API calls that
	// opens the breaker. Defaults to 5.
	BreakerThreshold int64
	// CallTimeout bounds a single API call. Defaults to 10s.
	CallTimeout time.Duration
}

type Client struct {
	intents       *paymentintent.Client
	refunds       *refund.Client
	webhookSecret string
	breaker       *circuit.Breaker
	timeout       time.Duration
}

var _ payment.Provider = (*Client)(nil)

func New(cfg Config) *Client {
	return newClient(cfg, stripe.GetBackend(stripe.APIBackend))
}

func newClient(cfg Config, backend stripe.Backend) *Client {
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	return &Client{
		intents:       &paymentintent.Client{B: backend, Key: cfg.SecretKey},
		refunds:       &refund.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		breaker:       circuit.NewConsecutiveBreaker(cfg.BreakerThreshold),
		timeout:       cfg.CallTimeout,
	}
}

// call runs fn through the breaker. Only errors that say nothing about the
// request itself (network, 5xx, rate limiting) count as failures; a 4xx is
// handed back without tripping anything.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var callErr error

	err := c.breaker.Call(func() error {
		callErr = fn(ctx)
		if callErr != nil && !clientFault(callErr) {
			return callErr
		}
		return nil
	}, 0)
	if callErr != nil {
		return callErr
	}

	return err
}

func clientFault(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429
}

func hasCode(err error, code stripe.ErrorCode) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.Code == code
}

func (c *Client) CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.ProviderIntent, error) {
	const op = "stripe.Client.CreateIntent"

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	var pi *stripe.PaymentIntent
	err := c.call(ctx, func(ctx context.Context) (err error) {
		params.Context = ctx
		pi, err = c.intents.New(params)
		return err
	})
	if err != nil {
		return payment.ProviderIntent{}, fmt.Errorf("%s:%w", op, err)
	}

	return payment.ProviderIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (c *Client) CancelIntent(ctx context.Context, intentID, idempotencyKey string) error {
	const op = "stripe.Client.CancelIntent"

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.SetIdempotencyKey(idempotencyKey)

	err := c.call(ctx, func(ctx context.Context) error {
		params.Context = ctx
		_, err := c.intents.Cancel(intentID, params)
		return err
	})
	if err != nil {
		// Already cancelled or already paid: the latter arrives as a webhook.
		if hasCode(err, stripe.ErrorCodePaymentIntentUnexpectedState) {
			return nil
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (c *Client) Refund(ctx context.Context, intentID, idempotencyKey string) error {
	const op = "stripe.Client.Refund"

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.SetIdempotencyKey(idempotencyKey)

	err := c.call(ctx, func(ctx context.Context) error {
		params.Context = ctx
		_, err := c.refunds.New(params)
		return err
	})
	if err != nil {
		if hasCode(err, stripe.ErrorCodeChargeAlreadyRefunded) {
			return nil
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ParseEvent verifies the Stripe-Signature header and decodes the event.
func (c *Client) ParseEvent(payload []byte, signature string) (payment.Event, error) {
	const op = "stripe.Client.ParseEvent"

	ev, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return payment.Event{}, fmt.Errorf("%s:%w", op, errors.Join(payment.ErrInvalidSignature, err))
	}

	out, err := decode(ev)
	if err != nil {
		// The signature holds, so the provider did send it. Redelivering the
		// same bytes cannot help.
		return payment.Event{
			ID:          ev.ID,
			Kind:        domain.PaymentEventKind(ev.Type),
			Undecodable: true,
		}, nil
	}

	return out, nil
}

func decode(ev stripe.Event) (payment.Event, error) {
	out := payment.Event{
		ID:   ev.ID,
		Kind: domain.PaymentEventKind(ev.Type),
	}

	if ev.Data == nil {
		return out, nil
	}

	switch {
	case strings.HasPrefix(string(ev.Type), "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return payment.Event{}, err
		}

		out.IntentID = pi.ID
		out.AmountCents = pi.Amount
		out.Currency = strings.ToUpper(string(pi.Currency))
		out.ReservationID = reservationID(pi.Metadata)
		if len(pi.PaymentMethodTypes) > 0 {
			out.Method = pi.PaymentMethodTypes[0]
		}

	case strings.HasPrefix(string(ev.Type), "charge."):
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return payment.Event{}, err
		}

		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
		}
		out.AmountCents = ch.Amount
		out.Currency = strings.ToUpper(string(ch.Currency))
		out.ReservationID = reservationID(ch.Metadata)
		if ch.PaymentMethodDetails != nil {
			out.Method = string(ch.PaymentMethodDetails.Type)
		}
	}

	return out, nil
}

func reservationID(meta map[string]string) uuid.UUID {
	id, err := uuid.Parse(meta[payment.MetaReservationID])
	if err != nil {
		return uuid.Nil
	}
	return id
}
