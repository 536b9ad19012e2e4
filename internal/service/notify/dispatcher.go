// Package notify tells users what happened to their reservations. Sending is
// best effort: a failure is logged and never reported back, so it cannot
// affect reservation state or block the events behind it.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

type Email struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	SendEmail(ctx context.Context, e Email) error
}

type Texter interface {
	SendSMS(ctx context.Context, to, body string) error
}

type Dispatcher struct {
	store  repository.Store
	mailer Mailer
	texter Texter
	log    *slog.Logger
}

// NewDispatcher builds a dispatcher. A nil mailer or texter disables that
// channel.
func NewDispatcher(store repository.Store, mailer Mailer, texter Texter, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		store:  store,
		mailer: mailer,
		texter: texter,
		log:    log.With("component", "notify"),
	}
}

func (d *Dispatcher) Name() string { return "notify" }

// Handle sends the messages for one event. It only fails when ctx is done.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.OutboxEvent) error {
	tpl, ok := messages[ev.Type]
	if !ok {
		return nil
	}

	payload, err := ev.Reservation()
	if err != nil {
		d.log.WarnContext(ctx, "undecodable event", "event_id", ev.ID, "err", err)
		return nil
	}

	contact, err := d.store.Users().Contact(ctx, payload.UserID)
	if err != nil {
		d.log.WarnContext(ctx, "no contact for user", "user_id", payload.UserID, "err", err)
		return ctx.Err()
	}

	data := messageData{
		Name:        contact.FullName(),
		Reservation: payload,
		Location:    "parking #" + strconv.FormatInt(payload.LocationID, 10),
		Amount:      formatAmount(payload.AmountCents, payload.Currency),
	}
	if loc, err := d.store.Locations().Get(ctx, payload.LocationID); err == nil {
		data.Location = loc.Name
		data.Address = loc.Address
	}

	if d.mailer != nil && contact.Email != "" {
		email, err := tpl.render(data)
		if err != nil {
			d.log.ErrorContext(ctx, "render email failed", "type", ev.Type, "err", err)
		} else {
			email.ToEmail, email.ToName = contact.Email, contact.FullName()
			if err := d.mailer.SendEmail(ctx, email); err != nil {
				d.log.WarnContext(ctx, "send email failed",
					"reservation_id", payload.ReservationID, "type", ev.Type, "err", err)
			}
		}
	}

	if d.texter != nil && contact.Phone != "" && tpl.sms != nil {
		var buf bytes.Buffer
		if err := tpl.sms.Execute(&buf, data); err == nil {
			if err := d.texter.SendSMS(ctx, contact.Phone, buf.String()); err != nil {
				d.log.WarnContext(ctx, "send sms failed",
					"reservation_id", payload.ReservationID, "type", ev.Type, "err", err)
			}
		}
	}

	return ctx.Err()
}

type messageData struct {
	Name        string
	Reservation domain.ReservationEvent
	Location    string
	Address     string
	Amount      string
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
