package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/kirinyoku/parkgo/internal/service/notify"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type TwilioTexter struct {
	client *twilio.RestClient
	from   string
}

var _ notify.Texter = (*TwilioTexter)(nil)

func NewTwilioTexter(cfg TwilioConfig) *TwilioTexter {
	return &TwilioTexter{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username:   cfg.AccountSID,
			Password:   cfg.AuthToken,
			AccountSid: cfg.AccountSID,
		}),
		from: cfg.FromNumber,
	}
}

// SendSMS sends body to an E.164 number. The Twilio client takes no
// context, so ctx only short-circuits calls made after cancellation.
func (t *TwilioTexter) SendSMS(ctx context.Context, to, body string) error {
	const op = "messaging.TwilioTexter.SendSMS"

	if err := ctx.Err(); err != nil {
		return err
	}

	if !strings.HasPrefix(to, "+") {
		return fmt.Errorf("%s: %q is not in E.164 format", op, to)
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
