package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	circuit "github.com/rubyist/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/service/payment"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseIntentEvent(t *testing.T) {
	c := New(Config{SecretKey: "sk_test", WebhookSecret: testSecret})
	resID := uuid.New()

	payload := `{
	  "id": "evt_123",
	  "object": "event",
	  "type": "payment_intent.succeeded",
	  "data": {"object": {
	    "id": "pi_123",
	    "object": "payment_intent",
	    "amount": 1250,
	    "currency": "eur",
	    "payment_method_types": ["card"],
	    "metadata": {"reservation_id": "` + resID.String() + `", "user_id": "9"}
	  }}
	}`

	ev, err := c.ParseEvent([]byte(payload), sign(t, payload))
	require.NoError(t, err)

	assert.Equal(t, "evt_123", ev.ID)
	assert.Equal(t, domain.EventIntentSucceeded, ev.Kind)
	assert.Equal(t, "pi_123", ev.IntentID)
	assert.Equal(t, resID, ev.ReservationID)
	assert.Equal(t, int64(1250), ev.AmountCents)
	assert.Equal(t, "EUR", ev.Currency)
	assert.Equal(t, "card", ev.Method)
}

func TestParseChargeEventWithoutMetadata(t *testing.T) {
	c := New(Config{WebhookSecret: testSecret})

	payload := `{
	  "id": "evt_ch",
	  "object": "event",
	  "type": "charge.refunded",
	  "data": {"object": {
	    "id": "ch_1",
	    "object": "charge",
	    "amount": 500,
	    "currency": "usd",
	    "payment_intent": "pi_77"
	  }}
	}`

	ev, err := c.ParseEvent([]byte(payload), sign(t, payload))
	require.NoError(t, err)

	assert.Equal(t, domain.EventChargeRefunded, ev.Kind)
	assert.Equal(t, "pi_77", ev.IntentID)
	assert.Equal(t, uuid.Nil, ev.ReservationID)
}

func TestParseRejectsBadSignature(t *testing.T) {
	c := New(Config{WebhookSecret: testSecret})
	payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{}}}`

	_, err := c.ParseEvent([]byte(payload), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	other := New(Config{WebhookSecret: "whsec_other"})
	_, err = other.ParseEvent([]byte(payload), sign(t, payload))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestBreakerOpensOnServerFailures(t *testing.T) {
	c := New(Config{SecretKey: "sk_test", BreakerThreshold: 2})
	boom := errors.New("connection reset")
	calls := 0

	fail := func(context.Context) error {
		calls++
		return boom
	}

	require.ErrorIs(t, c.call(context.Background(), fail), boom)
	require.ErrorIs(t, c.call(context.Background(), fail), boom)

	err := c.call(context.Background(), fail)
	require.ErrorIs(t, err, circuit.ErrBreakerOpen)
	assert.Equal(t, 2, calls, "open breaker does not reach the API")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c := New(Config{SecretKey: "sk_test", BreakerThreshold: 1})
	declined := &stripego.Error{HTTPStatusCode: http.StatusPaymentRequired, Code: stripego.ErrorCodeCardDeclined}

	for i := 0; i < 3; i++ {
		err := c.call(context.Background(), func(context.Context) error { return declined })
		require.ErrorIs(t, err, declined)
	}

	require.NoError(t, c.call(context.Background(), func(context.Context) error { return nil }))
}

// stubAPI answers every Stripe call with status and an error carrying code.
func stubAPI(t *testing.T, status int, code stripego.ErrorCode) (*Client, *int) {
	t.Helper()
	hits := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"` + string(code) + `","message":"rejected"}}`))
	}))
	t.Cleanup(srv.Close)

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(srv.URL),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	})

	return newClient(Config{SecretKey: "sk_test"}, backend), &hits
}

func TestCancelToleratesUnexpectedState(t *testing.T) {
	c, hits := stubAPI(t, http.StatusBadRequest, stripego.ErrorCodePaymentIntentUnexpectedState)

	require.NoError(t, c.CancelIntent(context.Background(), "pi_paid", "cancel:pi_paid"))
	assert.Equal(t, 1, *hits)
}

func TestRefundToleratesAlreadyRefunded(t *testing.T) {
	c, _ := stubAPI(t, http.StatusBadRequest, stripego.ErrorCodeChargeAlreadyRefunded)

	require.NoError(t, c.Refund(context.Background(), "pi_1", "refund:pi_1"))
}

func TestOtherRequestErrorsSurface(t *testing.T) {
	c, _ := stubAPI(t, http.StatusBadRequest, stripego.ErrorCodeResourceMissing)

	err := c.CancelIntent(context.Background(), "pi_gone", "cancel:pi_gone")
	var se *stripego.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stripego.ErrorCodeResourceMissing, se.Code)

	require.Error(t, c.Refund(context.Background(), "pi_gone", "refund:pi_gone"))
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped:%w", &stripego.Error{Code: stripego.ErrorCodeChargeAlreadyRefunded})

	assert.True(t, hasCode(err, stripego.ErrorCodeChargeAlreadyRefunded))
	assert.False(t, hasCode(err, stripego.ErrorCodePaymentIntentUnexpectedState))
	assert.False(t, hasCode(errors.New("plain"), stripego.ErrorCodeChargeAlreadyRefunded))
}

func TestParseUndecodableObject(t *testing.T) {
	c := New(Config{WebhookSecret: testSecret})

	payload := `{
	  "id": "evt_bad",
	  "object": "event",
	  "type": "payment_intent.succeeded",
	  "data": {"object": {"id": "pi_9", "object": "payment_intent", "amount": "lots"}}
	}`

	ev, err := c.ParseEvent([]byte(payload), sign(t, payload))
	require.NoError(t, err)

	assert.True(t, ev.Undecodable)
	assert.Equal(t, "evt_bad", ev.ID)
	assert.Equal(t, domain.EventIntentSucceeded, ev.Kind)
	assert.Empty(t, ev.IntentID)
}
