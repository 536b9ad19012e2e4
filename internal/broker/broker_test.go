package broker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/parkgo/internal/domain"
)

func TestPublishingCarriesEvent(t *testing.T) {
	ev := domain.OutboxEvent{
		ID:          uuid.New(),
		Type:        domain.EventReservationConfirmed,
		AggregateID: uuid.New(),
		Payload:     []byte(`{"reservation_id":"x"}`),
		CreatedAt:   time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}

	msg, err := publishing(ev)
	require.NoError(t, err)

	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, ev.ID.String(), msg.MessageId)
	assert.Equal(t, "reservation.confirmed", msg.Type)

	got, err := decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Type, got.Type)
	assert.JSONEq(t, string(ev.Payload), string(got.Payload))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = decode([]byte(`{"id":"00000000-0000-0000-0000-000000000000"}`))
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "amqp://localhost"}.withDefaults()
	assert.Equal(t, "parkgo.events", cfg.Exchange)
	assert.Equal(t, "parkgo.notifications", cfg.Queue)
	assert.Equal(t, 50, cfg.Prefetch)
}
