package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
)

// IntentRequest is what the provider needs to open an intent.
type IntentRequest struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type ProviderIntent struct {
	ID           string
	ClientSecret string
}

// Event is a provider webhook event reduced to what reconciliation needs.
// ReservationID is uuid.Nil when the event carries no usable metadata.
// Undecodable marks a genuine event whose object could not be read; only ID
// and Kind are set.
type Event struct {
	ID            string
	Kind          domain.PaymentEventKind
	IntentID      string
	ReservationID uuid.UUID
	AmountCents   int64
	Currency      string
	Method        string
	Undecodable   bool
}

// Provider is the payment service provider. Calls that move money carry an
// idempotency key so a repeated call has no further effect.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (ProviderIntent, error)
	// CancelIntent cancels an unpaid intent. An intent that can no longer be
	// cancelled is not an error.
	CancelIntent(ctx context.Context, intentID, idempotencyKey string) error
	Refund(ctx context.Context, intentID, idempotencyKey string) error
	// ParseEvent verifies signature over the raw payload and decodes it.
	// A bad signature is reported as ErrInvalidSignature.
	ParseEvent(payload []byte, signature string) (Event, error)
}

// Metadata keys attached to every intent.
const (
	MetaReservationID = "reservation_id"
	MetaUserID        = "user_id"
)
