package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
)

// History answers the user's questions about their own payments from the
// local records. It never calls the provider.
type History struct {
	store repository.Store
}

func NewHistory(store repository.Store) *History {
	return &History{store: store}
}

// IntentView is the state of one intent as this service knows it.
type IntentView struct {
	IntentID          string               `json:"payment_intent_id"`
	Status            domain.IntentStatus  `json:"status"`
	AmountCents       int64                `json:"amount_cents"`
	Currency          string               `json:"currency"`
	ReservationID     string               `json:"reservation_id"`
	ReservationStatus domain.Status        `json:"reservation_status"`
	PaymentStatus     domain.PaymentStatus `json:"payment_status"`
}

// List returns the payment records of the user's reservations, newest first.
func (h *History) List(ctx context.Context, userID int64, limit, offset int) ([]domain.Payment, error) {
	const op = "service.payment.History.List"

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset = max(offset, 0)

	out, err := h.store.Payments().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Status reports an intent of the user's. An intent that belongs to someone
// else is reported as ErrIntentNotFound.
func (h *History) Status(ctx context.Context, userID int64, intentID string) (*IntentView, error) {
	const op = "service.payment.History.Status"

	in, err := h.store.Payments().GetIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrIntentNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	res, err := h.store.Reservations().Get(ctx, in.ReservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrIntentNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if res.UserID != userID {
		return nil, fmt.Errorf("%s:%w", op, ErrIntentNotFound)
	}

	return &IntentView{
		IntentID:          in.ExternalID,
		Status:            in.Status,
		AmountCents:       in.AmountCents,
		Currency:          in.Currency,
		ReservationID:     res.ID.String(),
		ReservationStatus: res.Status,
		PaymentStatus:     res.PaymentStatus,
	}, nil
}
