package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationActivated EventType = "reservation.activated"
	EventReservationCompleted EventType = "reservation.completed"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationExpired   EventType = "reservation.expired"
	EventReservationExtended  EventType = "reservation.extended"
	EventRefundRequested      EventType = "payment.refund_requested"
)

// EventForStatus maps a status reached by a transition to the event announcing it.
func EventForStatus(s Status) EventType {
	switch s {
	case StatusPending:
		return EventReservationCreated
	case StatusConfirmed:
		return EventReservationConfirmed
	case StatusActive:
		return EventReservationActivated
	case StatusCompleted:
		return EventReservationCompleted
	case StatusCancelled:
		return EventReservationCancelled
	case StatusExpired:
		return EventReservationExpired
	}
	return ""
}

// OutboxEvent is a domain event stored with the transaction that produced it.
type OutboxEvent struct {
	ID           uuid.UUID       `json:"id"`
	Type         EventType       `json:"type"`
	AggregateID  uuid.UUID       `json:"aggregate_id"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
	LockedUntil  *time.Time      `json:"-"`
	Attempts     int             `json:"attempts"`
	// ParkedAt is set once the event ran out of attempts; it is never
	// claimed again.
	ParkedAt *time.Time `json:"parked_at,omitempty"`
}

// ReservationEvent is the payload of every reservation.* and payment.* event.
type ReservationEvent struct {
	ReservationID   uuid.UUID     `json:"reservation_id"`
	UserID          int64         `json:"user_id"`
	LocationID      int64         `json:"parking_id"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	AmountCents     int64         `json:"amount_cents"`
	Currency        string        `json:"currency"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Reason          string        `json:"reason,omitempty"`
	OccurredAt      time.Time     `json:"occurred_at"`
}

func NewReservationEvent(t EventType, r Reservation, reason string, at time.Time) (OutboxEvent, error) {
	const op = "domain.NewReservationEvent"

	b, err := json.Marshal(ReservationEvent{
		ReservationID:   r.ID,
		UserID:          r.UserID,
		LocationID:      r.LocationID,
		Status:          r.Status,
		PaymentStatus:   r.PaymentStatus,
		PaymentIntentID: r.PaymentIntentID,
		AmountCents:     r.AmountCents,
		Currency:        r.Currency,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		Reason:          reason,
		OccurredAt:      at,
	})
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("%s:%w", op, err)
	}

	return OutboxEvent{
		ID:          uuid.New(),
		Type:        t,
		AggregateID: r.ID,
		Payload:     b,
		CreatedAt:   at,
	}, nil
}

func (e OutboxEvent) Reservation() (ReservationEvent, error) {
	var out ReservationEvent
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return ReservationEvent{}, fmt.Errorf("domain.OutboxEvent.Reservation:%w", err)
	}
	return out, nil
}
