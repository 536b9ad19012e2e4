package domain

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// edges lists every allowed reservation transition.
var edges = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusExpired},
	StatusConfirmed: {StatusActive, StatusCancelled, StatusCompleted},
	StatusActive:    {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusActive,
		StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(edges[s]) == 0
}

// HoldsInventory reports whether a reservation in s owns an unreleased hold.
func (s Status) HoldsInventory() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusActive
}

func CanTransition(from, to Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources returns every status from which to is reachable in one step.
func Sources(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusConfirmed, StatusActive} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Transition is a guarded status change. The store applies it only when the
// current status is one of From. An empty PaymentStatus leaves it unchanged.
type Transition struct {
	From          []Status
	To            Status
	PaymentStatus PaymentStatus
	Reason        string
	At            time.Time
}

type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
	IntentCancelled IntentStatus = "cancelled"
	IntentRefunded  IntentStatus = "refunded"
)

// IntentSources returns the intent statuses that may move to to. A succeeded
// intent only ever moves to refunded. The provider's word on a success wins
// over a local failed or cancelled mark: a cancel can lose the race against
// a payment that was already captured.
func IntentSources(to IntentStatus) []IntentStatus {
	switch to {
	case IntentSucceeded:
		return []IntentStatus{IntentPending, IntentFailed, IntentCancelled}
	case IntentFailed:
		return []IntentStatus{IntentPending}
	case IntentCancelled:
		return []IntentStatus{IntentPending, IntentFailed}
	case IntentRefunded:
		return []IntentStatus{IntentSucceeded}
	}
	return nil
}

type PaymentEventKind string

const (
	EventIntentSucceeded PaymentEventKind = "payment_intent.succeeded"
	EventIntentFailed    PaymentEventKind = "payment_intent.payment_failed"
	EventIntentCanceled  PaymentEventKind = "payment_intent.canceled"
	EventChargeSucceeded PaymentEventKind = "charge.succeeded"
	EventChargeFailed    PaymentEventKind = "charge.failed"
	EventChargeRefunded  PaymentEventKind = "charge.refunded"
)
