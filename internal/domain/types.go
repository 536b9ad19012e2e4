package domain

import (
	"time"

	"github.com/google/uuid"
)

type ParkingType string

const (
	ParkingPublic      ParkingType = "public"
	ParkingPrivate     ParkingType = "private"
	ParkingResidential ParkingType = "residential"
)

func (t ParkingType) Valid() bool {
	switch t {
	case ParkingPublic, ParkingPrivate, ParkingResidential:
		return true
	}
	return false
}

// Location is a parking location. Amounts are in minor units (cents).
type Location struct {
	ID              int64       `json:"id"`
	OwnerID         int64       `json:"owner_id,omitempty"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Address         string      `json:"address"`
	Latitude        float64     `json:"latitude"`
	Longitude       float64     `json:"longitude"`
	Type            ParkingType `json:"parking_type"`
	Amenities       []string    `json:"amenities"`
	TotalSpots      int         `json:"total_spots"`
	AvailableSpots  int         `json:"available_spots"`
	HourlyRateCents int64       `json:"hourly_rate_cents"`
	DailyRateCents  int64       `json:"daily_rate_cents,omitempty"`
	Currency        string      `json:"currency"`
	Rating          float64     `json:"rating"`
	TotalRatings    int         `json:"total_ratings"`
	IsActive        bool        `json:"is_active"`
	IsOpen          bool        `json:"is_open"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Bookable reports whether new holds may be taken against the location.
func (l Location) Bookable() bool {
	return l.IsActive && l.IsOpen
}

// LocationHit is a search result. DistanceKm is set only for geo queries.
type LocationHit struct {
	Location
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

type Availability struct {
	LocationID int64 `json:"location_id"`
	Available  int   `json:"available"`
	Total      int   `json:"total"`
}

// Hold is one unit of inventory taken from a location.
type Hold struct {
	ID         uuid.UUID  `json:"id"`
	LocationID int64      `json:"location_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

func (h Hold) Released() bool {
	return h.ReleasedAt != nil
}

type Reservation struct {
	ID              uuid.UUID     `json:"id"`
	UserID          int64         `json:"user_id"`
	LocationID      int64         `json:"parking_id"`
	HoldID          uuid.UUID     `json:"hold_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	AmountCents     int64         `json:"total_amount_cents"`
	Currency        string        `json:"currency"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// PaymentIntent mirrors an intent opened at the payment provider.
type PaymentIntent struct {
	ExternalID    string       `json:"external_id"`
	ReservationID uuid.UUID    `json:"reservation_id"`
	AmountCents   int64        `json:"amount_cents"`
	Currency      string       `json:"currency"`
	Status        IntentStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type PaymentRecordStatus string

const (
	PaymentRecordSucceeded PaymentRecordStatus = "succeeded"
	PaymentRecordRefunded  PaymentRecordStatus = "refunded"
)

// Payment is money actually captured for a reservation.
type Payment struct {
	ID            uuid.UUID           `json:"id"`
	ReservationID uuid.UUID           `json:"reservation_id"`
	IntentID      string              `json:"payment_intent_id"`
	AmountCents   int64               `json:"amount_cents"`
	Currency      string              `json:"currency"`
	Method        string              `json:"payment_method"`
	Status        PaymentRecordStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Review bounds.
const (
	MinRating        = 1
	MaxRating        = 5
	MaxReviewComment = 500
)

// Review is one user's rating of a location. AuthorName is filled on reads.
type Review struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	LocationID int64     `json:"parking_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	AuthorName string    `json:"user_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PaymentEvent is a provider event that has been applied.
type PaymentEvent struct {
	ID            string
	IntentID      string
	Kind          PaymentEventKind
	ReservationID uuid.UUID
	ReceivedAt    time.Time
}

type Contact struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
