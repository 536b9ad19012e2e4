package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/kirinyoku/parkgo/internal/domain"
)

type BookRequest struct {
	ParkingID int64     `json:"parking_id" binding:"required,gt=0"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
	// TotalAmountCents is the price the client was shown; 0 accepts the quote.
	TotalAmountCents int64  `json:"total_amount_cents" binding:"gte=0"`
	PaymentMethod    string `json:"payment_method"`
}

// fingerprint identifies the booking a request asks for, independent of
// JSON formatting.
func (r BookRequest) fingerprint() string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(r.ParkingID, 10) + "|" +
		r.StartTime.UTC().Format(time.RFC3339Nano) + "|" +
		r.EndTime.UTC().Format(time.RFC3339Nano) + "|" +
		strconv.FormatInt(r.TotalAmountCents, 10) + "|" +
		r.PaymentMethod))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

type ExtendRequest struct {
	NewEndTime time.Time `json:"new_end_time" binding:"required"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"max=200"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=500"`
}

type BookingResponse struct {
	Reservation  domain.Reservation `json:"reservation"`
	ClientSecret string             `json:"client_secret,omitempty"`
}

type ReservationListResponse struct {
	Reservations []domain.Reservation `json:"reservations"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

type LocationListResponse struct {
	Parkings []domain.LocationHit `json:"parkings"`
	Count    int                  `json:"count"`
}

type PaymentListResponse struct {
	Payments []domain.Payment `json:"payments"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ReviewListResponse struct {
	Reviews    []domain.Review `json:"reviews"`
	Pagination Pagination      `json:"pagination"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
