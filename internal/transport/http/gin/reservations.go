package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	redisrepo "github.com/kirinyoku/parkgo/internal/repository/redis"
	"github.com/kirinyoku/parkgo/internal/service"
	"github.com/kirinyoku/parkgo/internal/service/reservation"
)

const idemLockTTL = 60 * time.Second

// Idempotency stores booking responses by Idempotency-Key.
type Idempotency interface {
	Claim(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (redisrepo.IdemEntry, error)
	Complete(ctx context.Context, key, fingerprint, response string) error
	Abort(ctx context.Context, key, fingerprint string) error
}

// @Summary  Book a spot
// @Description  Takes a spot and opens a payment intent. The reservation stays
// @Description  pending until the payment succeeds.
// @Security BearerAuth
// @Param    Idempotency-Key  header  string       false  "Replays the first response for the same key"
// @Param    req              body    BookRequest  true   "payload"
// @Success  201  {object}  BookingResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  401  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "no spots / key in progress"
// @Failure  422  {object}  ErrorResponse  "key reused with another payload"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  502  {object}  ErrorResponse  "payment provider unavailable"
// @Router   /reservations [post]
func handleBook(svcs *service.Services, idem Idempotency) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := mustUserID(c)
		ctx := c.Request.Context()

		var req BookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, fp string
		if idem != nil && idemKey != "" {
			if len(idemKey) > 255 {
				badRequest(c, "Idempotency-Key too long")
				return
			}
			idemStorageKey = redisrepo.KeyIdemBooking(uid, idemKey)
			fp = req.fingerprint()

			entry, err := idem.Claim(ctx, idemStorageKey, fp, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}

			switch {
			case entry.State != redisrepo.IdemClaimed && entry.Fingerprint != fp:
				c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "Idempotency-Key was used with a different request"})
				return
			case entry.State == redisrepo.IdemDone:
				c.Header("Idempotency-Key", idemKey)
				c.Header("Idempotent-Replayed", "true")
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(entry.Response))
				return
			case entry.State == redisrepo.IdemInFlight:
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		booking, err := svcs.Reservation.Book(ctx, reservation.BookRequest{
			UserID:        uid,
			LocationID:    req.ParkingID,
			Start:         req.StartTime,
			End:           req.EndTime,
			AmountCents:   req.TotalAmountCents,
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Abort(context.WithoutCancel(ctx), idemStorageKey, fp)
			}
			respondErr(c, err)
			return
		}

		resp := BookingResponse{Reservation: booking.Reservation, ClientSecret: booking.ClientSecret}

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.Complete(context.WithoutCancel(ctx), idemStorageKey, fp, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  List my reservations
// @Security BearerAuth
// @Param    limit   query  int  false  "page size (default 20)"
// @Param    offset  query  int  false  "offset"
// @Success  200  {object}  ReservationListResponse
// @Failure  401  {object}  ErrorResponse
// @Router   /reservations [get]
func handleListReservations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		list, err := svcs.Reservation.List(c.Request.Context(), mustUserID(c), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ReservationListResponse{Reservations: list, Limit: limit, Offset: offset})
	}
}

// @Summary  Get reservation
// @Security BearerAuth
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  200  {object}  domain.Reservation
// @Failure  404  {object}  ErrorResponse
// @Router   /reservations/{id} [get]
func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		r, err := svcs.Reservation.Get(c.Request.Context(), mustUserID(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, r)
	}
}

// @Summary  Cancel reservation
// @Description  Cancelling an already cancelled reservation returns it unchanged.
// @Security BearerAuth
// @Param    id   path  string         true   "Reservation ID (uuid)"
// @Param    req  body  CancelRequest  false  "payload"
// @Success  200  {object}  domain.Reservation
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /reservations/{id}/cancel [post]
func handleCancelReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req CancelRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err.Error())
			return
		}

		r, err := svcs.Reservation.Cancel(c.Request.Context(), mustUserID(c), id, req.Reason)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, r)
	}
}

// @Summary  Extend reservation
// @Security BearerAuth
// @Param    id   path  string         true  "Reservation ID (uuid)"
// @Param    req  body  ExtendRequest  true  "payload"
// @Success  200  {object}  domain.Reservation
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /reservations/{id}/extend [post]
func handleExtendReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req ExtendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		r, err := svcs.Reservation.Extend(c.Request.Context(), mustUserID(c), id, req.NewEndTime)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, r)
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
