package httpgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/parkgo/internal/repository"
	"github.com/kirinyoku/parkgo/internal/service/inventory"
	"github.com/kirinyoku/parkgo/internal/service/payment"
	"github.com/kirinyoku/parkgo/internal/service/query"
	"github.com/kirinyoku/parkgo/internal/service/reservation"
	"github.com/kirinyoku/parkgo/internal/service/review"
)

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	status, msg := http.StatusInternalServerError, "internal error"

	switch {
	// not found
	case errors.Is(err, reservation.ErrReservationNotFound):
		status, msg = http.StatusNotFound, "reservation not found"
	case errors.Is(err, reservation.ErrLocationNotFound),
		errors.Is(err, inventory.ErrLocationNotFound),
		errors.Is(err, query.ErrLocationNotFound),
		errors.Is(err, review.ErrLocationNotFound):
		status, msg = http.StatusNotFound, "parking not found"
	case errors.Is(err, payment.ErrIntentNotFound):
		status, msg = http.StatusNotFound, "payment not found"

	// conflicts
	case errors.Is(err, reservation.ErrNoCapacity),
		errors.Is(err, inventory.ErrNoCapacity),
		errors.Is(err, repository.ErrNoCapacity):
		status, msg = http.StatusConflict, "no spots available"
	case errors.Is(err, review.ErrAlreadyReviewed):
		status, msg = http.StatusConflict, review.ErrAlreadyReviewed.Error()
	case errors.Is(err, reservation.ErrLocationClosed):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, reservation.ErrInvalidTransition),
		errors.Is(err, reservation.ErrAlreadyTerminal):
		status, msg = http.StatusConflict, transitionMessage(err)

	// validation
	case errors.Is(err, reservation.ErrInvalidWindow),
		errors.Is(err, reservation.ErrWindowInPast),
		errors.Is(err, reservation.ErrDurationTooLong),
		errors.Is(err, reservation.ErrAmountMismatch),
		errors.Is(err, reservation.ErrInvalidExtension),
		errors.Is(err, query.ErrInvalidCoordinates),
		errors.Is(err, query.ErrInvalidFilter),
		errors.Is(err, review.ErrInvalidRating),
		errors.Is(err, review.ErrCommentTooLong):
		status, msg = http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, payment.ErrInvalidSignature):
		status, msg = http.StatusBadRequest, "invalid signature"

	// dependencies
	case errors.Is(err, reservation.ErrPaymentUnavailable):
		status, msg = http.StatusBadGateway, "payment provider unavailable"
	case errors.Is(err, repository.ErrTransient):
		c.Header("Retry-After", "1")
		status, msg = http.StatusServiceUnavailable, "temporarily unavailable, retry"
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.JSON(status, ErrorResponse{Error: msg})
}

func transitionMessage(err error) string {
	var te reservation.TransitionError
	if errors.As(err, &te) {
		return te.Error()
	}
	if errors.Is(err, reservation.ErrAlreadyTerminal) {
		return reservation.ErrAlreadyTerminal.Error()
	}
	return reservation.ErrInvalidTransition.Error()
}

// validationMessage returns the innermost sentinel text, without the
// operation prefixes added on the way up.
func validationMessage(err error) string {
	for _, target := range []error{
		reservation.ErrInvalidWindow,
		reservation.ErrWindowInPast,
		reservation.ErrDurationTooLong,
		reservation.ErrAmountMismatch,
		reservation.ErrInvalidExtension,
		query.ErrInvalidCoordinates,
		query.ErrInvalidFilter,
		review.ErrInvalidRating,
		review.ErrCommentTooLong,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "invalid request"
}
