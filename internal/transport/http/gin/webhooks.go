package httpgin

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/parkgo/internal/service"
)

const maxWebhookBody = 64 << 10

// @Summary  Stripe webhook
// @Description  Verifies the Stripe-Signature header and applies the event.
// @Description  Redeliveries are acknowledged without effect.
// @Param    Stripe-Signature  header  string  true  "Stripe signature"
// @Success  200  {object}  WebhookResponse
// @Failure  400  {object}  ErrorResponse  "bad signature or payload"
// @Failure  503  {object}  ErrorResponse
// @Router   /webhooks/stripe [post]
func handleStripeWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Payment == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "payments are not configured"})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
				return
			}
			badRequest(c, "unreadable body")
			return
		}

		outcome, err := svcs.Payment.Apply(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, WebhookResponse{Received: true, Outcome: outcome.String()})
	}
}
