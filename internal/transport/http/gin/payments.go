package httpgin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/service"
)

// @Summary  List my payments
// @Security BearerAuth
// @Param    limit   query  int  false  "page size (default 20)"
// @Param    offset  query  int  false  "offset"
// @Success  200  {object}  PaymentListResponse
// @Failure  401  {object}  ErrorResponse
// @Router   /payments [get]
func handleListPayments(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		list, err := svcs.Payments.List(c.Request.Context(), mustUserID(c), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}

		if list == nil {
			list = []domain.Payment{}
		}

		c.JSON(http.StatusOK, PaymentListResponse{Payments: list, Limit: limit, Offset: offset})
	}
}

// @Summary  Payment status
// @Description  Status of one of my payment intents as last reported by the provider.
// @Security BearerAuth
// @Param    intentId  path  string  true  "Payment intent id"
// @Success  200  {object}  payment.IntentView
// @Failure  401  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /payments/status/{intentId} [get]
func handlePaymentStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("intentId"))
		if id == "" || len(id) > 255 {
			badRequest(c, "invalid intentId")
			return
		}

		view, err := svcs.Payments.Status(c.Request.Context(), mustUserID(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, view)
	}
}
