package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/parkgo/internal/service"
	"github.com/kirinyoku/parkgo/internal/service/review"
)

// @Summary  Review a parking
// @Description  One review per user and parking. Updates the parking's rating.
// @Security BearerAuth
// @Param    id   path  int            true  "Parking ID"
// @Param    req  body  ReviewRequest  true  "payload"
// @Success  201  {object}  domain.Review
// @Failure  400  {object}  ErrorResponse
// @Failure  401  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "already reviewed"
// @Router   /parkings/{id}/reviews [post]
func handleAddReview(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req ReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		rv, err := svcs.Reviews.Add(c.Request.Context(), review.AddRequest{
			UserID:     mustUserID(c),
			LocationID: id,
			Rating:     req.Rating,
			Comment:    req.Comment,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, rv)
	}
}

// @Summary  Reviews of a parking
// @Param    id     path   int  true   "Parking ID"
// @Param    page   query  int  false  "Page, from 1"
// @Param    limit  query  int  false  "Page size (default 10, max 50)"
// @Success  200  {object}  ReviewListResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /parkings/{id}/reviews [get]
func handleListReviews(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		p, err := svcs.Reviews.List(c.Request.Context(), id,
			parseIntDefault(c.Query("page"), 1),
			parseIntDefault(c.Query("limit"), review.DefaultPageSize),
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ReviewListResponse{
			Reviews: p.Reviews,
			Pagination: Pagination{
				Page:  p.Page,
				Limit: p.Limit,
				Total: p.Total,
				Pages: p.Pages(),
			},
		})
	}
}
