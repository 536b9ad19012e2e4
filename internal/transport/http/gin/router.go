package httpgin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/parkgo/internal/service"
)

// Options carries the optional collaborators of the router. Nil fields
// switch the matching feature off.
type Options struct {
	JWTSecret   []byte
	Idempotency Idempotency
	Limiter     Limiter
	Hub         *Hub
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	parkings := r.Group("/parkings")
	{
		parkings.GET("/nearby", handleNearby(svcs))
		parkings.GET("/search", handleSearch(svcs))
		parkings.GET("/:id", handleGetParking(svcs))
		parkings.GET("/:id/availability", handleAvailability(svcs))
		parkings.GET("/:id/availability/stream", handleAvailabilityStream(svcs, opts.Hub))
		parkings.GET("/:id/reviews", handleListReviews(svcs))
		parkings.POST("/:id/reviews", Auth(opts.JWTSecret), handleAddReview(svcs))
	}

	reservations := r.Group("/reservations", Auth(opts.JWTSecret))
	{
		reservations.POST("", RateLimit(opts.Limiter, logger), handleBook(svcs, opts.Idempotency))
		reservations.GET("", handleListReservations(svcs))
		reservations.GET("/:id", handleGetReservation(svcs))
		reservations.POST("/:id/cancel", handleCancelReservation(svcs))
		reservations.POST("/:id/extend", handleExtendReservation(svcs))
	}

	payments := r.Group("/payments", Auth(opts.JWTSecret))
	{
		payments.GET("", handleListPayments(svcs))
		payments.GET("/status/:intentId", handlePaymentStatus(svcs))
	}

	r.POST("/webhooks/stripe", handleStripeWebhook(svcs))

	return r
}
