package service

import (
	"log/slog"

	"github.com/kirinyoku/parkgo/internal/repository"
	redisrepo "github.com/kirinyoku/parkgo/internal/repository/redis"
	"github.com/kirinyoku/parkgo/internal/service/inventory"
	"github.com/kirinyoku/parkgo/internal/service/payment"
	"github.com/kirinyoku/parkgo/internal/service/query"
	"github.com/kirinyoku/parkgo/internal/service/reservation"
	"github.com/kirinyoku/parkgo/internal/service/review"
)

// Services groups what the HTTP layer talks to.
type Services struct {
	Inventory   *inventory.Service
	Reservation *reservation.Service
	Query       *query.Service
	Reviews     *review.Service
	Payments    *payment.History
	// Payment is nil when no provider is configured.
	Payment    *payment.Service
	Settlement *payment.Settlement
}

type Config struct {
	Reservation reservation.Config
	Query       query.Config
	Payment     payment.Config
	Review      review.Config
}

// NewServices wires the services together. cache, pub and provider may be
// nil; without a provider bookings stay pending until they expire.
func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	pub inventory.Publisher,
	provider payment.Provider,
	log *slog.Logger,
	cfg Config,
) *Services {
	ledger := inventory.New(store, cache, pub, log)
	reservations := reservation.New(store, ledger, log, cfg.Reservation)

	svcs := &Services{
		Inventory:   ledger,
		Reservation: reservations,
		Query:       query.New(store, cache, cfg.Query),
		Reviews:     review.New(store, cache, log, cfg.Review),
		Payments:    payment.NewHistory(store),
	}

	if provider != nil {
		svcs.Payment = payment.New(store, reservations, provider, log, cfg.Payment)
		svcs.Settlement = payment.NewSettlement(store, provider, log, cfg.Payment.Now)
		reservations.SetIntentOpener(svcs.Payment)
	}

	return svcs
}
