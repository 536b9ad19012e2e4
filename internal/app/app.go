package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/parkgo/internal/broker"
	"github.com/kirinyoku/parkgo/internal/config"
	"github.com/kirinyoku/parkgo/internal/messaging"
	"github.com/kirinyoku/parkgo/internal/payments/stripe"
	"github.com/kirinyoku/parkgo/internal/postgres"
	"github.com/kirinyoku/parkgo/internal/redis"
	"github.com/kirinyoku/parkgo/internal/repository"
	"github.com/kirinyoku/parkgo/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/parkgo/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/parkgo/internal/repository/redis"
	"github.com/kirinyoku/parkgo/internal/service"
	"github.com/kirinyoku/parkgo/internal/service/inventory"
	"github.com/kirinyoku/parkgo/internal/service/notify"
	"github.com/kirinyoku/parkgo/internal/service/outbox"
	"github.com/kirinyoku/parkgo/internal/service/payment"
	"github.com/kirinyoku/parkgo/internal/service/query"
	"github.com/kirinyoku/parkgo/internal/service/reservation"
	"github.com/kirinyoku/parkgo/internal/service/sweeper"
	httpgin "github.com/kirinyoku/parkgo/internal/transport/http/gin"
	"github.com/kirinyoku/parkgo/internal/worker"
)

const (
	shutdownTimeout = 5 * time.Second
	sweeperLockTTL  = 50 * time.Second
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	scheduler  *worker.Scheduler
	consumer   *broker.Consumer
	rdb        *goredis.Client
	hub        *httpgin.Hub
	closers    []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger, hub: httpgin.NewHub()}

	// Storage
	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		cache    *redisrepo.Cache
		pub      inventory.Publisher = a.hub
		idem     httpgin.Idempotency
		limiter  httpgin.Limiter
		sweepMux sweeper.Locker
	)

	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		cache = redisrepo.New(rdb)
		pub = redisrepo.NewLocationsPubSub(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "bookings", cfg.Booking.RateLimit, cfg.Booking.RateWindow)
		sweepMux = redisrepo.NewLocker(rdb).Mutex(redisrepo.KeySweeperLock(), sweeperLockTTL)
	}

	// Payments
	var provider payment.Provider
	if cfg.Stripe.SecretKey != "" {
		provider = stripe.New(stripe.Config{
			SecretKey:        cfg.Stripe.SecretKey,
			WebhookSecret:    cfg.Stripe.WebhookSecret,
			BreakerThreshold: cfg.Stripe.BreakerThreshold,
			CallTimeout:      cfg.Stripe.CallTimeout,
		})
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, bookings will wait for payment until they expire")
	}

	services := service.NewServices(store, cache, pub, provider, logger, service.Config{
		Reservation: reservation.Config{MaxDuration: cfg.Booking.MaxDuration},
		Query: query.Config{
			LocationTTL:     cfg.Cache.LocationTTL,
			AvailabilityTTL: cfg.Cache.AvailabilityTTL,
			SearchTTL:       cfg.Cache.SearchTTL,
		},
	})

	// Notifications
	var (
		mailer notify.Mailer
		texter notify.Texter
	)
	if cfg.Notify.SendGridAPIKey != "" {
		mailer = messaging.NewSendGridMailer(messaging.SendGridConfig{
			APIKey:    cfg.Notify.SendGridAPIKey,
			FromEmail: cfg.Notify.FromEmail,
			FromName:  cfg.Notify.FromName,
			Host:      cfg.Notify.SendGridHost,
		})
	}
	if cfg.Notify.TwilioAccountSID != "" {
		texter = messaging.NewTwilioTexter(messaging.TwilioConfig{
			AccountSID: cfg.Notify.TwilioAccountSID,
			AuthToken:  cfg.Notify.TwilioAuthToken,
			FromNumber: cfg.Notify.TwilioFromNumber,
		})
	}
	dispatcher := notify.NewDispatcher(store, mailer, texter, logger)

	// Outbox sinks
	var sinks []outbox.Sink
	if services.Settlement != nil {
		sinks = append(sinks, services.Settlement)
	}

	if cfg.AMQP.URL != "" {
		bcfg := broker.Config{
			URL:      cfg.AMQP.URL,
			Exchange: cfg.AMQP.Exchange,
			Queue:    cfg.AMQP.Queue,
			Prefetch: cfg.AMQP.Prefetch,
		}
		publisher := broker.NewPublisher(bcfg, logger)
		a.closers = append(a.closers, func() { _ = publisher.Close() })

		sinks = append(sinks, publisher)
		a.consumer = broker.NewConsumer(bcfg, dispatcher.Handle, logger)
	} else {
		sinks = append(sinks, dispatcher)
	}

	// Background jobs
	relay := outbox.NewRelay(store, logger, outbox.Config{
		Batch:       cfg.Booking.RelayBatch,
		MaxAttempts: cfg.Booking.RelayAttempts,
	}, sinks...)
	sweep := sweeper.New(store, services.Reservation, sweepMux, logger, sweeper.Config{
		GracePeriod: cfg.Booking.GracePeriod,
		Batch:       cfg.Booking.SweepBatch,
	})

	a.scheduler = worker.NewScheduler(logger)
	if err := a.scheduler.Add("sweeper", cfg.Booking.SweepSchedule, sweep.Run); err != nil {
		a.close()
		return nil, err
	}
	if err := a.scheduler.Add("outbox", cfg.Booking.RelaySchedule, relay.Run); err != nil {
		a.close()
		return nil, err
	}

	// HTTP
	router := httpgin.NewRouter(services, httpgin.Options{
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		Idempotency: idem,
		Limiter:     limiter,
		Hub:         a.hub,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.StorageDriver == config.DriverMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}

	pool, err := postgres.New(ctx, postgres.Config{
		DSN:             a.cfg.Postgres.DSN(),
		MaxConns:        a.cfg.Postgres.MaxConns,
		MinConns:        a.cfg.Postgres.MinConns,
		MaxConnLifetime: a.cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if a.cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
	}

	return postgresrepo.NewStore(pool), nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Sweeper and outbox relay
	g.Go(func() error {
		return a.scheduler.Run(gCtx)
	})

	// Notification consumer
	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gCtx)
		})
	}

	// Availability changes from other instances
	if a.rdb != nil {
		g.Go(func() error {
			err := redisrepo.NewLocationsPubSub(a.rdb).Subscribe(gCtx, func(_ context.Context, c redisrepo.LocationChange) {
				a.hub.Broadcast(c)
			})
			if err != nil && gCtx.Err() == nil {
				return fmt.Errorf("availability subscription: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
