package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	// StorageDriver selects the backend: postgres, or memory for local runs.
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`

	Server   ServerConfig   `envconfig:"SERVER"`
	Postgres PostgresConfig `envconfig:"POSTGRES"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	AMQP     AMQPConfig     `envconfig:"AMQP"`
	Stripe   StripeConfig   `envconfig:"STRIPE"`
	Auth     AuthConfig     `envconfig:"AUTH"`
	Booking  BookingConfig  `envconfig:"BOOKING"`
	Cache    CacheConfig    `envconfig:"CACHE"`
	Notify   NotifyConfig   `envconfig:"NOTIFY"`
}

type ServerConfig struct {
	Host string `envconfig:"HOST" default:"localhost"`
	Port int    `envconfig:"PORT" default:"8080"`
}

type PostgresConfig struct {
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	Name     string `envconfig:"DB"`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5432"`
	SSLMode  string `envconfig:"SSLMODE" default:"disable"`
	Migrate  bool   `envconfig:"MIGRATE" default:"true"`

	MaxConns        int32         `envconfig:"MAX_CONNS" default:"20"`
	MinConns        int32         `envconfig:"MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
}

func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     p.Name,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// RedisConfig leaves Addr empty to run without Redis.
type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

// AMQPConfig leaves URL empty to send notifications in-process.
type AMQPConfig struct {
	URL      string `envconfig:"URL"`
	Exchange string `envconfig:"EXCHANGE" default:"parkgo.events"`
	Queue    string `envconfig:"QUEUE" default:"parkgo.notifications"`
	Prefetch int    `envconfig:"PREFETCH" default:"50"`
}

type StripeConfig struct {
	SecretKey        string        `envconfig:"SECRET_KEY"`
	WebhookSecret    string        `envconfig:"WEBHOOK_SECRET"`
	BreakerThreshold int64         `envconfig:"BREAKER_THRESHOLD" default:"5"`
	CallTimeout      time.Duration `envconfig:"CALL_TIMEOUT" default:"10s"`
}

type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

type BookingConfig struct {
	MaxDuration    time.Duration `envconfig:"MAX_DURATION" default:"168h"`
	GracePeriod    time.Duration `envconfig:"GRACE_PERIOD" default:"30m"`
	SweepSchedule  string        `envconfig:"SWEEP_SCHEDULE" default:"@every 1m"`
	SweepBatch     int           `envconfig:"SWEEP_BATCH" default:"200"`
	RelaySchedule  string        `envconfig:"RELAY_SCHEDULE" default:"@every 5s"`
	RelayBatch     int           `envconfig:"RELAY_BATCH" default:"100"`
	RelayAttempts  int           `envconfig:"RELAY_MAX_ATTEMPTS" default:"20"`
	RateLimit      int           `envconfig:"RATE_LIMIT" default:"10"`
	RateWindow     time.Duration `envconfig:"RATE_WINDOW" default:"1m"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

type CacheConfig struct {
	LocationTTL     time.Duration `envconfig:"LOCATION_TTL" default:"60s"`
	AvailabilityTTL time.Duration `envconfig:"AVAILABILITY_TTL" default:"5s"`
	SearchTTL       time.Duration `envconfig:"SEARCH_TTL" default:"10s"`
}

type NotifyConfig struct {
	SendGridAPIKey   string `envconfig:"SENDGRID_API_KEY"`
	SendGridHost     string `envconfig:"SENDGRID_HOST"`
	FromEmail        string `envconfig:"FROM_EMAIL" default:"no-reply@parkgo.app"`
	FromName         string `envconfig:"FROM_NAME" default:"ParkGo"`
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `envconfig:"TWILIO_FROM_NUMBER"`
}

// New reads the configuration from the environment, after loading a .env
// file when one exists.
func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.User == "" {
			return errors.New("missing POSTGRES_USER")
		}
		if c.Postgres.Password == "" {
			return errors.New("missing POSTGRES_PASSWORD")
		}
		if c.Postgres.Name == "" {
			return errors.New("missing POSTGRES_DB")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("missing AUTH_JWT_SECRET")
	}

	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required with STRIPE_SECRET_KEY")
	}

	if c.Booking.GracePeriod <= 0 {
		return errors.New("BOOKING_GRACE_PERIOD must be positive")
	}

	if c.Booking.MaxDuration <= 0 {
		return errors.New("BOOKING_MAX_DURATION must be positive")
	}

	return nil
}
