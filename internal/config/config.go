package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Store     StoreConfig
	Dedup     DedupConfig
	Provider  ProviderConfig
	Poll      PollConfig
	Orders    OrdersConfig
	Artifacts ArtifactsConfig
	Sweep     SweepConfig
	Gate      GateConfig
	Public    PublicConfig
	Notify    NotifyConfig
	LogLevel  slog.Level
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	Driver string
}

type DedupConfig struct {
	Driver     string
	TTL        time.Duration
	MaxEntries int
	MaxAge     time.Duration
}

type ProviderConfig struct {
	Name        string
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

type PollConfig struct {
	Budget      time.Duration
	Attempts    int
	Interval    time.Duration
	RateLimit   int
	RateWindow  time.Duration
}

// OrdersConfig governs order intake.
type OrdersConfig struct {
	// IdempotencyTTL is how long a POST /orders response is replayable.
	IdempotencyTTL time.Duration
}

type ArtifactsConfig struct {
	CacheTTL time.Duration
}

type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	Grace    time.Duration
	Ceiling  time.Duration
	Batch    int
	Pause    time.Duration
	// DryRun is set by the sweep command only.
	DryRun bool
}

type GateConfig struct {
	JWTSecret string
}

type PublicConfig struct {
	BaseURL string
}

type NotifyConfig struct {
	Channel string
	Timeout time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	r := &reader{}

	cfg := &Config{
		Server: ServerConfig{
			Host: r.stringOr("SERVER_HOST", "localhost"),
			Port: r.intOr("SERVER_PORT", 8080),
		},
		Redis: RedisConfig{
			Addr:     r.stringOr("REDIS_ADDR", "localhost:6380"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       r.intOr("REDIS_DB", 0),
		},
		Store: StoreConfig{
			Driver: r.stringOr("STORE_DRIVER", DriverPostgres),
		},
		Dedup: DedupConfig{
			Driver:     r.stringOr("DEDUP_DRIVER", DriverRedis),
			TTL:        r.durationOr("DEDUP_TTL", 5*time.Minute),
			MaxEntries: r.intOr("DEDUP_MAX_ENTRIES", 500),
			MaxAge:     r.durationOr("DEDUP_MAX_AGE", time.Hour),
		},
		Provider: ProviderConfig{
			Name:        r.stringOr("PROVIDER_NAME", "mercadopago"),
			BaseURL:     os.Getenv("PROVIDER_BASE_URL"),
			AccessToken: os.Getenv("PROVIDER_ACCESS_TOKEN"),
			Timeout:     r.durationOr("PROVIDER_TIMEOUT", 10*time.Second),
		},
		Poll: PollConfig{
			Budget:      r.durationOr("POLL_BUDGET", 2*time.Minute),
			Attempts:    r.intOr("POLL_ATTEMPTS", 40),
			Interval:    r.durationOr("POLL_INTERVAL", 3*time.Second),
			RateLimit:   r.intOr("POLL_RATE_LIMIT", 10),
			RateWindow:  r.durationOr("POLL_RATE_WINDOW", time.Minute),
		},
		Orders: OrdersConfig{
			IdempotencyTTL: r.durationOr("IDEMPOTENCY_TTL", 2*time.Hour),
		},
		Artifacts: ArtifactsConfig{
			CacheTTL: r.durationOr("ARTIFACT_CACHE_TTL", 5*time.Minute),
		},
		Sweep: SweepConfig{
			Enabled:  r.boolOr("SWEEP_ENABLED", true),
			Interval: r.durationOr("SWEEP_INTERVAL", 2*time.Minute),
			Grace:    r.durationOr("SWEEP_GRACE", 5*time.Minute),
			Ceiling:  r.durationOr("SWEEP_CEILING", 24*time.Hour),
			Batch:    r.intOr("SWEEP_BATCH", 10),
			Pause:    r.durationOr("SWEEP_PAUSE", 300*time.Millisecond),
		},
		Gate: GateConfig{
			JWTSecret: os.Getenv("GATE_JWT_SECRET"),
		},
		Public: PublicConfig{
			BaseURL: strings.TrimRight(r.stringOr("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		Notify: NotifyConfig{
			Channel: os.Getenv("NOTIFY_CHANNEL"),
			Timeout: r.durationOr("NOTIFY_TIMEOUT", 10*time.Second),
		},
	}

	if r.err != nil {
		return nil, fmt.Errorf("%s: %w", op, r.err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(r.stringOr("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%s: invalid LOG_LEVEL: %w", op, err)
	}

	switch cfg.Store.Driver {
	case DriverPostgres:
		pg, err := postgresFromEnv(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cfg.Postgres = pg
	case DriverMemory:
	default:
		return nil, fmt.Errorf("%s: invalid STORE_DRIVER %q", op, cfg.Store.Driver)
	}

	if cfg.Dedup.Driver != DriverRedis && cfg.Dedup.Driver != DriverMemory {
		return nil, fmt.Errorf("%s: invalid DEDUP_DRIVER %q", op, cfg.Dedup.Driver)
	}

	if cfg.Gate.JWTSecret == "" {
		return nil, fmt.Errorf("%s: missing GATE_JWT_SECRET", op)
	}

	return cfg, nil
}

func postgresFromEnv(r *reader) (PostgresConfig, error) {
	pg := PostgresConfig{
		Host:     r.stringOr("POSTGRES_HOST", "localhost"),
		Port:     r.intOr("POSTGRES_PORT", 5432),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		SSLMode:  r.stringOr("POSTGRES_SSLMODE", "disable"),
	}
	if r.err != nil {
		return pg, r.err
	}

	switch {
	case pg.User == "":
		return pg, fmt.Errorf("missing POSTGRES_USER")
	case pg.Password == "":
		return pg, fmt.Errorf("missing POSTGRES_PASSWORD")
	case pg.Name == "":
		return pg, fmt.Errorf("missing POSTGRES_DB")
	}

	return pg, nil
}

// reader keeps the first parse error so New can report it once.
type reader struct {
	err error
}

func (r *reader) stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r *reader) intOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) durationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) boolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
