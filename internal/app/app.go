package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-gate/internal/config"
	"github.com/kirinyoku/tix-gate/internal/metrics"
	"github.com/kirinyoku/tix-gate/internal/postgres"
	"github.com/kirinyoku/tix-gate/internal/provider"
	redisx "github.com/kirinyoku/tix-gate/internal/redis"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"github.com/kirinyoku/tix-gate/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tix-gate/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-gate/internal/repository/redis"
	"github.com/kirinyoku/tix-gate/internal/service"
	"github.com/kirinyoku/tix-gate/internal/service/ingest"
	"github.com/kirinyoku/tix-gate/internal/service/ledger"
	"github.com/kirinyoku/tix-gate/internal/service/notify"
	"github.com/kirinyoku/tix-gate/internal/service/reconcile"
	httpgin "github.com/kirinyoku/tix-gate/internal/transport/http/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   *service.Services
	httpServer *http.Server

	pool *pgxpool.Pool
	rdb  *redis.Client
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger}

	// Initialize dependencies
	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	rdb, err := redisx.New(ctx, redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	a.rdb = rdb

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	p, err := provider.New(provider.Config{
		Name:        cfg.Provider.Name,
		BaseURL:     cfg.Provider.BaseURL,
		AccessToken: cfg.Provider.AccessToken,
		Timeout:     cfg.Provider.Timeout,
	}, logger, m)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}

	// Initialize repositories
	var dedup reconcile.Deduper
	switch cfg.Dedup.Driver {
	case config.DriverRedis:
		dedup = redisrepo.NewDedupStore(rdb, cfg.Dedup.TTL)
	default:
		dedup = reconcile.NewMemoryDeduper(reconcile.MemoryDeduperConfig{
			TTL:        cfg.Dedup.TTL,
			MaxEntries: cfg.Dedup.MaxEntries,
			MaxAge:     cfg.Dedup.MaxAge,
		})
	}

	channel := cfg.Notify.Channel
	if channel == "" {
		channel = redisx.ChannelOrdersPaid()
	}
	notifier := notify.NewMulti(m,
		notify.NewLogDispatcher(logger),
		notify.NewRedisDispatcher(redisx.NewOrdersPubSub(rdb, channel)),
	)

	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisx.PrefixRateLimit("poll"), cfg.Poll.RateLimit, cfg.Poll.RateWindow)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Orders.IdempotencyTTL)

	// Initialize services
	a.services = service.NewServices(service.Deps{
		Store:    store,
		Provider: p,
		Dedup:    dedup,
		Limiter:  limiter,
		Cache:    redisrepo.NewCache(rdb),
		Notifier: notifier,
		Logger:   logger,
		Metrics:  m,
	}, service.Config{
		Ledger: ledger.Config{
			PublicBaseURL: cfg.Public.BaseURL,
			NotifyTimeout: cfg.Notify.Timeout,
		},
		Poll: ingest.PollConfig{
			Budget:   cfg.Poll.Budget,
			Attempts: cfg.Poll.Attempts,
			Interval: cfg.Poll.Interval,
		},
		Sweep: ingest.SweepConfig{
			Grace:   cfg.Sweep.Grace,
			Ceiling: cfg.Sweep.Ceiling,
			Batch:   cfg.Sweep.Batch,
			Pause:   cfg.Sweep.Pause,
			DryRun:  cfg.Sweep.DryRun,
		},
		ArtifactTTL: cfg.Artifacts.CacheTTL,
	})

	// Initialize Gin router
	router := httpgin.NewRouter(httpgin.RouterDeps{
		Services: a.services,
		Idem:     idempotencyStore,
		Auth:     httpgin.NewOperatorAuth(cfg.Gate.JWTSecret),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:   logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.LedgerStore, error) {
	if a.cfg.Store.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory ledger store, data is lost on exit")
		return memory.New(), nil
	}

	pool, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.Postgres.DSN()})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.pool = pool

	if err := postgres.Migrate(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	return postgresrepo.NewStore(pool), nil
}

func (a *App) Services() *service.Services {
	return a.services
}

// Close releases connections. Safe on a partially built App.
func (a *App) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.Close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Periodic sweep of pending orders
	if a.cfg.Sweep.Enabled {
		g.Go(func() error {
			a.logger.Info("sweep loop started", "interval", a.cfg.Sweep.Interval)
			return a.services.Sweeper.Loop(gCtx, a.cfg.Sweep.Interval)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
