package service

import (
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-gate/internal/metrics"
	"github.com/kirinyoku/tix-gate/internal/provider"
	"github.com/kirinyoku/tix-gate/internal/repository"
	redisrepo "github.com/kirinyoku/tix-gate/internal/repository/redis"
	"github.com/kirinyoku/tix-gate/internal/service/credential"
	"github.com/kirinyoku/tix-gate/internal/service/gate"
	"github.com/kirinyoku/tix-gate/internal/service/ingest"
	"github.com/kirinyoku/tix-gate/internal/service/ledger"
	"github.com/kirinyoku/tix-gate/internal/service/notify"
	"github.com/kirinyoku/tix-gate/internal/service/reconcile"
)

type Services struct {
	Ledger    *ledger.Ledger
	Engine    *reconcile.Engine
	Issuer    *credential.Issuer
	Artifacts *credential.Retriever
	Gate      *gate.Service
	Webhook   *ingest.Webhook
	Poller    *ingest.Poller
	Sweeper   *ingest.Sweeper
}

type Config struct {
	Ledger      ledger.Config
	Poll        ingest.PollConfig
	Sweep       ingest.SweepConfig
	ArtifactTTL time.Duration
}

// Deps are the collaborators built by the caller. Dedup, Limiter and Cache
// may be nil.
type Deps struct {
	Store    repository.LedgerStore
	Provider provider.Provider
	Dedup    reconcile.Deduper
	Limiter  ingest.Limiter
	Cache    *redisrepo.Cache
	Notifier notify.Dispatcher
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func NewServices(d Deps, cfg Config) *Services {
	issuer := credential.NewIssuer(d.Store)
	artifacts := credential.NewRetriever(d.Store, d.Cache, cfg.ArtifactTTL)
	l := ledger.New(d.Store, issuer, d.Notifier, d.Logger, d.Metrics, cfg.Ledger)
	engine := reconcile.NewEngine(d.Store, l, d.Dedup, d.Logger, d.Metrics)

	return &Services{
		Ledger:    l,
		Engine:    engine,
		Issuer:    issuer,
		Artifacts: artifacts,
		Gate:      gate.New(d.Store, artifacts, d.Logger, d.Metrics),
		Webhook:   ingest.NewWebhook(engine, d.Logger, d.Provider),
		Poller:    ingest.NewPoller(d.Store, d.Provider, engine, d.Limiter, d.Logger, cfg.Poll),
		Sweeper:   ingest.NewSweeper(d.Store, d.Provider, engine, d.Logger, d.Metrics, cfg.Sweep),
	}
}
