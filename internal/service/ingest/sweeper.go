package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/metrics"
	"github.com/kirinyoku/tix-gate/internal/provider"
)

type PendingLister interface {
	ListPendingOrders(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]domain.Order, error)
}

type SweepConfig struct {
	// Grace skips orders younger than this, leaving them to the push source.
	Grace time.Duration
	// Ceiling skips orders older than this.
	Ceiling time.Duration
	Batch   int
	// Pause between provider queries.
	Pause  time.Duration
	DryRun bool
}

type SweepReport struct {
	Examined         int
	Completed        int
	Failed           int
	StillPending     int
	AlreadyProcessed int
	NotFound         int
	Errors           int
}

// Sweeper is the periodic source for orders nobody told us about.
type Sweeper struct {
	orders   PendingLister
	provider provider.Provider
	engine   Confirmer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      SweepConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSweeper(
	orders PendingLister,
	p provider.Provider,
	engine Confirmer,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg SweepConfig,
) *Sweeper {
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Minute
	}
	if cfg.Ceiling <= cfg.Grace {
		cfg.Ceiling = 24 * time.Hour
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}

	return &Sweeper{
		orders:   orders,
		provider: p,
		engine:   engine,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run examines one batch of PENDING orders, oldest first.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	const op = "service.ingest.Sweeper.Run"

	now := s.now()
	pending, err := s.orders.ListPendingOrders(ctx, now.Add(-s.cfg.Ceiling), now.Add(-s.cfg.Grace), s.cfg.Batch)
	if err != nil {
		return SweepReport{}, fmt.Errorf("%s:%w", op, err)
	}

	var rep SweepReport

	for i, o := range pending {
		if i > 0 && s.cfg.Pause > 0 {
			if err := s.sleep(ctx, s.cfg.Pause); err != nil {
				return rep, fmt.Errorf("%s:%w", op, err)
			}
		}

		rep.Examined++
		outcome := s.sweepOne(ctx, o)
		s.metrics.SweptOrder(outcome)

		switch outcome {
		case "completed":
			rep.Completed++
		case "failed":
			rep.Failed++
		case "pending":
			rep.StillPending++
		case "already_processed":
			rep.AlreadyProcessed++
		case "not_found":
			rep.NotFound++
		default:
			rep.Errors++
		}
	}

	return rep, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, o domain.Order) string {
	log := s.logger.With("order_id", o.ID, "source", domain.SourceSweep)

	var (
		pay *provider.Payment
		err error
	)
	if o.ProviderPaymentID != "" {
		pay, err = s.provider.Payment(ctx, o.ProviderPaymentID)
	} else {
		pay, err = s.provider.SearchByOrder(ctx, o.ID.String())
	}
	if err != nil {
		if errors.Is(err, provider.ErrPaymentNotFound) {
			return "not_found"
		}
		log.WarnContext(ctx, "sweep provider query failed", "err", err)
		return "error"
	}

	req, err := request(o.ID, pay, domain.SourceSweep)
	if err != nil {
		log.WarnContext(ctx, "sweep skipped payment", "err", err)
		return "error"
	}

	if s.cfg.DryRun {
		log.InfoContext(ctx, "sweep dry run", "status", pay.Status, "raw_status", pay.RawStatus)
		return dryRunOutcome(pay.Status)
	}

	res, err := s.engine.Confirm(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "sweep confirmation failed", "kind", domain.KindOf(err), "err", err)
		return "error"
	}

	if res.AlreadyProcessed {
		return "already_processed"
	}

	switch res.OrderStatus {
	case domain.PaymentCompleted:
		log.InfoContext(ctx, "sweep recovered payment", "payment_id", pay.ID)
		return "completed"
	case domain.PaymentFailed, domain.PaymentRefunded:
		return "failed"
	}

	return "pending"
}

func dryRunOutcome(s domain.CanonicalStatus) string {
	switch s {
	case domain.StatusApproved:
		return "completed"
	case domain.StatusRejected, domain.StatusRefunded:
		return "failed"
	}
	return "pending"
}

// Loop runs the sweep every interval until ctx is done.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			rep, err := s.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.ErrorContext(ctx, "sweep failed", "err", err)
				continue
			}
			if rep.Examined > 0 {
				s.logger.InfoContext(ctx, "sweep finished",
					"examined", rep.Examined,
					"completed", rep.Completed,
					"failed", rep.Failed,
					"pending", rep.StillPending,
					"not_found", rep.NotFound,
					"errors", rep.Errors,
				)
			}
		}
	}
}
