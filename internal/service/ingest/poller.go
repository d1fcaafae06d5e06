package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/provider"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"golang.org/x/sync/singleflight"
)

type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type PollConfig struct {
	// Budget bounds the whole of Await.
	Budget   time.Duration
	Attempts int
	Interval time.Duration
}

// PollResult is what the buyer's browser gets back.
type PollResult struct {
	OrderID       uuid.UUID
	PaymentStatus domain.PaymentStatus
	// ProviderStatus is the canonical status the provider reported on the
	// last attempt; empty if the provider was not asked.
	ProviderStatus domain.CanonicalStatus
	Token          string
	Attempts       int
	// StillPending is set when Await gave up without a final answer.
	StillPending bool
}

// Poller is the buyer-triggered source.
type Poller struct {
	orders   OrderReader
	provider provider.Provider
	engine   Confirmer
	limiter  Limiter // optional
	logger   *slog.Logger
	cfg      PollConfig

	sf    singleflight.Group
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPoller(
	orders OrderReader,
	p provider.Provider,
	engine Confirmer,
	limiter Limiter,
	logger *slog.Logger,
	cfg PollConfig,
) *Poller {
	if cfg.Budget <= 0 {
		cfg.Budget = 2 * time.Minute
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 40
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}

	return &Poller{
		orders:   orders,
		provider: p,
		engine:   engine,
		limiter:  limiter,
		logger:   logger,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Check asks the provider once and confirms what it says.
//
// Returns:
//   - error: *domain.RateLimitedError if the order was polled too often.
//   - error: domain.ErrTransient if the provider is unreachable or does not
//     know the payment yet.
//   - error: domain.ErrInvalid if the payment belongs to another order.
func (p *Poller) Check(ctx context.Context, orderID uuid.UUID, paymentID string) (PollResult, error) {
	const op = "service.ingest.Poller.Check"

	if err := p.allow(ctx, orderID); err != nil {
		return PollResult{}, fmt.Errorf("%s:%w", op, err)
	}

	res, err := p.checkShared(ctx, orderID, paymentID)
	if err != nil {
		return PollResult{}, fmt.Errorf("%s:%w", op, err)
	}
	res.Attempts = 1

	return res, nil
}

// Await polls until the order leaves PENDING, the attempt cap is hit or the
// budget runs out. Giving up is not an error: the result has StillPending set.
func (p *Poller) Await(ctx context.Context, orderID uuid.UUID, paymentID string) (PollResult, error) {
	const op = "service.ingest.Poller.Await"

	if err := p.allow(ctx, orderID); err != nil {
		return PollResult{}, fmt.Errorf("%s:%w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Budget)
	defer cancel()

	last := PollResult{OrderID: orderID, PaymentStatus: domain.PaymentPending}

	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		res, err := p.checkShared(ctx, orderID, paymentID)
		switch {
		case err == nil:
			last = res
			if res.PaymentStatus != domain.PaymentPending {
				last.Attempts = attempt
				return last, nil
			}
		case errors.Is(err, domain.ErrTransient):
			p.logger.DebugContext(ctx, "poll attempt failed", "order_id", orderID, "attempt", attempt, "err", err)
		default:
			return PollResult{}, fmt.Errorf("%s:%w", op, err)
		}

		last.Attempts = attempt

		if attempt == p.cfg.Attempts {
			break
		}
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			break
		}
	}

	last.StillPending = true

	p.logger.InfoContext(ctx, "poll gave up",
		"order_id", orderID,
		"attempts", last.Attempts,
	)

	return last, nil
}

func (p *Poller) allow(ctx context.Context, orderID uuid.UUID) error {
	if p.limiter == nil {
		return nil
	}

	ok, _, retry, err := p.limiter.Allow(ctx, orderID.String())
	if err != nil {
		// fail open
		p.logger.WarnContext(ctx, "poll rate limiter unavailable", "err", err)
		return nil
	}
	if !ok {
		return &domain.RateLimitedError{RetryAfter: retry}
	}

	return nil
}

// checkShared coalesces concurrent polls of the same order into one
// provider request.
func (p *Poller) checkShared(ctx context.Context, orderID uuid.UUID, paymentID string) (PollResult, error) {
	v, err, _ := p.sf.Do(orderID.String()+"|"+paymentID, func() (any, error) {
		return p.check(ctx, orderID, paymentID)
	})
	if err != nil {
		return PollResult{}, err
	}
	return v.(PollResult), nil
}

func (p *Poller) check(ctx context.Context, orderID uuid.UUID, paymentID string) (PollResult, error) {
	o, err := p.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return PollResult{}, domain.ErrNotFound
		}
		return PollResult{}, err
	}

	if o.PaymentStatus != domain.PaymentPending {
		return PollResult{
			OrderID:       orderID,
			PaymentStatus: o.PaymentStatus,
			Token:         tokenIfPaid(o),
		}, nil
	}

	if paymentID == "" {
		paymentID = o.ProviderPaymentID
	}

	var pay *provider.Payment
	if paymentID != "" {
		pay, err = p.provider.Payment(ctx, paymentID)
	} else {
		pay, err = p.provider.SearchByOrder(ctx, orderID.String())
	}
	if err != nil {
		return PollResult{}, err
	}

	req, err := request(orderID, pay, domain.SourcePoll)
	if err != nil {
		return PollResult{}, err
	}

	res, err := p.engine.Confirm(ctx, req)
	if err != nil {
		return PollResult{}, err
	}

	return PollResult{
		OrderID:        orderID,
		PaymentStatus:  res.OrderStatus,
		ProviderStatus: pay.Status,
		Token:          res.Token,
		StillPending:   res.OrderStatus == domain.PaymentPending,
	}, nil
}

func tokenIfPaid(o *domain.Order) string {
	if o.PaymentStatus == domain.PaymentCompleted {
		return o.AccessToken
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
