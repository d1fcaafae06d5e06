// Package reconcile decides, for one order at a time, what a payment
// confirmation means. Push, poll and sweep all end up in Engine.Confirm.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/metrics"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"github.com/kirinyoku/tix-gate/internal/service/ledger"
)

// Result of a confirmation. Accepted is false only when an error is
// returned.
type Result struct {
	Accepted         bool
	AlreadyProcessed bool
	OrderStatus      domain.PaymentStatus
	Token            string
}

type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

type Committer interface {
	CommitApproval(ctx context.Context, a ledger.Approval) (ledger.Commit, error)
	CommitFailure(ctx context.Context, f ledger.Failure) (ledger.Commit, error)
}

type Engine struct {
	orders  OrderReader
	ledger  Committer
	dedup   Deduper // optional
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewEngine(
	orders OrderReader,
	l Committer,
	dedup Deduper,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		orders:  orders,
		ledger:  l,
		dedup:   dedup,
		logger:  logger,
		metrics: m,
	}
}

// Confirm applies one confirmation.
//
// Decision order:
//   - a dedup hit or a persisted COMPLETED order: already processed, no write;
//   - PENDING: accepted, no write;
//   - REJECTED / REFUNDED: order FAILED / REFUNDED, tickets CANCELLED;
//   - APPROVED: approval commit.
//
// The commits re-check the persisted status under lock, so the read here
// only saves a transaction.
//
// Returns:
//   - error: domain.ErrInvalid for a malformed request.
//   - error: domain.ErrNotFound if the order does not exist.
func (e *Engine) Confirm(ctx context.Context, req domain.ConfirmationRequest) (Result, error) {
	const op = "service.reconcile.Engine.Confirm"

	if err := validate(req); err != nil {
		e.metrics.Confirmation(string(req.Source), "invalid")
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}

	res, err := e.confirm(ctx, req)
	e.metrics.Confirmation(string(req.Source), outcome(res, err))
	if err != nil {
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

func (e *Engine) confirm(ctx context.Context, req domain.ConfirmationRequest) (Result, error) {
	orderID := req.OrderID.String()

	if token, ok := e.seen(ctx, req.ProviderPaymentID, orderID); ok {
		return Result{
			Accepted:         true,
			AlreadyProcessed: true,
			OrderStatus:      domain.PaymentCompleted,
			Token:            token,
		}, nil
	}

	o, err := e.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, domain.ErrNotFound
		}
		return Result{}, err
	}

	if o.PaymentStatus == domain.PaymentCompleted {
		if req.Status != domain.StatusApproved {
			e.logger.WarnContext(ctx, "ignoring status for completed order",
				"order_id", o.ID,
				"status", req.Status,
				"raw_status", req.RawStatus,
				"source", req.Source,
			)
		}
		e.mark(ctx, req.ProviderPaymentID, orderID, o.AccessToken)
		return Result{
			Accepted:         true,
			AlreadyProcessed: true,
			OrderStatus:      o.PaymentStatus,
			Token:            o.AccessToken,
		}, nil
	}

	var c ledger.Commit

	switch req.Status {
	case domain.StatusPending:
		return Result{Accepted: true, OrderStatus: o.PaymentStatus}, nil

	case domain.StatusRejected, domain.StatusRefunded:
		target := domain.PaymentFailed
		if req.Status == domain.StatusRefunded {
			target = domain.PaymentRefunded
		}
		c, err = e.ledger.CommitFailure(ctx, ledger.Failure{
			OrderID:           req.OrderID,
			ProviderPaymentID: req.ProviderPaymentID,
			RawStatus:         req.RawStatus,
			Target:            target,
			Source:            req.Source,
		})

	case domain.StatusApproved:
		c, err = e.ledger.CommitApproval(ctx, ledger.Approval{
			OrderID:           req.OrderID,
			ProviderPaymentID: req.ProviderPaymentID,
			RawStatus:         req.RawStatus,
			Source:            req.Source,
		})
	}
	if err != nil {
		return Result{}, err
	}

	if c.Status == domain.PaymentCompleted {
		e.mark(ctx, req.ProviderPaymentID, orderID, c.Token)
	}

	return Result{
		Accepted:         true,
		AlreadyProcessed: c.AlreadyProcessed,
		OrderStatus:      c.Status,
		Token:            c.Token,
	}, nil
}

func (e *Engine) seen(ctx context.Context, paymentID, orderID string) (string, bool) {
	if e.dedup == nil || paymentID == "" {
		return "", false
	}

	token, ok, err := e.dedup.Seen(ctx, paymentID, orderID)
	if err != nil {
		e.logger.WarnContext(ctx, "dedup lookup failed", "order_id", orderID, "err", err)
		return "", false
	}

	return token, ok
}

func (e *Engine) mark(ctx context.Context, paymentID, orderID, token string) {
	if e.dedup == nil || paymentID == "" || token == "" {
		return
	}

	if err := e.dedup.Mark(ctx, paymentID, orderID, token); err != nil {
		e.logger.WarnContext(ctx, "dedup mark failed", "order_id", orderID, "err", err)
	}
}

func validate(req domain.ConfirmationRequest) error {
	if req.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order id is required", domain.ErrInvalid)
	}
	if !req.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalid, req.Status)
	}
	switch req.Source {
	case domain.SourcePush, domain.SourcePoll, domain.SourceSweep:
	default:
		return fmt.Errorf("%w: unknown source %q", domain.ErrInvalid, req.Source)
	}
	return nil
}

func outcome(res Result, err error) string {
	switch {
	case err != nil:
		return string(domain.KindOf(err))
	case res.AlreadyProcessed:
		return "already_processed"
	default:
		return string(res.OrderStatus)
	}
}
