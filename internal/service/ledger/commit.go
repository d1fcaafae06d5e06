package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"github.com/kirinyoku/tix-gate/internal/service/notify"
	"github.com/kirinyoku/tix-gate/internal/uow"
)

type Approval struct {
	OrderID           uuid.UUID
	ProviderPaymentID string
	RawStatus         string
	Source            domain.Source
}

// CommitApproval moves the order to COMPLETED, issues its token if it has
// none and moves its PENDING_PAYMENT tickets to PAID, all in one
// transaction. Any non-COMPLETED order, FAILED and REFUNDED included, takes
// this path. A COMPLETED order is left untouched and reported as already
// processed, with its stored token.
//
// Only the caller whose commit applied triggers the follow-ups (token
// signal and buyer notification).
func (l *Ledger) CommitApproval(ctx context.Context, a Approval) (Commit, error) {
	const op = "service.ledger.CommitApproval"

	started := time.Now()
	var res Commit

	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.LedgerTx, after func(uow.AfterCommit)) error {
		res = Commit{}

		o, err := tx.OrderForUpdate(ctx, a.OrderID)
		if err != nil {
			return mapStoreErr(err)
		}

		if o.PaymentStatus == domain.PaymentCompleted {
			res = Commit{AlreadyProcessed: true, Status: o.PaymentStatus, Token: o.AccessToken}
			return nil
		}

		prev := o.PaymentStatus

		if err := tx.UpdateOrderPayment(ctx, o.ID, domain.PaymentCompleted, a.ProviderPaymentID, a.RawStatus); err != nil {
			return mapStoreErr(err)
		}

		token, err := l.issuer.IssueTx(ctx, tx, o.ID)
		if err != nil {
			return err
		}

		n, err := tx.TransitionOrderTickets(ctx, o.ID,
			[]domain.TicketStatus{domain.TicketPendingPayment}, domain.TicketPaid)
		if err != nil {
			return err
		}

		res = Commit{Applied: true, Status: domain.PaymentCompleted, Token: token, TicketsMoved: n}

		paid := *o
		paid.PaymentStatus = domain.PaymentCompleted
		paid.AccessToken = token
		if a.ProviderPaymentID != "" {
			paid.ProviderPaymentID = a.ProviderPaymentID
		}
		after(func(ctx context.Context) {
			l.afterApproval(ctx, paid, prev, a.Source, n)
		})

		return nil
	})
	l.metrics.ObserveCommit("approval", started)
	if err != nil {
		return Commit{}, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

type Failure struct {
	OrderID           uuid.UUID
	ProviderPaymentID string
	RawStatus         string
	// Target is FAILED or REFUNDED.
	Target domain.PaymentStatus
	Source domain.Source
}

// CommitFailure moves a non-COMPLETED order to Target and cancels every
// ticket that is not terminal, in one transaction. No notification is sent.
// Only COMPLETED is absorbing: a REFUNDED order hit by a later REJECTED
// becomes FAILED. Repeating the current status is reported as already
// processed.
func (l *Ledger) CommitFailure(ctx context.Context, f Failure) (Commit, error) {
	const op = "service.ledger.CommitFailure"

	if f.Target != domain.PaymentFailed && f.Target != domain.PaymentRefunded {
		return Commit{}, fmt.Errorf("%s:%w: target %q", op, domain.ErrInvalid, f.Target)
	}

	started := time.Now()
	var res Commit

	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.LedgerTx, after func(uow.AfterCommit)) error {
		res = Commit{}

		o, err := tx.OrderForUpdate(ctx, f.OrderID)
		if err != nil {
			return mapStoreErr(err)
		}

		if o.PaymentStatus == domain.PaymentCompleted || o.PaymentStatus == f.Target {
			res = Commit{AlreadyProcessed: true, Status: o.PaymentStatus, Token: o.AccessToken}
			return nil
		}

		if err := tx.UpdateOrderPayment(ctx, o.ID, f.Target, f.ProviderPaymentID, f.RawStatus); err != nil {
			return mapStoreErr(err)
		}

		n, err := tx.TransitionOrderTickets(ctx, o.ID,
			[]domain.TicketStatus{domain.TicketPendingPayment, domain.TicketPaid}, domain.TicketCancelled)
		if err != nil {
			return err
		}

		res = Commit{Applied: true, Status: f.Target, TicketsMoved: n}

		after(func(ctx context.Context) {
			l.logger.InfoContext(ctx, "order closed without payment",
				"order_id", o.ID,
				"status", f.Target,
				"source", f.Source,
				"tickets_cancelled", n,
			)
		})

		return nil
	})
	l.metrics.ObserveCommit("failure", started)
	if err != nil {
		return Commit{}, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// afterApproval runs once per first-time approval, outside the transaction.
// Nothing here may undo the commit; failures are logged with enough data to
// replay by hand.
func (l *Ledger) afterApproval(ctx context.Context, o domain.Order, prev domain.PaymentStatus, src domain.Source, moved int64) {
	retrievalURL := l.cfg.PublicBaseURL + "/artifacts/" + o.AccessToken

	l.logger.InfoContext(ctx, "order completed",
		"order_id", o.ID,
		"source", src,
		"tickets_paid", moved,
	)

	if prev == domain.PaymentFailed || prev == domain.PaymentRefunded {
		// tickets were cancelled with the failure and stay cancelled
		l.logger.ErrorContext(ctx, "approval received for closed order, tickets need manual reissue",
			"order_id", o.ID,
			"previous_status", prev,
			"provider_payment_id", o.ProviderPaymentID,
		)
	}

	if l.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.NotifyTimeout)
	defer cancel()

	res, err := l.notifier.Send(nctx,
		notify.Recipient{Name: o.BuyerName, Email: o.BuyerEmail, Phone: o.BuyerPhone},
		notify.OrderSummary{OrderID: o.ID.String(), Quantity: o.Quantity, Total: o.TotalPrice.StringFixed(2)},
		retrievalURL,
	)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		l.logger.ErrorContext(ctx, "notification failed",
			"order_id", o.ID,
			"retrieval_url", retrievalURL,
			"err", err,
		)
	}
}
