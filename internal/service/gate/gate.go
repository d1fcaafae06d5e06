// Package gate admits tickets at the venue entrance. A ticket is admitted at
// most once no matter how many gate instances scan it concurrently.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/metrics"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"github.com/kirinyoku/tix-gate/internal/service/credential"
	"github.com/kirinyoku/tix-gate/internal/uow"
)

const maxCodeLen = 128

type Request struct {
	Code       string
	OperatorID string
	IP         string
	UserAgent  string
}

// Admission is a successful validation.
type Admission struct {
	TicketID    uuid.UUID
	OrderID     uuid.UUID
	Code        string
	BuyerName   string
	OperatorID  string
	ValidatedAt time.Time
}

// ArtifactInvalidator drops cached ticket artifacts for a retrieval token.
type ArtifactInvalidator interface {
	Invalidate(ctx context.Context, token string) error
}

type Service struct {
	store     repository.LedgerStore
	uow       *uow.UoW
	artifacts ArtifactInvalidator // optional
	logger    *slog.Logger
	metrics   *metrics.Metrics

	now func() time.Time
}

func New(
	store repository.LedgerStore,
	artifacts ArtifactInvalidator,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		store:     store,
		uow:       uow.NewUoW(store),
		artifacts: artifacts,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Validate admits the ticket identified by req.Code.
//
// Returns:
//   - error: domain.ErrUnauthenticated if no operator is attached (checked first).
//   - error: domain.ErrInvalid if the code is empty or oversized.
//   - error: domain.ErrNotFound if no ticket matches.
//   - error: *domain.ConflictError with reason already_used (carrying the
//     first validator and time), payment_pending or cancelled.
func (s *Service) Validate(ctx context.Context, req Request) (*Admission, error) {
	const op = "service.gate.Validate"

	adm, err := s.validate(ctx, req)
	s.metrics.Validation(validationOutcome(err))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.InfoContext(ctx, "ticket admitted",
		"ticket_id", adm.TicketID,
		"order_id", adm.OrderID,
		"operator_id", adm.OperatorID,
	)

	return adm, nil
}

func (s *Service) validate(ctx context.Context, req Request) (*Admission, error) {
	if req.OperatorID == "" {
		return nil, domain.ErrUnauthenticated
	}

	code := credential.NormalizeCode(req.Code)
	if code == "" || len(code) > maxCodeLen {
		return nil, fmt.Errorf("%w: code must be 1..%d characters", domain.ErrInvalid, maxCodeLen)
	}

	t, err := s.store.ResolveTicket(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	switch t.Status {
	case domain.TicketValidated:
		return nil, s.alreadyUsed(ctx, t)
	case domain.TicketCancelled:
		return nil, &domain.ConflictError{Reason: domain.ConflictCancelled}
	}

	o, err := s.store.GetOrder(ctx, t.OrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != domain.PaymentCompleted {
		return nil, &domain.ConflictError{Reason: domain.ConflictPaymentPending}
	}

	var adm *Admission

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.LedgerTx, after func(uow.AfterCommit)) error {
		adm = nil

		cur, err := tx.TicketForUpdate(ctx, t.ID)
		if err != nil {
			return err
		}

		switch cur.Status {
		case domain.TicketValidated:
			// a concurrent scan won between the first read and the lock
			rec, err := tx.ValidationByTicket(ctx, cur.ID)
			if err != nil {
				return &domain.ConflictError{Reason: domain.ConflictAlreadyUsed}
			}
			return usedBy(rec)
		case domain.TicketCancelled:
			return &domain.ConflictError{Reason: domain.ConflictCancelled}
		case domain.TicketPaid:
		default:
			return &domain.ConflictError{Reason: domain.ConflictPaymentPending}
		}

		at := s.now().UTC()

		if err := tx.MarkTicketValidated(ctx, cur.ID, at); err != nil {
			if errors.Is(err, repository.ErrStateChanged) {
				return &domain.ConflictError{Reason: domain.ConflictAlreadyUsed}
			}
			return err
		}

		rec := domain.ValidationRecord{
			ID:          uuid.New(),
			TicketID:    cur.ID,
			OperatorID:  req.OperatorID,
			ValidatedAt: at,
			IP:          req.IP,
			UserAgent:   req.UserAgent,
		}
		if err := tx.InsertValidation(ctx, rec); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return &domain.ConflictError{Reason: domain.ConflictAlreadyUsed}
			}
			return err
		}

		adm = &Admission{
			TicketID:    cur.ID,
			OrderID:     cur.OrderID,
			Code:        cur.Code,
			BuyerName:   o.BuyerName,
			OperatorID:  req.OperatorID,
			ValidatedAt: at,
		}

		if s.artifacts != nil && o.AccessToken != "" {
			token := o.AccessToken
			after(func(ctx context.Context) {
				if err := s.artifacts.Invalidate(ctx, token); err != nil {
					s.logger.WarnContext(ctx, "artifact cache invalidation failed",
						"order_id", o.ID, "err", err)
				}
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return adm, nil
}

func (s *Service) alreadyUsed(ctx context.Context, t *domain.Ticket) error {
	rec, err := s.store.LastValidation(ctx, t.ID)
	if err != nil {
		ce := &domain.ConflictError{Reason: domain.ConflictAlreadyUsed}
		if t.ValidatedAt != nil {
			ce.ValidatedAt = *t.ValidatedAt
		}
		return ce
	}
	return usedBy(rec)
}

func usedBy(rec *domain.ValidationRecord) error {
	return &domain.ConflictError{
		Reason:      domain.ConflictAlreadyUsed,
		ValidatedBy: rec.OperatorID,
		ValidatedAt: rec.ValidatedAt,
	}
}

func validationOutcome(err error) string {
	if err == nil {
		return "admitted"
	}
	if ce, ok := domain.AsConflict(err); ok {
		return string(ce.Reason)
	}
	return string(domain.KindOf(err))
}
