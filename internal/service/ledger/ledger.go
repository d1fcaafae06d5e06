// Package ledger owns every write to order and ticket state outside of
// ticket admission. Each write is one ledger transaction that re-checks the
// persisted state before changing it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/metrics"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"github.com/kirinyoku/tix-gate/internal/service/credential"
	"github.com/kirinyoku/tix-gate/internal/service/notify"
	"github.com/kirinyoku/tix-gate/internal/uow"
	"github.com/shopspring/decimal"
)

type Config struct {
	// PublicBaseURL prefixes retrieval links sent to buyers.
	PublicBaseURL string
	NotifyTimeout time.Duration
	MaxQuantity   int
}

type Ledger struct {
	store    repository.LedgerStore
	uow      *uow.UoW
	issuer   *credential.Issuer
	notifier notify.Dispatcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config

	now func() time.Time
}

func New(
	store repository.LedgerStore,
	issuer *credential.Issuer,
	notifier notify.Dispatcher,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Ledger {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = 20
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	return &Ledger{
		store:    store,
		uow:      uow.NewUoW(store),
		issuer:   issuer,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock replaces the ledger's time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

type NewOrder struct {
	BuyerName  string
	BuyerEmail string
	BuyerPhone string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// CreateOrder stores a PENDING order together with its PENDING_PAYMENT
// tickets.
//
// Returns:
//   - error: domain.ErrInvalid if the request fails validation.
func (l *Ledger) CreateOrder(ctx context.Context, in NewOrder) (*domain.OrderWithTickets, error) {
	const op = "service.ledger.CreateOrder"

	if err := l.validateNewOrder(in); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := l.now().UTC()
	o := domain.Order{
		ID:            uuid.New(),
		BuyerName:     strings.TrimSpace(in.BuyerName),
		BuyerEmail:    strings.ToLower(strings.TrimSpace(in.BuyerEmail)),
		BuyerPhone:    strings.TrimSpace(in.BuyerPhone),
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		TotalPrice:    in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))),
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tickets := make([]domain.Ticket, 0, in.Quantity)
	for range in.Quantity {
		cred, err := credential.NewCredential()
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		code, err := credential.NewTicketCode()
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		tickets = append(tickets, domain.Ticket{
			ID:             uuid.New(),
			OrderID:        o.ID,
			Code:           code,
			CredentialHash: cred,
			Status:         domain.TicketPendingPayment,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	err := l.store.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.CreateOrder(ctx, &o, tickets)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	l.logger.InfoContext(ctx, "order created",
		"order_id", o.ID,
		"quantity", o.Quantity,
		"total", o.TotalPrice.StringFixed(2),
	)

	return &domain.OrderWithTickets{Order: o, Tickets: tickets}, nil
}

func (l *Ledger) validateNewOrder(in NewOrder) error {
	if strings.TrimSpace(in.BuyerName) == "" {
		return fmt.Errorf("%w: buyer name is required", domain.ErrInvalid)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.BuyerEmail)); err != nil {
		return fmt.Errorf("%w: buyer email is invalid", domain.ErrInvalid)
	}
	if in.Quantity < 1 || in.Quantity > l.cfg.MaxQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalid, l.cfg.MaxQuantity)
	}
	if !in.UnitPrice.IsPositive() {
		return fmt.Errorf("%w: unit price must be positive", domain.ErrInvalid)
	}
	return nil
}

// GetOrder returns the order with its tickets.
func (l *Ledger) GetOrder(ctx context.Context, id uuid.UUID) (*domain.OrderWithTickets, error) {
	const op = "service.ledger.GetOrder"

	o, err := l.store.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, mapStoreErr(err))
	}

	tickets, err := l.store.ListTickets(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &domain.OrderWithTickets{Order: *o, Tickets: tickets}, nil
}

// Commit describes what a commit did.
type Commit struct {
	// Applied is true only for the caller whose transaction changed the order.
	Applied          bool
	AlreadyProcessed bool
	Status           domain.PaymentStatus
	Token            string
	TicketsMoved     int64
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, repository.ErrStateChanged):
		return &domain.ConflictError{Reason: domain.ConflictAlreadyProcessed}
	}
	return err
}
