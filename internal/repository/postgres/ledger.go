package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/repository"
)

// ledgerTx binds the repositories to one open transaction.
type ledgerTx struct {
	orders      *OrderRepo
	tickets     *TicketRepo
	validations *ValidationRepo
}

func newLedgerTx(s *Store, tx DB) *ledgerTx {
	return &ledgerTx{
		orders:      s.Orders().With(tx),
		tickets:     s.Tickets().With(tx),
		validations: s.Validations().With(tx),
	}
}

func (t *ledgerTx) CreateOrder(ctx context.Context, o *domain.Order, tickets []domain.Ticket) error {
	const op = "postgresrepo.ledgerTx.CreateOrder"

	if err := t.orders.Create(ctx, o); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := t.tickets.BatchCreate(ctx, tickets); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (t *ledgerTx) OrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return t.orders.GetForUpdate(ctx, id)
}

func (t *ledgerTx) UpdateOrderPayment(
	ctx context.Context,
	id uuid.UUID,
	status domain.PaymentStatus,
	providerPaymentID, providerStatus string,
) error {
	return t.orders.UpdatePayment(ctx, id, status, providerPaymentID, providerStatus)
}

func (t *ledgerTx) SetAccessTokenIfAbsent(ctx context.Context, id uuid.UUID, token string) (string, error) {
	return t.orders.SetAccessTokenIfAbsent(ctx, id, token)
}

func (t *ledgerTx) TransitionOrderTickets(
	ctx context.Context,
	orderID uuid.UUID,
	from []domain.TicketStatus,
	to domain.TicketStatus,
) (int64, error) {
	return t.tickets.TransitionByOrder(ctx, orderID, from, to)
}

func (t *ledgerTx) TicketForUpdate(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	return t.tickets.GetForUpdate(ctx, id)
}

func (t *ledgerTx) MarkTicketValidated(ctx context.Context, id uuid.UUID, at time.Time) error {
	return t.tickets.MarkValidated(ctx, id, at)
}

func (t *ledgerTx) InsertValidation(ctx context.Context, rec domain.ValidationRecord) error {
	return t.validations.Insert(ctx, rec)
}

func (t *ledgerTx) ValidationByTicket(ctx context.Context, ticketID uuid.UUID) (*domain.ValidationRecord, error) {
	return t.validations.ByTicket(ctx, ticketID)
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.Orders().Get(ctx, id)
}

func (s *Store) GetOrderByToken(ctx context.Context, token string) (*domain.Order, error) {
	return s.Orders().GetByToken(ctx, token)
}

func (s *Store) ListTickets(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	return s.Tickets().ListByOrder(ctx, orderID)
}

func (s *Store) ResolveTicket(ctx context.Context, code string) (*domain.Ticket, error) {
	return s.Tickets().Resolve(ctx, code)
}

func (s *Store) LastValidation(ctx context.Context, ticketID uuid.UUID) (*domain.ValidationRecord, error) {
	return s.Validations().ByTicket(ctx, ticketID)
}

func (s *Store) ListPendingOrders(
	ctx context.Context,
	createdAfter, createdBefore time.Time,
	limit int,
) ([]domain.Order, error) {
	return s.Orders().ListPending(ctx, createdAfter, createdBefore, limit)
}

var _ repository.LedgerTx = (*ledgerTx)(nil)
