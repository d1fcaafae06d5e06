package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
)

// LedgerTx is the set of writes (and locked reads) that must happen inside
// one ledger transaction. Implementations lock the rows they return so the
// guard check and the write that follows cannot interleave with another
// writer.
type LedgerTx interface {
	CreateOrder(ctx context.Context, o *domain.Order, tickets []domain.Ticket) error

	OrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// UpdateOrderPayment moves an order that is not COMPLETED to status.
	// Returns ErrStateChanged if the order is already COMPLETED.
	UpdateOrderPayment(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, providerPaymentID, providerStatus string) error
	// SetAccessTokenIfAbsent stores token unless one exists and returns the
	// token that is stored after the call.
	SetAccessTokenIfAbsent(ctx context.Context, id uuid.UUID, token string) (string, error)
	// TransitionOrderTickets moves every ticket of the order whose status is
	// in from to status to and returns how many rows moved.
	TransitionOrderTickets(ctx context.Context, orderID uuid.UUID, from []domain.TicketStatus, to domain.TicketStatus) (int64, error)

	TicketForUpdate(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	// MarkTicketValidated moves a PAID ticket to VALIDATED. Returns
	// ErrStateChanged if the ticket is not PAID.
	MarkTicketValidated(ctx context.Context, id uuid.UUID, at time.Time) error
	// InsertValidation returns ErrConflict if the ticket already has a record.
	InsertValidation(ctx context.Context, rec domain.ValidationRecord) error
	ValidationByTicket(ctx context.Context, ticketID uuid.UUID) (*domain.ValidationRecord, error)
}

// LedgerStore is the persistent order/ticket ledger. Every read is a single
// statement; every multi-row write goes through RunTx.
type LedgerStore interface {
	// RunTx runs fn in one serializable transaction. fn may be invoked more
	// than once if the store retries a serialization failure, so it must not
	// perform external I/O.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByToken(ctx context.Context, token string) (*domain.Order, error)
	ListTickets(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error)
	// ResolveTicket finds a ticket by credential hash or human-readable code.
	ResolveTicket(ctx context.Context, code string) (*domain.Ticket, error)
	LastValidation(ctx context.Context, ticketID uuid.UUID) (*domain.ValidationRecord, error)
	// ListPendingOrders returns PENDING orders created in [createdAfter,
	// createdBefore], oldest first.
	ListPendingOrders(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]domain.Order, error)
}
