package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/repository"
)

type tx struct {
	st    *state
	fault func(op string) error
}

func (t *tx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	if err := t.fault(op); err != nil {
		return fmt.Errorf("memory.tx.%s:%w", op, err)
	}
	return nil
}

func (t *tx) CreateOrder(_ context.Context, o *domain.Order, tickets []domain.Ticket) error {
	if err := t.check("CreateOrder"); err != nil {
		return err
	}

	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("memory.tx.CreateOrder:%w", repository.ErrConflict)
	}

	for _, tk := range tickets {
		for _, existing := range t.st.tickets {
			if existing.Code == tk.Code || existing.CredentialHash == tk.CredentialHash {
				return fmt.Errorf("memory.tx.CreateOrder:%w", repository.ErrConflict)
			}
		}
	}

	cp := *o
	cp.UpdatedAt = cp.CreatedAt
	t.st.orders[o.ID] = cp

	for _, tk := range tickets {
		tk.UpdatedAt = tk.CreatedAt
		t.st.tickets[tk.ID] = tk
	}

	return nil
}

func (t *tx) OrderForUpdate(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("memory.tx.OrderForUpdate:%w", repository.ErrNotFound)
	}
	return &o, nil
}

func (t *tx) UpdateOrderPayment(
	_ context.Context,
	id uuid.UUID,
	status domain.PaymentStatus,
	providerPaymentID, providerStatus string,
) error {
	if err := t.check("UpdateOrderPayment"); err != nil {
		return err
	}

	o, ok := t.st.orders[id]
	if !ok || o.PaymentStatus == domain.PaymentCompleted {
		return fmt.Errorf("memory.tx.UpdateOrderPayment:%w", repository.ErrStateChanged)
	}

	o.PaymentStatus = status
	if providerPaymentID != "" {
		o.ProviderPaymentID = providerPaymentID
	}
	o.ProviderStatus = providerStatus
	o.UpdatedAt = time.Now()
	t.st.orders[id] = o

	return nil
}

func (t *tx) SetAccessTokenIfAbsent(_ context.Context, id uuid.UUID, token string) (string, error) {
	if err := t.check("SetAccessTokenIfAbsent"); err != nil {
		return "", err
	}

	o, ok := t.st.orders[id]
	if !ok {
		return "", fmt.Errorf("memory.tx.SetAccessTokenIfAbsent:%w", repository.ErrNotFound)
	}

	if o.AccessToken == "" {
		o.AccessToken = token
		t.st.orders[id] = o
	}

	return o.AccessToken, nil
}

func (t *tx) TransitionOrderTickets(
	_ context.Context,
	orderID uuid.UUID,
	from []domain.TicketStatus,
	to domain.TicketStatus,
) (int64, error) {
	if err := t.check("TransitionOrderTickets"); err != nil {
		return 0, err
	}

	var n int64
	now := time.Now()
	for id, tk := range t.st.tickets {
		if tk.OrderID != orderID || !slices.Contains(from, tk.Status) {
			continue
		}
		if !tk.Status.CanTransition(to) {
			return 0, fmt.Errorf("memory.tx.TransitionOrderTickets: illegal %s -> %s", tk.Status, to)
		}
		tk.Status = to
		tk.UpdatedAt = now
		t.st.tickets[id] = tk
		n++
	}

	return n, nil
}

func (t *tx) TicketForUpdate(_ context.Context, id uuid.UUID) (*domain.Ticket, error) {
	tk, ok := t.st.tickets[id]
	if !ok {
		return nil, fmt.Errorf("memory.tx.TicketForUpdate:%w", repository.ErrNotFound)
	}
	return &tk, nil
}

func (t *tx) MarkTicketValidated(_ context.Context, id uuid.UUID, at time.Time) error {
	if err := t.check("MarkTicketValidated"); err != nil {
		return err
	}

	tk, ok := t.st.tickets[id]
	if !ok || tk.Status != domain.TicketPaid {
		return fmt.Errorf("memory.tx.MarkTicketValidated:%w", repository.ErrStateChanged)
	}

	tk.Status = domain.TicketValidated
	tk.ValidatedAt = &at
	tk.UpdatedAt = at
	t.st.tickets[id] = tk

	return nil
}

func (t *tx) InsertValidation(_ context.Context, rec domain.ValidationRecord) error {
	if err := t.check("InsertValidation"); err != nil {
		return err
	}

	if _, ok := t.st.validations[rec.TicketID]; ok {
		return fmt.Errorf("memory.tx.InsertValidation:%w", repository.ErrConflict)
	}
	t.st.validations[rec.TicketID] = rec

	return nil
}

func (t *tx) ValidationByTicket(_ context.Context, ticketID uuid.UUID) (*domain.ValidationRecord, error) {
	rec, ok := t.st.validations[ticketID]
	if !ok {
		return nil, fmt.Errorf("memory.tx.ValidationByTicket:%w", repository.ErrNotFound)
	}
	return &rec, nil
}
