// Package memory is an in-process ledger store. A transaction works on a
// private copy of the committed state and swaps it in on success, and
// transactions are serialized, so it honours the same atomicity and
// isolation contract as the postgres store within one process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/repository"
)

type state struct {
	orders      map[uuid.UUID]domain.Order
	tickets     map[uuid.UUID]domain.Ticket
	validations map[uuid.UUID]domain.ValidationRecord // keyed by ticket id
}

func (s *state) clone() *state {
	cp := &state{
		orders:      make(map[uuid.UUID]domain.Order, len(s.orders)),
		tickets:     make(map[uuid.UUID]domain.Ticket, len(s.tickets)),
		validations: make(map[uuid.UUID]domain.ValidationRecord, len(s.validations)),
	}
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	for k, v := range s.tickets {
		cp.tickets[k] = v
	}
	for k, v := range s.validations {
		cp.validations[k] = v
	}
	return cp
}

type Store struct {
	mu    sync.Mutex
	state *state

	// Fault, when set, is consulted before every transactional write and can
	// abort the transaction by returning an error.
	Fault func(op string) error
}

var _ repository.LedgerStore = (*Store)(nil)

func New() *Store {
	return &Store{
		state: &state{
			orders:      map[uuid.UUID]domain.Order{},
			tickets:     map[uuid.UUID]domain.Ticket{},
			validations: map[uuid.UUID]domain.ValidationRecord{},
		},
	}
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	const op = "memory.Store.RunTx"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work, fault: s.Fault}); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.state = work

	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("memory.Store.GetOrder:%w", repository.ErrNotFound)
	}
	return &o, nil
}

func (s *Store) GetOrderByToken(_ context.Context, token string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.state.orders {
		if o.AccessToken != "" && o.AccessToken == token {
			return &o, nil
		}
	}
	return nil, fmt.Errorf("memory.Store.GetOrderByToken:%w", repository.ErrNotFound)
}

func (s *Store) ListTickets(_ context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Ticket
	for _, t := range s.state.tickets {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	return out, nil
}

func (s *Store) ResolveTicket(_ context.Context, code string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	upper := strings.ToUpper(code)
	for _, t := range s.state.tickets {
		if t.CredentialHash == code || t.Code == upper {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("memory.Store.ResolveTicket:%w", repository.ErrNotFound)
}

func (s *Store) LastValidation(_ context.Context, ticketID uuid.UUID) (*domain.ValidationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.validations[ticketID]
	if !ok {
		return nil, fmt.Errorf("memory.Store.LastValidation:%w", repository.ErrNotFound)
	}
	return &rec, nil
}

func (s *Store) ListPendingOrders(_ context.Context, createdAfter, createdBefore time.Time, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.state.orders {
		if o.PaymentStatus != domain.PaymentPending {
			continue
		}
		if o.CreatedAt.Before(createdAfter) || o.CreatedAt.After(createdBefore) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// ValidationCount returns how many validation records exist for a ticket.
func (s *Store) ValidationCount(ticketID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.validations[ticketID]; ok {
		return 1
	}
	return 0
}
