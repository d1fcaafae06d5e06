package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(created time.Time, qty int) (*domain.Order, []domain.Ticket) {
	o := &domain.Order{
		ID:            uuid.New(),
		BuyerName:     "Ana",
		BuyerEmail:    "ana@example.com",
		Quantity:      qty,
		UnitPrice:     decimal.NewFromInt(10),
		TotalPrice:    decimal.NewFromInt(int64(10 * qty)),
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     created,
	}

	tickets := make([]domain.Ticket, qty)
	for i := range tickets {
		id := uuid.New()
		tickets[i] = domain.Ticket{
			ID:             id,
			OrderID:        o.ID,
			Code:           strings.ToUpper("C" + id.String()[:9]),
			CredentialHash: "h-" + id.String(),
			Status:         domain.TicketPendingPayment,
			CreatedAt:      created,
		}
	}

	return o, tickets
}

func seed(t *testing.T, s *Store, created time.Time, qty int) (*domain.Order, []domain.Ticket) {
	t.Helper()

	o, tickets := newOrder(created, qty)
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.CreateOrder(ctx, o, tickets)
	})
	require.NoError(t, err)

	return o, tickets
}

func TestRunTxRollsBackOnError(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	o, tickets := newOrder(time.Now(), 2)

	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		require.NoError(t, tx.CreateOrder(ctx, o, tickets))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := s.ListTickets(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := s.RunTx(ctx, func(context.Context, repository.LedgerTx) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestFaultAbortsTransaction(t *testing.T) {
	s := New()
	o, _ := seed(t, s, time.Now(), 1)

	s.Fault = func(op string) error {
		if op == "TransitionOrderTickets" {
			return errors.New("disk full")
		}
		return nil
	}

	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.UpdateOrderPayment(ctx, o.ID, domain.PaymentCompleted, "p", "approved"); err != nil {
			return err
		}
		_, err := tx.TransitionOrderTickets(ctx, o.ID, []domain.TicketStatus{domain.TicketPendingPayment}, domain.TicketPaid)
		return err
	})
	require.Error(t, err)

	got, err := s.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)
}

func TestCreateOrderRejectsDuplicateCodes(t *testing.T) {
	s := New()
	_, tickets := seed(t, s, time.Now(), 1)

	o2, t2 := newOrder(time.Now(), 1)
	t2[0].Code = tickets[0].Code

	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.CreateOrder(ctx, o2, t2)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestUpdateOrderPaymentNeverLeavesCompleted(t *testing.T) {
	s := New()
	o, _ := seed(t, s, time.Now(), 1)
	ctx := context.Background()

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.UpdateOrderPayment(ctx, o.ID, domain.PaymentCompleted, "pay-1", "approved")
	})
	require.NoError(t, err)

	err = s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.UpdateOrderPayment(ctx, o.ID, domain.PaymentRefunded, "", "refunded")
	})
	assert.ErrorIs(t, err, repository.ErrStateChanged)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, "pay-1", got.ProviderPaymentID)
}

func TestSetAccessTokenIfAbsentKeepsFirst(t *testing.T) {
	s := New()
	o, _ := seed(t, s, time.Now(), 1)

	var first, second string
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		if first, err = tx.SetAccessTokenIfAbsent(ctx, o.ID, "token-a"); err != nil {
			return err
		}
		second, err = tx.SetAccessTokenIfAbsent(ctx, o.ID, "token-b")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "token-a", first)
	assert.Equal(t, "token-a", second)

	got, err := s.GetOrderByToken(context.Background(), "token-a")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestTransitionOrderTicketsRejectsIllegalMove(t *testing.T) {
	s := New()
	o, tickets := seed(t, s, time.Now(), 2)
	ctx := context.Background()

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		n, err := tx.TransitionOrderTickets(ctx, o.ID, []domain.TicketStatus{domain.TicketPendingPayment}, domain.TicketPaid)
		assert.EqualValues(t, 2, n)
		if err != nil {
			return err
		}
		return tx.MarkTicketValidated(ctx, tickets[0].ID, time.Now())
	})
	require.NoError(t, err)

	err = s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		_, err := tx.TransitionOrderTickets(ctx, o.ID,
			[]domain.TicketStatus{domain.TicketPaid, domain.TicketValidated}, domain.TicketCancelled)
		return err
	})
	assert.Error(t, err)

	got, err := s.ListTickets(ctx, o.ID)
	require.NoError(t, err)
	statuses := map[domain.TicketStatus]int{}
	for _, tk := range got {
		statuses[tk.Status]++
	}
	assert.Equal(t, map[domain.TicketStatus]int{domain.TicketPaid: 1, domain.TicketValidated: 1}, statuses)
}

func TestMarkValidatedAndInsertValidationAreSingleUse(t *testing.T) {
	s := New()
	o, tickets := seed(t, s, time.Now(), 1)
	ctx := context.Background()
	tk := tickets[0]

	// PENDING_PAYMENT cannot be validated
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.MarkTicketValidated(ctx, tk.ID, time.Now())
	})
	assert.ErrorIs(t, err, repository.ErrStateChanged)

	err = s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		_, err := tx.TransitionOrderTickets(ctx, o.ID, []domain.TicketStatus{domain.TicketPendingPayment}, domain.TicketPaid)
		return err
	})
	require.NoError(t, err)

	rec := domain.ValidationRecord{ID: uuid.New(), TicketID: tk.ID, OperatorID: "op-1", ValidatedAt: time.Now()}
	err = s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.MarkTicketValidated(ctx, tk.ID, rec.ValidatedAt); err != nil {
			return err
		}
		return tx.InsertValidation(ctx, rec)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.ValidationCount(tk.ID))

	err = s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.MarkTicketValidated(ctx, tk.ID, time.Now())
	})
	assert.ErrorIs(t, err, repository.ErrStateChanged)

	err = s.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		rec.ID = uuid.New()
		return tx.InsertValidation(ctx, rec)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	last, err := s.LastValidation(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "op-1", last.OperatorID)
}

func TestResolveTicketByCodeOrCredential(t *testing.T) {
	s := New()
	_, tickets := seed(t, s, time.Now(), 1)
	ctx := context.Background()

	byCode, err := s.ResolveTicket(ctx, tickets[0].Code)
	require.NoError(t, err)
	assert.Equal(t, tickets[0].ID, byCode.ID)

	typed, err := s.ResolveTicket(ctx, strings.ToLower(tickets[0].Code))
	require.NoError(t, err)
	assert.Equal(t, tickets[0].ID, typed.ID)

	byCred, err := s.ResolveTicket(ctx, tickets[0].CredentialHash)
	require.NoError(t, err)
	assert.Equal(t, tickets[0].ID, byCred.ID)

	_, err = s.ResolveTicket(ctx, "NOPE")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListPendingOrdersWindow(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tooOld, _ := seed(t, s, base.Add(-48*time.Hour), 1)
	oldest, _ := seed(t, s, base.Add(-3*time.Hour), 1)
	middle, _ := seed(t, s, base.Add(-2*time.Hour), 1)
	newest, _ := seed(t, s, base.Add(-time.Hour), 1)
	tooNew, _ := seed(t, s, base, 1)

	paid, _ := seed(t, s, base.Add(-90*time.Minute), 1)
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.UpdateOrderPayment(ctx, paid.ID, domain.PaymentCompleted, "p", "approved")
	})
	require.NoError(t, err)

	after := base.Add(-24 * time.Hour)
	before := base.Add(-30 * time.Minute)

	got, err := s.ListPendingOrders(context.Background(), after, before, 10)
	require.NoError(t, err)

	ids := make([]uuid.UUID, len(got))
	for i, o := range got {
		ids[i] = o.ID
	}
	assert.Equal(t, []uuid.UUID{oldest.ID, middle.ID, newest.ID}, ids)
	assert.NotContains(t, ids, tooOld.ID)
	assert.NotContains(t, ids, tooNew.ID)

	limited, err := s.ListPendingOrders(context.Background(), after, before, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, oldest.ID, limited[0].ID)
}
