package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/provider/providertest"
	"github.com/kirinyoku/tix-gate/internal/repository/memory"
	"github.com/kirinyoku/tix-gate/internal/service/credential"
	"github.com/kirinyoku/tix-gate/internal/service/ledger"
	"github.com/kirinyoku/tix-gate/internal/service/notify"
	"github.com/kirinyoku/tix-gate/internal/service/reconcile"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) Send(context.Context, notify.Recipient, notify.OrderSummary, string) (notify.Results, error) {
	c.n.Add(1)
	return notify.Results{"test": nil}, nil
}

type fixture struct {
	logger   *slog.Logger
	store    *memory.Store
	ledger   *ledger.Ledger
	engine   *reconcile.Engine
	provider *providertest.Fake
	notifier *countingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	n := &countingNotifier{}
	l := ledger.New(store, credential.NewIssuer(store), n, logger, nil, ledger.Config{})

	f := &fixture{
		logger:   logger,
		store:    store,
		ledger:   l,
		engine:   reconcile.NewEngine(store, l, reconcile.NewMemoryDeduper(reconcile.MemoryDeduperConfig{}), logger, nil),
		provider: providertest.New("fake"),
		notifier: n,
		now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	l.SetClock(func() time.Time { return f.now })

	return f
}

func (f *fixture) order(t *testing.T, qty int) *domain.OrderWithTickets {
	t.Helper()

	o, err := f.ledger.CreateOrder(context.Background(), ledger.NewOrder{
		BuyerName:  "Eva",
		BuyerEmail: "eva@example.com",
		Quantity:   qty,
		UnitPrice:  decimal.NewFromInt(15),
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) orderStatus(t *testing.T, o *domain.OrderWithTickets) domain.PaymentStatus {
	t.Helper()

	got, err := f.store.GetOrder(context.Background(), o.Order.ID)
	require.NoError(t, err)
	return got.PaymentStatus
}

func (f *fixture) ticketStatuses(t *testing.T, o *domain.OrderWithTickets) map[domain.TicketStatus]int {
	t.Helper()

	tickets, err := f.store.ListTickets(context.Background(), o.Order.ID)
	require.NoError(t, err)

	out := map[domain.TicketStatus]int{}
	for _, tk := range tickets {
		out[tk.Status]++
	}
	return out
}
