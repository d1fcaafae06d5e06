package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) sweeper(cfg SweepConfig) (*Sweeper, *int) {
	s := NewSweeper(f.store, f.provider, f.engine, f.logger, nil, cfg)
	s.now = func() time.Time { return f.now }

	pauses := 0
	s.sleep = func(context.Context, time.Duration) error {
		pauses++
		return nil
	}
	return s, &pauses
}

func TestSweeper_RejectedOrderIsFailed(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, 2)
	f.provider.Set("pay-1", o.Order.ID.String(), domain.StatusRejected)

	f.now = f.now.Add(10 * time.Minute)

	s, _ := f.sweeper(SweepConfig{})
	rep, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Examined)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, domain.PaymentFailed, f.orderStatus(t, o))
	assert.Equal(t, map[domain.TicketStatus]int{domain.TicketCancelled: 2}, f.ticketStatuses(t, o))
	assert.Zero(t, f.notifier.n.Load())
}

func TestSweeper_RespectsAgeWindow(t *testing.T) {
	f := newFixture(t)

	ancient := f.order(t, 1)
	f.now = f.now.Add(2 * time.Hour)
	old := f.order(t, 1)
	f.now = f.now.Add(22*time.Hour + 30*time.Minute)
	fresh := f.order(t, 1)
	f.now = f.now.Add(2 * time.Minute)

	for _, o := range []*domain.OrderWithTickets{ancient, old, fresh} {
		f.provider.Set("pay-"+o.Order.ID.String(), o.Order.ID.String(), domain.StatusApproved)
	}

	s, _ := f.sweeper(SweepConfig{Grace: 5 * time.Minute, Ceiling: 24 * time.Hour})
	rep, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Examined)
	assert.Equal(t, domain.PaymentPending, f.orderStatus(t, ancient))
	assert.Equal(t, domain.PaymentCompleted, f.orderStatus(t, old))
	assert.Equal(t, domain.PaymentPending, f.orderStatus(t, fresh))
}

func TestSweeper_BatchOldestFirstWithPacing(t *testing.T) {
	f := newFixture(t)

	var orders []*domain.OrderWithTickets
	for range 4 {
		orders = append(orders, f.order(t, 1))
		f.now = f.now.Add(time.Minute)
	}
	f.now = f.now.Add(time.Hour)

	s, pauses := f.sweeper(SweepConfig{Batch: 3, Pause: 300 * time.Millisecond})
	rep, err := s.Run(context.Background())
	require.NoError(t, err)

	// nobody paid: the provider has no payment for any of them
	assert.Equal(t, 3, rep.Examined)
	assert.Equal(t, 3, rep.NotFound)
	assert.Equal(t, 2, *pauses)
	assert.Equal(t, 3, f.provider.Calls())

	f.provider.Set("pay-last", orders[3].Order.ID.String(), domain.StatusApproved)
	f.provider.Set("pay-first", orders[0].Order.ID.String(), domain.StatusApproved)

	rep, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Completed)
	assert.Equal(t, domain.PaymentCompleted, f.orderStatus(t, orders[0]))
	assert.Equal(t, domain.PaymentPending, f.orderStatus(t, orders[3]))
}

func TestSweeper_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, 1)
	f.provider.Set("pay-1", o.Order.ID.String(), domain.StatusApproved)
	f.now = f.now.Add(time.Hour)

	s, _ := f.sweeper(SweepConfig{DryRun: true})
	rep, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Completed)
	assert.Equal(t, domain.PaymentPending, f.orderStatus(t, o))
}

func TestSweeper_LoopStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s, _ := f.sweeper(SweepConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Loop(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestSweeper_ProviderOutageIsCounted(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, 1)
	f.now = f.now.Add(time.Hour)

	f.provider.Set("pay-1", o.Order.ID.String(), domain.StatusApproved)
	f.provider.FailNext(o.Order.ID.String(), provider.ErrUnavailable)

	s, _ := f.sweeper(SweepConfig{})

	rep, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, domain.PaymentPending, f.orderStatus(t, o))

	rep, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Completed)
	assert.Equal(t, domain.PaymentCompleted, f.orderStatus(t, o))
}
