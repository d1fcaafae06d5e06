package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/stretchr/testify/assert"
)

func body(paymentID, orderRef string) []byte {
	return []byte(fmt.Sprintf(`{"payment_id":%q,"order_ref":%q}`, paymentID, orderRef))
}

func TestWebhook_DuplicateApprovalSettlesOnce(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, 3)
	f.provider.Set("pay-1", o.Order.ID.String(), domain.StatusApproved)

	w := NewWebhook(f.engine, f.logger, f.provider)

	first := w.Handle(context.Background(), "fake", body("pay-1", ""), nil)
	second := w.Handle(context.Background(), "fake", body("pay-1", ""), nil)

	assert.Equal(t, WebhookConfirmed, first)
	assert.Equal(t, WebhookAlreadyProcessed, second)
	assert.Equal(t, domain.PaymentCompleted, f.orderStatus(t, o))
	assert.Equal(t, map[domain.TicketStatus]int{domain.TicketPaid: 3}, f.ticketStatuses(t, o))
	assert.Equal(t, int32(1), f.notifier.n.Load())
}

func TestWebhook_PushedStatusIsNotTrusted(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, 1)
	f.provider.Set("pay-1", o.Order.ID.String(), domain.StatusPending)

	w := NewWebhook(f.engine, f.logger, f.provider)

	// the body claims nothing about status; the provider says pending
	out := w.Handle(context.Background(), "fake", []byte(`{"payment_id":"pay-1","status":"approved"}`), nil)
	assert.Equal(t, WebhookConfirmed, out)
	assert.Equal(t, domain.PaymentPending, f.orderStatus(t, o))
}

func TestWebhook_DropsBadPayloads(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, 1)
	other := f.order(t, 1)
	f.provider.Set("pay-1", o.Order.ID.String(), domain.StatusApproved)
	f.provider.Set("pay-x", "not-a-uuid", domain.StatusApproved)

	w := NewWebhook(f.engine, f.logger, f.provider)

	assert.Equal(t, WebhookDropped, w.Handle(context.Background(), "fake", []byte(`{`), nil))
	assert.Equal(t, WebhookDropped, w.Handle(context.Background(), "fake", []byte(`{}`), nil))
	assert.Equal(t, WebhookDropped, w.Handle(context.Background(), "unknown", body("pay-1", ""), nil))
	assert.Equal(t, WebhookDropped, w.Handle(context.Background(), "fake", body("pay-1", other.Order.ID.String()), nil))
	assert.Equal(t, WebhookDropped, w.Handle(context.Background(), "fake", body("pay-x", ""), nil))
	assert.Equal(t, WebhookFailed, w.Handle(context.Background(), "fake", body("pay-missing", ""), nil))

	assert.Equal(t, domain.PaymentPending, f.orderStatus(t, o))
	assert.Equal(t, domain.PaymentPending, f.orderStatus(t, other))
	assert.Zero(t, f.notifier.n.Load())
}
