package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/provider"
)

// WebhookOutcome is recorded for every push; the provider never sees it.
type WebhookOutcome string

const (
	WebhookConfirmed        WebhookOutcome = "confirmed"
	WebhookAlreadyProcessed WebhookOutcome = "already_processed"
	WebhookIgnored          WebhookOutcome = "ignored"
	WebhookDropped          WebhookOutcome = "dropped"
	WebhookFailed           WebhookOutcome = "failed"
)

// Webhook is the push source.
type Webhook struct {
	providers map[string]provider.Provider
	engine    Confirmer
	logger    *slog.Logger
}

func NewWebhook(engine Confirmer, logger *slog.Logger, providers ...provider.Provider) *Webhook {
	m := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Webhook{providers: m, engine: engine, logger: logger}
}

// Handle processes one push. It never fails: whatever happens is logged and
// the caller answers the provider with success so it stops retrying. The
// pushed payload only names the payment; its status is read back from the
// provider.
func (w *Webhook) Handle(ctx context.Context, providerName string, body []byte, query url.Values) WebhookOutcome {
	log := w.logger.With("provider", providerName, "source", domain.SourcePush)

	p, ok := w.providers[providerName]
	if !ok {
		log.WarnContext(ctx, "webhook for unknown provider")
		return WebhookDropped
	}

	n, err := p.ParseNotification(body, query)
	if err != nil {
		if errors.Is(err, provider.ErrIgnored) {
			log.DebugContext(ctx, "webhook ignored", "err", err)
			return WebhookIgnored
		}
		log.WarnContext(ctx, "webhook payload dropped", "err", err)
		return WebhookDropped
	}

	log = log.With("payment_id", n.PaymentID)

	pay, err := p.Payment(ctx, n.PaymentID)
	if err != nil {
		log.WarnContext(ctx, "webhook payment lookup failed", "err", err)
		return WebhookFailed
	}

	if n.OrderRef != "" && n.OrderRef != pay.OrderRef {
		log.WarnContext(ctx, "webhook order reference mismatch",
			"pushed_ref", n.OrderRef, "provider_ref", pay.OrderRef)
		return WebhookDropped
	}

	orderID, err := uuid.Parse(pay.OrderRef)
	if err != nil {
		log.WarnContext(ctx, "payment has no usable order reference", "order_ref", pay.OrderRef)
		return WebhookDropped
	}

	req, err := request(orderID, pay, domain.SourcePush)
	if err != nil {
		log.WarnContext(ctx, "webhook rejected", "err", err)
		return WebhookDropped
	}

	res, err := w.engine.Confirm(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "webhook confirmation failed",
			"order_id", orderID, "kind", domain.KindOf(err), "err", err)
		return WebhookFailed
	}

	log.InfoContext(ctx, "webhook processed",
		"order_id", orderID,
		"status", pay.Status,
		"order_status", res.OrderStatus,
		"already_processed", res.AlreadyProcessed,
	)

	if res.AlreadyProcessed {
		return WebhookAlreadyProcessed
	}
	return WebhookConfirmed
}
