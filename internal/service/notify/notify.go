// Package notify delivers "your tickets are ready" messages. Delivery is
// best-effort: the ledger calls Send once per first-time commit and only
// logs the outcome.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/tix-gate/internal/metrics"
	redisx "github.com/kirinyoku/tix-gate/internal/redis"
)

type Recipient struct {
	Name  string
	Email string
	Phone string
}

type OrderSummary struct {
	OrderID  string
	Quantity int
	Total    string
}

// Results holds the per-channel outcome; a nil entry means delivered.
type Results map[string]error

// Err joins the failed channels, or returns nil if every channel delivered.
func (r Results) Err() error {
	var errs []error
	for ch, err := range r {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

type Dispatcher interface {
	Send(ctx context.Context, to Recipient, order OrderSummary, retrievalURL string) (Results, error)
}

// LogDispatcher writes the notification to the log. Used in development
// and as the fallback channel.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, to Recipient, order OrderSummary, retrievalURL string) (Results, error) {
	d.logger.InfoContext(ctx, "tickets ready",
		"order_id", order.OrderID,
		"email", to.Email,
		"quantity", order.Quantity,
		"retrieval_url", retrievalURL,
	)
	return Results{"log": nil}, nil
}

// ErrNoSubscribers is reported when the message was published but no
// delivery worker was listening.
var ErrNoSubscribers = errors.New("no subscribers on channel")

// RedisDispatcher hands the notification to out-of-process delivery workers
// over Redis pub/sub.
type RedisDispatcher struct {
	pubsub *redisx.OrdersPubSub
}

func NewRedisDispatcher(pubsub *redisx.OrdersPubSub) *RedisDispatcher {
	return &RedisDispatcher{pubsub: pubsub}
}

func (d *RedisDispatcher) Send(ctx context.Context, to Recipient, order OrderSummary, retrievalURL string) (Results, error) {
	const op = "notify.RedisDispatcher.Send"

	n, err := d.pubsub.PublishOrderPaid(ctx, redisx.OrderPaidMsg{
		OrderID:      order.OrderID,
		Email:        to.Email,
		Phone:        to.Phone,
		Name:         to.Name,
		Quantity:     order.Quantity,
		Total:        order.Total,
		RetrievalURL: retrievalURL,
	})
	if err != nil {
		return Results{"redis": err}, fmt.Errorf("%s:%w", op, err)
	}
	if n == 0 {
		return Results{"redis": ErrNoSubscribers}, nil
	}

	return Results{"redis": nil}, nil
}

// Multi fans out to every dispatcher and merges their results. It fails
// only if every dispatcher failed.
type Multi struct {
	dispatchers []Dispatcher
	metrics     *metrics.Metrics
}

func NewMulti(m *metrics.Metrics, ds ...Dispatcher) *Multi {
	return &Multi{dispatchers: ds, metrics: m}
}

func (d *Multi) Send(ctx context.Context, to Recipient, order OrderSummary, retrievalURL string) (Results, error) {
	out := Results{}
	var errs []error

	for _, dd := range d.dispatchers {
		res, err := dd.Send(ctx, to, order, retrievalURL)
		for ch, chErr := range res {
			out[ch] = chErr
			d.metrics.Notification(ch, resultLabel(chErr))
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(d.dispatchers) > 0 && len(errs) == len(d.dispatchers) {
		return out, errors.Join(errs...)
	}

	return out, nil
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}
