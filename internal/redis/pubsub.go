package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// OrdersPubSub carries "order paid" messages to out-of-process delivery
// workers (mailers, messaging bots).
type OrdersPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewOrdersPubSub(rdb *redis.Client, channel string) *OrdersPubSub {
	if channel == "" {
		channel = ChannelOrdersPaid()
	}

	return &OrdersPubSub{
		rdb:     rdb,
		channel: channel,
	}
}

type OrderPaidMsg struct {
	Type         string `json:"type"`
	OrderID      string `json:"order_id"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Total        string `json:"total"`
	RetrievalURL string `json:"retrieval_url"`
	TsUnix       int64  `json:"ts_unix"`
}

// PublishOrderPaid returns the number of subscribers that received msg.
func (p *OrdersPubSub) PublishOrderPaid(ctx context.Context, msg OrderPaidMsg) (int64, error) {
	msg.Type = "order_paid"
	if msg.TsUnix == 0 {
		msg.TsUnix = time.Now().Unix()
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	return p.rdb.Publish(ctx, p.channel, b).Result()
}

// Subscribe delivers every well-formed message to handler until ctx ends.
func (p *OrdersPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, msg OrderPaidMsg)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg OrderPaidMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.OrderID != "" {
				handler(ctx, msg)
			}
		}
	}
}
