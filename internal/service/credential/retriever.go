package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/tix-gate/internal/domain"
	redisx "github.com/kirinyoku/tix-gate/internal/redis"
	"github.com/kirinyoku/tix-gate/internal/repository"
	redisrepo "github.com/kirinyoku/tix-gate/internal/repository/redis"
)

type BundleTicket struct {
	Code       string              `json:"code"`
	Credential string              `json:"credential"`
	Status     domain.TicketStatus `json:"status"`
}

// Bundle is everything a token holder may see.
type Bundle struct {
	OrderID   string         `json:"order_id"`
	BuyerName string         `json:"buyer_name"`
	Quantity  int            `json:"quantity"`
	Total     string         `json:"total"`
	PaidAt    time.Time      `json:"paid_at"`
	Tickets   []BundleTicket `json:"tickets"`
}

// Retriever serves ticket artifacts by capability token.
type Retriever struct {
	store repository.LedgerStore
	cache *redisrepo.Cache // optional
	ttl   time.Duration
}

func NewRetriever(store repository.LedgerStore, cache *redisrepo.Cache, ttl time.Duration) *Retriever {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Retriever{store: store, cache: cache, ttl: ttl}
}

// Artifacts returns the bundle for token.
//
// Returns:
//   - error: domain.ErrInvalid if token is malformed (no lookup happens).
//   - error: domain.ErrNotFound if the token is unknown or its order is not COMPLETED.
func (r *Retriever) Artifacts(ctx context.Context, token string) (*Bundle, error) {
	const op = "credential.Retriever.Artifacts"

	if !ValidToken(token) {
		return nil, fmt.Errorf("%s:%w", op, domain.ErrInvalid)
	}

	if r.cache == nil {
		b, err := r.load(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return &b, nil
	}

	b, err := redisrepo.GetOrSetJSON(ctx, r.cache, redisx.KeyArtifacts(token), r.ttl, func(ctx context.Context) (Bundle, error) {
		return r.load(ctx, token)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &b, nil
}

// Invalidate drops a cached bundle. Safe to call without a cache.
func (r *Retriever) Invalidate(ctx context.Context, token string) error {
	if r.cache == nil || token == "" {
		return nil
	}
	return r.cache.InvalidateArtifacts(ctx, token)
}

func (r *Retriever) load(ctx context.Context, token string) (Bundle, error) {
	o, err := r.store.GetOrderByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Bundle{}, domain.ErrNotFound
		}
		return Bundle{}, err
	}

	if o.PaymentStatus != domain.PaymentCompleted {
		return Bundle{}, domain.ErrNotFound
	}

	tickets, err := r.store.ListTickets(ctx, o.ID)
	if err != nil {
		return Bundle{}, err
	}

	b := Bundle{
		OrderID:   o.ID.String(),
		BuyerName: o.BuyerName,
		Quantity:  o.Quantity,
		Total:     o.TotalPrice.StringFixed(2),
		PaidAt:    o.UpdatedAt,
		Tickets:   make([]BundleTicket, 0, len(tickets)),
	}
	for _, t := range tickets {
		b.Tickets = append(b.Tickets, BundleTicket{
			Code:       t.Code,
			Credential: t.CredentialHash,
			Status:     t.Status,
		})
	}

	return b, nil
}
