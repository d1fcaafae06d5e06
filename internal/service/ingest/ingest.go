// Package ingest turns provider pushes, buyer polls and the periodic sweep
// into confirmation requests. Every source re-reads the payment from the
// provider and checks that it belongs to the order before confirming.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/provider"
	"github.com/kirinyoku/tix-gate/internal/service/reconcile"
)

type Confirmer interface {
	Confirm(ctx context.Context, req domain.ConfirmationRequest) (reconcile.Result, error)
}

// request builds the confirmation for a payment the provider reported for
// orderID.
//
// Returns:
//   - error: domain.ErrInvalid if the payment references another order.
func request(orderID uuid.UUID, p *provider.Payment, src domain.Source) (domain.ConfirmationRequest, error) {
	if p.OrderRef != orderID.String() {
		return domain.ConfirmationRequest{}, fmt.Errorf(
			"%w: payment %s belongs to order %q", domain.ErrInvalid, p.ID, p.OrderRef)
	}

	return domain.ConfirmationRequest{
		OrderID:           orderID,
		ProviderPaymentID: p.ID,
		Status:            p.Status,
		RawStatus:         p.RawStatus,
		Source:            src,
	}, nil
}
