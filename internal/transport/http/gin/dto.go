package httpgin

import (
	"time"

	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/service/ingest"
)

type CreateOrderRequest struct {
	BuyerName  string `json:"buyer_name" binding:"required"`
	BuyerEmail string `json:"buyer_email" binding:"required,email"`
	BuyerPhone string `json:"buyer_phone"`
	Quantity   int    `json:"quantity" binding:"required,gt=0"`
	// decimal string, e.g. "25.50"
	UnitPrice string `json:"unit_price" binding:"required"`
}

// TicketResponse carries status only. Codes and credentials are admission
// secrets and are served solely through the artifacts endpoint.
type TicketResponse struct {
	Status string `json:"status"`
}

type OrderResponse struct {
	OrderID       string           `json:"order_id"`
	PaymentStatus string           `json:"payment_status"`
	Quantity      int              `json:"quantity"`
	UnitPrice     string           `json:"unit_price"`
	TotalPrice    string           `json:"total_price"`
	CreatedAt     time.Time        `json:"created_at"`
	Tickets       []TicketResponse `json:"tickets"`
}

type PollResponse struct {
	OrderID        string `json:"order_id"`
	PaymentStatus  string `json:"payment_status"`
	ProviderStatus string `json:"provider_status,omitempty"`
	StillPending   bool   `json:"still_pending"`
	Attempts       int    `json:"attempts"`
	AccessToken    string `json:"access_token,omitempty"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type ValidateRequest struct {
	Code string `json:"code" binding:"required"`
}

type ValidateResponse struct {
	Result      string    `json:"result"`
	TicketID    string    `json:"ticket_id"`
	OrderID     string    `json:"order_id"`
	Code        string    `json:"code"`
	BuyerName   string    `json:"buyer_name"`
	OperatorID  string    `json:"operator_id"`
	ValidatedAt time.Time `json:"validated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ConflictResponse is returned with 409. Clients branch on Reason.
type ConflictResponse struct {
	Error       string     `json:"error"`
	Reason      string     `json:"reason"`
	ValidatedBy string     `json:"validated_by,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
}

func toOrderResponse(o *domain.OrderWithTickets) OrderResponse {
	out := OrderResponse{
		OrderID:       o.Order.ID.String(),
		PaymentStatus: string(o.Order.PaymentStatus),
		Quantity:      o.Order.Quantity,
		UnitPrice:     o.Order.UnitPrice.StringFixed(2),
		TotalPrice:    o.Order.TotalPrice.StringFixed(2),
		CreatedAt:     o.Order.CreatedAt,
		Tickets:       make([]TicketResponse, 0, len(o.Tickets)),
	}
	for _, t := range o.Tickets {
		out.Tickets = append(out.Tickets, TicketResponse{Status: string(t.Status)})
	}
	return out
}

func toPollResponse(r ingest.PollResult) PollResponse {
	return PollResponse{
		OrderID:        r.OrderID.String(),
		PaymentStatus:  string(r.PaymentStatus),
		ProviderStatus: string(r.ProviderStatus),
		StillPending:   r.StillPending,
		Attempts:       r.Attempts,
		AccessToken:    r.Token,
	}
}
