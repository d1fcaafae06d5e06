package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirinyoku/tix-gate/internal/metrics"
)

// MercadoPago reports payment status as a lower-case string.
type MercadoPagoClient struct {
	baseURL     string
	accessToken string
	hc          *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewMercadoPago(cfg Config, logger *slog.Logger, m *metrics.Metrics) *MercadoPagoClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.mercadopago.com"
	}

	return &MercadoPagoClient{
		baseURL:     strings.TrimRight(base, "/"),
		accessToken: cfg.AccessToken,
		hc:          &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
		metrics:     m,
	}
}

func (c *MercadoPagoClient) Name() string { return MercadoPago }

type mpPayment struct {
	ID                json.Number `json:"id"`
	Status            any         `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
}

type mpSearch struct {
	Results []mpPayment `json:"results"`
}

func (c *MercadoPagoClient) Payment(ctx context.Context, paymentID string) (*Payment, error) {
	const op = "provider.MercadoPagoClient.Payment"

	var p mpPayment
	err := getJSON(ctx, c.hc, c.baseURL+"/v1/payments/"+url.PathEscape(paymentID), c.headers(), &p)
	c.metrics.ProviderRequest(MercadoPago, resultLabel(err))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c.canonical(p), nil
}

func (c *MercadoPagoClient) SearchByOrder(ctx context.Context, orderID string) (*Payment, error) {
	const op = "provider.MercadoPagoClient.SearchByOrder"

	q := url.Values{}
	q.Set("external_reference", orderID)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")
	q.Set("limit", "1")

	var res mpSearch
	err := getJSON(ctx, c.hc, c.baseURL+"/v1/payments/search?"+q.Encode(), c.headers(), &res)
	c.metrics.ProviderRequest(MercadoPago, resultLabel(err))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(res.Results) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrPaymentNotFound)
	}

	return c.canonical(res.Results[0]), nil
}

type mpNotification struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   *struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// ParseNotification accepts both the JSON webhook body and the legacy IPN
// query form (?topic=payment&id=...).
func (c *MercadoPagoClient) ParseNotification(body []byte, query url.Values) (*Notification, error) {
	const op = "provider.MercadoPagoClient.ParseNotification"

	var topic, id string

	if len(strings.TrimSpace(string(body))) > 0 {
		var n mpNotification
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrMalformed, err)
		}
		topic = firstNonEmpty(n.Type, n.Topic)
		if n.Data != nil {
			id = n.Data.ID.String()
		}
	}

	topic = firstNonEmpty(topic, query.Get("type"), query.Get("topic"))
	id = firstNonEmpty(id, query.Get("data.id"), query.Get("id"))

	if topic != "" && topic != "payment" {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrIgnored, topic)
	}
	if topic == "" || id == "" {
		return nil, fmt.Errorf("%s: %w: missing type or payment id", op, ErrMalformed)
	}

	return &Notification{PaymentID: id}, nil
}

func (c *MercadoPagoClient) canonical(p mpPayment) *Payment {
	status, raw, mapped := Canonicalize(mercadoPagoStatuses, p.Status)
	if !mapped {
		c.logger.Warn("unmapped provider status",
			"provider", MercadoPago,
			"payment_id", p.ID.String(),
			"raw_status", raw,
			"status_detail", p.StatusDetail,
		)
	}

	return &Payment{
		ID:        p.ID.String(),
		OrderRef:  p.ExternalReference,
		Status:    status,
		RawStatus: raw,
		Mapped:    mapped,
	}
}

func (c *MercadoPagoClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.accessToken}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
