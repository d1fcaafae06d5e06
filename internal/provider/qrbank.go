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

// QRBankClient talks to a bank QR-payment gateway whose status field is a
// numeric code, a string, or an object such as {"code": 1, "message": "SUCCESS"}
// depending on the endpoint.
type QRBankClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewQRBank(cfg Config, logger *slog.Logger, m *metrics.Metrics) *QRBankClient {
	return &QRBankClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.AccessToken,
		hc:      &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		metrics: m,
	}
}

func (c *QRBankClient) Name() string { return QRBank }

type qrTransaction struct {
	UUID   string `json:"uuid"`
	RefID  string `json:"ref_id"`
	Status any    `json:"status"`
}

func (c *QRBankClient) Payment(ctx context.Context, paymentID string) (*Payment, error) {
	const op = "provider.QRBankClient.Payment"

	var res struct {
		Transaction *qrTransaction `json:"transaction"`
	}
	err := getJSON(ctx, c.hc, c.baseURL+"/api/v1/transactions/"+url.PathEscape(paymentID), c.headers(), &res)
	c.metrics.ProviderRequest(QRBank, resultLabel(err))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if res.Transaction == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrPaymentNotFound)
	}

	return c.canonical(*res.Transaction), nil
}

func (c *QRBankClient) SearchByOrder(ctx context.Context, orderID string) (*Payment, error) {
	const op = "provider.QRBankClient.SearchByOrder"

	q := url.Values{}
	q.Set("ref_id", orderID)

	var res struct {
		Transactions []qrTransaction `json:"transactions"`
	}
	err := getJSON(ctx, c.hc, c.baseURL+"/api/v1/transactions?"+q.Encode(), c.headers(), &res)
	c.metrics.ProviderRequest(QRBank, resultLabel(err))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(res.Transactions) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrPaymentNotFound)
	}

	// newest first
	return c.canonical(res.Transactions[0]), nil
}

func (c *QRBankClient) ParseNotification(body []byte, _ url.Values) (*Notification, error) {
	const op = "provider.QRBankClient.ParseNotification"

	var tx qrTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrMalformed, err)
	}

	if strings.TrimSpace(tx.UUID) == "" {
		return nil, fmt.Errorf("%s: %w: missing uuid", op, ErrMalformed)
	}

	return &Notification{PaymentID: tx.UUID, OrderRef: tx.RefID}, nil
}

func (c *QRBankClient) canonical(tx qrTransaction) *Payment {
	status, raw, mapped := Canonicalize(qrBankStatuses, tx.Status)
	if !mapped {
		c.logger.Warn("unmapped provider status",
			"provider", QRBank,
			"payment_id", tx.UUID,
			"raw_status", raw,
		)
	}

	return &Payment{
		ID:        tx.UUID,
		OrderRef:  tx.RefID,
		Status:    status,
		RawStatus: raw,
		Mapped:    mapped,
	}
}

func (c *QRBankClient) headers() map[string]string {
	return map[string]string{"X-Api-Key": c.apiKey}
}
