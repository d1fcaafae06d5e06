// Package provider isolates payment provider encodings. Everything outside
// this package sees only domain.CanonicalStatus.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/metrics"
)

var (
	// ErrPaymentNotFound is returned for ids the provider does not know
	// (yet). It is transient: unsettled payments are often invisible for a
	// while after checkout.
	ErrPaymentNotFound = fmt.Errorf("payment not found: %w", domain.ErrTransient)
	ErrUnavailable     = fmt.Errorf("provider unavailable: %w", domain.ErrTransient)
	ErrMalformed       = fmt.Errorf("malformed notification: %w", domain.ErrInvalid)
	// ErrIgnored marks notifications about topics other than payments.
	ErrIgnored = errors.New("notification topic not handled")
)

// Payment is a provider payment after canonicalization.
type Payment struct {
	ID        string
	OrderRef  string // the order id we sent as external reference
	Status    domain.CanonicalStatus
	RawStatus string
	// Mapped is false when RawStatus was not in the mapping table and Status
	// fell back to PENDING.
	Mapped bool
}

// Notification is what could be safely extracted from a push payload.
type Notification struct {
	PaymentID string
	OrderRef  string
}

type Provider interface {
	Name() string
	Payment(ctx context.Context, paymentID string) (*Payment, error)
	// SearchByOrder returns the most recent payment carrying orderID as its
	// external reference.
	SearchByOrder(ctx context.Context, orderID string) (*Payment, error)
	ParseNotification(body []byte, query url.Values) (*Notification, error)
}

type Config struct {
	Name        string
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

const (
	MercadoPago = "mercadopago"
	QRBank      = "qrbank"
)

// New builds the configured provider client.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) (Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	switch cfg.Name {
	case MercadoPago:
		return NewMercadoPago(cfg, logger, m), nil
	case QRBank:
		return NewQRBank(cfg, logger, m), nil
	default:
		return nil, fmt.Errorf("provider.New: unsupported provider %q", cfg.Name)
	}
}
