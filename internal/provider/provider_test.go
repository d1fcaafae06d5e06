package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMercadoPago_Payment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/payments/123":
			_, _ = io.WriteString(w, `{"id":123,"status":"approved","status_detail":"accredited","external_reference":"order-1"}`)
		case "/v1/payments/500":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewMercadoPago(Config{BaseURL: srv.URL, AccessToken: "secret"}, discard(), nil)

	p, err := c.Payment(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", p.ID)
	assert.Equal(t, "order-1", p.OrderRef)
	assert.Equal(t, domain.StatusApproved, p.Status)
	assert.True(t, p.Mapped)

	_, err = c.Payment(context.Background(), "999")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	assert.ErrorIs(t, err, domain.ErrTransient)

	_, err = c.Payment(context.Background(), "500")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
}

func TestMercadoPago_SearchByOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/search", r.URL.Path)
		assert.Equal(t, "order-1", r.URL.Query().Get("external_reference"))
		assert.Equal(t, "desc", r.URL.Query().Get("criteria"))
		if r.URL.Query().Get("external_reference") == "order-1" {
			_, _ = io.WriteString(w, `{"results":[{"id":77,"status":"rejected","external_reference":"order-1"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	c := NewMercadoPago(Config{BaseURL: srv.URL}, discard(), nil)

	p, err := c.SearchByOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "77", p.ID)
	assert.Equal(t, domain.StatusRejected, p.Status)
}

func TestMercadoPago_ParseNotification(t *testing.T) {
	c := NewMercadoPago(Config{}, discard(), nil)

	n, err := c.ParseNotification([]byte(`{"type":"payment","action":"payment.updated","data":{"id":"123"}}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "123", n.PaymentID)

	n, err = c.ParseNotification([]byte(`{"type":"payment","data":{"id":456}}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "456", n.PaymentID)

	n, err = c.ParseNotification(nil, url.Values{"topic": {"payment"}, "id": {"789"}})
	require.NoError(t, err)
	assert.Equal(t, "789", n.PaymentID)

	_, err = c.ParseNotification([]byte(`{"type":"merchant_order","data":{"id":"1"}}`), nil)
	assert.ErrorIs(t, err, ErrIgnored)

	_, err = c.ParseNotification([]byte(`{"type":"payment"}`), nil)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = c.ParseNotification([]byte(`{not json`), nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestQRBank_Payment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		switch r.URL.Path {
		case "/api/v1/transactions/tx-1":
			_, _ = io.WriteString(w, `{"transaction":{"uuid":"tx-1","ref_id":"order-1","status":{"code":1,"message":"SUCCESS"}}}`)
		case "/api/v1/transactions/tx-2":
			_, _ = io.WriteString(w, `{"transaction":{"uuid":"tx-2","ref_id":"order-2","status":7}}`)
		case "/api/v1/transactions":
			_, _ = io.WriteString(w, `{"transactions":[{"uuid":"tx-3","ref_id":"order-3","status":"expired"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewQRBank(Config{BaseURL: srv.URL, AccessToken: "key"}, discard(), nil)

	p, err := c.Payment(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, p.Status)
	assert.Equal(t, "order-1", p.OrderRef)

	p, err = c.Payment(context.Background(), "tx-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.False(t, p.Mapped)
	assert.Equal(t, "7", p.RawStatus)

	p, err = c.SearchByOrder(context.Background(), "order-3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, p.Status)

	_, err = c.Payment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestQRBank_ParseNotification(t *testing.T) {
	c := NewQRBank(Config{}, discard(), nil)

	n, err := c.ParseNotification([]byte(`{"uuid":"tx-1","ref_id":"order-1","status":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", n.PaymentID)
	assert.Equal(t, "order-1", n.OrderRef)

	_, err = c.ParseNotification([]byte(`{"ref_id":"order-1"}`), nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNew(t *testing.T) {
	p, err := New(Config{Name: MercadoPago}, discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, MercadoPago, p.Name())

	_, err = New(Config{Name: "paypal"}, discard(), nil)
	assert.Error(t, err)
}
