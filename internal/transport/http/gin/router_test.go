package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/provider/providertest"
	"github.com/kirinyoku/tix-gate/internal/repository/memory"
	"github.com/kirinyoku/tix-gate/internal/service"
	"github.com/kirinyoku/tix-gate/internal/service/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router   *gin.Engine
	store    *memory.Store
	provider *providertest.Fake
	auth     *OperatorAuth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	fake := providertest.New("fake")

	svcs := service.NewServices(service.Deps{
		Store:    store,
		Provider: fake,
		Dedup:    reconcile.NewMemoryDeduper(reconcile.MemoryDeduperConfig{}),
		Logger:   logger,
	}, service.Config{})

	auth := NewOperatorAuth("test-secret")

	return &testServer{
		router: NewRouter(RouterDeps{
			Services: svcs,
			Auth:     auth,
			Logger:   logger,
		}),
		store:    store,
		provider: fake,
		auth:     auth,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createOrder(t *testing.T, qty int) OrderResponse {
	t.Helper()

	w := s.do(t, http.MethodPost, "/orders", CreateOrderRequest{
		BuyerName:  "Lucia",
		BuyerEmail: "lucia@example.com",
		Quantity:   qty,
		UnitPrice:  "25.50",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// pay approves the order through the webhook endpoint.
func (s *testServer) pay(t *testing.T, orderID string) string {
	t.Helper()

	paymentID := "pay-" + orderID
	s.provider.Set(paymentID, orderID, domain.StatusApproved)

	w := s.do(t, http.MethodPost, "/webhooks/fake", map[string]string{
		"payment_id": paymentID,
		"order_ref":  orderID,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	o, err := s.store.GetOrder(context.Background(), uuid.MustParse(orderID))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, o.PaymentStatus)
	return o.AccessToken
}

// ticketCode reads a ticket code from the ledger, as a buyer would from the
// artifacts bundle.
func (s *testServer) ticketCode(t *testing.T, orderID string, i int) string {
	t.Helper()

	tickets, err := s.store.ListTickets(context.Background(), uuid.MustParse(orderID))
	require.NoError(t, err)
	require.Greater(t, len(tickets), i)
	return tickets[i].Code
}

func (s *testServer) operatorHeader(t *testing.T, operatorID string) map[string]string {
	t.Helper()

	tok, err := s.auth.Issue(operatorID, time.Minute)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestCreateAndGetOrder(t *testing.T) {
	s := newTestServer(t)

	created := s.createOrder(t, 3)
	assert.Equal(t, "PENDING", created.PaymentStatus)
	assert.Equal(t, "76.50", created.TotalPrice)
	assert.Len(t, created.Tickets, 3)

	w := s.do(t, http.MethodGet, "/orders/"+created.OrderID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.OrderID, got.OrderID)
	for _, tk := range got.Tickets {
		assert.Equal(t, string(domain.TicketPendingPayment), tk.Status)
	}
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]CreateOrderRequest{
		"price":    {BuyerName: "A", BuyerEmail: "a@example.com", Quantity: 1, UnitPrice: "abc"},
		"negative": {BuyerName: "A", BuyerEmail: "a@example.com", Quantity: 1, UnitPrice: "-3"},
		"quantity": {BuyerName: "A", BuyerEmail: "a@example.com", Quantity: 0, UnitPrice: "3"},
		"email":    {BuyerName: "A", BuyerEmail: "nope", Quantity: 1, UnitPrice: "3"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/orders", req, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetOrderErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/orders/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/orders/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/webhooks/fake", "/webhooks/unknown"} {
		w := s.do(t, http.MethodPost, path, map[string]string{"payment_id": "missing"}, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"received":true}`, w.Body.String())
	}
}

func TestWebhookPaysOrderAndArtifactsAreCached(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 2)
	token := s.pay(t, o.OrderID)
	require.NotEmpty(t, token)

	w := s.do(t, http.MethodGet, "/artifacts/"+token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "private, max-age=60", w.Header().Get("Cache-Control"))
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var bundle struct {
		OrderID string `json:"order_id"`
		Tickets []struct {
			Status string `json:"status"`
		} `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bundle))
	assert.Equal(t, o.OrderID, bundle.OrderID)
	require.Len(t, bundle.Tickets, 2)
	assert.Equal(t, string(domain.TicketPaid), bundle.Tickets[0].Status)

	w = s.do(t, http.MethodGet, "/artifacts/"+token, nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestArtifactsUnknownToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/artifacts/short", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/artifacts/"+string(bytes.Repeat([]byte("A"), 43)), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPollPaymentConfirmsOrder(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 1)
	s.provider.Set("coll-1", o.OrderID, domain.StatusApproved)

	w := s.do(t, http.MethodGet, "/orders/"+o.OrderID+"/payment?collection_id=coll-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PollResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "COMPLETED", resp.PaymentStatus)
	assert.False(t, resp.StillPending)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestPollPaymentPendingOrder(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 1)
	s.provider.Set("p-1", o.OrderID, domain.StatusPending)

	w := s.do(t, http.MethodGet, "/orders/"+o.OrderID+"/payment?payment_id=p-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp PollResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp.PaymentStatus)
	assert.True(t, resp.StillPending)
	assert.Empty(t, resp.AccessToken)
}

func TestOrderEndpointsDoNotExposeTicketCodes(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 2)

	w := s.do(t, http.MethodGet, "/orders/"+o.OrderID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	for i := range 2 {
		code := s.ticketCode(t, o.OrderID, i)
		assert.NotContains(t, w.Body.String(), code)
	}
	assert.NotContains(t, w.Body.String(), `"code"`)
	assert.NotContains(t, w.Body.String(), `"credential"`)
}

func TestGateRequiresOperatorToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/gate/validate", ValidateRequest{Code: "ABC"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/gate/validate", ValidateRequest{Code: "ABC"},
		map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := NewOperatorAuth("another-secret")
	tok, err := other.Issue("op-1", time.Minute)
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, "/gate/validate", ValidateRequest{Code: "ABC"},
		map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGateAdmitsOnceThenConflicts(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 1)
	s.pay(t, o.OrderID)
	code := s.ticketCode(t, o.OrderID, 0)

	w := s.do(t, http.MethodPost, "/gate/validate", ValidateRequest{Code: code}, s.operatorHeader(t, "gate-north"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var adm ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &adm))
	assert.Equal(t, "admitted", adm.Result)
	assert.Equal(t, "gate-north", adm.OperatorID)
	assert.Equal(t, o.OrderID, adm.OrderID)

	w = s.do(t, http.MethodPost, "/gate/validate", ValidateRequest{Code: code}, s.operatorHeader(t, "gate-south"))
	require.Equal(t, http.StatusConflict, w.Code)

	var conflict ConflictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	assert.Equal(t, string(domain.ConflictAlreadyUsed), conflict.Reason)
	assert.Equal(t, "gate-north", conflict.ValidatedBy)
	require.NotNil(t, conflict.ValidatedAt)
}

func TestGateUnpaidTicket(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 1)

	w := s.do(t, http.MethodPost, "/gate/validate", ValidateRequest{Code: s.ticketCode(t, o.OrderID, 0)}, s.operatorHeader(t, "op"))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), string(domain.ConflictPaymentPending))

	w = s.do(t, http.MethodPost, "/gate/validate", ValidateRequest{Code: "ZZZZZZZZZZ"}, s.operatorHeader(t, "op"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRespondErrMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x:%w", domain.ErrInvalid), http.StatusBadRequest},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("x:%w", domain.ErrNotFound), http.StatusNotFound},
		{&domain.ConflictError{Reason: domain.ConflictCancelled}, http.StatusConflict},
		{&domain.RateLimitedError{RetryAfter: 2500 * time.Millisecond}, http.StatusTooManyRequests},
		{fmt.Errorf("x:%w", domain.ErrTransient), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondErr(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondErr(c, &domain.RateLimitedError{RetryAfter: 2500 * time.Millisecond})
	assert.Equal(t, "3", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	respondErr(c, fmt.Errorf("ledger.Ledger.CreateOrder:%w: quantity must be between 1 and 20", domain.ErrInvalid))
	assert.JSONEq(t, `{"error":"invalid input: quantity must be between 1 and 20"}`, w.Body.String())
}

func TestEtagMatches(t *testing.T) {
	tag := `W/"abc"`

	assert.True(t, etagMatches(`W/"abc"`, tag))
	assert.True(t, etagMatches(`"abc"`, tag))
	assert.True(t, etagMatches(`"x", W/"abc"`, tag))
	assert.True(t, etagMatches(`*`, tag))
	assert.False(t, etagMatches(``, tag))
	assert.False(t, etagMatches(`"abd"`, tag))
}

func TestRedactPath(t *testing.T) {
	assert.Equal(t, "/artifacts/:token", redactPath("/artifacts/s3cret"))
	assert.Equal(t, "/orders/abc", redactPath("/orders/abc"))
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", nil, nil)
	minted := w.Header().Get("X-Request-ID")
	assert.Len(t, minted, 22)

	w = s.do(t, http.MethodGet, "/healthz", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = s.do(t, http.MethodGet, "/healthz", nil, map[string]string{"X-Request-ID": strings.Repeat("x", 65)})
	assert.Len(t, w.Header().Get("X-Request-ID"), 22)
}
