package httpgin

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	redisx "github.com/kirinyoku/tix-gate/internal/redis"
	redisrepo "github.com/kirinyoku/tix-gate/internal/repository/redis"
	"github.com/kirinyoku/tix-gate/internal/service"
	"github.com/kirinyoku/tix-gate/internal/service/gate"
	"github.com/kirinyoku/tix-gate/internal/service/ledger"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const maxWebhookBody = 64 << 10

type RouterDeps struct {
	Services *service.Services
	// Idem is optional; without it Idempotency-Key is ignored.
	Idem    *redisrepo.IdempotencyStore
	Auth    *OperatorAuth
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewRouter(d RouterDeps, middlewares ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(d.Logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	svcs := d.Services

	r.POST("/orders", handleCreateOrder(svcs, d.Idem))
	r.GET("/orders/:id", handleGetOrder(svcs))
	r.GET("/orders/:id/payment", handlePollPayment(svcs))

	r.POST("/webhooks/:provider", handleWebhook(svcs))

	r.GET("/artifacts/:token", handleGetArtifacts(svcs))

	gateGroup := r.Group("/gate", d.Auth.Middleware())
	{
		gateGroup.POST("/validate", handleValidate(svcs))
	}

	return r
}

// @Summary  Create order (idempotent)
// @Param    req body  CreateOrderRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} OrderResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "idem in progress"
// @Router   /orders [post]
func handleCreateOrder(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		price, err := decimal.NewFromString(strings.TrimSpace(req.UnitPrice))
		if err != nil {
			badRequest(c, "invalid unit_price")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisx.KeyIdemOrder(idemKey)

			if replayIdem(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayIdem(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		o, err := svcs.Ledger.CreateOrder(c.Request.Context(), ledger.NewOrder{
			BuyerName:  req.BuyerName,
			BuyerEmail: req.BuyerEmail,
			BuyerPhone: req.BuyerPhone,
			Quantity:   req.Quantity,
			UnitPrice:  price,
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := toOrderResponse(o)

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func replayIdem(c *gin.Context, idem *redisrepo.IdempotencyStore, storageKey, idemKey string) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
	return true
}

// @Summary  Get order with tickets
// @Param    id  path  string  true  "Order ID (uuid)"
// @Success  200 {object} OrderResponse
// @Failure  404 {object} ErrorResponse
// @Router   /orders/{id} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		o, err := svcs.Ledger.GetOrder(c.Request.Context(), orderID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// @Summary  Check payment status with the provider
// @Description Used by the buyer's return page. wait=true blocks until the
// @Description payment settles or the polling budget is spent.
// @Param    id             path   string  true   "Order ID (uuid)"
// @Param    payment_id     query  string  false  "provider payment id"
// @Param    collection_id  query  string  false  "alias of payment_id"
// @Param    wait           query  bool    false  "long poll"
// @Success  200 {object} PollResponse
// @Failure  404 {object} ErrorResponse
// @Failure  429 {object} ErrorResponse
// @Failure  503 {object} ErrorResponse
// @Router   /orders/{id}/payment [get]
func handlePollPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		paymentID := strings.TrimSpace(c.Query("payment_id"))
		if paymentID == "" {
			paymentID = strings.TrimSpace(c.Query("collection_id"))
		}

		check := svcs.Poller.Check
		if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
			check = svcs.Poller.Await
		}

		res, err := check(c.Request.Context(), orderID, paymentID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toPollResponse(res))
	}
}

// @Summary  Provider payment notification
// @Description Always acknowledged with 200 so the provider stops retrying;
// @Description the notification is only a hint and is verified upstream.
// @Param    provider  path  string  true  "provider name"
// @Success  200 {object} WebhookResponse
// @Router   /webhooks/{provider} [post]
func handleWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			_ = c.Error(err)
			body = nil
		}

		outcome := svcs.Webhook.Handle(c.Request.Context(), c.Param("provider"), body, c.Request.URL.Query())
		c.Set("webhook_outcome", string(outcome))

		c.JSON(http.StatusOK, WebhookResponse{Received: true})
	}
}

// @Summary  Retrieve credentials of a paid order
// @Param    token  path  string  true  "access token"
// @Success  200 {object} credential.Bundle
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /artifacts/{token} [get]
func handleGetArtifacts(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svcs.Artifacts.Artifacts(c.Request.Context(), c.Param("token"))
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s, private: the token is a bearer secret
		writeJSONWithCache(c, http.StatusOK, b, "private, max-age=60")
	}
}

// @Summary  Validate a ticket at the gate
// @Security OperatorToken
// @Param    req body  ValidateRequest true "payload"
// @Success  200 {object} ValidateResponse
// @Failure  401 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ConflictResponse
// @Router   /gate/validate [post]
func handleValidate(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		adm, err := svcs.Gate.Validate(c.Request.Context(), gate.Request{
			Code:       req.Code,
			OperatorID: c.GetString(ctxOperatorID),
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ValidateResponse{
			Result:      "admitted",
			TicketID:    adm.TicketID.String(),
			OrderID:     adm.OrderID.String(),
			Code:        adm.Code,
			BuyerName:   adm.BuyerName,
			OperatorID:  adm.OperatorID,
			ValidatedAt: adm.ValidatedAt,
		})
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// invalidMessage trims the op prefixes off a validation error so only the
// client-facing part is returned.
func invalidMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, domain.ErrInvalid.Error()); i >= 0 {
		return msg[i:]
	}
	return domain.ErrInvalid.Error()
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(rl.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	}

	switch domain.KindOf(err) {
	case domain.KindInvalid:
		badRequest(c, invalidMessage(err))
	case domain.KindUnauthenticated:
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "operator identity required"})
	case domain.KindNotFound:
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case domain.KindConflict:
		resp := ConflictResponse{Error: "conflict"}
		if ce, ok := domain.AsConflict(err); ok {
			resp.Reason = string(ce.Reason)
			resp.ValidatedBy = ce.ValidatedBy
			if !ce.ValidatedAt.IsZero() {
				at := ce.ValidatedAt
				resp.ValidatedAt = &at
			}
		}
		c.JSON(http.StatusConflict, resp)
	case domain.KindTransient:
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
