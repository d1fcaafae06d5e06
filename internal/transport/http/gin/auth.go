package httpgin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxOperatorID = "operator_id"

// OperatorAuth verifies HS256 bearer tokens issued to gate operators. The
// token subject is the operator identity recorded with every validation.
type OperatorAuth struct {
	secret []byte
}

func NewOperatorAuth(secret string) *OperatorAuth {
	return &OperatorAuth{secret: []byte(secret)}
}

// Issue signs an operator token valid for ttl.
func (a *OperatorAuth) Issue(operatorID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   operatorID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify returns the operator id carried by a valid token.
func (a *OperatorAuth) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid operator token before any
// handler runs.
func (a *OperatorAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "operator token required"})
			return
		}

		op, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			_ = c.Error(fmt.Errorf("operator token: %w", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid operator token"})
			return
		}

		c.Set(ctxOperatorID, op)
		c.Next()
	}
}
