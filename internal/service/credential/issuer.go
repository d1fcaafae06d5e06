// Package credential issues order capability tokens and per-ticket scan
// credentials, and serves ticket artifacts to token holders.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/repository"
)

const (
	tokenBytes = 32
	// TokenLen is the encoded length of a capability token or credential.
	TokenLen = 43

	codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	CodeLen      = 10
)

// Issuer hands out the single retrieval token of an order.
type Issuer struct {
	store repository.LedgerStore
}

func NewIssuer(store repository.LedgerStore) *Issuer {
	return &Issuer{store: store}
}

// Issue returns the order's capability token, creating it on the first call.
// Every later call returns the stored token unchanged.
func (i *Issuer) Issue(ctx context.Context, orderID uuid.UUID) (string, error) {
	const op = "credential.Issuer.Issue"

	var token string
	err := i.store.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		t, err := i.IssueTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%s:%w", op, domain.ErrNotFound)
		}
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return token, nil
}

// IssueTx is Issue inside a caller's transaction.
func (i *Issuer) IssueTx(ctx context.Context, tx repository.LedgerTx, orderID uuid.UUID) (string, error) {
	const op = "credential.Issuer.IssueTx"

	candidate, err := NewToken()
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	stored, err := tx.SetAccessTokenIfAbsent(ctx, orderID, candidate)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return stored, nil
}

// NewToken returns 32 random bytes, base64url encoded without padding.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewCredential is the opaque scannable value printed in a ticket's QR code.
func NewCredential() (string, error) {
	return NewToken()
}

// NewTicketCode returns a short upper-case code for manual entry. It avoids
// look-alike characters (0/O, 1/I). The alphabet has 32 symbols, so b%32 over
// a random byte is uniform.
func NewTicketCode() (string, error) {
	b := make([]byte, CodeLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

// ValidToken reports whether s has the shape of a capability token.
func ValidToken(s string) bool {
	if len(s) != TokenLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// NormalizeCode trims a scanned or typed value. Codes are case-insensitive,
// credentials are not, so only the former is folded (by the store).
func NormalizeCode(s string) string {
	return strings.TrimSpace(s)
}
