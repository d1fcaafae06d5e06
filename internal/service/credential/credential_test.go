package credential

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"github.com/kirinyoku/tix-gate/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, store *memory.Store, status domain.PaymentStatus) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	o := domain.Order{
		ID:            uuid.New(),
		BuyerName:     "Dora",
		BuyerEmail:    "dora@example.com",
		Quantity:      1,
		UnitPrice:     decimal.NewFromInt(10),
		TotalPrice:    decimal.NewFromInt(10),
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
	}
	cred, err := NewCredential()
	require.NoError(t, err)
	code, err := NewTicketCode()
	require.NoError(t, err)

	tk := domain.Ticket{
		ID:             uuid.New(),
		OrderID:        o.ID,
		Code:           code,
		CredentialHash: cred,
		Status:         domain.TicketPendingPayment,
		CreatedAt:      now,
	}

	err = store.RunTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.CreateOrder(ctx, &o, []domain.Ticket{tk}); err != nil {
			return err
		}
		if status != domain.PaymentPending {
			return tx.UpdateOrderPayment(ctx, o.ID, status, "p", "raw")
		}
		return nil
	})
	require.NoError(t, err)

	return o
}

func TestIssue_Idempotent(t *testing.T) {
	store := memory.New()
	o := seedOrder(t, store, domain.PaymentPending)
	iss := NewIssuer(store)

	a, err := iss.Issue(context.Background(), o.ID)
	require.NoError(t, err)
	b, err := iss.Issue(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, ValidToken(a))
}

func TestIssue_UnknownOrder(t *testing.T) {
	_, err := NewIssuer(memory.New()).Issue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	assert.Len(t, a, TokenLen)
	assert.NotEqual(t, a, b)
}

func TestValidToken(t *testing.T) {
	tok, err := NewToken()
	require.NoError(t, err)

	assert.True(t, ValidToken(tok))
	assert.False(t, ValidToken(""))
	assert.False(t, ValidToken(tok[:42]))
	assert.False(t, ValidToken(tok+"A"))
	assert.False(t, ValidToken(strings.Repeat("+", TokenLen)))
	assert.False(t, ValidToken("../../../../etc/passwd"+strings.Repeat("a", 21)))
}

func TestNewTicketCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 200 {
		c, err := NewTicketCode()
		require.NoError(t, err)
		require.Len(t, c, CodeLen)
		assert.Equal(t, strings.ToUpper(c), c)
		seen[c] = struct{}{}
		for _, r := range c {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected %q in %s", r, c)
		}
	}
	assert.Len(t, seen, 200)
}

func TestCodeAlphabetIsPowerOfTwo(t *testing.T) {
	assert.Len(t, codeAlphabet, 32)
}

func TestArtifacts(t *testing.T) {
	store := memory.New()
	paid := seedOrder(t, store, domain.PaymentCompleted)
	pending := seedOrder(t, store, domain.PaymentPending)

	iss := NewIssuer(store)
	r := NewRetriever(store, nil, 0)

	paidTok, err := iss.Issue(context.Background(), paid.ID)
	require.NoError(t, err)
	pendingTok, err := iss.Issue(context.Background(), pending.ID)
	require.NoError(t, err)

	b, err := r.Artifacts(context.Background(), paidTok)
	require.NoError(t, err)
	assert.Equal(t, paid.ID.String(), b.OrderID)
	assert.Equal(t, "10.00", b.Total)
	require.Len(t, b.Tickets, 1)
	assert.Len(t, b.Tickets[0].Credential, TokenLen)

	_, err = r.Artifacts(context.Background(), pendingTok)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	other, err := NewToken()
	require.NoError(t, err)
	_, err = r.Artifacts(context.Background(), other)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Artifacts(context.Background(), "short")
	assert.ErrorIs(t, err, domain.ErrInvalid)

	assert.NoError(t, r.Invalidate(context.Background(), paidTok))
}
