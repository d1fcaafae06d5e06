// Package providertest offers an in-memory payment provider for tests and
// local development.
package providertest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/provider"
)

// Fake answers from a table of payments. Responses can be scripted per
// payment id to simulate settlement over time.
type Fake struct {
	mu       sync.Mutex
	name     string
	payments map[string]*provider.Payment
	scripts  map[string][]error
	calls    int
}

func New(name string) *Fake {
	return &Fake{
		name:     name,
		payments: map[string]*provider.Payment{},
		scripts:  map[string][]error{},
	}
}

func (f *Fake) Name() string { return f.name }

// Set registers (or replaces) a payment.
func (f *Fake) Set(paymentID, orderRef string, status domain.CanonicalStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.payments[paymentID] = &provider.Payment{
		ID:        paymentID,
		OrderRef:  orderRef,
		Status:    status,
		RawStatus: string(status),
		Mapped:    true,
	}
}

// FailNext makes the next len(errs) lookups of id return errs in order
// before the table is consulted again. id is a payment id, or an order id
// for SearchByOrder.
func (f *Fake) FailNext(id string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = append(f.scripts[id], errs...)
}

func (f *Fake) scripted(id string) error {
	errs := f.scripts[id]
	if len(errs) == 0 {
		return nil
	}
	f.scripts[id] = errs[1:]
	return errs[0]
}

// Calls returns how many lookups were served.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Payment(_ context.Context, paymentID string) (*provider.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if err := f.scripted(paymentID); err != nil {
		return nil, err
	}

	p, ok := f.payments[paymentID]
	if !ok {
		return nil, provider.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) SearchByOrder(_ context.Context, orderID string) (*provider.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if err := f.scripted(orderID); err != nil {
		return nil, err
	}

	for _, p := range f.payments {
		if p.OrderRef == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, provider.ErrPaymentNotFound
}

// ParseNotification accepts {"payment_id": "...", "order_ref": "..."}.
func (f *Fake) ParseNotification(body []byte, _ url.Values) (*provider.Notification, error) {
	var in struct {
		PaymentID string `json:"payment_id"`
		OrderRef  string `json:"order_ref"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformed, err)
	}
	if in.PaymentID == "" {
		return nil, fmt.Errorf("%w: missing payment_id", provider.ErrMalformed)
	}
	return &provider.Notification{PaymentID: in.PaymentID, OrderRef: in.OrderRef}, nil
}
