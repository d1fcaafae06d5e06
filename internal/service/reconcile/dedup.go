package reconcile

import (
	"context"
	"sync"
	"time"
)

// Deduper remembers (payment, order) pairs that already reached COMPLETED so
// duplicate deliveries can be answered without touching the ledger. It is a
// burst filter, never the idempotency guarantee.
type Deduper interface {
	Seen(ctx context.Context, paymentID, orderID string) (token string, ok bool, err error)
	Mark(ctx context.Context, paymentID, orderID, token string) error
}

type MemoryDeduperConfig struct {
	TTL        time.Duration
	MaxEntries int
	MaxAge     time.Duration
}

type dedupEntry struct {
	key   string
	token string
	at    time.Time
}

// MemoryDeduper is a per-process Deduper bounded in size and age.
type MemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]*dedupEntry
	order   []*dedupEntry // insertion order, oldest first
	cfg     MemoryDeduperConfig
	now     func() time.Time
}

func NewMemoryDeduper(cfg MemoryDeduperConfig) *MemoryDeduper {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}

	return &MemoryDeduper{
		entries: make(map[string]*dedupEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (d *MemoryDeduper) Seen(_ context.Context, paymentID, orderID string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[dedupKey(paymentID, orderID)]
	if !ok || d.now().Sub(e.at) > d.cfg.TTL {
		return "", false, nil
	}

	return e.token, true, nil
}

func (d *MemoryDeduper) Mark(_ context.Context, paymentID, orderID, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := dedupKey(paymentID, orderID)

	if e, ok := d.entries[key]; ok && now.Sub(e.at) <= d.cfg.TTL {
		return nil
	}

	d.drop(key)
	e := &dedupEntry{key: key, token: token, at: now}
	d.entries[key] = e
	d.order = append(d.order, e)

	d.evict(now)

	return nil
}

// Len reports how many markers are held.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *MemoryDeduper) evict(now time.Time) {
	i := 0
	for i < len(d.order) {
		e := d.order[i]
		if len(d.order)-i <= d.cfg.MaxEntries && now.Sub(e.at) <= d.cfg.MaxAge {
			break
		}
		delete(d.entries, e.key)
		i++
	}
	if i > 0 {
		d.order = append(d.order[:0:0], d.order[i:]...)
	}
}

func (d *MemoryDeduper) drop(key string) {
	if _, ok := d.entries[key]; !ok {
		return
	}
	delete(d.entries, key)
	for i, e := range d.order {
		if e.key == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

func dedupKey(paymentID, orderID string) string {
	return paymentID + "\x00" + orderID
}
