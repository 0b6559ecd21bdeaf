package feed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"credit-automation/internal/domain"
	"credit-automation/internal/trigger"
)

// DefaultCacheTTL is how long a reading is served without asking the node again.
const DefaultCacheTTL = 5 * time.Second

type cacheKey struct {
	kind    domain.TriggerKind
	subject trigger.Subject
}

// newCacheKey keeps only the subject fields the reading depends on, so a
// streamed price keyed by asset serves a trigger read that also names an owner.
func newCacheKey(kind domain.TriggerKind, subject trigger.Subject) cacheKey {
	switch kind {
	case domain.TriggerPrice:
		subject = trigger.Subject{Asset: subject.Asset}
	case domain.TriggerRatioState:
		subject = trigger.Subject{Owner: subject.Owner}
	case domain.TriggerGasPrice, domain.TriggerTimestamp:
		subject = trigger.Subject{}
	}
	return cacheKey{kind: kind, subject: subject}
}

type cacheEntry struct {
	value decimal.Decimal
	at    time.Time
}

// CachingReader serves recent readings from memory and falls through to the
// wrapped Reader when an entry is missing or older than the TTL. Streamed
// readings can be fed in with Observe or Pump.
type CachingReader struct {
	next trigger.Reader
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

// NewCachingReader wraps next. A ttl <= 0 uses DefaultCacheTTL.
func NewCachingReader(next trigger.Reader, ttl time.Duration) *CachingReader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingReader{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// ReadExternalValue implements trigger.Reader.
func (c *CachingReader) ReadExternalValue(ctx context.Context, kind domain.TriggerKind, subject trigger.Subject) (decimal.Decimal, error) {
	key := newCacheKey(kind, subject)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.at) < c.ttl {
		return e.value, nil
	}

	v, err := c.next.ReadExternalValue(ctx, kind, subject)
	if err != nil {
		return decimal.Zero, err
	}
	c.Observe(Reading{Kind: kind, Subject: subject, Value: v})
	return v, nil
}

// Observe stores a reading as the latest value for its key.
func (c *CachingReader) Observe(r Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[newCacheKey(r.Kind, r.Subject)] = cacheEntry{value: r.Value, at: c.now()}
}

// Invalidate drops every cached reading.
func (c *CachingReader) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

// Pump copies streamed readings into the cache until ch closes or ctx is done.
func (c *CachingReader) Pump(ctx context.Context, ch <-chan Reading) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(r)
		}
	}
}

var _ trigger.Reader = (*CachingReader)(nil)
