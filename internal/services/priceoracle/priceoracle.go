// Package priceoracle caches the market-price quote spec.md §4.7 step 4
// needs for dynamic-pricing advertisements: a single upstream fetch per
// TTL window, shared across every concurrent caller via singleflight so a
// cache miss under load never fans out into N identical requests.
package priceoracle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/b2pix/engine/internal/apperr"
)

// Quoter fetches the current market price (in cents) for a token/currency
// pair from whatever upstream feed is configured; out of scope per
// spec.md §1, modeled here as a narrow function type so the oracle never
// owns the feed's wire format.
type Quoter func(ctx context.Context, token, currency string) (priceCents int64, err error)

const defaultTTL = 30 * time.Second

type cacheEntry struct {
	priceCents int64
	fetchedAt  time.Time
}

// Oracle is a TTL-cached, singleflight-deduplicated quote source.
type Oracle struct {
	quote Quoter
	ttl   time.Duration
	clock func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry

	group singleflight.Group
}

// New builds an Oracle around quote with the default 30s TTL from
// spec.md §4.7 step 4.
func New(quote Quoter) *Oracle {
	return &Oracle{quote: quote, ttl: defaultTTL, clock: time.Now, cache: make(map[string]cacheEntry)}
}

func cacheKey(token, currency string) string { return token + "/" + currency }

// Price returns the cached quote for token/currency, refreshing it if
// stale. Concurrent callers racing a stale entry collapse onto one
// upstream fetch.
func (o *Oracle) Price(ctx context.Context, token, currency string) (int64, error) {
	key := cacheKey(token, currency)

	o.mu.RLock()
	entry, ok := o.cache[key]
	o.mu.RUnlock()
	if ok && o.clock().Sub(entry.fetchedAt) < o.ttl {
		return entry.priceCents, nil
	}

	result, err, _ := o.group.Do(key, func() (interface{}, error) {
		price, err := o.quote(ctx, token, currency)
		if err != nil {
			return nil, apperr.Wrap(apperr.ExternalRetryable, err, "fetch market price for %s/%s", token, currency)
		}
		o.mu.Lock()
		o.cache[key] = cacheEntry{priceCents: price, fetchedAt: o.clock()}
		o.mu.Unlock()
		return price, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}
