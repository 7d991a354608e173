package ledger

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mbd888/ledgerlens/internal/metrics"
)

// RunCache memoizes a Source for the lifetime of one analysis run. Results
// and ErrNotFound are cached; transient errors are not, so a later request
// for the same account may succeed. Concurrent identical requests share one
// upstream call.
type RunCache struct {
	src   Source
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	val any
	err error
}

// NewRunCache wraps src. Discard the cache when the run ends.
func NewRunCache(src Source) *RunCache {
	return &RunCache{src: src, entries: make(map[string]cacheEntry)}
}

// Len returns the number of cached responses.
func (c *RunCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func memo[T any](c *RunCache, method, key string, fetch func() (T, error)) (T, error) {
	k := method + "|" + key

	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		c.mu.Unlock()
		metrics.LedgerCacheHitsTotal.WithLabelValues(method).Inc()
		v, _ := e.val.(T)
		return v, e.err
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(k, func() (any, error) {
		c.mu.Lock()
		e, ok := c.entries[k]
		c.mu.Unlock()
		if ok {
			return e.val, e.err
		}
		v, err := fetch()
		if err == nil || errors.Is(err, ErrNotFound) {
			c.mu.Lock()
			c.entries[k] = cacheEntry{val: v, err: err}
			c.mu.Unlock()
		}
		return v, err
	})
	out, _ := v.(T)
	return out, err
}

func (c *RunCache) IsValidAddress(id string) bool {
	return c.src.IsValidAddress(id)
}

func (c *RunCache) AccountInfo(ctx context.Context, id string) (*AccountInfo, error) {
	return memo(c, "account_info", BaseAddress(id), func() (*AccountInfo, error) {
		return c.src.AccountInfo(ctx, id)
	})
}

func (c *RunCache) AccountTransactions(ctx context.Context, id string, limit int) ([]Transaction, error) {
	return memo(c, "account_tx", BaseAddress(id)+"|"+strconv.Itoa(limit), func() ([]Transaction, error) {
		return c.src.AccountTransactions(ctx, id, limit)
	})
}

func (c *RunCache) EarliestTransactions(ctx context.Context, id string, limit int) (*TransactionPage, error) {
	return memo(c, "account_tx_forward", BaseAddress(id)+"|"+strconv.Itoa(limit), func() (*TransactionPage, error) {
		return c.src.EarliestTransactions(ctx, id, limit)
	})
}

func (c *RunCache) RecentTransactions(ctx context.Context, id string, limit int, marker string) (*TransactionPage, error) {
	return memo(c, "account_tx_page", BaseAddress(id)+"|"+strconv.Itoa(limit)+"|"+marker, func() (*TransactionPage, error) {
		return c.src.RecentTransactions(ctx, id, limit, marker)
	})
}

func (c *RunCache) Trustlines(ctx context.Context, id string) ([]Trustline, error) {
	return memo(c, "account_lines", BaseAddress(id), func() ([]Trustline, error) {
		return c.src.Trustlines(ctx, id)
	})
}

func (c *RunCache) IssuedAssets(ctx context.Context, id string) ([]IssuedAsset, error) {
	return memo(c, "gateway_balances", BaseAddress(id), func() ([]IssuedAsset, error) {
		return c.src.IssuedAssets(ctx, id)
	})
}

func (c *RunCache) AssetFirstTransactions(ctx context.Context, issuer, code string, limit int) ([]Transaction, error) {
	return memo(c, "asset_first_tx", BaseAddress(issuer)+"|"+code+"|"+strconv.Itoa(limit), func() ([]Transaction, error) {
		return c.src.AssetFirstTransactions(ctx, issuer, code, limit)
	})
}
