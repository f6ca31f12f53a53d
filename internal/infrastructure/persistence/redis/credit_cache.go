package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// PrefixCredit is the key prefix for cached credit entries.
const PrefixCredit = "credit:"

// Default TTLs for credit entries.
const (
	TTLCreditHit  = 24 * time.Hour
	TTLCreditMiss = 10 * time.Minute
)

// missMarker is stored for codes that no source knows about.
var missMarker = []byte("-")

// Store is the subset of Cache the credit cache needs.
type Store interface {
	MGet(ctx context.Context, keys ...string) (map[string][]byte, error)
	MSet(ctx context.Context, values map[string][]byte, ttl func(key string) time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

var _ Store = (*Cache)(nil)

// CreditKey returns the cache key for a paper code.
func CreditKey(code shared.PaperCode) string {
	return PrefixCredit + code.String()
}

// CreditCache caches catalog entries, remembering both found codes and codes
// that were looked up and found nowhere.
type CreditCache struct {
	store   Store
	hitTTL  time.Duration
	missTTL time.Duration
}

// NewCreditCache creates a credit cache. Non-positive TTLs fall back to the
// defaults.
func NewCreditCache(store Store, hitTTL, missTTL time.Duration) *CreditCache {
	if hitTTL <= 0 {
		hitTTL = TTLCreditHit
	}
	if missTTL <= 0 {
		missTTL = TTLCreditMiss
	}
	return &CreditCache{store: store, hitTTL: hitTTL, missTTL: missTTL}
}

// Get returns the cached entries for codes and the codes cached as known
// misses. Codes in neither result were not cached. Undecodable values are
// treated as not cached.
func (c *CreditCache) Get(ctx context.Context, codes []shared.PaperCode) (credit.Catalog, []shared.PaperCode, error) {
	found := credit.Catalog{}
	if len(codes) == 0 {
		return found, nil, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = CreditKey(code)
	}
	values, err := c.store.MGet(ctx, keys...)
	if err != nil {
		return nil, nil, err
	}

	var missing []shared.PaperCode
	for i, code := range codes {
		data, ok := values[keys[i]]
		if !ok {
			continue
		}
		if bytes.Equal(data, missMarker) {
			missing = append(missing, code)
			continue
		}
		var e credit.Entry
		if err := json.Unmarshal(data, &e); err != nil || e.IsFallback {
			continue
		}
		found[code] = e
	}
	return found, missing, nil
}

// Put caches found entries and known misses in one pipeline. Fallback
// entries are never cached.
func (c *CreditCache) Put(ctx context.Context, found credit.Catalog, missing []shared.PaperCode) error {
	values := make(map[string][]byte, len(found)+len(missing))
	for code, e := range found {
		if e.IsFallback {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		values[CreditKey(code)] = data
	}
	for _, code := range missing {
		if _, ok := found[code]; ok {
			continue
		}
		values[CreditKey(code)] = missMarker
	}

	return c.store.MSet(ctx, values, func(key string) time.Duration {
		if bytes.Equal(values[key], missMarker) {
			return c.missTTL
		}
		return c.hitTTL
	})
}

// Invalidate drops cached entries, including known misses, for codes whose
// catalog entry changed.
func (c *CreditCache) Invalidate(ctx context.Context, codes []shared.PaperCode) error {
	if len(codes) == 0 {
		return nil
	}
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = CreditKey(code)
	}
	return c.store.Delete(ctx, keys...)
}
