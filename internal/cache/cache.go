// Package cache memoizes provider lookups keyed by provider and normalized
// company name. Empty results are cached too, with a shorter lifetime, so a
// company that no source knows about is not re-fetched on every run.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
)

// Key identifies one cached lookup.
type Key struct {
	Provider string
	Name     string
}

func (k Key) String() string {
	return k.Provider + "|" + k.Name
}

// Entry is a stored lookup result.
type Entry struct {
	Key
	Attributes model.Attributes
	StoredAt   time.Time
	// ExpiresAt is zero for entries that never expire.
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Negative reports whether the entry records an empty result.
func (e Entry) Negative() bool {
	return e.Attributes.IsEmpty()
}

// Store is the backing storage for a Cache. Implementations must be safe for
// concurrent use. GetLookup returns nil, nil on a miss.
type Store interface {
	GetLookup(ctx context.Context, key Key) (*Entry, error)
	SetLookup(ctx context.Context, entry Entry) error
	DeleteExpiredLookups(ctx context.Context) (int, error)
}

// Options tunes entry lifetimes.
type Options struct {
	// PositiveTTL bounds non-empty entries. Zero means they never expire.
	PositiveTTL time.Duration
	// NegativeTTL bounds empty entries. Zero uses the 1h default; a negative
	// value disables negative caching.
	NegativeTTL time.Duration
}

// DefaultNegativeTTL is how long an empty lookup result is trusted.
const DefaultNegativeTTL = time.Hour

// Cache is the explicit lookup cache shared by all providers in a process.
type Cache struct {
	store Store
	opts  Options
	now   func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache over store. A nil store gets an in-memory one.
func New(store Store, opts Options) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.NegativeTTL == 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	return &Cache{store: store, opts: opts, now: time.Now}
}

// Get returns the cached attributes for (provider, name). Store failures are
// logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, provider, name string) (model.Attributes, bool) {
	key := Key{Provider: provider, Name: name}
	entry, err := c.store.GetLookup(ctx, key)
	if err != nil {
		zap.L().Warn("cache: lookup failed", zap.String("key", key.String()), zap.Error(err))
		c.misses.Add(1)
		return model.Attributes{}, false
	}
	if entry == nil || entry.Expired(c.now()) {
		c.misses.Add(1)
		return model.Attributes{}, false
	}
	c.hits.Add(1)
	return entry.Attributes, true
}

// Set stores attrs for (provider, name) under the positive or negative
// lifetime depending on whether attrs is empty.
func (c *Cache) Set(ctx context.Context, provider, name string, attrs model.Attributes) {
	now := c.now()
	entry := Entry{
		Key:        Key{Provider: provider, Name: name},
		Attributes: attrs,
		StoredAt:   now,
	}
	if attrs.IsEmpty() {
		if c.opts.NegativeTTL < 0 {
			return
		}
		entry.ExpiresAt = now.Add(c.opts.NegativeTTL)
	} else if c.opts.PositiveTTL > 0 {
		entry.ExpiresAt = now.Add(c.opts.PositiveTTL)
	}

	if err := c.store.SetLookup(ctx, entry); err != nil {
		zap.L().Warn("cache: store failed", zap.String("key", entry.Key.String()), zap.Error(err))
	}
}

// Purge removes expired entries from the backing store.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	return c.store.DeleteExpiredLookups(ctx)
}

// Stats returns hit and miss counts since the cache was created.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
