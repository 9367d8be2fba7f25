package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/cache"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/resilience"
)

// Cached consults a cache before calling the wrapped provider. Successful
// lookups are stored, empty ones included; failures are not.
type Cached struct {
	Provider
	cache *cache.Cache
}

// NewCached wraps p with c.
func NewCached(p Provider, c *cache.Cache) *Cached {
	return &Cached{Provider: p, cache: c}
}

// Resolve implements Provider.
func (c *Cached) Resolve(ctx context.Context, name string) (model.Attributes, error) {
	if attrs, ok := c.cache.Get(ctx, c.Name(), name); ok {
		return attrs, nil
	}
	attrs, err := c.Provider.Resolve(ctx, name)
	if err != nil {
		return model.Attributes{}, err
	}
	c.cache.Set(ctx, c.Name(), name, attrs)
	return attrs, nil
}

// Guarded short-circuits a provider that keeps failing. Empty results count
// as success; only errors trip the breaker.
type Guarded struct {
	Provider
	breaker *resilience.Breaker
}

// NewGuarded wraps p with the breaker registered for its name.
func NewGuarded(p Provider, breakers *resilience.ProviderBreakers) *Guarded {
	return &Guarded{Provider: p, breaker: breakers.Get(p.Name())}
}

// Resolve implements Provider.
func (g *Guarded) Resolve(ctx context.Context, name string) (model.Attributes, error) {
	attrs, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (model.Attributes, error) {
		return g.Provider.Resolve(ctx, name)
	})
	if eris.Is(err, resilience.ErrCircuitOpen) {
		return model.Attributes{}, eris.Wrapf(err, "%s: skipped", g.Name())
	}
	return attrs, err
}

// Decorate applies the circuit breaker and then the cache around p. Either
// may be nil. Cache hits never touch the breaker.
func Decorate(p Provider, c *cache.Cache, breakers *resilience.ProviderBreakers) Provider {
	if breakers != nil {
		p = NewGuarded(p, breakers)
	}
	if c != nil {
		p = NewCached(p, c)
	}
	return p
}
