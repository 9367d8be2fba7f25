package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/cache"
	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/enrich"
	"github.com/sells-group/company-intel/internal/fetcher"
	"github.com/sells-group/company-intel/internal/provider"
	"github.com/sells-group/company-intel/internal/resilience"
	"github.com/sells-group/company-intel/internal/similarity"
	"github.com/sells-group/company-intel/internal/store"
)

// enrichEnv holds everything the enrich and serve commands need.
type enrichEnv struct {
	Store        store.Store
	Fetcher      *fetcher.HTTPFetcher
	Cache        *cache.Cache
	Breakers     *resilience.ProviderBreakers
	Orchestrator *enrich.Orchestrator
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Fetcher != nil {
		e.Fetcher.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "", "memory":
		st = store.NewMemory()
	case "sqlite":
		st, err = store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// fetchOptions maps fetch settings onto the HTTP fetcher.
func fetchOptions(c *config.Config) fetcher.HTTPOptions {
	rates := fetcher.DefaultHostRates()
	for _, hr := range c.Fetch.HostRates {
		rates[hr.Host] = hr.RPS
	}
	return fetcher.HTTPOptions{
		UserAgent:    c.Fetch.UserAgent,
		Timeout:      time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		Concurrency:  c.Fetch.Concurrency,
		Retry:        resilience.FromRetryConfig(c.Fetch.MaxAttempts, c.Fetch.BackoffUnitMs, c.Fetch.MaxBackoffMs),
		HostRates:    rates,
		MaxBodyBytes: int64(c.Fetch.MaxBodyMB) << 20,
	}
}

// enrichOptions maps enrich and similarity settings onto the orchestrator.
func enrichOptions(c *config.Config) enrich.Options {
	return enrich.Options{
		BatchSize:     c.Enrich.BatchSize,
		IncludeMarket: c.Enrich.IncludeMarket,
		JitterMin:     time.Duration(c.Enrich.JitterMinMs) * time.Millisecond,
		JitterMax:     time.Duration(c.Enrich.JitterMaxMs) * time.Millisecond,
		Similarity: similarity.Options{
			TopN: c.Similarity.TopN,
			Stem: c.Similarity.Stem,
		},
	}
}

// buildRegistry registers the four providers, each behind its circuit
// breaker and the shared cache.
func buildRegistry(c *config.Config, f fetcher.Getter, lookups *cache.Cache, breakers *resilience.ProviderBreakers) *provider.Registry {
	p := c.Providers
	reg := provider.NewRegistry()
	for _, prov := range []provider.Provider{
		provider.NewOpenCorporates(f,
			provider.WithBaseURL(p.OpenCorporates.BaseURL),
			provider.WithAPIToken(p.OpenCorporates.APIToken),
			provider.WithTimeout(p.OpenCorporates.Timeout()),
		),
		provider.NewWikidata(f,
			provider.WithBaseURL(p.Wikidata.BaseURL),
			provider.WithAPIURL(p.Wikidata.APIURL),
			provider.WithTimeout(p.Wikidata.Timeout()),
		),
		provider.NewWikipedia(f,
			provider.WithBaseURL(p.Wikipedia.BaseURL),
			provider.WithTimeout(p.Wikipedia.Timeout()),
		),
		provider.NewYahoo(f,
			provider.WithBaseURL(p.Yahoo.BaseURL),
			provider.WithTimeout(p.Yahoo.Timeout()),
		),
	} {
		reg.Register(provider.Decorate(prov, lookups, breakers))
	}
	return reg
}

// initEnrich wires the store, fetcher, cache, breakers and orchestrator.
// Callers should defer env.Close().
func initEnrich(ctx context.Context, c *config.Config) (*enrichEnv, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}

	env := &enrichEnv{
		Store:    st,
		Fetcher:  fetcher.NewHTTPFetcher(fetchOptions(c)),
		Breakers: resilience.NewProviderBreakers(resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)),
	}

	if c.Cache.Enabled {
		env.Cache = cache.New(st, cache.Options{
			PositiveTTL: c.Cache.PositiveTTL(),
			NegativeTTL: c.Cache.NegativeTTL(),
		})
	} else {
		zap.L().Debug("lookup cache disabled")
	}

	reg := buildRegistry(c, env.Fetcher, env.Cache, env.Breakers)
	env.Orchestrator = enrich.NewOrchestrator(reg, enrichOptions(c))

	zap.L().Info("enrichment ready",
		zap.String("store", c.Store.Driver),
		zap.Strings("providers", env.Orchestrator.Providers()),
		zap.Bool("cache", env.Cache != nil),
	)
	return env, nil
}
