package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/provider"
	"github.com/sells-group/company-intel/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Fetch: config.FetchConfig{
			UserAgent:     "company-intel-test",
			Concurrency:   2,
			MaxAttempts:   3,
			BackoffUnitMs: 10,
			MaxBackoffMs:  100,
			TimeoutSecs:   5,
			MaxBodyMB:     1,
		},
		Enrich:     config.EnrichConfig{BatchSize: 4, JitterMinMs: 10, JitterMaxMs: 20},
		Similarity: config.SimilarityConfig{TopN: 3},
		Cache:      config.CacheConfig{Enabled: true, NegativeTTLMins: 30},
		Circuit:    config.CircuitConfig{FailureThreshold: 3, ResetTimeoutSecs: 10},
		Store:      config.StoreConfig{Driver: "memory"},
	}
}

func TestInitStore_Memory(t *testing.T) {
	st, err := initStore(context.Background(), testConfig())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*store.MemoryStore)
	assert.True(t, ok)
}

func TestInitStore_SQLite(t *testing.T) {
	c := testConfig()
	c.Store.Driver = "sqlite"
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "intel.db")

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, got.Names)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	c := testConfig()
	c.Store.Driver = "mongo"

	_, err := initStore(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestFetchOptions(t *testing.T) {
	c := testConfig()
	c.Fetch.HostRates = []config.HostRate{
		{Host: "en.wikipedia.org", RPS: 1},
		{Host: "example.com", RPS: 7},
	}

	opts := fetchOptions(c)
	assert.Equal(t, "company-intel-test", opts.UserAgent)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 2, opts.Concurrency)
	assert.Equal(t, int64(1<<20), opts.MaxBodyBytes)
	assert.Equal(t, 3, opts.Retry.MaxAttempts)
	assert.InDelta(t, 1.0, opts.HostRates["en.wikipedia.org"], 1e-9)
	assert.InDelta(t, 7.0, opts.HostRates["example.com"], 1e-9)
	assert.InDelta(t, 5.0, opts.HostRates["www.wikidata.org"], 1e-9)
}

func TestEnrichOptions(t *testing.T) {
	c := testConfig()
	c.Enrich.IncludeMarket = true
	c.Similarity.Stem = true

	opts := enrichOptions(c)
	assert.Equal(t, 4, opts.BatchSize)
	assert.True(t, opts.IncludeMarket)
	assert.Equal(t, 10*time.Millisecond, opts.JitterMin)
	assert.Equal(t, 20*time.Millisecond, opts.JitterMax)
	assert.Equal(t, 3, opts.Similarity.TopN)
	assert.True(t, opts.Similarity.Stem)
}

func TestInitEnrich(t *testing.T) {
	env, err := initEnrich(context.Background(), testConfig())
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Cache)
	assert.NotNil(t, env.Breakers)
	assert.Equal(t, provider.Order, env.Orchestrator.Providers())
}

func TestInitEnrich_CacheDisabled(t *testing.T) {
	c := testConfig()
	c.Cache.Enabled = false

	env, err := initEnrich(context.Background(), c)
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Cache)
}
