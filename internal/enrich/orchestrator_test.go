package enrich

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Provider Mock ---

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Resolve(ctx context.Context, name string) (model.Attributes, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(model.Attributes), args.Error(1)
}

// funcProvider adapts a function to provider.Provider.
type funcProvider struct {
	name string
	fn   func(ctx context.Context, name string) (model.Attributes, error)
}

func (f funcProvider) Name() string { return f.name }

func (f funcProvider) Resolve(ctx context.Context, name string) (model.Attributes, error) {
	return f.fn(ctx, name)
}

func empty(context.Context, string) (model.Attributes, error) { return model.Attributes{}, nil }

func newRegistry(ps ...provider.Provider) *provider.Registry {
	reg := provider.NewRegistry()
	for _, p := range ps {
		reg.Register(p)
	}
	return reg
}

func noJitter() Options {
	return Options{BatchSize: DefaultBatchSize}
}

func TestNewOrchestrator_MarketOptIn(t *testing.T) {
	reg := newRegistry(
		funcProvider{provider.NameYahoo, empty},
		funcProvider{provider.NameWikipedia, empty},
		funcProvider{provider.NameOpenCorporates, empty},
		funcProvider{provider.NameWikidata, empty},
	)

	o := NewOrchestrator(reg, noJitter())
	assert.Equal(t, []string{"opencorporates", "wikidata", "wikipedia"}, o.Providers())

	opts := noJitter()
	opts.IncludeMarket = true
	o = NewOrchestrator(reg, opts)
	assert.Equal(t, []string{"opencorporates", "wikidata", "wikipedia", "yahoo"}, o.Providers())
}

func TestEnrichAll_MergeOrderIsFixed(t *testing.T) {
	// The market provider answers first but still loses every contested field.
	slow := func(v string, delay time.Duration) funcProvider {
		return funcProvider{fn: func(context.Context, string) (model.Attributes, error) {
			time.Sleep(delay)
			return model.Attributes{Website: model.String(v), Industry: model.String(v)}, nil
		}}
	}
	oc := slow("registry", 20*time.Millisecond)
	oc.name = provider.NameOpenCorporates
	wd := funcProvider{name: provider.NameWikidata, fn: func(context.Context, string) (model.Attributes, error) {
		return model.Attributes{Website: model.String("kb"), FoundingYear: model.String("1999")}, nil
	}}
	wp := slow("infobox", 10*time.Millisecond)
	wp.name = provider.NameWikipedia
	yh := funcProvider{name: provider.NameYahoo, fn: func(context.Context, string) (model.Attributes, error) {
		return model.Attributes{Industry: model.String("market"), MarketCap: model.Float(5e9)}, nil
	}}

	opts := noJitter()
	opts.IncludeMarket = true
	o := NewOrchestrator(newRegistry(yh, wp, wd, oc), opts)

	out, stats := o.EnrichAll(context.Background(), []string{"Acme Ltd"})
	require.Len(t, out, 1)
	c := out[0]
	assert.Equal(t, "Acme", c.CompanyName)
	assert.Equal(t, "Acme Ltd", c.Query)
	assert.Equal(t, "registry", *c.Website)
	assert.Equal(t, "registry", *c.Industry)
	assert.Equal(t, "1999", *c.FoundingYear)
	assert.Equal(t, 5e9, *c.MarketCap)
	assert.Equal(t, []string{"opencorporates", "wikidata", "yahoo"}, c.Sources)
	assert.Equal(t, 4, stats.FieldsFilled)
	assert.Equal(t, 1, stats.Providers["wikipedia"].Hits)
}

func TestEnrichAll_NormalizesBeforeLookup(t *testing.T) {
	m := &mockProvider{name: provider.NameWikidata}
	m.On("Resolve", mock.Anything, "Globex").Return(model.Attributes{Country: model.String("US")}, nil).Once()

	o := NewOrchestrator(newRegistry(m), noJitter())
	out, _ := o.EnrichAll(context.Background(), []string{"  globex inc. "})

	require.Len(t, out, 1)
	assert.Equal(t, "Globex", out[0].CompanyName)
	assert.Equal(t, "US", *out[0].Country)
	m.AssertExpectations(t)
}

func TestEnrichAll_FailuresDegradeToEmpty(t *testing.T) {
	bad := &mockProvider{name: provider.NameOpenCorporates}
	bad.On("Resolve", mock.Anything, mock.Anything).Return(model.Attributes{}, errors.New("boom"))
	good := &mockProvider{name: provider.NameWikipedia}
	good.On("Resolve", mock.Anything, mock.Anything).Return(model.Attributes{Headquarters: model.String("Leeds")}, nil)
	none := &mockProvider{name: provider.NameWikidata}
	none.On("Resolve", mock.Anything, mock.Anything).Return(model.Attributes{}, nil)

	o := NewOrchestrator(newRegistry(bad, good, none), noJitter())
	out, stats := o.EnrichAll(context.Background(), []string{"Acme", "Globex"})

	require.Len(t, out, 2)
	for _, c := range out {
		assert.Equal(t, "Leeds", *c.Headquarters)
		assert.Nil(t, c.Website)
	}
	assert.Equal(t, ProviderStats{Errors: 2}, stats.Providers["opencorporates"])
	assert.Equal(t, ProviderStats{Misses: 2}, stats.Providers["wikidata"])
	assert.Equal(t, ProviderStats{Hits: 2}, stats.Providers["wikipedia"])
	assert.Equal(t, 2, stats.Companies)
	assert.Equal(t, 1, stats.Batches)
}

func TestEnrichAll_BatchesAreSequential(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	var order []string

	p := funcProvider{name: provider.NameWikidata, fn: func(_ context.Context, name string) (model.Attributes, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		inFlight.Add(-1)
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return model.Attributes{}, nil
	}}

	o := NewOrchestrator(newRegistry(p), Options{BatchSize: 2})
	names := []string{"A1", "A2", "B1", "B2", "C1"}
	out, stats := o.EnrichAll(context.Background(), names)

	assert.Equal(t, 3, stats.Batches)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(2), peak.Load())
	for i, c := range out {
		assert.Equal(t, names[i], c.CompanyName, "output keeps input order")
	}
	require.Len(t, order, 5)
	assert.ElementsMatch(t, []string{"A1", "A2"}, order[:2])
	assert.ElementsMatch(t, []string{"B1", "B2"}, order[2:4])
	assert.Equal(t, "C1", order[4])
}

func TestEnrichAll_NoDataScenario(t *testing.T) {
	reg := newRegistry(
		funcProvider{provider.NameOpenCorporates, empty},
		funcProvider{provider.NameWikidata, empty},
		funcProvider{provider.NameWikipedia, empty},
	)
	o := NewOrchestrator(reg, noJitter())

	report, _ := o.Run(context.Background(), []string{"Acme Ltd", "Globex Inc"})
	require.Len(t, report.Companies, 2)
	assert.Equal(t, "Acme", report.Companies[0].CompanyName)
	assert.Equal(t, "Globex", report.Companies[1].CompanyName)
	for _, c := range report.Companies {
		assert.True(t, c.IsEmpty())
		assert.Equal(t, []string{}, c.Competitors)
	}
	assert.Equal(t, model.CompetitorMap{"Acme": {}, "Globex": {}}, report.Competitors)
}

func TestRun_AnnotatesCompetitors(t *testing.T) {
	p := funcProvider{name: provider.NameWikidata, fn: func(_ context.Context, name string) (model.Attributes, error) {
		if name == "Initech" {
			return model.Attributes{Industry: model.String("Retail"), Country: model.String("France")}, nil
		}
		return model.Attributes{Industry: model.String("Software"), Country: model.String("USA")}, nil
	}}
	opts := noJitter()
	opts.Similarity.TopN = 1
	o := NewOrchestrator(newRegistry(p), opts)

	report, stats := o.Run(context.Background(), []string{"Acme", "Globex", "Initech"})
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, report.RunID, stats.RunID)
	assert.Equal(t, model.RunStatusComplete, report.Status)
	assert.Equal(t, []string{"Globex"}, report.Companies[0].Competitors)
	assert.Equal(t, []string{"Acme"}, report.Companies[1].Competitors)
	assert.Equal(t, []string{"Acme"}, report.Competitors["Initech"])
}

func TestEnrichAll_CancelledContext(t *testing.T) {
	m := &mockProvider{name: provider.NameWikidata}
	o := NewOrchestrator(newRegistry(m), noJitter())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, stats := o.EnrichAll(ctx, []string{"Acme", "Globex"})

	require.Len(t, out, 2)
	assert.Equal(t, "Globex", out[1].CompanyName)
	assert.Equal(t, 0, stats.FieldsFilled)
	m.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestEnrichAll_EmptyNameSkipsProviders(t *testing.T) {
	m := &mockProvider{name: provider.NameWikidata}
	o := NewOrchestrator(newRegistry(m), noJitter())

	out, _ := o.EnrichAll(context.Background(), []string{"Inc."})
	require.Len(t, out, 1)
	assert.Equal(t, "", out[0].CompanyName)
	assert.Equal(t, "Inc.", out[0].Query)
	m.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestEnrichAll_Jitter(t *testing.T) {
	var slept []time.Duration
	var mu sync.Mutex
	o := NewOrchestrator(newRegistry(funcProvider{provider.NameWikidata, empty}),
		Options{BatchSize: 5, JitterMin: 50 * time.Millisecond, JitterMax: 250 * time.Millisecond})
	o.sleep = func(_ context.Context, d time.Duration) {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
	}

	o.EnrichAll(context.Background(), []string{"A", "B", "C"})
	require.Len(t, slept, 3)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestEnrichAll_EmptyInput(t *testing.T) {
	o := NewOrchestrator(newRegistry(), DefaultOptions())
	out, stats := o.EnrichAll(context.Background(), nil)
	assert.Empty(t, out)
	assert.Equal(t, 0, stats.Batches)
	assert.Empty(t, stats.Providers)
}
