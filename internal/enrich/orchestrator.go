// Package enrich runs every provider for a list of company names, merges the
// results and builds the competitor map.
package enrich

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/normalize"
	"github.com/sells-group/company-intel/internal/provider"
	"github.com/sells-group/company-intel/internal/similarity"
)

// Defaults.
const (
	DefaultBatchSize = 20
	DefaultJitterMin = 50 * time.Millisecond
	DefaultJitterMax = 250 * time.Millisecond
)

// Options configures an Orchestrator.
type Options struct {
	// BatchSize is how many companies are enriched concurrently.
	BatchSize int
	// IncludeMarket enables the market-data provider.
	IncludeMarket bool
	// JitterMin and JitterMax bound the random pause before each company's
	// lookups. JitterMax of zero disables the pause.
	JitterMin time.Duration
	JitterMax time.Duration
	// Similarity tunes the competitor map built by Run.
	Similarity similarity.Options
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BatchSize: DefaultBatchSize,
		JitterMin: DefaultJitterMin,
		JitterMax: DefaultJitterMax,
		Similarity: similarity.Options{
			TopN: similarity.DefaultTopN,
		},
	}
}

// ProviderStats counts the outcomes of one provider's lookups.
type ProviderStats struct {
	Hits   int `json:"hits" yaml:"hits"`
	Misses int `json:"misses" yaml:"misses"`
	Errors int `json:"errors" yaml:"errors"`
}

// Stats summarizes an enrichment pass.
type Stats struct {
	RunID        string                   `json:"run_id" yaml:"run_id"`
	Companies    int                      `json:"companies" yaml:"companies"`
	Batches      int                      `json:"batches" yaml:"batches"`
	FieldsFilled int                      `json:"fields_filled" yaml:"fields_filled"`
	Providers    map[string]ProviderStats `json:"providers" yaml:"providers"`
	Duration     time.Duration            `json:"duration" yaml:"duration"`
}

// Orchestrator enriches company names with every configured provider.
type Orchestrator struct {
	providers []provider.Provider
	opts      Options

	// sleep pauses for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewOrchestrator creates an orchestrator over the registry's providers in
// merge order. The market-data provider is skipped unless IncludeMarket is
// set.
func NewOrchestrator(reg *provider.Registry, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.JitterMin < 0 {
		opts.JitterMin = 0
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}

	var ps []provider.Provider
	for _, p := range reg.Ordered() {
		if p.Name() == provider.NameYahoo && !opts.IncludeMarket {
			continue
		}
		ps = append(ps, p)
	}
	return &Orchestrator{providers: ps, opts: opts, sleep: sleepCtx}
}

// Providers returns the names of the providers that will be consulted, in
// merge order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}

// EnrichAll returns one record per input name, in input order. Batches run
// one after another; the companies of a batch run concurrently. Provider
// failures are logged and treated as empty results. If ctx is cancelled the
// remaining companies get records holding only their name.
func (o *Orchestrator) EnrichAll(ctx context.Context, names []string) ([]model.EnrichedCompany, Stats) {
	start := time.Now()
	col := newCollector(o.Providers())
	out := make([]model.EnrichedCompany, len(names))
	batches := 0

	for lo := 0; lo < len(names); lo += o.opts.BatchSize {
		hi := min(lo+o.opts.BatchSize, len(names))

		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				out[i] = o.enrichOne(ctx, names[i], col)
				return nil
			})
		}
		_ = g.Wait()
		batches++

		zap.L().Info("enrich: batch complete",
			zap.Int("batch", batches),
			zap.Int("done", hi),
			zap.Int("total", len(names)),
		)
	}

	stats := col.snapshot()
	stats.Companies = len(names)
	stats.Batches = batches
	for _, c := range out {
		stats.FieldsFilled += c.Filled()
	}
	stats.Duration = time.Since(start)
	return out, stats
}

// Run enriches names, builds the competitor map and annotates each record
// with its competitors.
func (o *Orchestrator) Run(ctx context.Context, names []string) (*model.Report, Stats) {
	companies, stats := o.EnrichAll(ctx, names)
	competitors := similarity.Build(companies, o.opts.Similarity)
	for i := range companies {
		if list, ok := competitors[companies[i].CompanyName]; ok {
			companies[i].Competitors = list
		}
	}

	stats.RunID = uuid.NewString()
	zap.L().Info("enrich: run complete",
		zap.String("run_id", stats.RunID),
		zap.Int("companies", stats.Companies),
		zap.Int("fields_filled", stats.FieldsFilled),
		zap.Duration("duration", stats.Duration),
	)

	return &model.Report{
		RunID:       stats.RunID,
		Status:      model.RunStatusComplete,
		GeneratedAt: time.Now().UTC(),
		Companies:   companies,
		Competitors: competitors,
	}, stats
}

func (o *Orchestrator) enrichOne(ctx context.Context, raw string, col *collector) model.EnrichedCompany {
	name := normalize.Name(raw)
	rec := model.NewEnrichedCompany(name, raw)
	if name == "" || ctx.Err() != nil {
		return rec
	}

	if d := o.jitter(); d > 0 {
		o.sleep(ctx, d)
		if ctx.Err() != nil {
			return rec
		}
	}

	results := make([]model.Attributes, len(o.providers))
	var g errgroup.Group
	for i, p := range o.providers {
		g.Go(func() error {
			attrs, err := p.Resolve(ctx, name)
			switch {
			case err != nil:
				zap.L().Warn("enrich: provider failed",
					zap.String("provider", p.Name()),
					zap.String("company", name),
					zap.Error(err),
				)
				col.record(p.Name(), outcomeError)
			case attrs.IsEmpty():
				col.record(p.Name(), outcomeMiss)
			default:
				results[i] = attrs
				col.record(p.Name(), outcomeHit)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range o.providers {
		rec.Merge(p.Name(), results[i])
	}
	zap.L().Debug("enrich: company merged",
		zap.String("company", name),
		zap.Int("fields", rec.Filled()),
		zap.Strings("sources", rec.Sources),
	)
	return rec
}

func (o *Orchestrator) jitter() time.Duration {
	if o.opts.JitterMax <= 0 {
		return 0
	}
	span := o.opts.JitterMax - o.opts.JitterMin
	if span <= 0 {
		return o.opts.JitterMin
	}
	return o.opts.JitterMin + time.Duration(rand.Int64N(int64(span)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type outcome int

const (
	outcomeHit outcome = iota
	outcomeMiss
	outcomeError
)

type collector struct {
	mu    sync.Mutex
	stats map[string]ProviderStats
}

func newCollector(names []string) *collector {
	c := &collector{stats: make(map[string]ProviderStats, len(names))}
	for _, n := range names {
		c.stats[n] = ProviderStats{}
	}
	return c
}

func (c *collector) record(name string, o outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats[name]
	switch o {
	case outcomeHit:
		s.Hits++
	case outcomeMiss:
		s.Misses++
	case outcomeError:
		s.Errors++
	}
	c.stats[name] = s
}

func (c *collector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]ProviderStats, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return Stats{Providers: out}
}
