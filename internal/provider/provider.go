// Package provider defines the lookup interface for public company data
// sources and the adapters for each source.
package provider

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/fetcher"
	"github.com/sells-group/company-intel/internal/model"
)

// Provider names.
const (
	NameOpenCorporates = "opencorporates"
	NameWikidata       = "wikidata"
	NameWikipedia      = "wikipedia"
	NameYahoo          = "yahoo"
)

// Order is the fixed merge precedence: an earlier provider's value for a
// field is never replaced by a later one.
var Order = []string{NameOpenCorporates, NameWikidata, NameWikipedia, NameYahoo}

// Provider resolves a normalized company name to the attributes one source
// knows about. An empty result with a nil error means the source has nothing
// on the company. A non-nil error means the source could not be consulted;
// callers treat it as empty.
type Provider interface {
	// Name returns the provider identifier used in cache keys and logs.
	Name() string
	// Resolve looks up one company.
	Resolve(ctx context.Context, name string) (model.Attributes, error)
}

// Registry manages available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry, replacing any with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names in merge order. Names outside
// Order follow, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		ra, rb := rank(a), rank(b)
		if ra != rb {
			return ra - rb
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return names
}

// Ordered returns the registered providers in merge order.
func (r *Registry) Ordered() []Provider {
	names := r.List()
	out := make([]Provider, 0, len(names))
	for _, n := range names {
		if p := r.Get(n); p != nil {
			out = append(out, p)
		}
	}
	return out
}

func rank(name string) int {
	if i := slices.Index(Order, name); i >= 0 {
		return i
	}
	return len(Order)
}

// Option configures an adapter.
type Option func(*options)

type options struct {
	baseURL  string
	apiURL   string
	apiToken string
	timeout  time.Duration
}

// WithBaseURL overrides the adapter's base URL.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithAPIURL overrides the API endpoint for adapters that use a separate one.
func WithAPIURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.apiURL = u
		}
	}
}

// WithAPIToken sets an optional API token.
func WithAPIToken(token string) Option {
	return func(o *options) { o.apiToken = token }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func applyOptions(base options, opts []Option) options {
	for _, fn := range opts {
		fn(&base)
	}
	return base
}

// fetchErr classifies a failed response. A permanent "not found" answer is
// not an error: the source simply has no such company.
func fetchErr(provider string, resp fetcher.Response) error {
	if resp.StatusCode == 404 || resp.StatusCode == 410 {
		return nil
	}
	if resp.Err != nil {
		return eris.Wrapf(resp.Err, "%s: fetch", provider)
	}
	return eris.Errorf("%s: fetch failed with status %d", provider, resp.StatusCode)
}

// text returns a trimmed copy of s, or nil when nothing remains.
func text(s string) *string {
	return model.String(strings.TrimSpace(s))
}
