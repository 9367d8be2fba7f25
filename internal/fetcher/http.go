package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sells-group/company-intel/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	// Timeout bounds a single attempt. Default: 15s.
	Timeout time.Duration
	// Concurrency is the maximum number of requests in flight across all
	// callers. Default: 5.
	Concurrency int
	// Retry controls attempts and backoff. Zero value uses
	// resilience.DefaultRetryConfig.
	Retry resilience.RetryConfig
	// HostRates maps a host to its requests-per-second budget.
	HostRates map[string]float64
	// MaxBodyBytes caps how much of a response body is read. Default: 8 MiB.
	MaxBodyBytes int64
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// DefaultHostRates returns the per-host request budgets for the public
// sources the providers query.
func DefaultHostRates() map[string]float64 {
	return map[string]float64{
		"api.opencorporates.com":   2,
		"www.wikidata.org":         5,
		"en.wikipedia.org":         10,
		"query2.finance.yahoo.com": 2,
	}
}

// HTTPFetcher implements Getter using net/http. Every attempt holds one slot
// of a weighted semaphore shared by all callers, so at most Concurrency
// requests are in flight; the slot is released before any backoff sleep.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	sem      *semaphore.Weighted
	limiters map[string]*AdaptiveLimiter

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.Retry.MaxAttempts <= 0 {
		defaults := resilience.DefaultRetryConfig()
		opts.Retry.MaxAttempts = defaults.MaxAttempts
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "company-intel/1.0"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	limiters := make(map[string]*AdaptiveLimiter, len(opts.HostRates))
	for host, rps := range opts.HostRates {
		if rps <= 0 {
			continue
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiters[host] = NewAdaptiveLimiter(rate.Limit(rps), burst)
	}
	return &HTTPFetcher{
		client:   &http.Client{Transport: transport},
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		limiters: limiters,
	}
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() {
	f.client.CloseIdleConnections()
}

// MaxInFlight returns the highest number of concurrent requests observed.
func (f *HTTPFetcher) MaxInFlight() int64 {
	return f.maxInFlight.Load()
}

// Get performs req with retries. Every non-2xx status, timeout and transport
// error is retried with exponential backoff until the attempts run out. The
// returned Response is never OK after a failure.
func (f *HTTPFetcher) Get(ctx context.Context, req Request) Response {
	var out Response

	rawURL, err := req.FullURL()
	if err != nil {
		out.Err = eris.Wrap(err, "fetcher: parse url")
		return out
	}

	retry := f.opts.Retry
	retry.ShouldRetry = retryable
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		zap.L().Warn("fetch failed, backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("status", resilience.StatusCode(err)),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	}

	body, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		out.Attempts++
		body, status, err := f.attempt(ctx, rawURL, req)
		out.StatusCode = status
		return body, err
	})
	if err != nil {
		out.Err = err
		zap.L().Debug("fetch gave up",
			zap.String("url", rawURL),
			zap.Int("attempts", out.Attempts),
			zap.Int("status", out.StatusCode),
			zap.Error(err),
		)
		return out
	}

	out.Body = body
	return out
}

// retryable reports whether a failed attempt should be tried again: any
// HTTP status error or transient transport failure. Cancellation is handled
// by the retry loop itself.
func retryable(err error) bool {
	return resilience.StatusCode(err) != 0 || resilience.IsTransient(err)
}

func (f *HTTPFetcher) attempt(ctx context.Context, rawURL string, req Request) ([]byte, int, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, 0, eris.Wrap(err, "fetcher: acquire slot")
	}
	defer f.sem.Release(1)
	f.trackInFlight()
	defer f.inFlight.Add(-1)

	limiter := f.limiterFor(rawURL)
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "fetcher: rate limiter wait")
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.opts.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "fetcher: create request")
	}
	httpReq.Header.Set("User-Agent", f.opts.UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, eris.Wrap(err, "fetcher: request cancelled")
		}
		// Timeouts, refused connections, DNS failures: all retryable.
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "fetcher: transport"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests && limiter != nil {
		limiter.OnRateLimit()
	}
	if err := resilience.StatusErr(resp.StatusCode, rawURL); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, resp.StatusCode, eris.Wrap(err, "fetcher: read cancelled")
		}
		return nil, resp.StatusCode, resilience.NewTransientError(eris.Wrap(err, "fetcher: read body"), 0)
	}

	if limiter != nil {
		limiter.OnSuccess()
	}
	return body, resp.StatusCode, nil
}

func (f *HTTPFetcher) trackInFlight() {
	n := f.inFlight.Add(1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			return
		}
	}
}

// limiterFor returns the adaptive limiter for the URL's host, if any.
func (f *HTTPFetcher) limiterFor(rawURL string) *AdaptiveLimiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return f.limiters[u.Host]
}
