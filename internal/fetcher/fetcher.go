// Package fetcher performs outbound HTTP GETs for provider lookups with a
// shared concurrency ceiling, per-host rate limits and bounded retries.
// Fetch failures never surface as errors: callers get an empty Response.
package fetcher

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// Getter is the capability providers depend on.
type Getter interface {
	// Get performs the request and returns the outcome. It never panics and
	// always returns once retries are exhausted or ctx is done.
	Get(ctx context.Context, req Request) Response
}

// Request describes one outbound GET.
type Request struct {
	URL     string
	Query   url.Values
	Headers map[string]string
	// Timeout bounds a single attempt. Zero uses the fetcher default.
	Timeout time.Duration
}

// Response is the outcome of a Get. A Response that is not OK carries no
// usable body; Err and StatusCode describe why.
type Response struct {
	StatusCode int
	Body       []byte
	Attempts   int
	Err        error
}

// OK reports whether the request produced a 2xx body.
func (r Response) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals a successful JSON body into v. It returns false for a
// failed response or malformed JSON.
func (r Response) Decode(v any) bool {
	if !r.OK() || len(r.Body) == 0 {
		return false
	}
	return json.Unmarshal(r.Body, v) == nil
}

// Text returns the body of a successful response, or "".
func (r Response) Text() string {
	if !r.OK() {
		return ""
	}
	return string(r.Body)
}

// FullURL renders the request URL with its query parameters merged in.
func (r Request) FullURL() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", err
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
