package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/company-intel/internal/fetcher"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/resilience"
)

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

func newTestFetcher(t *testing.T) *fetcher.HTTPFetcher {
	t.Helper()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   "company-intel-test",
		Timeout:     2 * time.Second,
		Concurrency: 4,
		Retry: resilience.RetryConfig{
			MaxAttempts: 2,
			Unit:        time.Millisecond,
			MaxBackoff:  5 * time.Millisecond,
		},
	})
	t.Cleanup(f.Close)
	return f
}
