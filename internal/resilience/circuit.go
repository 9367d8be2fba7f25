// Package resilience provides the retry schedule, transient-error taxonomy and
// per-provider circuit breakers used by outbound lookups.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of one provider's breaker.
type CircuitState int

const (
	// CircuitClosed lets every lookup through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects lookups until the cooldown has passed.
	CircuitOpen
	// CircuitHalfOpen admits a single trial lookup.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a lookup is rejected by an open breaker.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls when a provider is short-circuited.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed lookups that
	// opens the breaker. Default: 5.
	FailureThreshold int
	// Cooldown is how long an open breaker rejects lookups before it admits
	// a trial lookup. Default: 30s.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the breaker settings used for providers.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// Breaker guards one provider. Only errors count against it; a lookup that
// returns nothing is a success. Failures caused by the caller's context
// ending are not counted either way.
type Breaker struct {
	provider  string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	openedAt  time.Time
	trialling bool
}

// NewBreaker creates a closed breaker for the named provider.
func NewBreaker(provider string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{
		provider:  provider,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
		now:       time.Now,
	}
}

// Call runs fn unless b rejects it. While half-open only one call at a time
// is admitted; concurrent lookups from the same batch get ErrCircuitOpen
// until that trial settles.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	trial, err := b.admit()
	if err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release(trial)
		return val, err
	}
	b.settle(trial, err)
	return val, err
}

// State returns the current state. An open breaker whose cooldown has passed
// reports half-open.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		b.moveTo(CircuitHalfOpen)
	case CircuitHalfOpen:
		if b.trialling {
			return false, ErrCircuitOpen
		}
	default:
		return false, nil
	}
	b.trialling = true
	return true, nil
}

func (b *Breaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	b.trialling = false
	b.mu.Unlock()
}

func (b *Breaker) settle(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.trialling = false
	}

	if err == nil {
		b.failures = 0
		if trial && b.state == CircuitHalfOpen {
			b.moveTo(CircuitClosed)
		}
		return
	}

	b.failures++
	if (trial && b.state == CircuitHalfOpen) || (b.state == CircuitClosed && b.failures >= b.threshold) {
		b.openedAt = b.now()
		b.moveTo(CircuitOpen)
	}
}

func (b *Breaker) moveTo(to CircuitState) {
	from := b.state
	b.state = to
	zap.L().Warn("provider circuit state change",
		zap.String("provider", b.provider),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("consecutive_failures", b.failures),
	)
}

// ProviderBreakers holds one breaker per provider name.
type ProviderBreakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewProviderBreakers creates an empty set sharing cfg.
func NewProviderBreakers(cfg BreakerConfig) *ProviderBreakers {
	return &ProviderBreakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for provider, creating it on first use.
func (pb *ProviderBreakers) Get(provider string) *Breaker {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	b, ok := pb.breakers[provider]
	if !ok {
		b = NewBreaker(provider, pb.cfg)
		pb.breakers[provider] = b
	}
	return b
}

// States returns each provider's breaker state, for health reporting.
func (pb *ProviderBreakers) States() map[string]CircuitState {
	pb.mu.Lock()
	breakers := make(map[string]*Breaker, len(pb.breakers))
	for name, b := range pb.breakers {
		breakers[name] = b
	}
	pb.mu.Unlock()

	states := make(map[string]CircuitState, len(breakers))
	for name, b := range breakers {
		states[name] = b.State()
	}
	return states
}
