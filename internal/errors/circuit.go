package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is the cause of errors returned while a provider is being
// skipped after repeated outages.
var ErrCircuitOpen = errors.New("embedding provider circuit open")

// Breaker defaults for a local embedding server.
const (
	DefaultOutageThreshold = 5
	DefaultOutageCooldown  = 30 * time.Second
)

// BreakerState is the state of a ProviderBreaker.
type BreakerState int

const (
	// BreakerClosed passes every call to the provider.
	BreakerClosed BreakerState = iota
	// BreakerOpen refuses calls until the cooldown has passed.
	BreakerOpen
	// BreakerHalfOpen lets a single trial call through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ProviderBreaker stops calling an embedding provider that keeps failing to
// answer, so a build over thousands of batches fails fast instead of waiting
// out a timeout per batch.
//
// Only outages count towards the threshold: timeouts and unavailable
// errors. Any other provider error proves the server answered and closes the
// breaker. A cancelled caller leaves the count untouched.
type ProviderBreaker struct {
	provider  string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
}

// NewProviderBreaker creates a breaker for provider. Non-positive values
// select the defaults.
func NewProviderBreaker(provider string, threshold int, cooldown time.Duration) *ProviderBreaker {
	if threshold <= 0 {
		threshold = DefaultOutageThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultOutageCooldown
	}
	return &ProviderBreaker{
		provider:  provider,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// State reports the breaker state. An open breaker whose cooldown has passed
// reports half-open.
func (b *ProviderBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Guard runs call unless the breaker refuses it, and records the outcome.
func Guard[T any](b *ProviderBreaker, call func() (T, error)) (T, error) {
	if err := b.admit(); err != nil {
		var zero T
		return zero, err
	}
	v, err := call()
	b.record(err)
	return v, err
}

func (b *ProviderBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		wait := b.cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return b.refusal(wait)
		}
		b.state = BreakerHalfOpen
	case BreakerClosed:
		return nil
	}

	if b.trial {
		return b.refusal(0)
	}
	b.trial = true
	return nil
}

func (b *ProviderBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	switch {
	case err == nil || !isOutage(err):
		if errors.Is(err, context.Canceled) {
			return
		}
		b.state = BreakerClosed
		b.failures = 0
	default:
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	}
}

// refusal is not retryable: retries inside the cooldown cannot reach the
// provider.
func (b *ProviderBreaker) refusal(wait time.Duration) *LensError {
	le := New(ErrCodeProviderUnavailable,
		fmt.Sprintf("%s is unreachable after %d failed requests", b.provider, b.failures),
		ErrCircuitOpen).
		WithDetail("provider", b.provider)
	if wait > 0 {
		le.WithDetail("retry_after", wait.Round(time.Second).String())
	}
	le.Retryable = false
	return le
}

func isOutage(err error) bool {
	switch GetCode(err) {
	case ErrCodeProviderTimeout, ErrCodeProviderUnavailable:
		return !errors.Is(err, ErrCircuitOpen)
	}
	return false
}
