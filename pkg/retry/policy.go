// Package retry executes API calls under a retry policy with backoff between attempts.
package retry

import (
	"fmt"
	"time"
)

// ShouldRetryFunc decides whether a failed attempt may be retried. attempt is 1-based and
// elapsed is measured from the start of the first attempt.
type ShouldRetryFunc func(err error, attempt int, elapsed time.Duration) bool

// DelayFunc returns the pause inserted after the given 1-based attempt fails.
type DelayFunc func(attempt int) time.Duration

// Policy describes which failures are retried, how many attempts are made and how long to
// wait between them. A Policy is immutable and may be shared between goroutines.
type Policy struct {
	maxAttempts int
	shouldRetry ShouldRetryFunc
	delay       DelayFunc
}

type policyConfig struct {
	maxAttempts    int
	maxAttemptsSet bool
	shouldRetry    ShouldRetryFunc
	delay          DelayFunc
}

// PolicyOption configures a Policy during construction.
type PolicyOption func(*policyConfig)

// WithMaxAttempts caps the total number of attempts, first try included.
// Without this option the number of attempts is unbounded.
func WithMaxAttempts(attempts int) PolicyOption {
	return func(cfg *policyConfig) {
		cfg.maxAttempts = attempts
		cfg.maxAttemptsSet = true
	}
}

// WithShouldRetry sets the retryability predicate.
func WithShouldRetry(fn ShouldRetryFunc) PolicyOption {
	return func(cfg *policyConfig) {
		if fn != nil {
			cfg.shouldRetry = fn
		}
	}
}

// WithDelay sets the backoff schedule.
func WithDelay(fn DelayFunc) PolicyOption {
	return func(cfg *policyConfig) {
		if fn != nil {
			cfg.delay = fn
		}
	}
}

// NewPolicy validates the options and returns an immutable Policy. Omitted options default to
// DefaultShouldRetry and an exponential backoff with jitter.
func NewPolicy(opts ...PolicyOption) (*Policy, error) {
	cfg := policyConfig{
		shouldRetry: DefaultShouldRetry,
		delay:       ExponentialDelay(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(&cfg)
	}

	if cfg.maxAttemptsSet && cfg.maxAttempts < 1 {
		return nil, fmt.Errorf(
			"%w: maximum number of attempts must be at least 1, got %d",
			ErrInvalidConfiguration,
			cfg.maxAttempts,
		)
	}

	return &Policy{
		maxAttempts: cfg.maxAttempts,
		shouldRetry: cfg.shouldRetry,
		delay:       cfg.delay,
	}, nil
}

// MustPolicy is NewPolicy for package-level defaults; it panics on invalid options.
func MustPolicy(opts ...PolicyOption) *Policy {
	policy, err := NewPolicy(opts...)
	if err != nil {
		panic(err)
	}

	return policy
}

// NoRetry returns an explicit single-attempt policy.
func NoRetry() *Policy {
	return &Policy{
		maxAttempts: 1,
		shouldRetry: func(error, int, time.Duration) bool { return false },
		delay:       NoDelay(),
	}
}

// MaxAttempts returns the attempt cap and whether one is set.
func (p *Policy) MaxAttempts() (int, bool) {
	if p == nil {
		return 1, true
	}

	return p.maxAttempts, p.maxAttempts > 0
}

// ShouldRetry applies the policy predicate.
func (p *Policy) ShouldRetry(err error, attempt int, elapsed time.Duration) bool {
	if p == nil || p.shouldRetry == nil {
		return false
	}

	return p.shouldRetry(err, attempt, elapsed)
}

// Delay returns the wait after the given failed attempt, clamped to be non-negative.
func (p *Policy) Delay(attempt int) time.Duration {
	if p == nil || p.delay == nil {
		return 0
	}

	delay := p.delay(attempt)
	if delay < 0 {
		return 0
	}

	return delay
}

func (p *Policy) exhausted(attempt int) bool {
	return p.maxAttempts > 0 && attempt >= p.maxAttempts
}
