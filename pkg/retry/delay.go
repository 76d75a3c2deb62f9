package retry

import (
	"math"
	randv2 "math/rand/v2"
	"time"
)

const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultMultiplier   = 2.0
	defaultJitter       = 0.2
)

// FixedDelay waits the same duration after every failed attempt.
func FixedDelay(delay time.Duration) DelayFunc {
	if delay < 0 {
		delay = 0
	}

	return func(int) time.Duration {
		return delay
	}
}

// NoDelay retries immediately.
func NoDelay() DelayFunc {
	return FixedDelay(0)
}

type exponentialConfig struct {
	initial    time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	random     func() float64
}

// ExponentialOption tunes ExponentialDelay.
type ExponentialOption func(*exponentialConfig)

// WithInitialDelay sets the wait after the first failed attempt.
func WithInitialDelay(delay time.Duration) ExponentialOption {
	return func(cfg *exponentialConfig) {
		if delay > 0 {
			cfg.initial = delay
		}
	}
}

// WithMaxDelay caps every computed wait.
func WithMaxDelay(delay time.Duration) ExponentialOption {
	return func(cfg *exponentialConfig) {
		if delay > 0 {
			cfg.maxDelay = delay
		}
	}
}

// WithMultiplier sets the growth factor between consecutive waits. Values below 1 are ignored.
func WithMultiplier(multiplier float64) ExponentialOption {
	return func(cfg *exponentialConfig) {
		if multiplier >= 1 && !math.IsInf(multiplier, 0) {
			cfg.multiplier = multiplier
		}
	}
}

// WithJitter spreads each wait uniformly over [d*(1-j), d*(1+j)]. j is clamped to [0, 1].
func WithJitter(jitter float64) ExponentialOption {
	return func(cfg *exponentialConfig) {
		switch {
		case math.IsNaN(jitter) || jitter < 0:
			cfg.jitter = 0
		case jitter > 1:
			cfg.jitter = 1
		default:
			cfg.jitter = jitter
		}
	}
}

func withRandomSource(random func() float64) ExponentialOption {
	return func(cfg *exponentialConfig) {
		if random != nil {
			cfg.random = random
		}
	}
}

// ExponentialDelay grows the wait geometrically from the initial delay up to the cap.
func ExponentialDelay(opts ...ExponentialOption) DelayFunc {
	cfg := exponentialConfig{
		initial:    defaultInitialDelay,
		maxDelay:   defaultMaxDelay,
		multiplier: defaultMultiplier,
		jitter:     defaultJitter,
		random:     randv2.Float64,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.maxDelay < cfg.initial {
		cfg.maxDelay = cfg.initial
	}

	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}

		delay := float64(cfg.initial) * math.Pow(cfg.multiplier, float64(attempt-1))

		if cfg.jitter > 0 {
			delay *= 1 + (cfg.random()*2-1)*cfg.jitter
		}

		if math.IsNaN(delay) || math.IsInf(delay, 0) || delay >= float64(cfg.maxDelay) {
			return cfg.maxDelay
		}

		if delay < 0 {
			return 0
		}

		return time.Duration(delay)
	}
}
