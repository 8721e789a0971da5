package resilience

import "time"

// Config tunes retries and the optional per-operation circuit breaker.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// ProgressPublishConfig is for progress fan-out. Every attempted item
// publishes once, so a retry must stay well under one item's settle time
// and a broker outage should trip the breaker within a few items.
func ProgressPublishConfig() Config {
	return Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 50 * time.Millisecond,
		RetryMaxBackoff:     200 * time.Millisecond,
		RetryMultiplier:     2,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}
}

// SessionStartConfig retries browser acquisition without a breaker: a
// session is opened once per run, so there is no traffic to trip on.
func SessionStartConfig(attempts int, backoff time.Duration) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: backoff,
		RetryMaxBackoff:     4 * backoff,
		RetryMultiplier:     2,
	}
}

func positive[T int | uint32 | float64 | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

func (c Config) normalize() Config {
	def := ProgressPublishConfig()

	c.RetryMaxAttempts = positive(c.RetryMaxAttempts, def.RetryMaxAttempts)
	c.RetryInitialBackoff = positive(c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(positive(c.RetryMaxBackoff, def.RetryMaxBackoff), c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}

	c.BreakerMinRequests = positive(c.BreakerMinRequests, def.BreakerMinRequests)
	if c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerFailureRatio = positive(c.BreakerFailureRatio, def.BreakerFailureRatio)
	c.BreakerOpenTimeout = positive(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = positive(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return c
}
