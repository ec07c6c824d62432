package textgen

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig shapes how a completion is retried. The wait before attempt
// n+1 is BackoffBase * BackoffMultiplier^(n-1), capped at MaxBackoff and
// spread by a quarter either way.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig is 3 attempts on a 2s doubling schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// backoff is the wait after the given failed attempt, counted from 1.
func (c RetryConfig) backoff(attempt int) time.Duration {
	wait := float64(c.BackoffBase) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	wait = math.Min(wait, float64(c.MaxBackoff))
	spread := 0.75 + rand.Float64()/2
	return time.Duration(wait * spread)
}
