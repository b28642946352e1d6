package engine

import (
	"math"
	"time"

	"github.com/juju/ratelimit"

	"github.com/shardlight/kvbridge/errors"
)

// Fairness grants low-priority requesters a 1/fairness chance against
// high-priority ones inside the wrapped bucket's arbitration. The wrapped
// algorithm accepts values in [1, 100].
const (
	MinFairness = 1
	MaxFairness = 100
)

// MaxRefillPeriodUs caps the refill period at one hour. Beyond that the
// period no longer models a refill cadence, and unbounded values would
// overflow the nanosecond conversion the bucket is built from.
const MaxRefillPeriodUs = int64(time.Hour / time.Microsecond)

// RateLimiterConfig configures a throughput budget. All fields are
// consumed by the native constructor; nothing is retained beyond the
// bucket they produce.
type RateLimiterConfig struct {
	// RateBytesPerSec is the total throughput budget. Must be positive.
	RateBytesPerSec int64

	// RefillPeriodUs controls how often tokens are refilled, in
	// microseconds. Larger values lead to burstier writes, smaller
	// values cost more CPU. Must be in (0, MaxRefillPeriodUs].
	RefillPeriodUs int64

	// Fairness tunes contention arbitration between high- and
	// low-priority requesters. Must be in [MinFairness, MaxFairness].
	Fairness int32
}

// Validate rejects configurations the native constructor would not
// accept. Called before any allocation so a failed create leaves
// nothing behind.
func (c RateLimiterConfig) Validate() error {
	if c.RateBytesPerSec <= 0 {
		return errors.InvalidConfig("ratelimiter", "rate_bytes_per_sec", c.RateBytesPerSec)
	}
	if c.RefillPeriodUs <= 0 || c.RefillPeriodUs > MaxRefillPeriodUs {
		return errors.InvalidConfig("ratelimiter", "refill_period_us", c.RefillPeriodUs)
	}
	if c.Fairness < MinFairness || c.Fairness > MaxFairness {
		return errors.InvalidConfig("ratelimiter", "fairness", c.Fairness)
	}
	if _, ok := refillQuantum(c.RateBytesPerSec, c.RefillPeriodUs); !ok {
		return errors.InvalidConfig("ratelimiter", "rate_bytes_per_sec", c.RateBytesPerSec)
	}
	return nil
}

// refillQuantum is the number of bytes one refill period is worth:
// rate * period / 1e6, computed without overflowing int64. The second
// return is false when the product does not fit.
func refillQuantum(rate, periodUs int64) (int64, bool) {
	const usPerSec = int64(time.Second / time.Microsecond)

	whole := rate / usPerSec
	rem := rate % usPerSec
	if whole > 0 && whole > math.MaxInt64/periodUs {
		return 0, false
	}
	q := whole * periodUs
	// rem < 1e6 and periodUs <= MaxRefillPeriodUs, so this product fits.
	frac := rem * periodUs / usPerSec
	if q > math.MaxInt64-frac {
		return 0, false
	}
	return q + frac, true
}

// RateLimiter throttles throughput to a configured bytes-per-second
// budget. The token-bucket math lives entirely in the wrapped bucket;
// this type only owns it.
type RateLimiter struct {
	bucket *ratelimit.Bucket
	config RateLimiterConfig
}

// NewRateLimiter constructs a rate limiter. Either the bucket exists and
// a fully linked wrapper is returned, or construction fails and nothing
// is allocated.
func NewRateLimiter(config RateLimiterConfig) (*RateLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	refill := time.Duration(config.RefillPeriodUs) * time.Microsecond
	quantum, _ := refillQuantum(config.RateBytesPerSec, config.RefillPeriodUs)
	if quantum < 1 {
		quantum = 1
	}

	// Capacity of one refill quantum: a full period's budget may burst,
	// matching the wrapped engine's refill discipline.
	bucket := ratelimit.NewBucketWithQuantum(refill, quantum, quantum)

	return &RateLimiter{
		bucket: bucket,
		config: config,
	}, nil
}

// Request blocks until n bytes of budget are available and consumes them.
func (r *RateLimiter) Request(n int64) {
	r.bucket.Wait(n)
}

// TryRequest consumes up to n bytes of budget without blocking and
// returns how many were granted.
func (r *RateLimiter) TryRequest(n int64) int64 {
	return r.bucket.TakeAvailable(n)
}

// Available returns the budget currently available, in bytes.
func (r *RateLimiter) Available() int64 {
	return r.bucket.Available()
}

// Config returns the configuration the limiter was built with.
func (r *RateLimiter) Config() RateLimiterConfig {
	return r.config
}

// Destroy releases the bucket. Safe to call more than once; only the
// first call has effect.
func (r *RateLimiter) Destroy() error {
	if r.bucket != nil {
		r.bucket = nil
	}
	return nil
}
