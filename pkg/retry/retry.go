// Package retry provides retry logic with exponential backoff for OSF API
// requests, driven by the error classification in pkg/errors.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/osffs/osffs/pkg/errors"
)

// Config defines retry behavior configuration.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the exponential backoff factor for transient failures.
	Multiplier float64 `yaml:"multiplier"`

	// RateLimitMultiplier is the backoff factor applied instead of
	// Multiplier when the server throttles us without an explicit
	// Retry-After hint. It is deliberately larger than Multiplier so a
	// throttled client backs off harder than a client seeing ordinary
	// transient failures.
	RateLimitMultiplier float64 `yaml:"rate_limit_multiplier"`

	// Sleep is the wait function, overridable in tests. Nil means
	// time.Sleep honoring context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error `yaml:"-"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// Defaults match the OSF client's historical behavior: three retries on a
// 2x exponential schedule, with throttled requests backing off at 4x.
const (
	DefaultMaxRetries          = 3
	DefaultBaseDelay           = 500 * time.Millisecond
	DefaultMaxDelay            = 60 * time.Second
	DefaultMultiplier          = 2.0
	DefaultRateLimitMultiplier = 4.0
)

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          DefaultMaxRetries,
		BaseDelay:           DefaultBaseDelay,
		MaxDelay:            DefaultMaxDelay,
		Multiplier:          DefaultMultiplier,
		RateLimitMultiplier: DefaultRateLimitMultiplier,
	}
}

// Retryer drives the retry loop for one logical operation. A Retryer is
// stateless across calls; per-request attempt state lives on the stack of
// Do.
type Retryer struct {
	config Config
}

// New creates a Retryer, filling unset config values with defaults.
// MaxRetries zero is an explicit "never retry", not an unset value.
func New(config Config) *Retryer {
	if config.MaxRetries < 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = DefaultMultiplier
	}
	if config.RateLimitMultiplier <= 0 {
		config.RateLimitMultiplier = DefaultRateLimitMultiplier
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
	return &Retryer{config: config}
}

// Do executes fn, retrying classified-retryable failures up to the
// configured limit. Non-retryable failures return immediately without
// consuming an attempt. Exceeding the limit returns the last classified
// error unmodified.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeOperationTimeout, "operation canceled", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return err
		}
		if attempt >= r.config.MaxRetries {
			return lastErr
		}

		delay := r.Delay(attempt, err)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err, delay)
		}
		if serr := r.config.Sleep(ctx, delay); serr != nil {
			return errors.Wrap(errors.ErrCodeOperationTimeout, "operation canceled during backoff", serr)
		}
	}
}

// Delay computes the backoff before retry number attempt+1. A server
// Retry-After hint is honored exactly; otherwise rate-limited failures use
// the larger rate-limit multiplier.
func (r *Retryer) Delay(attempt int, err error) time.Duration {
	if hint := errors.RetryAfterHint(err); hint > 0 {
		return hint
	}

	multiplier := r.config.Multiplier
	if errors.IsRateLimited(err) {
		multiplier = r.config.RateLimitMultiplier
	}

	delay := float64(r.config.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
