package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"twarchive/pkg/config"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one.
	// Values below 1 are treated as 1; there is no unlimited mode.
	MaxAttempts int
	// Backoff strategy used when no error specific strategy applies
	Backoff BackoffStrategy
	// ByType optionally overrides Backoff per error type
	ByType *ErrorTypeBackoff
	// MaxHintDelay caps a server provided Retry-After hint
	MaxHintDelay time.Duration
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry wait
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		Backoff:      DefaultExponentialBackoff(),
		MaxHintDelay: 15 * time.Minute,
		RetryIf:      DefaultRetryIf,
	}
}

// FromConfig builds a retry configuration from the user's retry settings.
// Rate limit errors without a server hint back off from a longer base.
func FromConfig(rc config.RetryConfig, log logger.Logger) *Config {
	base := &ExponentialBackoff{
		BaseDelay:    rc.BaseDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.Multiplier,
		JitterFactor: rc.JitterFactor,
	}
	rateLimit := *base
	rateLimit.BaseDelay = base.BaseDelay * 15
	if rateLimit.BaseDelay > rateLimit.MaxDelay {
		rateLimit.BaseDelay = rateLimit.MaxDelay
	}

	return &Config{
		MaxAttempts: rc.MaxAttempts,
		Backoff:     base,
		ByType: &ErrorTypeBackoff{
			RateLimitBackoff: &rateLimit,
		},
		MaxHintDelay: rc.MaxDelay,
		RetryIf:      DefaultRetryIf,
		Logger:       log,
	}
}

// DefaultRetryIf is the default retry predicate
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}

	// Untyped errors come from the transport or the local filesystem; retry them
	return true
}

// ErrExhausted marks an error returned after every attempt failed
var ErrExhausted = errors.New("retry budget exhausted")

// NextDelay picks the delay before the attempt following a failed one.
// A server hint wins over the computed backoff, capped at MaxHintDelay.
func (c *Config) NextDelay(attempt int, err error) time.Duration {
	if hint := errs.RetryAfterOf(err); hint > 0 {
		if c.MaxHintDelay > 0 && hint > c.MaxHintDelay {
			return c.MaxHintDelay
		}
		return hint
	}

	backoff := c.Backoff
	if c.ByType != nil {
		if b := c.ByType.For(errs.TypeOf(err)); b != nil {
			backoff = b
		}
	}
	if backoff == nil {
		return 0
	}
	return backoff.NextDelay(attempt)
}

// Do executes an operation with retry logic
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !retryIf(err) {
			return err
		}

		if attempt >= maxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt,
					"last_error": err.Error(),
				})
			}
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		delay := cfg.NextDelay(attempt, err)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Logger != nil {
			cfg.Logger.DebugWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": maxAttempts,
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)

	return result, err
}

// WithLogger returns a copy of the configuration that logs to l
func (c *Config) WithLogger(l logger.Logger) *Config {
	next := *c
	next.Logger = l
	return &next
}
