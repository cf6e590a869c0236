package errors

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// RetryConfig configures RetryWithConfig.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// RetryableErrors are retried on top of the codes IsRetryable accepts.
	RetryableErrors []ErrorCode
	// Clock drives the backoff timers; nil means the wall clock.
	Clock clock.Clock
	// OnRetry, when set, is told about every failed attempt that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryConfig retries gateway and database failures three times.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RetryableErrors: []ErrorCode{ErrCodeGateway, ErrCodeDatabase},
	}
}

// RetryFunc is one attempt.
type RetryFunc func() error

func (c *RetryConfig) backoff(attempt int) time.Duration {
	wait := c.InitialDelay
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * c.Multiplier)
		if wait >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return wait
}

func (c *RetryConfig) retryable(err error) bool {
	var payErr *PaymentError
	if errors.As(err, &payErr) {
		for _, code := range c.RetryableErrors {
			if payErr.Code == code {
				return true
			}
		}
	}
	return IsRetryable(err)
}

// RetryWithConfig calls fn until it succeeds, fails permanently, runs out of
// attempts or ctx ends. The final error keeps the code of the last failure.
func RetryWithConfig(ctx context.Context, fn RetryFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); err == nil {
			return nil
		}
		if !config.retryable(err) {
			return err
		}
		if attempt >= config.MaxAttempts {
			return Wrapf(err, "gave up after %d attempts", attempt)
		}

		wait := config.backoff(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, wait)
		}
		timer := clk.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Retry is RetryWithConfig with DefaultRetryConfig.
func Retry(ctx context.Context, fn RetryFunc) error {
	return RetryWithConfig(ctx, fn, DefaultRetryConfig())
}
