package retry

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Func defines the function signature for a retryable operation.
type Func func(ctx context.Context) error

// OnRetryFunc is called after every failed attempt.
// attempt is 1-based.
type OnRetryFunc func(attempt int, err error)

// Execute performs op with linear backoff and reports how many attempts ran.
//
// A nil cfg uses DefaultRetryConfig. The error returned after exhaustion is the
// last error produced by op, unwrapped. Cancellation of ctx stops the loop
// immediately, including while sleeping between attempts.
func Execute(ctx context.Context, cfg *Config, op Func, onRetry OnRetryFunc) (int, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("invalid retry configuration: %w", err)
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(cfg.Attempts)),
		retry.DelayType(LinearDelay(cfg.DelayBase)),
		retry.LastErrorOnly(true),
	}
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			onRetry(int(n)+1, err)
		}))
	}

	attempts := 0
	err := retry.New(opts...).Do(func() error {
		attempts++
		err := op(ctx)
		if err != nil && ctx.Err() != nil {
			// the caller gave up; another attempt cannot succeed
			return retry.Unrecoverable(err)
		}
		return err
	})
	return attempts, err
}

// LinearDelay returns a delay function sleeping base * n after the n-th failure.
func LinearDelay(base time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ retry.DelayContext) time.Duration {
		return base * time.Duration(n)
	}
}
