package endpoint

import (
	"context"
	"fmt"
	"time"

	"aetherlens/internal/config"
	"aetherlens/pkg/logging"
)

// pollUntilReady retries probe with exponential backoff until it succeeds,
// the configured ceiling elapses, or alive reports the underlying resource
// gone. Delays grow by the configured factor up to the per-attempt cap, so
// the sequence is non-decreasing. alive may be nil when there is no owned
// resource to watch; sleep is swapped in tests.
func pollUntilReady(ctx context.Context, what string, b config.BackoffConfig,
	probe func(context.Context) error,
	alive func(context.Context) error,
	sleep func(time.Duration)) error {

	if sleep == nil {
		sleep = time.Sleep
	}

	delay := b.Initial()
	deadline := time.Now().Add(b.Ceiling())
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if alive != nil {
			if err := alive(ctx); err != nil {
				return fmt.Errorf("%w: %v", ErrResourceDied, err)
			}
		}

		lastErr = probe(ctx)
		if lastErr == nil {
			logging.Debug("Endpoint", "%s ready after %d attempt(s)", what, attempt)
			return nil
		}

		if time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("%w: %s after %d attempt(s): %v", ErrReadinessTimeout, what, attempt, lastErr)
		}
		logging.Debug("Endpoint", "%s not ready (attempt %d): %v, retrying in %s", what, attempt, lastErr, delay)
		sleep(delay)

		delay = time.Duration(float64(delay) * b.Factor)
		if max := b.Max(); delay > max {
			delay = max
		}
	}
}
