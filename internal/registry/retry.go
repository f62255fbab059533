package registry

import (
	"context"
	"time"

	"github.com/jmgilman/go/imgex/errors"
)

// do runs fn until it succeeds, the failure is permanent, or the retry policy
// is exhausted. An authentication failure triggers exactly one credential
// re-resolution per operation; it does not count as an attempt.
func (c *Client) do(ctx context.Context, op string, fn func(context.Context) error) error {
	ref := c.ref.String()
	reauthenticated := false
	attempt := 1

	for {
		if err := ctx.Err(); err != nil {
			return mapError(ctx, op, ref, err)
		}

		err := mapError(ctx, op, ref, fn(ctx))
		if err == nil {
			return nil
		}

		switch {
		case errors.HasCode(err, errors.CodeAuthenticationFailed) && !reauthenticated:
			reauthenticated = true
			c.logger.Debug("registry rejected credentials, resolving again",
				"op", op, "reference", ref, "error", err)
			c.reauthenticate()

		case errors.IsRetryable(err) && attempt < c.retry.MaxAttempts:
			attempt++
			delay := c.retry.delay(attempt)
			c.logger.Warn("transient registry failure, retrying",
				"op", op, "reference", ref, "attempt", attempt, "delay", delay, "error", err)
			if err := sleep(ctx, delay); err != nil {
				return mapError(ctx, op, ref, err)
			}

		default:
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
