package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation. Delays grow as BaseDelay * 2^n.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	PerAttemptTimeout time.Duration
	Name              string
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. Each attempt gets its own timeout derived from ctx.
// The returned int is the number of attempts made.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) (int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = p.BaseDelay << uint(p.MaxAttempts)
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempts := 0
	operation := func() error {
		attempts++
		attemptCtx := ctx
		if p.PerAttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.PerAttemptTimeout)
			defer cancel()
		}
		return op(attemptCtx)
	}

	notify := func(err error, next time.Duration) {
		slog.Warn("Retrying after failure", "operation", p.Name, "attempt", attempts, "next_in", next, "error", err)
	}

	err := backoff.RetryNotify(operation, b, notify)
	return attempts, err
}

// IsPermanent reports whether err was produced by Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
