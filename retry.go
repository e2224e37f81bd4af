package multicall

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// callWithRetries runs fn up to limit times and returns its first success.
// Failed attempts are logged and dropped. When every attempt fails, the
// returned *RetriesExceededError carries the last failure.
func callWithRetries[T any](ctx context.Context, logger logrus.FieldLogger, limit int, interval time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if limit <= 0 {
		return zero, errors.Wrapf(ErrInvalidParams, "retries limit %v", limit)
	}

	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		logger.WithError(err).WithFields(logrus.Fields{
			"attempt":      attempt,
			"retriesLimit": limit,
		}).Warn("Multicall chunk failed")

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if interval > 0 && attempt < limit {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	return zero, &RetriesExceededError{Attempts: limit, Cause: lastErr}
}
