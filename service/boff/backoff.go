// Package boff retries startup connections with exponential backoff.
// Ingestion operations never go through here: a failed fetch or write is
// recovered by rerunning the sync, not by retrying in place.
package boff

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry runs operation until it succeeds, ctx is done, or maxElapsed passes.
// A zero maxElapsed retries until ctx is done.
func Retry[T any](ctx context.Context, logger *slog.Logger, name string, maxElapsed time.Duration, operation func() (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return backoff.Retry(
		ctx,
		operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.WarnContext(ctx, "startup dependency not ready, retrying",
				"dependency", name,
				"error", err,
				"retry_in", d,
			)
		}),
	)
}

// RetryNoReturn is Retry for operations without a result.
func RetryNoReturn(ctx context.Context, logger *slog.Logger, name string, maxElapsed time.Duration, operation func() error) error {
	_, err := Retry(ctx, logger, name, maxElapsed, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}
