package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/cenkalti/backoff/v4"
)

type retryPolicy struct {
	attempts int
	base     time.Duration
	max      time.Duration
	logger   *slog.Logger
}

// run retries op with exponential backoff while it fails with ErrTransient.
// Any other error stops immediately and is returned as is.
func (p retryPolicy) run(ctx context.Context, what string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.base
	policy.MaxInterval = p.max
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(p.attempts, 0))), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, domain.ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		p.logger.Debug("retrying after transient failure", "op", what, "wait", wait, "err", err)
	})
}
