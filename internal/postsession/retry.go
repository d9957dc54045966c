package postsession

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// Runner is the single-attempt pipeline surface.
type Runner interface {
	Run(ctx context.Context, sessionID int64) *UpdateResult
}

// RunWithRetry re-runs the whole pipeline on transient provider failures
// with a fixed backoff, up to maxAttempts. Budget, parse and persistence
// failures are final on the first attempt. The last result is returned
// either way.
func RunWithRetry(ctx context.Context, runner Runner, sessionID int64, maxAttempts int, interval time.Duration, log *logging.Logger) *UpdateResult {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = logging.Default()
	}

	var last *UpdateResult
	attempt := 0
	operation := func() error {
		attempt++
		last = runner.Run(ctx, sessionID)
		if last.Success || !last.Retryable {
			return nil
		}
		log.Warn("post-session update failed, will retry",
			"session_id", sessionID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", last.Error,
		)
		return errors.New(last.Error)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		log.Error("post-session update exhausted retries",
			"session_id", sessionID,
			"attempts", attempt,
			"error", err,
		)
	}
	return last
}
