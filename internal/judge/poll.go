package judge

import (
	"context"
	"time"

	"codearena/internal/logger"

	"go.uber.org/zap"
)

// PollOptions bound the poll loop. Timeout is wall clock across the whole
// loop; Interval is the sleep between successful polls; RetryInterval is the
// sleep after a transport error.
type PollOptions struct {
	Timeout       time.Duration
	Interval      time.Duration
	RetryInterval time.Duration
}

// PollUntilSettled polls the batch until every job has settled or the
// timeout elapses. Transport errors during the loop are logged and retried,
// never surfaced mid-loop. On timeout it returns the last results fetched
// together with ErrPollTimeout, so callers can still apply the subset that
// did settle.
func PollUntilSettled(ctx context.Context, c Client, tokens []string, opts PollOptions) ([]Result, error) {
	deadline := time.Now().Add(opts.Timeout)

	var last []Result
	for {
		results, err := c.PollBatch(ctx, tokens)
		switch {
		case err != nil:
			logger.Log.Warn("Judge poll attempt failed, retrying",
				zap.Int("tokens", len(tokens)),
				zap.Error(err))
			if !sleepWithin(ctx, opts.RetryInterval, deadline) {
				return last, timeoutOrCtxErr(ctx)
			}
			continue
		case len(results) == 0:
			logger.Log.Warn("Judge poll returned no submissions, retrying",
				zap.Int("tokens", len(tokens)))
		default:
			last = results
			if allSettled(results) {
				return last, nil
			}
		}

		if !sleepWithin(ctx, opts.Interval, deadline) {
			return last, timeoutOrCtxErr(ctx)
		}
	}
}

func allSettled(results []Result) bool {
	for _, r := range results {
		if !r.Settled() {
			return false
		}
	}
	return true
}

// sleepWithin sleeps for d without crossing the deadline or the context.
// It returns false when either bound was hit and the loop must stop.
func sleepWithin(ctx context.Context, d time.Duration, deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	if d > remaining {
		d = remaining
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return !time.Now().After(deadline)
	}
}

func timeoutOrCtxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrPollTimeout
}
