// Package retry implements the single shared transient-error retry policy
// used by every provider adapter network call. Grounded on the retry()
// decorator in the original sync manager, pulled out into one policy
// object per spec §9's design note ("all transient-error handling lives
// in a single policy object composed with each adapter call; adapters
// never try/except around network calls").
package retry

import (
	"context"
	"time"

	"github.com/syncorch/syncd/pkg/errs"
)

// Policy is the exponential-backoff retry policy: base delay 1s, factor
// 2, at most 3 retries, retrying only on errs.TransientUpstream and
// errs.RateLimited.
type Policy struct {
	BaseDelay  time.Duration
	Factor     float64
	MaxRetries int
	Sleep      func(context.Context, time.Duration) error
}

// Default returns the policy mandated by spec §4.2.
func Default() Policy {
	return Policy{
		BaseDelay:  1 * time.Second,
		Factor:     2,
		MaxRetries: 3,
		Sleep:      sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn, retrying on retryable errors per the policy. Non-retryable
// errors (4xx other than 429, NotFound, InvalidArgument, ...) return
// immediately on the first attempt.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := p.BaseDelay
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.Retryable(err) || attempt == p.MaxRetries {
			return err
		}
		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}
	return lastErr
}
