package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
)

// Policy retries transient provider failures with exponential backoff.
type Policy struct {
	MaxRetries int
	Min        time.Duration
	Max        time.Duration
	Log        logger.Logger
}

// Do runs fn until it succeeds, fails permanently, or MaxRetries retries are
// used up. Only errors matching mailerrors.IsTransient are retried.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    p.Min,
		Max:    p.Max,
		Factor: 2,
		Jitter: true,
	}
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !mailerrors.IsTransient(err) || attempt >= p.MaxRetries {
			return err
		}
		if p.Log != nil {
			p.Log.Warnf("transient provider error, retry %d of %d: %v", attempt+1, p.MaxRetries, err)
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
